package registry_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/backend/backendtest"
	"github.com/llamaedge/chat-core/registry"
)

func TestRegister_And_Get(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	mock := backendtest.NewMock("demo", backend.Metadata{})
	reg.Register(mock)

	g, err := reg.Get(context.Background(), "demo")
	require.NoError(t, err)
	require.Equal(t, "demo", g.Name())
}

func TestGet_EmptyName_ReturnsFirstGraph(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	mock := backendtest.NewMock("demo", backend.Metadata{})
	reg.Register(mock)

	g, err := reg.Get(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "demo", g.Name())
}

func TestGet_EmptyRegistry_ReturnsErrNoGraphs(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "")
	require.ErrorIs(t, err, registry.ErrNoGraphs)
}

func TestGet_UnknownName_NoBuilder_Errors(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestGet_BuildsViaBuilder_AndCaches(t *testing.T) {
	var buildCalls int32

	builder := func(ctx context.Context, name string) (backend.Graph, error) {
		atomic.AddInt32(&buildCalls, 1)
		return backendtest.NewMock(name, backend.Metadata{}), nil
	}

	reg, err := registry.New(registry.ModeChat, builder, 0)
	require.NoError(t, err)

	g1, err := reg.Get(context.Background(), "lazy")
	require.NoError(t, err)
	require.Equal(t, "lazy", g1.Name())

	g2, err := reg.Get(context.Background(), "lazy")
	require.NoError(t, err)
	require.Same(t, g1, g2)

	require.EqualValues(t, 1, atomic.LoadInt32(&buildCalls))
}

func TestGet_ConcurrentBuilds_CollapseViaSingleflight(t *testing.T) {
	var buildCalls int32

	builder := func(ctx context.Context, name string) (backend.Graph, error) {
		atomic.AddInt32(&buildCalls, 1)
		return backendtest.NewMock(name, backend.Metadata{}), nil
	}

	reg, err := registry.New(registry.ModeChat, builder, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Get(context.Background(), "shared")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&buildCalls))
}

func TestNames_ListsLoadedGraphs(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	reg.Register(backendtest.NewMock("a", backend.Metadata{}))
	reg.Register(backendtest.NewMock("b", backend.Metadata{}))

	require.ElementsMatch(t, []string{"a", "b"}, reg.Names())
}

func TestAcquire_ReturnsReleaseFunc(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	mock := backendtest.NewMock("demo", backend.Metadata{})
	reg.Register(mock)

	g, release, err := reg.Acquire(context.Background(), "demo")
	require.NoError(t, err)
	require.Equal(t, "demo", g.Name())

	release()
}

func TestNew_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 1)
	require.NoError(t, err)

	// Registering past capacity drives the lru's evict callback synchronously
	// inside Register's own critical section; this must not deadlock.
	reg.Register(backendtest.NewMock("a", backend.Metadata{}))
	reg.Register(backendtest.NewMock("b", backend.Metadata{}))

	names := reg.Names()
	require.Len(t, names, 1)
	require.Equal(t, []string{"b"}, names)
}

func TestAcquire_DifferentGraphsDoNotBlockEachOther(t *testing.T) {
	reg, err := registry.New(registry.ModeChat, nil, 0)
	require.NoError(t, err)

	reg.Register(backendtest.NewMock("a", backend.Metadata{}))
	reg.Register(backendtest.NewMock("b", backend.Metadata{}))

	_, releaseA, err := reg.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		_, releaseB, err := reg.Acquire(context.Background(), "b")
		require.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different graph blocked on an unrelated graph's lock")
	}
}

func TestMode_ReportsConfiguredMode(t *testing.T) {
	reg, err := registry.New(registry.ModeEmbeddings, nil, 0)
	require.NoError(t, err)

	require.Equal(t, registry.ModeEmbeddings, reg.Mode())
}
