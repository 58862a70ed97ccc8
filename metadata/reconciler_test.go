package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/backend/backendtest"
	"github.com/llamaedge/chat-core/llm"
	"github.com/llamaedge/chat-core/metadata"
)

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }

func TestCheckModelMetadata_NoChanges_SkipsWrite(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{Temperature: 0.8, TopP: 0.9})

	err := metadata.CheckModelMetadata(mock, &llm.Request{}, "")
	require.NoError(t, err)
	require.Equal(t, 0, mock.SetMetadataCalls)
}

func TestCheckModelMetadata_OverlaysSamplingOptions(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{Temperature: 0.8})

	req := &llm.Request{
		Temperature:      float64Ptr(0.2),
		TopP:             float64Ptr(0.5),
		FrequencyPenalty: float64Ptr(0.1),
		PresencePenalty:  float64Ptr(0.3),
	}

	err := metadata.CheckModelMetadata(mock, req, "")
	require.NoError(t, err)
	require.Equal(t, 1, mock.SetMetadataCalls)

	meta := mock.Metadata()
	require.InDelta(t, 0.2, meta.Temperature, 0.0001)
	require.InDelta(t, 0.5, meta.TopP, 0.0001)
	require.InDelta(t, 0.1, meta.FrequencyPenalty, 0.0001)
	require.InDelta(t, 0.3, meta.PresencePenalty, 0.0001)
}

func TestCheckModelMetadata_ForcesEmbeddingsFalse(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{Embeddings: true})

	err := metadata.CheckModelMetadata(mock, &llm.Request{}, "")
	require.NoError(t, err)
	require.Equal(t, 1, mock.SetMetadataCalls)
	require.False(t, mock.Metadata().Embeddings)
}

func TestCheckModelMetadata_SetsImageWhenChanged(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{})

	err := metadata.CheckModelMetadata(mock, &llm.Request{}, "/tmp/a.png")
	require.NoError(t, err)
	require.Equal(t, "/tmp/a.png", mock.Metadata().Image)
}

func TestUpdateNPredict_ClampsToMaxTokens(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{NPredict: 512})

	err := metadata.UpdateNPredict(mock, &llm.Request{MaxTokens: int64Ptr(100)}, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(100), mock.Metadata().NPredict)
	require.Equal(t, 1, mock.SetMetadataCalls)
}

func TestUpdateNPredict_ClampsMaxTokensToAvailable(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{NPredict: 512})

	err := metadata.UpdateNPredict(mock, &llm.Request{MaxTokens: int64Ptr(5000)}, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(200), mock.Metadata().NPredict)
}

func TestUpdateNPredict_NoMaxTokens_ClampsExistingIfOverAvailable(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{NPredict: 512})

	err := metadata.UpdateNPredict(mock, &llm.Request{}, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), mock.Metadata().NPredict)
}

func TestUpdateNPredict_NoChange_SkipsWrite(t *testing.T) {
	mock := backendtest.NewMock("demo", backend.Metadata{NPredict: 100})

	err := metadata.UpdateNPredict(mock, &llm.Request{}, 1000)
	require.NoError(t, err)
	require.Equal(t, 0, mock.SetMetadataCalls)
}
