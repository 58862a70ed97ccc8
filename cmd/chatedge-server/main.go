// Command chatedge-server is the illustrative HTTP edge: it loads
// configuration, pre-registers one graph per configured model, and serves
// the OpenAI-compatible chat-completions API described in SPEC_FULL.md.
//
// The native tensor-style backend (build_from_cache, compute, ...) is
// supplied by a collaborator outside this core; this binary wires in the
// in-repo backendtest.Mock so the server is runnable end to end without
// that collaborator, and logs a warning that a real deployment must
// replace it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/llamaedge/chat-core/backend"
	"github.com/llamaedge/chat-core/backend/backendtest"
	"github.com/llamaedge/chat-core/driver"
	"github.com/llamaedge/chat-core/internal/config"
	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/pipeline/maxtoken"
	streammw "github.com/llamaedge/chat-core/pipeline/stream"
	"github.com/llamaedge/chat-core/prompt"
	"github.com/llamaedge/chat-core/registry"
	"github.com/llamaedge/chat-core/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON/TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.L().Fatal("chatedge-server: load config", zap.Error(err))
	}

	if l, err := newLogger(cfg.LogLevel); err == nil {
		log.SetLogger(l)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := registryMode(cfg.Mode())

	reg, err := registry.New(mode, nil, cfg.LRUCapacity)
	if err != nil {
		log.Error(ctx, "chatedge-server: build registry", log.Cause(err))
		os.Exit(1)
	}

	if len(cfg.Models) == 0 {
		log.Warn(ctx, "chatedge-server: no models configured, registering a demo graph")

		reg.Register(backendtest.NewMock("demo", backend.Metadata{
			CtxSize:        4096,
			NPredict:       512,
			PromptTemplate: string(prompt.ChatML),
		}))
	}

	for _, m := range cfg.Models {
		log.Warn(ctx, "chatedge-server: registering mock graph; replace with a real build_from_cache-backed Graph before production use",
			log.String("model", m.Name))

		reg.Register(backendtest.NewMock(m.Name, m.Metadata()))
	}

	builder := prompt.NewBuilder(prompt.NewRegistry())
	d := driver.New(reg, builder, nil, maxtoken.EnsureMaxTokens(512), streammw.EnsureUsage())

	srv := server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
	}, d, reg)

	if err := srv.Run(ctx); err != nil {
		log.Error(ctx, "chatedge-server: serve", log.Cause(err))
		os.Exit(1)
	}
}

func registryMode(raw string) registry.Mode {
	switch raw {
	case "embeddings":
		return registry.ModeEmbeddings
	case "chat_embeddings":
		return registry.ModeChatEmbeddings
	default:
		return registry.ModeChat
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	if l, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = l
	}

	return cfg.Build()
}
