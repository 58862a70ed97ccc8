package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/llamaedge/chat-core/driver"
	"github.com/llamaedge/chat-core/internal/log"
	"github.com/llamaedge/chat-core/registry"
)

// Config is the minimal set of knobs this edge needs; everything else
// (model bootstrap, sampling defaults) lives in the registry the caller
// already built.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
}

// Server wraps a gin.Engine bound to a Driver, matching the embeddable
// *gin.Engine-plus-http.Server shape used throughout this codebase.
type Server struct {
	*gin.Engine

	config Config
	http   *http.Server
}

// New builds a Server with CORS, recovery and access logging wired in, and
// every route registered — every response, including OPTIONS preflights,
// carries the CORS headers unconditionally.
func New(config Config, d *driver.Driver, reg *registry.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(recovery(), withRequestID(), accessLog())

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = origins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"*"}
	corsHandler := cors.New(corsConfig)

	engine.Use(corsHandler)
	engine.OPTIONS("*any", corsHandler)

	srv := &Server{Engine: engine, config: config}

	handlers := NewHandlers(d, reg)

	v1 := engine.Group("/v1")
	v1.POST("/chat/completions", handlers.ChatCompletion)
	v1.GET("/models", handlers.ListModels)

	return srv
}

// Run blocks serving HTTP until the context is cancelled or the server
// fails to start.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Engine,
	}

	log.Info(ctx, "server: listening", log.String("addr", s.config.ListenAddr))

	errCh := make(chan error, 1)

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}

		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
