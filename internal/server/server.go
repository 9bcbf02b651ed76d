package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cortexai/opsinsight/internal/config"
	"github.com/cortexai/opsinsight/internal/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg        *config.Config
	components *Components
	limiter    *middleware.RateLimiter
	http       *http.Server
}

func New(cfg *config.Config, components *Components) *Server {
	s := &Server{
		cfg:        cfg,
		components: components,
		limiter:    middleware.NewRateLimiter(cfg.RateLimitPerMinute),
	}
	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     s.setupRoutes(),
		ReadTimeout: 15 * time.Second,
		WriteTimeout: 11 * time.Minute, // ask timeout is capped at 600s
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Close releases resources of a server that was never Run.
func (s *Server) Close() { s.limiter.Stop() }

func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
