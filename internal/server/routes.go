package server

import (
	"net/http"

	"github.com/cortexai/opsinsight/internal/config"
	"github.com/cortexai/opsinsight/internal/handler"
	"github.com/cortexai/opsinsight/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() http.Handler {
	cfg := s.cfg
	c := s.components

	// ─── Handlers ────────────────────────────────────────────────────────────────
	var kbCheck handler.HealthChecker
	knowledgeH := handler.NewKnowledgeHandler(nil)
	if c.Knowledge != nil {
		kbCheck = c.Knowledge
		knowledgeH = handler.NewKnowledgeHandler(c.Knowledge)
	}
	healthH := handler.NewHealthHandler(c.Store, kbCheck)
	askH := handler.NewAskHandler(c.Orchestrator)
	queryH := handler.NewQueryHandler(c.Orchestrator.Executor())
	schemaH := handler.NewSchemaHandler(c.Settings.Schema)

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	cors := middleware.DefaultCORSConfig(cfg.CORSOrigins)
	cors.MaxAge = config.DefaultCORSMaxAge
	r.Use(middleware.CORS(cors))

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Handler)
		if cfg.EnableAuth {
			r.Use(middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/ask", askH.Ask)
			r.Post("/query", queryH.Execute)
			r.Get("/schema", schemaH.ListTables)
			r.Post("/knowledge/search", knowledgeH.Search)
		})
	})

	return r
}
