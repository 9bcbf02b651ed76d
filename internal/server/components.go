package server

import (
	"fmt"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/config"
	"github.com/cortexai/opsinsight/internal/service"
	"github.com/rs/zerolog/log"
)

// Components are the long-lived collaborators built from config. Optional
// ones stay nil when disabled.
type Components struct {
	Settings     agent.Settings
	Store        service.Store
	Model        agent.Model
	Knowledge    *service.KnowledgeBase
	Files        service.FileProvider
	Orchestrator *agent.Orchestrator
}

// NewComponents builds every collaborator. files overrides the upload
// directory configured in cfg, e.g. for a file passed on the command line.
func NewComponents(cfg *config.Config, files service.FileProvider) (*Components, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	store, err := service.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	c := &Components{Settings: settings, Store: store, Files: files}

	if cfg.AnthropicAPIKey != "" {
		c.Model = agent.NewAnthropicModel(cfg.ModelOptions())
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - questions will be answered with an apology")
	}

	if cfg.ElasticsearchEnabled {
		kb, err := service.NewKnowledgeBase(cfg.KnowledgeConfig())
		if err != nil {
			log.Warn().Err(err).Msg("knowledge base unavailable")
		} else {
			c.Knowledge = kb
		}
	}

	if c.Files == nil && cfg.UploadDir != "" {
		c.Files = service.NewDirFileProvider(cfg.UploadDir, cfg.MaxRows)
	}

	deps := agent.Deps{Model: c.Model, Store: c.Store, Files: c.Files}
	if c.Knowledge != nil {
		deps.Knowledge = c.Knowledge
	}
	c.Orchestrator = agent.NewOrchestrator(settings, deps)

	log.Info().
		Str("store_driver", cfg.StoreDriver).
		Str("dialect", store.Dialect()).
		Bool("model_enabled", c.Model != nil).
		Bool("knowledge_enabled", c.Knowledge != nil).
		Bool("uploads_enabled", c.Files != nil).
		Bool("auth_enabled", cfg.EnableAuth).
		Bool("data_masking", settings.EnableMasking).
		Bool("audit_logging", settings.AuditEnabled).
		Bool("pii_detection", len(settings.PIIKeywords) > 0).
		Int("tables", len(settings.Schema.Tables)).
		Msg("service configuration")

	return c, nil
}
