package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/service"
)

const version = "1.0.0"

// HealthChecker is implemented by services that can report connectivity
type HealthChecker interface {
	TestConnection(ctx context.Context) error
}

// storeCheck opens and closes one connection.
type storeCheck struct {
	store service.Store
}

func (c storeCheck) TestConnection(ctx context.Context) error {
	conn, err := c.store.Open(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// HealthHandler handles GET /health with dependency checks
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler checks the store and, when configured, the knowledge base.
func NewHealthHandler(store service.Store, kb HealthChecker) *HealthHandler {
	checks := make(map[string]HealthChecker, 2)
	if store != nil {
		checks["store"] = storeCheck{store: store}
	}
	if kb != nil {
		checks["knowledge_base"] = kb
	}
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	// Use a short timeout for health checks so they don't block
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, c := range h.checks {
		if err := c.TestConnection(ctx); err != nil {
			checks[name] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: version,
		Checks:  checks,
	})
}
