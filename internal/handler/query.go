package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/models"
)

const maxStatements = 20

// BatchExecutor runs a gated statement batch.
type BatchExecutor interface {
	Execute(ctx context.Context, stmts []agent.Statement) *agent.Batch
}

// QueryHandler handles direct SQL batches. Every statement goes through the
// same gate, masking and audit as model-planned SQL.
type QueryHandler struct {
	exec BatchExecutor
}

func NewQueryHandler(exec BatchExecutor) *QueryHandler {
	return &QueryHandler{exec: exec}
}

// Execute handles POST /api/v1/query
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	stmts, err := toStatements(req.Statements)
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	batch := h.exec.Execute(ctx, stmts)

	status := "success"
	switch {
	case len(batch.Results) == 0:
		status = "failed"
	case len(batch.Rejected)+len(batch.Failed) > 0:
		status = "partial"
	}

	models.WriteJSON(w, http.StatusOK, models.QueryResponse{
		Status:   status,
		Results:  batch.Results,
		Rejected: batch.Rejected,
		Failed:   batch.Failed,
		TookMs:   time.Since(start).Milliseconds(),
	})
}

func toStatements(reqs []models.StatementRequest) ([]agent.Statement, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("statements are required")
	}
	if len(reqs) > maxStatements {
		return nil, fmt.Errorf("at most %d statements per request", maxStatements)
	}
	used := make(map[string]bool, len(reqs))
	for _, s := range reqs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		if used[name] {
			return nil, fmt.Errorf("duplicate statement name %q", name)
		}
		used[name] = true
	}
	out := make([]agent.Statement, len(reqs))
	for i, s := range reqs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = agent.UniqueName(fmt.Sprintf("q%d", i+1), used)
		}
		out[i] = agent.Statement{Name: name, SQL: strings.TrimSpace(s.SQL)}
	}
	return out, nil
}
