package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/middleware"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/service"
)

// Asker answers one question end to end.
type Asker interface {
	Ask(ctx context.Context, q agent.Question) *agent.Response
}

// AskHandler handles POST /api/v1/ask
type AskHandler struct {
	asker Asker
}

func NewAskHandler(asker Asker) *AskHandler {
	return &AskHandler{asker: asker}
}

// Ask always answers 200 with a typed response once the body is well formed;
// rejected or failed questions come back as type "error".
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	if strings.TrimSpace(req.Question) == "" {
		models.WriteError(w, http.StatusBadRequest, "question is required")
		return
	}
	pref := ""
	if req.DataSource != nil && *req.DataSource != "" {
		if _, ok := service.ParsePreference(*req.DataSource); !ok {
			models.WriteError(w, http.StatusBadRequest, `data_source must be "file", "database" or "both"`)
			return
		}
		pref = *req.DataSource
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.Timeout)*time.Second)
	defer cancel()

	resp := h.asker.Ask(ctx, agent.Question{
		Text:       req.Question,
		Preference: pref,
		APIKey:     middleware.APIKey(r.Context()),
	})
	models.WriteJSON(w, http.StatusOK, resp)
}
