package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/models"
)

// KnowledgeHandler exposes the knowledge base search directly
type KnowledgeHandler struct {
	kb agent.KnowledgeSearcher
}

func NewKnowledgeHandler(kb agent.KnowledgeSearcher) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb}
}

// Search handles POST /api/v1/knowledge/search
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.kb == nil {
		models.WriteError(w, http.StatusServiceUnavailable, "knowledge base is not configured")
		return
	}

	var req models.KnowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	if strings.TrimSpace(req.Query) == "" {
		models.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.kb.Search(r.Context(), req.Query, req.Size)
	if err != nil {
		models.WriteError(w, http.StatusBadGateway, "search failed: "+err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, resp)
}
