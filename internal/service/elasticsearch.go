package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
)

const snippetRunes = 240

// KnowledgeConfig configures the knowledge-base cluster.
type KnowledgeConfig struct {
	Addresses   []string
	Username    string
	Password    string
	VerifyCerts bool
	MaxRetries  int
	Indices     []string // index patterns searched and permitted
	MinScore    float64
}

// KnowledgeBase searches policy and guideline documents in Elasticsearch.
type KnowledgeBase struct {
	client   *elasticsearch.Client
	indices  []string
	minScore float64
}

// NewKnowledgeBase creates an ES client using go-elasticsearch/v8
func NewKnowledgeBase(cfg KnowledgeConfig) (*KnowledgeBase, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	if !cfg.VerifyCerts {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402 - user explicitly disabled cert verification
			},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}
	return &KnowledgeBase{
		client:   client,
		indices:  cfg.Indices,
		minScore: cfg.MinScore,
	}, nil
}

// IsIndexAllowed returns true if the index matches any of the configured patterns.
// If no patterns are configured, all indices are allowed.
func (kb *KnowledgeBase) IsIndexAllowed(index string) bool {
	if len(kb.indices) == 0 {
		return true
	}
	for _, pattern := range kb.indices {
		matched, err := filepath.Match(pattern, index)
		if err == nil && matched {
			return true
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if prefix != pattern && strings.HasPrefix(index, prefix) {
			return true
		}
	}
	return false
}

// TestConnection pings the cluster
func (kb *KnowledgeBase) TestConnection(ctx context.Context) error {
	res, err := kb.client.Ping(kb.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.Status())
	}
	return nil
}

// Search runs a full-text query over the configured indices and returns the
// hits scoring at least the configured minimum.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, size int) (*models.KnowledgeSearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("knowledge query cannot be empty")
	}
	if size <= 0 {
		size = 5
	}

	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title^2", "content", "tags"},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"content": map[string]any{"fragment_size": snippetRunes, "number_of_fragments": 1},
			},
		},
		"_source": []string{"title", "content"},
	}
	if kb.minScore > 0 {
		body["min_score"] = kb.minScore
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	index := strings.Join(kb.indices, ",")
	if index == "" {
		index = "_all"
	}
	res, err := kb.client.Search(
		kb.client.Search.WithContext(ctx),
		kb.client.Search.WithIndex(index),
		kb.client.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	raw, err := decodeBody(res.Body, res.Status())
	if err != nil {
		return nil, err
	}
	return kb.parseSearchResponse(query, raw), nil
}

func decodeBody(r io.Reader, status string) (map[string]any, error) {
	var result map[string]any
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if strings.HasPrefix(status, "4") || strings.HasPrefix(status, "5") {
		if errObj, ok := result["error"]; ok {
			return nil, fmt.Errorf("elasticsearch error [%s]: %v", status, errObj)
		}
		return nil, fmt.Errorf("elasticsearch error: %s", status)
	}
	return result, nil
}

func (kb *KnowledgeBase) parseSearchResponse(query string, raw map[string]any) *models.KnowledgeSearchResponse {
	resp := &models.KnowledgeSearchResponse{
		Status:  "success",
		Query:   query,
		Sources: []models.Source{},
	}
	if took, ok := raw["took"].(float64); ok {
		resp.Took = int(took)
	}

	hitsObj, ok := raw["hits"].(map[string]any)
	if !ok {
		return resp
	}
	if totalObj, ok := hitsObj["total"].(map[string]any); ok {
		if val, ok := totalObj["value"].(float64); ok {
			resp.Total = int64(val)
		}
	}
	hits, _ := hitsObj["hits"].([]any)
	for _, h := range hits {
		hm, ok := h.(map[string]any)
		if !ok {
			continue
		}
		src := models.Source{}
		src.ID, _ = hm["_id"].(string)
		src.Index, _ = hm["_index"].(string)
		src.Score, _ = hm["_score"].(float64)
		if !kb.IsIndexAllowed(src.Index) || src.Score < kb.minScore {
			continue
		}
		doc, _ := hm["_source"].(map[string]any)
		src.Title, _ = doc["title"].(string)
		src.Snippet = highlightOrContent(hm, doc)
		resp.Sources = append(resp.Sources, src)
	}
	return resp
}

func highlightOrContent(hit, doc map[string]any) string {
	if hl, ok := hit["highlight"].(map[string]any); ok {
		if frags, ok := hl["content"].([]any); ok && len(frags) > 0 {
			if s, ok := frags[0].(string); ok {
				return s
			}
		}
	}
	content, _ := doc["content"].(string)
	r := []rune(content)
	if len(r) > snippetRunes {
		return string(r[:snippetRunes]) + "..."
	}
	return content
}
