package models

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// QueryResponse is returned by POST /api/v1/query
type QueryResponse struct {
	Status   string            `json:"status"`
	Results  map[string]*Table `json:"results"`
	Rejected []string          `json:"rejected,omitempty"`
	Failed   []string          `json:"failed,omitempty"`
	TookMs   int64             `json:"took_ms"`
}

// Source is one knowledge-base document that grounded an answer
type Source struct {
	ID      string  `json:"id"`
	Index   string  `json:"index"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// KnowledgeSearchResponse is returned by POST /api/v1/knowledge/search
type KnowledgeSearchResponse struct {
	Status  string   `json:"status"`
	Query   string   `json:"query"`
	Took    int      `json:"took"`
	Total   int64    `json:"total"`
	Sources []Source `json:"sources"`
}

// ColumnInfo describes one column of a schema table
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo describes one allow-listed table
type TableInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
}
