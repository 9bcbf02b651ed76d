package models

// AskRequest for POST /api/v1/ask
type AskRequest struct {
	Question   string  `json:"question"`
	DataSource *string `json:"data_source,omitempty"` // "file" | "database" | "both"
	Timeout    int     `json:"timeout"`
}

func (r *AskRequest) SetDefaults() {
	if r.Timeout == 0 {
		r.Timeout = 300
	}
	if r.Timeout < 10 {
		r.Timeout = 10
	}
	if r.Timeout > 600 {
		r.Timeout = 600
	}
}

// StatementRequest is one named SQL statement in a direct query batch
type StatementRequest struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// QueryRequest for POST /api/v1/query (direct, gated SQL batch)
type QueryRequest struct {
	Statements []StatementRequest `json:"statements"`
	TimeoutMs  int                `json:"timeout_ms"`
}

func (r *QueryRequest) SetDefaults() {
	if r.TimeoutMs == 0 {
		r.TimeoutMs = 60000
	}
	if r.TimeoutMs < 1000 {
		r.TimeoutMs = 1000
	}
	if r.TimeoutMs > 300000 {
		r.TimeoutMs = 300000
	}
}

// KnowledgeSearchRequest for POST /api/v1/knowledge/search
type KnowledgeSearchRequest struct {
	Query string `json:"query"`
	Size  int    `json:"size"`
}

func (r *KnowledgeSearchRequest) SetDefaults() {
	if r.Size <= 0 {
		r.Size = 5
	}
	if r.Size > 50 {
		r.Size = 50
	}
}
