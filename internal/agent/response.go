package agent

import (
	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/cortexai/opsinsight/internal/models"
)

// ResponseType discriminates the answer variants.
type ResponseType string

const (
	TypeError         ResponseType = "error"
	TypeExcelAnalysis ResponseType = "excel_analysis"
	TypeTextAnalysis  ResponseType = "text_analysis"
	TypeKnowledgeBase ResponseType = "knowledge_base"
	TypeDatabaseQuery ResponseType = "database_query"
	TypeGeneral       ResponseType = "general"
)

// Statement outcomes reported in SQLResult.Status.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// SQLResult reports one planned statement and, when it ran, its rows.
type SQLResult struct {
	Name     string   `json:"name"`
	SQL      string   `json:"sql"`
	Status   string   `json:"status"`
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	RowCount int      `json:"row_count"`
}

// Response is the single object returned for a question.
type Response struct {
	Type       ResponseType    `json:"type"`
	Content    string          `json:"content"`
	FileName   string          `json:"file_name,omitempty"`
	Charts     []chart.Spec    `json:"charts,omitempty"`
	Sources    []models.Source `json:"sources,omitempty"`
	SQLResults []SQLResult     `json:"sql_results,omitempty"`
}

func errorResponse(msg string) *Response {
	return &Response{Type: TypeError, Content: msg}
}

// sqlResults lists every planned statement in plan order with its outcome.
func sqlResults(plan *Plan, batch *Batch) []SQLResult {
	rejected := make(map[string]bool, len(batch.Rejected))
	for _, n := range batch.Rejected {
		rejected[n] = true
	}
	out := make([]SQLResult, 0, len(plan.Statements))
	for _, st := range plan.Statements {
		r := SQLResult{Name: st.Name, SQL: st.SQL}
		switch t, ok := batch.Results[st.Name]; {
		case ok:
			r.Status = StatusOK
			r.Columns = t.Columns
			r.Rows = t.Rows
			r.RowCount = len(t.Rows)
		case rejected[st.Name]:
			r.Status = StatusRejected
		default:
			r.Status = StatusFailed
		}
		out = append(out, r)
	}
	return out
}
