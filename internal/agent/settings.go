package agent

import (
	"time"

	"github.com/cortexai/opsinsight/internal/schema"
)

// Settings is the immutable configuration shared by every request.
type Settings struct {
	Schema        *schema.Descriptor
	AllowedTables []string // defaults to the schema's tables

	PreviewRows  int // rows shown when a preview names no count
	PreviewChars int // characters shown when previewing a text file
	ResultRowCap int // rows per table sent to the model

	ChartMarker    string
	SummaryHeading string

	KnowledgeResults int

	SchemaRowCounts bool
	SchemaCacheTTL  time.Duration

	MaxQuestionLength int
	PIIKeywords       []string
	SensitiveColumns  []string
	EnableMasking     bool
	AuditEnabled      bool
}

// DefaultSettings returns settings over the embedded schema.
func DefaultSettings() Settings {
	return Settings{
		Schema:           schema.Default(),
		PreviewRows:      10,
		PreviewChars:     2000,
		ResultRowCap:     50,
		ChartMarker:      "Chart",
		SummaryHeading:   "Summary",
		KnowledgeResults: 5,
		SchemaCacheTTL:   defaultSchemaCacheTTL,
		PIIKeywords:      []string{"id card", "id number", "身份证", "phone number", "手机号", "home address", "家庭住址", "password"},
		EnableMasking:    true,
		AuditEnabled:     true,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Schema == nil {
		s.Schema = d.Schema
	}
	if len(s.AllowedTables) == 0 {
		s.AllowedTables = s.Schema.TableNames()
	}
	if s.PreviewRows <= 0 {
		s.PreviewRows = d.PreviewRows
	}
	if s.PreviewChars <= 0 {
		s.PreviewChars = d.PreviewChars
	}
	if s.ResultRowCap <= 0 {
		s.ResultRowCap = d.ResultRowCap
	}
	if s.KnowledgeResults <= 0 {
		s.KnowledgeResults = d.KnowledgeResults
	}
	if s.SchemaCacheTTL <= 0 {
		s.SchemaCacheTTL = d.SchemaCacheTTL
	}
	return s
}
