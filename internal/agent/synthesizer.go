package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ErrModelUnavailable means the model gave no reply after all retries.
var ErrModelUnavailable = errors.New("model unavailable")

// Statement is one named SQL statement of a plan.
type Statement struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// Plan is the structured reply of the synthesis call.
type Plan struct {
	Analysis      string            `json:"analysis"`
	Statements    []Statement       `json:"statements"`
	Visualization []chart.PlanEntry `json:"visualizationPlan"`
	Explanation   string            `json:"explanation"`

	// Degraded is set when the reply could not be parsed and Analysis holds
	// the raw model text.
	Degraded bool `json:"-"`
}

// Names lists statement names in plan order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Statements))
	for i, s := range p.Statements {
		names[i] = s.Name
	}
	return names
}

const planSchemaJSON = `{
	"type": "object",
	"required": ["analysis", "statements", "visualizationPlan", "explanation"],
	"additionalProperties": false,
	"properties": {
		"analysis": {"type": "string"},
		"explanation": {"type": "string"},
		"statements": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["sql"],
				"properties": {
					"name": {"type": "string"},
					"sql": {"type": "string"}
				}
			}
		},
		"visualizationPlan": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"type": "string"},
					"data_source": {"type": ["string", "integer"]}
				}
			}
		}
	}
}`

var planSchema = mustSchema(planSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("plan schema: %v", err))
	}
	return sch
}

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// Synthesizer turns a question into a Plan with one model call.
type Synthesizer struct {
	model   Model
	schema  *schemaPrompt
	dialect string
}

// Synthesize returns ErrModelUnavailable when the model cannot be reached. A
// reply that is not a well-formed plan degrades to a text-only plan.
func (s *Synthesizer) Synthesize(ctx context.Context, question string) (*Plan, error) {
	if s.model == nil {
		return nil, ErrModelUnavailable
	}
	text, ok := s.model.Complete(ctx, s.systemPrompt(ctx), "Question: "+question)
	if !ok {
		return nil, ErrModelUnavailable
	}

	plan := ParsePlan(text)
	log.Info().
		Int("statements", len(plan.Statements)).
		Int("charts", len(plan.Visualization)).
		Bool("degraded", plan.Degraded).
		Msg("plan synthesized")
	return plan, nil
}

// ParsePlan extracts and validates a plan from model text. It never fails:
// anything unusable yields {analysis: text} with no statements.
func ParsePlan(text string) *Plan {
	degraded := &Plan{Analysis: strings.TrimSpace(text), Statements: []Statement{}, Visualization: []chart.PlanEntry{}, Degraded: true}

	candidate := extractJSON(text)
	if candidate == "" {
		log.Debug().Msg("no JSON object in model reply")
		return degraded
	}

	result, err := planSchema.Validate(gojsonschema.NewStringLoader(candidate))
	if err != nil {
		log.Debug().Err(err).Msg("plan is not valid JSON")
		return degraded
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		log.Debug().Strs("errors", msgs).Msg("plan does not match schema")
		return degraded
	}

	var plan Plan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		log.Debug().Err(err).Msg("plan decode failed")
		return degraded
	}
	if plan.Statements == nil {
		plan.Statements = []Statement{}
	}
	if plan.Visualization == nil {
		plan.Visualization = []chart.PlanEntry{}
	}
	nameStatements(plan.Statements)
	return &plan
}

// extractJSON prefers a fenced json block and falls back to the outermost
// braces.
func extractJSON(text string) string {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// UniqueName returns base, or base suffixed with _2, _3 ... when taken, and
// marks the result used.
func UniqueName(base string, used map[string]bool) string {
	name := base
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	used[name] = true
	return name
}

// nameStatements defaults blank names to q1..qN and makes names unique.
func nameStatements(stmts []Statement) {
	used := make(map[string]bool, len(stmts))
	for i := range stmts {
		name := strings.TrimSpace(stmts[i].Name)
		if name == "" {
			name = fmt.Sprintf("q%d", i+1)
		}
		stmts[i].Name = UniqueName(name, used)
		stmts[i].SQL = strings.TrimSpace(stmts[i].SQL)
	}
}

func (s *Synthesizer) systemPrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(synthesisRules)
	if s.dialect != "" {
		fmt.Fprintf(&sb, "\nSQL dialect: %s\n", s.dialect)
	}
	sb.WriteString("\n")
	sb.WriteString(s.schema.text(ctx))
	sb.WriteString("\n")
	sb.WriteString(replyFormat)
	return sb.String()
}

const synthesisRules = `You are a data analyst for hospital operations (outpatient and inpatient volumes, department targets, DRG, quality and cost indicators).
Plan the SQL needed to answer the user's question.

RULES:
1. Generate only SELECT statements (WITH ... SELECT is allowed) - never INSERT, UPDATE, DELETE, DROP, REPLACE or any DDL
2. Use only the tables listed below, referenced by their plain names
3. Do not write SQL comments and do not put the words FROM or JOIN inside string literals
4. Avoid EXTRACT(... FROM ...) and the REPLACE() function; use the dialect's date functions instead
5. Aggregate in SQL and add LIMIT 1000 unless the question asks for a specific number of rows
6. Give every column a short alias that a chart can refer to
7. If the question cannot be answered from these tables, return no statements and explain why in analysis`

const replyFormat = `Reply with exactly one JSON object inside a ` + "```json" + ` block with exactly these four fields:
{
  "analysis": "how you interpret the question",
  "statements": [{"name": "q1", "sql": "SELECT ..."}],
  "visualizationPlan": [{
    "type": "bar | line | pie | doughnut | mixed | scatter",
    "title": "chart title",
    "data_source": "statement name or zero-based statement index",
    "x_field": "label or x column alias",
    "y_field": "value or y column alias",
    "y2_field": "second value column (mixed only)",
    "color_field": "grouping column (scatter only, optional)",
    "size_field": "point size column (scatter only, optional)"
  }],
  "explanation": "what each statement computes"
}`
