// Package narrative turns query results into a Markdown report: one model call
// writes the analysis, a second polishes it, and a deterministic pass fixes the
// document shape and embeds chart blocks.
package narrative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/rs/zerolog/log"
)

// Apology is returned when the analysis stage cannot reach the model.
const Apology = "# Analysis unavailable\n\n" +
	"Sorry, the analysis service could not be reached, so no answer was generated for this question.\n\n" +
	"## Summary\n\n" +
	"Please try again in a moment. If the problem persists, contact the system administrator.\n"

const (
	defaultRowCap      = 50
	defaultChartMarker = "Chart"
	defaultSummary     = "Summary"
	titleRunes         = 60
)

// Model is the text-completion collaborator. ok is false when no reply could
// be obtained.
type Model interface {
	Complete(ctx context.Context, system, user string) (text string, ok bool)
}

// NamedTable is one result set in presentation order.
type NamedTable struct {
	Name  string
	Table *models.Table
}

// Document is free-text context such as a knowledge-base article or an
// uploaded text file.
type Document struct {
	Title string
	Body  string
}

// Input is everything the composer needs for one answer.
type Input struct {
	Question    string
	Explanation string
	Tables      []NamedTable
	Documents   []Document
	Charts      []chart.Spec
}

// Options tune the composer. Zero values take defaults.
type Options struct {
	RowCap         int    // rows per table serialized into the prompt
	ChartMarker    string // appended to chart headings
	SummaryHeading string
}

// Composer runs the two model stages and the formatting pass.
type Composer struct {
	model Model
	opts  Options
}

func NewComposer(model Model, opts Options) *Composer {
	if opts.RowCap <= 0 {
		opts.RowCap = defaultRowCap
	}
	if opts.ChartMarker == "" {
		opts.ChartMarker = defaultChartMarker
	}
	if opts.SummaryHeading == "" {
		opts.SummaryHeading = defaultSummary
	}
	return &Composer{model: model, opts: opts}
}

// Compose returns the finished document. ok is false when the analysis stage
// failed and the document is the fixed apology.
func (c *Composer) Compose(ctx context.Context, in Input) (string, bool) {
	draft, ok := c.analyze(ctx, in)
	if !ok {
		log.Warn().Msg("analysis stage failed, returning apology")
		return Apology, false
	}
	final := c.reformat(ctx, in, draft)
	return c.Format(final, in), true
}

// Format applies only the deterministic pass to text.
func (c *Composer) Format(text string, in Input) string {
	return format(text, document{
		title:          title(in.Question),
		summaryHeading: c.opts.SummaryHeading,
		summary:        c.summaryLine(in),
		chartMarker:    c.opts.ChartMarker,
		charts:         in.Charts,
	})
}

// analyze is stage one: raw analysis of the serialized data.
func (c *Composer) analyze(ctx context.Context, in Input) (string, bool) {
	if c.model == nil {
		return "", false
	}
	text, ok := c.model.Complete(ctx, analysisSystemPrompt, c.analysisPrompt(in))
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// Polish runs only stage two over text that already exists, such as a plan's
// own analysis, then formats the result.
func (c *Composer) Polish(ctx context.Context, in Input, text string) string {
	return c.Format(c.reformat(ctx, in, text), in)
}

// reformat is stage two. Any failure keeps the stage one draft.
func (c *Composer) reformat(ctx context.Context, in Input, draft string) string {
	if c.model == nil {
		return draft
	}
	user := fmt.Sprintf("Question: %s\n\nDraft analysis:\n\n%s", in.Question, draft)
	text, ok := c.model.Complete(ctx, reformatSystemPrompt, user)
	if !ok || strings.TrimSpace(text) == "" {
		log.Info().Msg("reformat stage failed, keeping draft")
		return draft
	}
	return text
}

const analysisSystemPrompt = `You are a hospital operations analyst. Interpret the query results and context you are given and answer the user's question.
Quote concrete figures from the data, point out notable differences, trends and outliers, and state plainly when data is missing.
Do not invent numbers that are not in the data. Answer in the language of the question.`

const reformatSystemPrompt = `You edit analytic reports. Rewrite the draft as a well-structured Markdown document:
- exactly one top-level "# " title
- "## " sections for the findings
- bullet lists for enumerations
- a final "## Summary" section
Keep every figure from the draft unchanged. Do not add chart code blocks. Answer in the language of the draft.`

func (c *Composer) analysisPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", in.Question)
	if in.Explanation != "" {
		fmt.Fprintf(&sb, "Query approach: %s\n\n", in.Explanation)
	}

	if noData(in) {
		sb.WriteString("The queries returned no data. Explain that no matching records were found, " +
			"suggest likely reasons (filters, time range, naming) and how the question could be rephrased.\n")
		return sb.String()
	}

	if len(in.Tables) > 0 {
		sb.WriteString("Query results:\n\n")
		for _, nt := range in.Tables {
			sb.WriteString(SerializeTable(nt.Name, nt.Table, c.opts.RowCap))
			sb.WriteString("\n")
		}
	}
	for _, d := range in.Documents {
		fmt.Fprintf(&sb, "Document: %s\n%s\n\n", d.Title, d.Body)
	}
	if len(in.Charts) > 0 {
		titles := make([]string, len(in.Charts))
		for i, ch := range in.Charts {
			titles[i] = ch.Title
		}
		fmt.Fprintf(&sb, "Charts that will accompany the answer: %s\n", strings.Join(titles, "; "))
	}
	return sb.String()
}

func (c *Composer) summaryLine(in Input) string {
	if noData(in) {
		return "No data matched the question, so no figures could be reported."
	}
	rows := 0
	for _, nt := range in.Tables {
		if nt.Table != nil {
			rows += len(nt.Table.Rows)
		}
	}
	if len(in.Tables) == 0 {
		return fmt.Sprintf("The answer above is based on %d source document(s).", len(in.Documents))
	}
	return fmt.Sprintf("The figures above come from %d result set(s) with %d row(s) in total.", len(in.Tables), rows)
}

func noData(in Input) bool {
	if len(in.Documents) > 0 {
		return false
	}
	for _, nt := range in.Tables {
		if !nt.Table.Empty() {
			return false
		}
	}
	return true
}

func title(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" {
		return "Analysis"
	}
	r := []rune(q)
	if len(r) > titleRunes {
		q = string(r[:titleRunes]) + "..."
	}
	return "Analysis: " + q
}

// SerializeTable renders a table as pipe-separated text, at most rowCap rows.
func SerializeTable(name string, t *models.Table, rowCap int) string {
	var sb strings.Builder
	if t == nil {
		fmt.Fprintf(&sb, "### %s (no result)\n", name)
		return sb.String()
	}
	fmt.Fprintf(&sb, "### %s (%d rows)\n", name, len(t.Rows))
	sb.WriteString(strings.Join(t.Columns, " | "))
	sb.WriteString("\n")
	for i, row := range t.Rows {
		if rowCap > 0 && i >= rowCap {
			fmt.Fprintf(&sb, "... (%d more rows)\n", len(t.Rows)-rowCap)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = chart.Label(v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Tables orders a result set: names in order first, then any others sorted.
func Tables(results models.ResultSet, order []string) []NamedTable {
	out := make([]NamedTable, 0, len(results))
	done := make(map[string]bool, len(results))
	for _, name := range order {
		if t, ok := results[name]; ok && !done[name] {
			out = append(out, NamedTable{Name: name, Table: t})
			done[name] = true
		}
	}
	var rest []string
	for name := range results {
		if !done[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, NamedTable{Name: name, Table: results[name]})
	}
	return out
}
