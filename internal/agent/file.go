package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/narrative"
	"github.com/cortexai/opsinsight/internal/service"
)

// viewFile shows an uploaded file without calling the model.
func (o *Orchestrator) viewFile(q Question, f *service.File) *Response {
	if f.Kind == service.FileTabular {
		n := service.PreviewRows(q.Text, o.settings.PreviewRows)
		return &Response{Type: TypeExcelAnalysis, Content: PreviewTable(f, n), FileName: f.Name}
	}
	return &Response{Type: TypeTextAnalysis, Content: PreviewText(f, o.settings.PreviewChars), FileName: f.Name}
}

// analyzeFile answers a question from the uploaded file alone.
func (o *Orchestrator) analyzeFile(ctx context.Context, q Question, f *service.File) *Response {
	in := narrative.Input{Question: q.Text}
	addAttachment(&in, f)
	content, _ := o.composer.Compose(ctx, in)

	typ := TypeTextAnalysis
	if f.Kind == service.FileTabular {
		typ = TypeExcelAnalysis
	}
	return &Response{Type: typ, Content: content, FileName: f.Name}
}

// PreviewTable renders the first n data rows as a Markdown table followed by
// the total row count.
func PreviewTable(f *service.File, n int) string {
	table := f.Table
	if table == nil {
		table = &models.Table{}
	}
	total := max(f.TotalRows, len(table.Rows))
	head := table.Head(n)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Preview: %s\n\n", f.Name)
	fmt.Fprintf(&sb, "Showing the first %d of %d rows.\n\n", len(head.Rows), total)

	sb.WriteString("|")
	for _, c := range head.Columns {
		sb.WriteString(" " + escapeCell(c) + " |")
	}
	sb.WriteString("\n|")
	for range head.Columns {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range head.Rows {
		sb.WriteString("|")
		for _, v := range row {
			sb.WriteString(" " + escapeCell(chart.Label(v)) + " |")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nTotal rows: %d\n", total)
	return sb.String()
}

// PreviewText shows the beginning of a text file.
func PreviewText(f *service.File, maxChars int) string {
	text := []rune(strings.TrimSpace(f.Text))
	shown := text
	if maxChars > 0 && len(text) > maxChars {
		shown = text[:maxChars]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Preview: %s\n\n", f.Name)
	sb.WriteString(string(shown))
	sb.WriteString("\n")
	if len(shown) < len(text) {
		fmt.Fprintf(&sb, "\n(Showing %d of %d characters.)\n", len(shown), len(text))
	}
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
