package narrative_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexai/opsinsight/internal/chart"
	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/narrative"
)

// scriptedModel returns replies in order; an empty reply means failure.
type scriptedModel struct {
	replies []string
	prompts []string
}

func (m *scriptedModel) Complete(_ context.Context, _, user string) (string, bool) {
	m.prompts = append(m.prompts, user)
	if len(m.replies) == 0 {
		return "", false
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, r != ""
}

// outline returns top-level heading count and summary heading count, ignoring
// fenced code.
func outline(doc string) (titles, summaries int) {
	inFence := false
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			titles++
		}
		if strings.HasPrefix(line, "#") {
			text := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if narrative.IsSummaryHeading(text) {
				summaries++
			}
		}
	}
	return titles, summaries
}

func visits() narrative.Input {
	return narrative.Input{
		Question: "Outpatient visits by department",
		Tables: []narrative.NamedTable{{
			Name: "q1",
			Table: &models.Table{
				Columns: []string{"department", "visits"},
				Rows:    [][]any{{"Cardiology", int64(120)}, {"Oncology", int64(80)}},
			},
		}},
	}
}

// ─── Stages ───────────────────────────────────────────────────────────────────

func TestCompose_TwoStages(t *testing.T) {
	m := &scriptedModel{replies: []string{"raw analysis: Cardiology leads", "# Visits\n\nCardiology leads with 120.\n\n## Summary\n\nDone."}}
	c := narrative.NewComposer(m, narrative.Options{})

	doc, ok := c.Compose(context.Background(), visits())
	require.True(t, ok)
	assert.Contains(t, doc, "Cardiology leads with 120.")
	assert.NotContains(t, doc, "raw analysis")

	require.Len(t, m.prompts, 2)
	assert.Contains(t, m.prompts[0], "department | visits")
	assert.Contains(t, m.prompts[0], "Cardiology | 120")
	assert.Contains(t, m.prompts[1], "raw analysis: Cardiology leads")
}

func TestCompose_ReformatFailureKeepsDraft(t *testing.T) {
	m := &scriptedModel{replies: []string{"Cardiology leads with 120 visits.", ""}}
	c := narrative.NewComposer(m, narrative.Options{})

	doc, ok := c.Compose(context.Background(), visits())
	require.True(t, ok)
	assert.Contains(t, doc, "Cardiology leads with 120 visits.")

	titles, summaries := outline(doc)
	assert.Equal(t, 1, titles)
	assert.Equal(t, 1, summaries)
	assert.True(t, strings.HasPrefix(doc, "# Analysis: Outpatient visits by department\n"))
}

func TestCompose_SummaryAsOnlyTitle(t *testing.T) {
	m := &scriptedModel{replies: []string{"Cardiology leads.", "# Summary\n\nCardiology had 120 visits."}}
	c := narrative.NewComposer(m, narrative.Options{})

	doc, ok := c.Compose(context.Background(), visits())
	require.True(t, ok)

	titles, summaries := outline(doc)
	assert.Equal(t, 1, titles)
	assert.Equal(t, 1, summaries)
	assert.True(t, strings.HasPrefix(doc, "# Analysis: Outpatient visits by department\n"))
	assert.Contains(t, doc, "## Summary\n\nCardiology had 120 visits.")
}

func TestCompose_AnalysisFailure(t *testing.T) {
	c := narrative.NewComposer(&scriptedModel{}, narrative.Options{})
	doc, ok := c.Compose(context.Background(), visits())
	assert.False(t, ok)
	assert.Equal(t, narrative.Apology, doc)

	titles, summaries := outline(narrative.Apology)
	assert.Equal(t, 1, titles)
	assert.Equal(t, 1, summaries)

	doc, ok = narrative.NewComposer(nil, narrative.Options{}).Compose(context.Background(), visits())
	assert.False(t, ok)
	assert.Equal(t, narrative.Apology, doc)
}

func TestCompose_NoData(t *testing.T) {
	m := &scriptedModel{replies: []string{"Nothing was found.", ""}}
	c := narrative.NewComposer(m, narrative.Options{})

	in := narrative.Input{
		Question: "visits in 1999",
		Tables:   []narrative.NamedTable{{Name: "q1", Table: &models.Table{Columns: []string{"visits"}}}},
	}
	doc, ok := c.Compose(context.Background(), in)
	require.True(t, ok)
	assert.Contains(t, m.prompts[0], "returned no data")
	assert.Contains(t, doc, "No data matched the question")
}

func TestCompose_RowCap(t *testing.T) {
	rows := make([][]any, 30)
	for i := range rows {
		rows[i] = []any{i}
	}
	m := &scriptedModel{replies: []string{"ok", "ok"}}
	c := narrative.NewComposer(m, narrative.Options{RowCap: 10})
	_, _ = c.Compose(context.Background(), narrative.Input{
		Question: "q",
		Tables:   []narrative.NamedTable{{Name: "big", Table: &models.Table{Columns: []string{"n"}, Rows: rows}}},
	})
	assert.Contains(t, m.prompts[0], "### big (30 rows)")
	assert.Contains(t, m.prompts[0], "... (20 more rows)")
	assert.NotContains(t, m.prompts[0], "\n10\n")
}

// ─── Formatting pass ──────────────────────────────────────────────────────────

func TestFormat_HeadingsAndSummary(t *testing.T) {
	c := narrative.NewComposer(nil, narrative.Options{})
	text := "# First\nintro line one\nintro line two\n- a\n- b\n# Second\n## Summary\nx\n## 总结\ny\n### Conclusion\nz\n```sql\n# not a heading\n## Summary\n```\ntrailing"

	doc := c.Format(text, visits())
	titles, summaries := outline(doc)
	assert.Equal(t, 1, titles)
	assert.Equal(t, 1, summaries)

	assert.Contains(t, doc, "# First\n\nintro line one\nintro line two\n\n- a\n- b\n\n## Second")
	assert.Contains(t, doc, "**总结**")
	assert.Contains(t, doc, "**Conclusion**")
	assert.Contains(t, doc, "```sql\n# not a heading\n## Summary\n```")
	assert.NotContains(t, doc, "\n\n\n")
}

func TestFormat_Charts(t *testing.T) {
	c := narrative.NewComposer(nil, narrative.Options{})
	in := visits()
	in.Charts = []chart.Spec{
		{Type: chart.Bar, Title: "Visits", Data: chart.Data{Labels: []string{"A"}, Series: []chart.Series{{Label: "v", Values: []float64{1}}}}},
		{Type: chart.Pie, Title: "Visits"},
		{Type: chart.Line, Title: "Trend chart"},
	}
	doc := c.Format("Some text\n```chart\n{\"stale\": true}\n```", in)

	assert.NotContains(t, doc, "stale")
	assert.Contains(t, doc, "### Visits Chart\n\n```chart\n")
	assert.Contains(t, doc, "### Visits Chart (2)\n")
	assert.Contains(t, doc, "### Trend chart\n")
	assert.Equal(t, 3, strings.Count(doc, "```chart"))

	start := strings.Index(doc, "```chart\n") + len("```chart\n")
	end := strings.Index(doc[start:], "\n```")
	var spec chart.Spec
	require.NoError(t, json.Unmarshal([]byte(doc[start:start+end]), &spec))
	assert.Equal(t, chart.Bar, spec.Type)
	assert.Equal(t, []string{"A"}, spec.Data.Labels)

	titles, summaries := outline(doc)
	assert.Equal(t, 1, titles)
	assert.Equal(t, 1, summaries)
}

func TestFormat_LocalizedMarker(t *testing.T) {
	c := narrative.NewComposer(nil, narrative.Options{ChartMarker: "图表", SummaryHeading: "总结"})
	in := visits()
	in.Charts = []chart.Spec{{Type: chart.Bar, Title: "门诊量"}, {Type: chart.Bar, Title: "科室图表"}}
	doc := c.Format("正文", in)
	assert.Contains(t, doc, "### 门诊量图表\n")
	assert.Contains(t, doc, "### 科室图表\n")
	assert.Contains(t, doc, "## 总结\n")
}

func TestTables(t *testing.T) {
	rs := models.ResultSet{"b": {}, "a": {}, "q2": {}, "q1": {}}
	got := narrative.Tables(rs, []string{"q2", "missing", "q1"})
	names := make([]string, len(got))
	for i, nt := range got {
		names[i] = nt.Name
	}
	assert.Equal(t, []string{"q2", "q1", "a", "b"}, names)
}
