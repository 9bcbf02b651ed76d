package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/chart"
)

func TestParsePlan_Fenced(t *testing.T) {
	text := "Here is the plan:\n```json\n" + `{
		"analysis": "average weight per department",
		"statements": [{"name": "weights", "sql": " SELECT department, AVG(weight_score) AS w FROM drg_records GROUP BY department "}],
		"visualizationPlan": [{"type": "bar", "title": "Weight", "data_source": 0, "x_field": "department", "y_field": "w"}],
		"explanation": "one aggregate"
	}` + "\n```\nLet me know."

	plan := agent.ParsePlan(text)
	require.False(t, plan.Degraded)
	assert.Equal(t, "average weight per department", plan.Analysis)
	require.Len(t, plan.Statements, 1)
	assert.Equal(t, "weights", plan.Statements[0].Name)
	assert.Equal(t, "SELECT department, AVG(weight_score) AS w FROM drg_records GROUP BY department", plan.Statements[0].SQL)
	require.Len(t, plan.Visualization, 1)
	assert.Equal(t, chart.RefIndex(0), plan.Visualization[0].Source)
	assert.Equal(t, "one aggregate", plan.Explanation)
}

func TestParsePlan_FencedFollowedByCode(t *testing.T) {
	text := "```json\n" + `{"analysis": "a", "statements": [{"name": "q1", "sql": "SELECT COUNT(*) FROM departments"}], "visualizationPlan": [], "explanation": "e"}` +
		"\n```\n\nExample row:\n```json\n{\"count\": 3}\n```"

	plan := agent.ParsePlan(text)
	require.False(t, plan.Degraded)
	require.Len(t, plan.Statements, 1)
	assert.Equal(t, "SELECT COUNT(*) FROM departments", plan.Statements[0].SQL)
}

func TestParsePlan_BareObject(t *testing.T) {
	text := `Sure. {"analysis": "a", "statements": [], "visualizationPlan": [], "explanation": "e"} Done.`
	plan := agent.ParsePlan(text)
	assert.False(t, plan.Degraded)
	assert.Empty(t, plan.Statements)
	assert.NotNil(t, plan.Visualization)
}

func TestParsePlan_Degrades(t *testing.T) {
	tests := map[string]string{
		"plain text":      "I cannot answer that from the available tables.",
		"malformed json":  `{"analysis": "a", "statements": [}`,
		"missing field":   `{"analysis": "a", "statements": [], "visualizationPlan": []}`,
		"extra field":     `{"analysis": "a", "statements": [], "visualizationPlan": [], "explanation": "", "sql": "x"}`,
		"wrong type":      `{"analysis": "a", "statements": "SELECT 1", "visualizationPlan": [], "explanation": ""}`,
		"statement shape": `{"analysis": "a", "statements": [{"name": "q1"}], "visualizationPlan": [], "explanation": ""}`,
		"bad source":      `{"analysis": "a", "statements": [], "visualizationPlan": [{"type": "bar", "data_source": [0]}], "explanation": ""}`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			plan := agent.ParsePlan(text)
			assert.True(t, plan.Degraded)
			assert.Equal(t, text, plan.Analysis)
			assert.Empty(t, plan.Statements)
			assert.Empty(t, plan.Visualization)
		})
	}
}

func TestParsePlan_StatementNames(t *testing.T) {
	text := `{"analysis": "", "explanation": "", "visualizationPlan": [], "statements": [
		{"name": "", "sql": "SELECT 1 FROM departments"},
		{"name": "totals", "sql": "SELECT 2 FROM departments"},
		{"sql": "SELECT 3 FROM departments"},
		{"name": "totals", "sql": "SELECT 4 FROM departments"},
		{"name": "q1", "sql": "SELECT 5 FROM departments"}
	]}`
	plan := agent.ParsePlan(text)
	require.False(t, plan.Degraded)
	assert.Equal(t, []string{"q1", "totals", "q3", "totals_2", "q1_2"}, plan.Names())
}
