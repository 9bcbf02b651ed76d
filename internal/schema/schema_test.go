package schema_test

import (
	"strings"
	"testing"

	"github.com/cortexai/opsinsight/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDescriptor(t *testing.T) {
	d := schema.Default()
	names := d.TableNames()
	assert.Contains(t, names, "drg_records")
	assert.Contains(t, names, "outpatient_visits")
	assert.NotContains(t, names, "users_secret")

	tbl, ok := d.Lookup("DRG_RECORDS")
	require.True(t, ok)
	assert.Equal(t, "drg_records", tbl.Name)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "tables: []",
		"no name":   "tables:\n  - columns: [{name: a, type: int}]",
		"duplicate": "tables:\n  - name: a\n    columns: [{name: x, type: int}]\n  - name: A\n    columns: [{name: x, type: int}]",
		"no cols":   "tables:\n  - name: a",
		"bad yaml":  "tables: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := schema.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRenderIncludesCountsAndJoinRules(t *testing.T) {
	d, err := schema.Parse([]byte(`
tables:
  - name: visits
    description: daily visits
    columns:
      - {name: department, type: text}
      - {name: visit_count, type: integer, description: visits}
    examples: ["SELECT * FROM visits"]
join_rules: ["visits.department = departments.name"]
`))
	require.NoError(t, err)

	out := d.Render(map[string]int64{"visits": 42})
	assert.True(t, strings.Contains(out, "### visits (42 rows)"))
	assert.Contains(t, out, "visit_count integer -- visits")
	assert.Contains(t, out, "example: SELECT * FROM visits")
	assert.Contains(t, out, "- visits.department = departments.name")

	plain := d.Render(nil)
	assert.NotContains(t, plain, "rows)")
}
