package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexai/opsinsight/internal/agent"
)

func TestAskPreviewsFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "visits.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("department,visits\nCardiology,120\nOncology,80\nRadiology,45\n"), 0o600))

	t.Setenv("OPSINSIGHT_CONFIG", "")
	t.Setenv("OPSINSIGHT_STORE_DSN", filepath.Join(dir, "ops.db"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ELASTICSEARCH_ENABLED", "false")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ask", "--file", csvPath, "show the first 2 rows"})
	require.NoError(t, rootCmd.Execute())

	var resp agent.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, agent.TypeExcelAnalysis, resp.Type)
	assert.Equal(t, "visits.csv", resp.FileName)
	assert.Contains(t, resp.Content, "Showing the first 2 of 3 rows.")
	assert.Contains(t, resp.Content, "| Oncology | 80 |")
	assert.NotContains(t, resp.Content, "Radiology")
}
