package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestReportCommandPrintsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")
	audit, err := store.NewSQLite(path)
	require.NoError(t, err)
	audit.LogRequest(context.Background(), "s1", domain.Persona{Industry: "retail", BusinesProblem: "inventory"})
	require.NoError(t, audit.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"report", "--db", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var got map[string]struct {
		Columns []string `yaml:"columns"`
		Rows    [][]any  `yaml:"rows"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Contains(t, got, "industry_counts")
	assert.Equal(t, []string{"industry", "count"}, got["industry_counts"].Columns)
	assert.Equal(t, [][]any{{"retail", 1}}, got["industry_counts"].Rows)
	assert.Len(t, got, len(store.ReportNames()))
}
