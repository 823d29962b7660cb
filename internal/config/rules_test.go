package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftguard/driftguard/internal/models"
)

func writeRulesFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merge.wasm"), []byte{0x00, 0x61, 0x73, 0x6d}, 0o600))

	path := writeRulesFile(t, dir, `
resolution_rules:
  - id: prefer-remote
    name: prefer remote everywhere
    category: "*"
    enabled: true
    sensitivity: high
    auto_resolve: true
    strategy: remote
    position: 1
  - id: lenient-style
    name: style review only
    category: style
    enabled: true
    sensitivity: low
    auto_resolve: false
    position: 2
override_rules:
  - id: keep-notes
    name: never lose my notes
    path_pattern: "notes/*.md"
    min_score: 0.5
    action: force_local
    enabled: true
    position: 1
  - id: custom
    name: custom merge for schemas
    category: schema
    action: custom_merge
    procedure_file: merge.wasm
    enabled: true
    position: 2
`)

	resolution, overrides, err := LoadRulesFile(path)
	require.NoError(t, err)

	require.Len(t, resolution, 2)
	assert.Equal(t, "prefer-remote", resolution[0].ID)
	assert.Equal(t, "*", resolution[0].CategoryMatch)
	assert.Equal(t, models.SensitivityHigh, resolution[0].Sensitivity)
	assert.Equal(t, models.StrategyRemote, resolution[0].Strategy)
	assert.True(t, resolution[0].AutoResolve)
	assert.Equal(t, models.SensitivityLow, resolution[1].Sensitivity)
	assert.Empty(t, resolution[1].Strategy)

	require.Len(t, overrides, 2)
	assert.Equal(t, "notes/*.md", overrides[0].Condition.PathPattern)
	assert.Equal(t, 0.5, overrides[0].Condition.MinScore)
	assert.Equal(t, models.OverrideForceLocal, overrides[0].Action)
	assert.Equal(t, models.OverrideCustomMerge, overrides[1].Action)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, overrides[1].Procedure)
}

func TestLoadRulesFile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadRulesFile(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad sensitivity", func(t *testing.T) {
		path := writeRulesFile(t, t.TempDir(), `
resolution_rules:
  - id: r1
    category: "*"
    sensitivity: extreme
`)
		_, _, err := LoadRulesFile(path)
		assert.Error(t, err)
	})

	t.Run("custom merge without procedure", func(t *testing.T) {
		path := writeRulesFile(t, t.TempDir(), `
override_rules:
  - id: o1
    action: custom_merge
`)
		_, _, err := LoadRulesFile(path)
		assert.Error(t, err)
	})

	t.Run("unknown action", func(t *testing.T) {
		path := writeRulesFile(t, t.TempDir(), `
override_rules:
  - id: o1
    action: detonate
`)
		_, _, err := LoadRulesFile(path)
		assert.Error(t, err)
	})
}
