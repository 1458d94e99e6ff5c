package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smeltsql/smelt/backend"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "name: analytics\nversion: 1\n")

	p, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "analytics", p.Name)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, []string{DefaultModelPath}, p.ModelPaths)
	assert.Equal(t, backend.MaterializationView, p.DefaultMaterialization)
}

func TestLoadConfigParsesTargets(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: analytics
model_paths: ["models", "staging"]
default_materialization: table
targets:
  dev:
    type: sqlite
    database: dev.db
  prod:
    type: postgres
    connect_url: postgres://prod
    schema: analytics
`)

	p, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"models", "staging"}, p.ModelPaths)
	assert.Equal(t, backend.MaterializationTable, p.DefaultMaterialization)
	require.Contains(t, p.Targets, "dev")
	assert.Equal(t, "sqlite", p.Targets["dev"].Type)
	assert.Equal(t, "dev.db", p.Targets["dev"].Database)
	require.Contains(t, p.Targets, "prod")
	assert.Equal(t, "postgres://prod", p.Targets["prod"].ConnectURL)
	assert.Equal(t, "analytics", p.Targets["prod"].Schema)
}

func TestLoadConfigParsesModelOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: analytics
models:
  sessions:
    materialization: table
    incremental:
      enabled: true
      event_time_column: occurred_at
      partition_column: event_date
`)

	p, err := LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, p.Models, "sessions")
	override := p.Models["sessions"]
	assert.Equal(t, backend.MaterializationTable, override.Materialization)
	assert.True(t, override.Incremental.Enabled)
	assert.Equal(t, "occurred_at", override.Incremental.EventTimeColumn)
	assert.Equal(t, "event_date", override.Incremental.PartitionColumn)
}

func TestLoadConfigParsesExternalSources(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: analytics
external_sources:
  - raw.events
  - orders
`)

	p, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw.events", "orders"}, p.ExternalSources)
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("SMELT_DB_HOST", "dbhost")
	t.Setenv("SMELT_DB_PORT", "5432")

	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: analytics
targets:
  prod:
    type: postgres
    connect_url: "postgres://${SMELT_DB_HOST}:${SMELT_DB_PORT}/analytics"
`)

	p, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://dbhost:5432/analytics", p.Targets["prod"].ConnectURL)
}

func TestLoadConfigMissingFileIsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestExpandEnvVarsBraceAndBareForms(t *testing.T) {
	t.Setenv("TEST_USER", "alice")
	t.Setenv("TEST_PASS", "secret")

	assert.Equal(t, "alice:secret", expandEnvVars("${TEST_USER}:${TEST_PASS}"))
	assert.Equal(t, "alice:secret", expandEnvVars("$TEST_USER:$TEST_PASS"))
}

func TestFindProjectRootFindsManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "name: analytics\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRootFindsModelsDirWithoutManifest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DefaultModelPath), 0755))
	nested := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRootNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := FindProjectRoot(dir)
	assert.ErrorIs(t, err, ErrProjectRootNotFound)
}
