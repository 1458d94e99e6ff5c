package db

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/smeltsql/smelt/schema"
)

func TestModelSchema(t *testing.T) {
	d := New()
	d.SetFileText("models/raw_events.sql", "SELECT user_id, created_at FROM legacy_table")

	m := d.ModelSchema("models/raw_events.sql")
	assert.Equal(t, 2, len(m.Columns))
	assert.Equal(t, "user_id", m.Columns[0].Name)
}

func TestAvailableColumnsIncludesUpstream(t *testing.T) {
	d := New()
	d.SetFileText("models/raw_events.sql", "SELECT user_id, created_at FROM legacy_table")
	d.SetFileText("models/sessions.sql", "SELECT user_id FROM smelt.ref('raw_events')")

	cols := d.AvailableColumns("models/sessions.sql")
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"user_id", "user_id", "created_at"}, names)
}

func TestAvailableColumnsExcludesWildcards(t *testing.T) {
	d := New()
	d.SetFileText("models/raw_events.sql", "SELECT * FROM legacy_table t")
	d.SetFileText("models/sessions.sql", "SELECT 1 AS one FROM smelt.ref('raw_events')")

	cols := d.AvailableColumns("models/sessions.sql")
	for _, c := range cols {
		assert.True(t, c.Source.Kind != schema.Wildcard)
	}
}

func TestFileDiagnosticsUndefinedRef(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT * FROM smelt.ref('ghost')")

	diags := d.FileDiagnostics("models/a.sql")
	assert.Equal(t, 1, len(diags))
	assert.Equal(t, "error", diags[0].Severity)
}

func TestFileDiagnosticsWarnsOnNoSelectUnderModels(t *testing.T) {
	d := New()
	d.SetFileText("models/empty.sql", "-- nothing here")

	diags := d.FileDiagnostics("models/empty.sql")
	assert.Equal(t, 1, len(diags))
	assert.Equal(t, "warning", diags[0].Severity)
}

func TestFileDiagnosticsNoWarningOutsideModelsDir(t *testing.T) {
	d := New()
	d.SetFileText("seeds/empty.sql", "-- nothing here")

	diags := d.FileDiagnostics("seeds/empty.sql")
	assert.Equal(t, 0, len(diags))
}
