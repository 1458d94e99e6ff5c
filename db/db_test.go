package db

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/smeltsql/smelt/cst"
)

func TestParseModelDefaultsToFileStem(t *testing.T) {
	d := New()
	d.SetFileText("models/revenue.sql", "SELECT 1")

	name, ok := d.ParseModel("models/revenue.sql")
	assert.True(t, ok)
	assert.Equal(t, "revenue", name)
}

func TestParseModelUsesFrontmatterName(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "---\nname: revenue\n---\nSELECT 1")

	name, ok := d.ParseModel("models/a.sql")
	assert.True(t, ok)
	assert.Equal(t, "revenue", name)
}

func TestParseModelFalseForNonSelectFile(t *testing.T) {
	d := New()
	d.SetFileText("notes.sql", "-- just a comment, no statement")

	_, ok := d.ParseModel("notes.sql")
	assert.False(t, ok)
}

func TestParseModelMultiModelMatchingStemWins(t *testing.T) {
	d := New()
	content := "--- name: other ---\n---\nSELECT 1\n--- name: combo ---\n---\nSELECT 2"
	d.SetFileText("models/combo.sql", content)

	name, ok := d.ParseModel("models/combo.sql")
	assert.True(t, ok)
	assert.Equal(t, "combo", name)
}

func TestParseModelMultiModelNoStemMatchHasNoPrimary(t *testing.T) {
	d := New()
	content := "--- name: a ---\n---\nSELECT 1\n--- name: b ---\n---\nSELECT 2"
	d.SetFileText("models/combo.sql", content)

	_, ok := d.ParseModel("models/combo.sql")
	assert.False(t, ok)
}

func TestParseModelWithFrontmatterFindsSelectStmt(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "---\nname: revenue\nmaterialization: table\n---\nSELECT 1")

	name, ok := d.ParseModel("models/a.sql")
	assert.True(t, ok)
	assert.Equal(t, "revenue", name)
}

func TestModelRefsWithFrontmatterReportsFullFileOffsets(t *testing.T) {
	d := New()
	content := "---\nname: sessions\n---\nSELECT * FROM smelt.ref('raw_events')"
	d.SetFileText("models/sessions.sql", content)

	refs := d.ModelRefs("models/sessions.sql")
	assert.Equal(t, 1, len(refs))
	assert.Equal(t, "raw_events", refs[0].Name)
	assert.Equal(t, content[refs[0].Range[0]:refs[0].Range[1]], "'raw_events'")
}

func TestModelRefsAndResolveRef(t *testing.T) {
	d := New()
	d.SetFileText("models/raw_events.sql", "SELECT 1 AS x")
	d.SetFileText("models/sessions.sql", "SELECT * FROM smelt.ref('raw_events')")

	refs := d.ModelRefs("models/sessions.sql")
	assert.Equal(t, 1, len(refs))
	assert.Equal(t, "raw_events", refs[0].Name)

	path, ok := d.ResolveRef("raw_events")
	assert.True(t, ok)
	assert.Equal(t, "models/raw_events.sql", path)

	_, ok = d.ResolveRef("does_not_exist")
	assert.False(t, ok)
}

func TestAllModels(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT 1")
	d.SetFileText("models/b.sql", "SELECT 2")

	models := d.AllModels()
	assert.Equal(t, 2, len(models))
	assert.Equal(t, "a", models["models/a.sql"])
	assert.Equal(t, "b", models["models/b.sql"])
}

func TestSetFileTextInvalidatesDependents(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT 1")

	name, ok := d.ParseModel("models/a.sql")
	assert.True(t, ok)
	assert.Equal(t, "a", name)

	changed := d.SetFileText("models/a.sql", "---\nname: renamed\n---\nSELECT 1")
	assert.True(t, changed)

	name, ok = d.ParseModel("models/a.sql")
	assert.True(t, ok)
	assert.Equal(t, "renamed", name)
}

func TestSetFileTextNoOpOnEqualValue(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT 1")
	changed := d.SetFileText("models/a.sql", "SELECT 1")
	assert.False(t, changed)
}

func TestAllFilesSortedAndInvalidatedOnNewFile(t *testing.T) {
	d := New()
	d.SetFileText("models/b.sql", "SELECT 1")
	assert.Equal(t, []string{"models/b.sql"}, d.AllFiles())

	d.SetFileText("models/a.sql", "SELECT 1")
	assert.Equal(t, []string{"models/a.sql", "models/b.sql"}, d.AllFiles())
}

// withParseProbe substitutes the package's parseSQL hook with one that
// counts invocations per source text, restoring the original on return.
func withParseProbe(t *testing.T) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	orig := parseSQL
	parseSQL = func(src string) cst.Result {
		counts[src]++
		return orig(src)
	}
	t.Cleanup(func() { parseSQL = orig })
	return counts
}

func TestIncrementalMinimalityOnlyReparsesDependents(t *testing.T) {
	d := New()
	d.SetFileText("models/p.sql", "SELECT 1")
	d.SetFileText("models/q.sql", "SELECT 2")
	d.FileDiagnostics("models/p.sql")
	d.FileDiagnostics("models/q.sql")

	counts := withParseProbe(t)

	changed := d.SetFileText("models/p.sql", "SELECT 10")
	assert.True(t, changed)

	d.FileDiagnostics("models/q.sql")
	assert.Equal(t, 0, counts["SELECT 2"])

	d.FileDiagnostics("models/p.sql")
	assert.Equal(t, 1, counts["SELECT 10"])
}

func TestInputIdentityRecomputesNothing(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT 1")
	d.FileDiagnostics("models/a.sql")

	counts := withParseProbe(t)

	changed := d.SetFileText("models/a.sql", "SELECT 1")
	assert.False(t, changed)

	d.FileDiagnostics("models/a.sql")
	assert.Equal(t, 0, len(counts))
}

func TestRemoveFile(t *testing.T) {
	d := New()
	d.SetFileText("models/a.sql", "SELECT 1")
	d.RemoveFile("models/a.sql")

	_, ok := d.FileText("models/a.sql")
	assert.False(t, ok)
	assert.Equal(t, 0, len(d.AllFiles()))
}
