package schema

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
)

func parse(src string) ast.File {
	res := cst.Parse(src)
	return ast.New(res.Root, src)
}

func TestWildcardExpandsPerReferencedModel(t *testing.T) {
	f := parse("SELECT * FROM smelt.ref('raw_events')")
	m := Extract(f)
	assert.Equal(t, 1, len(m.Columns))
	assert.Equal(t, Wildcard, m.Columns[0].Source.Kind)
	assert.Equal(t, "raw_events", m.Columns[0].Source.Model)
}

func TestBareColumnWithSingleModelIsFromModel(t *testing.T) {
	f := parse("SELECT user_id FROM smelt.ref('raw_events')")
	m := Extract(f)
	assert.Equal(t, 1, len(m.Columns))
	col := m.Columns[0]
	assert.Equal(t, "user_id", col.Name)
	assert.Equal(t, FromModel, col.Source.Kind)
	assert.Equal(t, "raw_events", col.Source.Model)
	assert.Equal(t, "user_id", col.Source.Column)
}

func TestBareColumnWithNoModelIsExternalTable(t *testing.T) {
	f := parse("SELECT t.user_id FROM legacy_table t")
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, ExternalTable, col.Source.Kind)
	assert.Equal(t, "t", col.Source.Table)
}

func TestBareColumnWithNoQualifierNoModelIsUnknownTable(t *testing.T) {
	f := parse("SELECT user_id FROM legacy_table")
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, ExternalTable, col.Source.Kind)
	assert.Equal(t, "unknown", col.Source.Table)
}

func TestBareColumnWithMultipleModelsIsUnknown(t *testing.T) {
	f := parse("SELECT user_id FROM smelt.ref('a') JOIN smelt.ref('b') ON a.id = b.id")
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, Unknown, col.Source.Kind)
}

func TestFunctionCallIsComputed(t *testing.T) {
	f := parse("SELECT COUNT(*) AS c FROM smelt.ref('raw_events')")
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, "c", col.Name)
	assert.Equal(t, Computed, col.Source.Kind)
}

func TestComplexExpressionIsComputed(t *testing.T) {
	f := parse("SELECT user_id + 1 AS shifted FROM smelt.ref('raw_events')")
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, Computed, col.Source.Kind)
	assert.Equal(t, "arithmetic-like", col.ComputedDetail)
}

func TestExpressionTextAndRangeRecorded(t *testing.T) {
	src := "SELECT user_id FROM smelt.ref('raw_events')"
	f := parse(src)
	m := Extract(f)
	col := m.Columns[0]
	assert.Equal(t, "user_id", col.Expression)
	assert.Equal(t, src[col.Range[0]:col.Range[1]], "user_id")
}
