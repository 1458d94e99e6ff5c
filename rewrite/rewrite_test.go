package rewrite

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
)

func parseRefs(src string) []ast.Ref {
	res := cst.Parse(src)
	return ast.New(res.Root, src).Refs()
}

func TestRewriteSingleRef(t *testing.T) {
	src := "SELECT * FROM smelt.ref('raw_events')"
	refs := parseRefs(src)
	out, err := Rewrite(src, refs, "analytics", "m.sql")
	assert.NoError(t, err)
	assert.Equal(t, "SELECT * FROM analytics.raw_events", out)
}

func TestRewriteMultipleRefsPreservesOtherText(t *testing.T) {
	src := "SELECT * FROM smelt.ref('a') JOIN smelt.ref('b') ON a.id = b.id"
	refs := parseRefs(src)
	out, err := Rewrite(src, refs, "analytics", "m.sql")
	assert.NoError(t, err)
	assert.Equal(t, "SELECT * FROM analytics.a JOIN analytics.b ON a.id = b.id", out)
}

func TestRewritePreservesWhitespaceAndComments(t *testing.T) {
	src := "SELECT *\n  FROM smelt.ref('raw_events') -- trailing\n"
	refs := parseRefs(src)
	out, err := Rewrite(src, refs, "analytics", "m.sql")
	assert.NoError(t, err)
	assert.Equal(t, "SELECT *\n  FROM analytics.raw_events -- trailing\n", out)
}

func TestRewriteFailsOnNamedParameters(t *testing.T) {
	src := "SELECT * FROM smelt.ref('t', filter => x = 1)"
	refs := parseRefs(src)
	_, err := Rewrite(src, refs, "analytics", "m.sql")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrNamedParametersNotSupported))

	var diag Diagnostic
	assert.True(t, errors.As(err, &diag))
	assert.Equal(t, "t", diag.Model)
	assert.Equal(t, "m.sql", diag.File)
	assert.Equal(t, 1, diag.Line)
}

func TestRewriteNoRefsIsNoOp(t *testing.T) {
	src := "SELECT 1"
	out, err := Rewrite(src, nil, "analytics", "m.sql")
	assert.NoError(t, err)
	assert.Equal(t, src, out)
}
