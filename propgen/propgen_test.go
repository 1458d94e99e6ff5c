package propgen

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/printer"
	"github.com/smeltsql/smelt/rewrite"
	"github.com/smeltsql/smelt/tokenizer"
)

// TestLosslessnessAcrossSelectStmts asserts property 1: concatenating every
// token's text reconstructs the original source byte-for-byte.
func TestLosslessnessAcrossSelectStmts(t *testing.T) {
	g := New(1)
	for i := 0; i < 200; i++ {
		src := g.SelectStmt()
		var b strings.Builder
		for _, tok := range tokenizer.New(src).All() {
			if tok.Kind == tokenizer.EOF {
				continue
			}
			b.WriteString(tok.Text(src))
		}
		assert.Equal(t, src, b.String())
	}
}

// TestNoPanicOnArbitraryStrings asserts property 2 at scale: parse never
// faults on arbitrary generated strings.
func TestNoPanicOnArbitraryStrings(t *testing.T) {
	g := New(2)
	for i := 0; i < 1000; i++ {
		src := g.ArbitraryString(80)
		assert.NotPanics(t, func() {
			cst.Parse(src)
		})
	}
}

// TestRoundTripGeneratedSelectStmts asserts property 3: a generated
// statement that parses cleanly re-parses cleanly after printing.
func TestRoundTripGeneratedSelectStmts(t *testing.T) {
	g := New(3)
	var clean int
	for i := 0; i < 300 && clean < 100; i++ {
		src := g.SelectStmt()
		res := cst.Parse(src)
		if len(res.Errors) != 0 {
			continue
		}
		clean++

		printed := printer.Compact(res.Root, src)
		reparsed := cst.Parse(printed)
		assert.Equal(t, 0, len(reparsed.Errors))
	}
	assert.True(t, clean >= 100)
}

// TestRefRewriteExactnessOverGeneratedModels asserts property 6: rewriting
// every ref in a generated model leaves no smelt.ref occurrence, qualifies
// each call site at its exact original range, and leaves all other bytes
// untouched.
func TestRefRewriteExactnessOverGeneratedModels(t *testing.T) {
	g := New(4)
	var cases int
	for i := 0; i < 300 && cases < 100; i++ {
		src := "SELECT * FROM " + g.RefCall()
		res := cst.Parse(src)
		if len(res.Errors) != 0 {
			continue
		}
		file := ast.New(res.Root, src)
		refs := file.Refs()
		if len(refs) == 0 {
			continue
		}
		cases++

		out, err := rewrite.Rewrite(src, refs, "analytics", "model.sql")
		assert.NoError(t, err)
		assert.False(t, strings.Contains(out, "smelt.ref"))
		assert.Equal(t, "SELECT * FROM analytics."+refs[0].Model, out)
	}
	assert.True(t, cases >= 100)
}

// TestSelectListGeneratorProducesParseableLists exercises the select-list
// clause shape at scale inside a minimal valid statement.
func TestSelectListGeneratorProducesParseableLists(t *testing.T) {
	g := New(5)
	for i := 0; i < 150; i++ {
		src := "SELECT " + g.SelectList(1+i%4) + " FROM t"
		res := cst.Parse(src)
		assert.Equal(t, 0, len(res.Errors))
	}
}

// TestJoinClauseGeneratorProducesParseableJoins exercises the join-clause
// shape at scale.
func TestJoinClauseGeneratorProducesParseableJoins(t *testing.T) {
	g := New(6)
	for i := 0; i < 150; i++ {
		src := "SELECT * FROM t " + g.JoinClause()
		res := cst.Parse(src)
		assert.Equal(t, 0, len(res.Errors))
	}
}

// TestFilterGroupingOrderingGeneratorsProduceParseableClauses exercises the
// filter, grouping, and ordering clause shapes at scale.
func TestFilterGroupingOrderingGeneratorsProduceParseableClauses(t *testing.T) {
	g := New(7)
	for i := 0; i < 150; i++ {
		src := "SELECT * FROM t " + g.Filter() + " " + g.Grouping(2) + " " + g.Ordering(2)
		res := cst.Parse(src)
		assert.Equal(t, 0, len(res.Errors))
	}
}
