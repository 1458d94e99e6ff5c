package cst

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func tokenTextSum(n *Node, src string) string {
	var out []byte
	for _, tok := range n.Tokens() {
		out = append(out, src[tok.Start:tok.End]...)
	}
	return string(out)
}

func TestLosslessRoundTripText(t *testing.T) {
	inputs := []string{
		"SELECT 1",
		"SELECT user_id, COUNT(*) AS c\nFROM smelt.ref('raw_events')\nGROUP BY user_id",
		"SELECT * FROM smelt.ref('nonexistent')",
		"SELECT a FROM t WHERE a = 1 AND (b = 2 OR c IS NOT NULL)",
		"-- leading comment\nSELECT 1 -- trailing",
		"not even sql",
		"SELECT FROM WHERE",
		"",
	}
	for _, src := range inputs {
		res := Parse(src)
		assert.Equal(t, src, tokenTextSum(res.Root, src), "input: %q", src)
	}
}

func TestNoPanicOnArbitraryInput(t *testing.T) {
	inputs := []string{
		"((((((",
		"SELECT * FROM smelt.ref(",
		"SELECT CASE WHEN",
		"SELECT 1::",
		string([]byte{0x01, 0x02, 'S', 'E', 'L', 'E', 'C', 'T'}),
	}
	for _, src := range inputs {
		assert.NotPanics(t, func() {
			Parse(src)
		})
	}
}

func TestS1SelectOneHasNoErrors(t *testing.T) {
	res := Parse("SELECT 1")
	assert.Equal(t, 0, len(res.Errors))
	assert.Equal(t, File, res.Root.Kind)
}

func TestS2RefInFromClause(t *testing.T) {
	src := "SELECT user_id, COUNT(*) AS c\nFROM smelt.ref('raw_events')\nGROUP BY user_id"
	res := Parse(src)
	assert.Equal(t, 0, len(res.Errors))

	var found bool
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Kind == FunctionCall {
			found = true
		}
		for _, c := range n.Children {
			if !c.IsToken() {
				walk(c.Node)
			}
		}
	}
	walk(res.Root)
	assert.True(t, found)
}

func TestMalformedInputProducesErrorsNotPanic(t *testing.T) {
	res := Parse("SELECT FROM WHERE")
	assert.True(t, len(res.Errors) > 0)
}
