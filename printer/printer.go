// Package printer implements C4: formats a CST back to SQL text at two
// fidelity levels (compact single-line, and pretty clause-broken), such
// that re-parsing the output yields an equivalent tree (spec.md §4.4).
package printer

import (
	"strings"

	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/tokenizer"
)

// clauseStarters are the keywords that begin a new line in Pretty output.
var clauseStarters = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true,
	"HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
	"WITH": true, "UNION": true,
}

// Compact renders n as single-line SQL: keywords uppercased, everything
// else emitted token-for-token from the source, single-spaced.
func Compact(n *cst.Node, src string) string {
	return render(n, src, nil)
}

// Pretty renders n with a line break and 2-space indent (per paren nesting
// depth) before each clause keyword, including those inside parentheses.
func Pretty(n *cst.Node, src string) string {
	return render(n, src, clauseStarters)
}

func render(n *cst.Node, src string, breakOn map[string]bool) string {
	toks := nonTriviaTokens(n)
	if len(toks) == 0 {
		return ""
	}

	var sb strings.Builder
	depth := 0
	var prev tokenizer.Token

	for i, tok := range toks {
		text := tok.Text(src)
		upper := strings.ToUpper(text)
		if tok.Kind == tokenizer.KEYWORD {
			text = upper
		}

		if tok.Kind == tokenizer.RPAREN && depth > 0 {
			depth--
		}

		brk := breakOn != nil && tok.Kind == tokenizer.KEYWORD && breakOn[upper]
		if i == 0 {
			// no break/space before the very first token
		} else if brk {
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("  ", depth))
		} else if needsSpace(prev, tok) {
			sb.WriteString(" ")
		}

		sb.WriteString(text)

		if tok.Kind == tokenizer.LPAREN {
			depth++
		}

		prev = tok
	}

	return sb.String()
}

// nonTriviaTokens collects every non-trivia leaf token under n, in order.
func nonTriviaTokens(n *cst.Node) []tokenizer.Token {
	all := n.Tokens()
	out := make([]tokenizer.Token, 0, len(all))
	for _, tok := range all {
		if !tokenizer.IsTrivia(tok.Kind) {
			out = append(out, tok)
		}
	}
	return out
}

// needsSpace decides whether a single space belongs between two adjacent
// tokens in rendered output. Tight-spacing punctuation (comma, closing
// paren, dot, semicolon, cast operator) suppresses the space on one side,
// and an opening paren right after an identifier stays attached to it.
func needsSpace(prev, cur tokenizer.Token) bool {
	switch cur.Kind {
	case tokenizer.RPAREN, tokenizer.COMMA, tokenizer.SEMICOLON, tokenizer.DOT, tokenizer.CAST:
		return false
	}
	if cur.Kind == tokenizer.LPAREN && prev.Kind == tokenizer.IDENT {
		return false
	}
	switch prev.Kind {
	case tokenizer.LPAREN, tokenizer.DOT, tokenizer.CAST:
		return false
	}
	return true
}
