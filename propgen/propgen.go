// Package propgen implements C14: a generator vocabulary composing
// syntactically valid SQL fragments and full SELECT statements, for use by
// property-based tests of the lexer, parser, printer, and rewriter, per
// spec.md §4.14 and §8.
package propgen

import (
	"fmt"
	"math/rand"
	"strings"
)

// Gen produces random SQL fragments from a seeded source, so a failing case
// is reproducible by recording the seed.
type Gen struct {
	r *rand.Rand
}

// New returns a Gen seeded deterministically from seed.
func New(seed int64) *Gen {
	return &Gen{r: rand.New(rand.NewSource(seed))}
}

var identWords = []string{
	"id", "user_id", "name", "amount", "created_at", "status", "total", "x", "y", "col1",
}

// Identifier returns a bare column/table identifier.
func (g *Gen) Identifier() string {
	return identWords[g.r.Intn(len(identWords))]
}

// Number returns an integer or decimal numeric literal.
func (g *Gen) Number() string {
	if g.r.Intn(2) == 0 {
		return fmt.Sprintf("%d", g.r.Intn(1000))
	}
	return fmt.Sprintf("%d.%d", g.r.Intn(100), g.r.Intn(100))
}

var stringWords = []string{"active", "pending", "it's", "", "hello world"}

// String returns a single-quoted string literal, with embedded quotes
// correctly doubled.
func (g *Gen) String() string {
	s := stringWords[g.r.Intn(len(stringWords))]
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ColumnRef returns a bare or table-qualified column reference.
func (g *Gen) ColumnRef() string {
	if g.r.Intn(2) == 0 {
		return g.Identifier()
	}
	return g.Identifier() + "." + g.Identifier()
}

func (g *Gen) literal() string {
	switch g.r.Intn(3) {
	case 0:
		return g.Number()
	case 1:
		return g.String()
	default:
		return g.ColumnRef()
	}
}

var unaryOps = []string{"-", "NOT "}

// UnaryExpr returns a unary operator applied to a literal or column ref.
func (g *Gen) UnaryExpr() string {
	return unaryOps[g.r.Intn(len(unaryOps))] + g.literal()
}

var binaryOps = []string{"+", "-", "*", "/", "=", "<>", "<", ">", "<=", ">=", "AND", "OR"}

// BinaryExpr returns a binary expression combining two operands.
func (g *Gen) BinaryExpr() string {
	return fmt.Sprintf("%s %s %s", g.literal(), binaryOps[g.r.Intn(len(binaryOps))], g.literal())
}

var funcNames = []string{"COUNT", "SUM", "AVG", "MAX", "MIN"}

// FunctionCall returns either smelt.ref('model') or an ordinary aggregate
// function call.
func (g *Gen) FunctionCall() string {
	if g.r.Intn(3) == 0 {
		return g.RefCall()
	}
	name := funcNames[g.r.Intn(len(funcNames))]
	if name == "COUNT" && g.r.Intn(2) == 0 {
		return "COUNT(*)"
	}
	return fmt.Sprintf("%s(%s)", name, g.literal())
}

var modelNames = []string{"raw_events", "sessions", "users", "orders"}

// RefCall returns a smelt.ref('model') call, optionally aliased by the
// caller elsewhere (RefCall itself never appends AS).
func (g *Gen) RefCall() string {
	return fmt.Sprintf("smelt.ref('%s')", modelNames[g.r.Intn(len(modelNames))])
}

func (g *Gen) expr() string {
	switch g.r.Intn(4) {
	case 0:
		return g.literal()
	case 1:
		return g.UnaryExpr()
	case 2:
		return g.BinaryExpr()
	default:
		return g.FunctionCall()
	}
}

// SelectList returns a comma-separated list of select items, each
// optionally aliased, with n items (n clamped to at least 1).
func (g *Gen) SelectList(n int) string {
	if n < 1 {
		n = 1
	}
	items := make([]string, n)
	for i := range items {
		item := g.expr()
		if g.r.Intn(2) == 0 {
			item += " AS " + g.Identifier()
		}
		items[i] = item
	}
	return strings.Join(items, ", ")
}

// TableRef returns a table reference: either a bare identifier or a
// smelt.ref(...) call, optionally aliased.
func (g *Gen) TableRef() string {
	var base string
	if g.r.Intn(2) == 0 {
		base = g.RefCall()
	} else {
		base = g.Identifier()
	}
	if g.r.Intn(2) == 0 {
		base += " AS " + g.Identifier()
	}
	return base
}

var joinKinds = []string{"JOIN", "INNER JOIN", "LEFT JOIN", "RIGHT JOIN", "FULL JOIN"}

// JoinClause returns a join clause with an ON condition.
func (g *Gen) JoinClause() string {
	kind := joinKinds[g.r.Intn(len(joinKinds))]
	return fmt.Sprintf("%s %s ON %s", kind, g.TableRef(), g.BinaryExpr())
}

// Filter returns a WHERE clause.
func (g *Gen) Filter() string {
	return "WHERE " + g.BinaryExpr()
}

// Grouping returns a GROUP BY clause over n columns (clamped to at least 1).
func (g *Gen) Grouping(n int) string {
	if n < 1 {
		n = 1
	}
	cols := make([]string, n)
	for i := range cols {
		cols[i] = g.ColumnRef()
	}
	return "GROUP BY " + strings.Join(cols, ", ")
}

var orderDirs = []string{"", " ASC", " DESC"}

// Ordering returns an ORDER BY clause over n columns (clamped to at least 1).
func (g *Gen) Ordering(n int) string {
	if n < 1 {
		n = 1
	}
	items := make([]string, n)
	for i := range items {
		items[i] = g.ColumnRef() + orderDirs[g.r.Intn(len(orderDirs))]
	}
	return "ORDER BY " + strings.Join(items, ", ")
}

// SelectStmt returns a complete SELECT statement with a random combination
// of FROM, JOIN, WHERE, GROUP BY, and ORDER BY clauses.
func (g *Gen) SelectStmt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s", g.SelectList(1+g.r.Intn(3)))
	fmt.Fprintf(&b, " FROM %s", g.TableRef())

	joins := g.r.Intn(3)
	for i := 0; i < joins; i++ {
		fmt.Fprintf(&b, " %s", g.JoinClause())
	}
	if g.r.Intn(2) == 0 {
		fmt.Fprintf(&b, " %s", g.Filter())
	}
	if g.r.Intn(2) == 0 {
		fmt.Fprintf(&b, " %s", g.Grouping(1+g.r.Intn(2)))
	}
	if g.r.Intn(2) == 0 {
		fmt.Fprintf(&b, " %s", g.Ordering(1+g.r.Intn(2)))
	}
	return b.String()
}

// ArbitraryString returns an arbitrary UTF-8 string assembled from a small
// alphabet including SQL punctuation, intended for no-panic fuzzing rather
// than syntactic validity.
func (g *Gen) ArbitraryString(maxLen int) string {
	alphabet := []rune("SELECT FROM WHERE 'smelt.ref()ABC123,.;-+*/<>= \n\t\"`")
	n := g.r.Intn(maxLen + 1)
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[g.r.Intn(len(alphabet))]
	}
	return string(out)
}
