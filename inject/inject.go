// Package inject implements C9: splices a single ANDed time-range predicate
// into a model's SQL for incremental materialization, per spec.md §4.9.
package inject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
)

// ErrNoFromClause means the statement has no FROM clause to anchor on.
var ErrNoFromClause = errors.New("inject: statement has no FROM clause")

// TimeFilter injects `column BETWEEN start (inclusive) and end (exclusive)`,
// expressed as an ANDed range predicate, into src's top-level SELECT.
// start and end are ISO-8601 date strings. src may already have been
// rewritten by package rewrite; only byte ranges from a fresh parse of src
// are used.
func TimeFilter(src, column, start, end string) (string, error) {
	res := cst.Parse(src)
	file := ast.New(res.Root, src)
	stmt, ok := file.SelectStmt()
	if !ok {
		return "", ErrNoFromClause
	}
	from, ok := stmt.FromClause()
	if !ok {
		return "", ErrNoFromClause
	}

	pred := fmt.Sprintf("%s >= '%s' AND %s < '%s'",
		escapeQuotes(column), escapeQuotes(start), escapeQuotes(column), escapeQuotes(end))

	if where, ok := stmt.WhereClause(); ok {
		insertAt := where.End
		return src[:insertAt] + " AND (" + pred + ")" + src[insertAt:], nil
	}

	insertAt := from.Node().End
	return src[:insertAt] + " WHERE " + pred + src[insertAt:], nil
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
