// Package rewrite implements C8: splices smelt.ref('model') call sites into
// fully-qualified <schema>.<model> table references, per spec.md §4.8.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smeltsql/smelt/ast"
)

// ErrNamedParametersNotSupported is returned when a ref carries a named
// argument (`foo => expr`); named parameters are reserved but never
// rewritten, per spec.md §4.8 and §9 Open Questions.
var ErrNamedParametersNotSupported = errors.New("rewrite: named parameters are not supported")

// Diagnostic describes a precise, user-facing rewrite failure.
type Diagnostic struct {
	Model   string
	File    string
	Line    int
	Column  int
	Snippet string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: ref to %q uses named parameters, which are not supported: %s",
		d.File, d.Line, d.Column, d.Model, d.Snippet)
}

func (d Diagnostic) Unwrap() error { return ErrNamedParametersNotSupported }

// Rewrite replaces every smelt.ref('model') call in src with
// "<schema>.<model-name>", preserving every other byte exactly. file names
// the source in diagnostics only.
func Rewrite(src string, refs []ast.Ref, schema string, file string) (string, error) {
	// Fail fast, before any splicing, if any ref carries named parameters.
	for _, r := range refs {
		if r.HasNamedArgs {
			line, col := lineCol(src, r.CallRange[0])
			return "", Diagnostic{
				Model:   r.Model,
				File:    file,
				Line:    line,
				Column:  col,
				Snippet: snippet(src, r.CallRange),
			}
		}
	}

	ordered := make([]ast.Ref, len(refs))
	copy(ordered, refs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CallRange[0] > ordered[j].CallRange[0]
	})

	out := src
	for _, r := range ordered {
		replacement := schema + "." + r.Model
		out = out[:r.CallRange[0]] + replacement + out[r.CallRange[1]:]
	}
	return out, nil
}

func lineCol(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1 + strings.Count(src[:offset], "\n")
	lastNL := strings.LastIndexByte(src[:offset], '\n')
	col = offset - lastNL
	return line, col
}

func snippet(src string, r [2]int) string {
	start, end := r[0], r[1]
	if start < 0 {
		start = 0
	}
	if end > len(src) {
		end = len(src)
	}
	if start > end {
		return ""
	}
	return src[start:end]
}
