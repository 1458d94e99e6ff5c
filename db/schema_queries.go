package db

import (
	"fmt"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/schema"
)

// ModelSchema derives path's output column schema (C7), memoized and
// invalidated along with everything it transitively read.
func (db *Database) ModelSchema(path string) schema.Model {
	key := "model_schema:" + path
	if v, ok := db.topLevelGet(key); ok {
		return v.(schema.Model)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.modelSchemaLocked(path)
}

func (db *Database) modelSchemaLocked(path string) schema.Model {
	v := db.memo("model_schema:"+path, func() any {
		span := db.sqlSpanLocked(path)
		if span.text == "" {
			return schema.Model{}
		}
		res := db.parseFileLocked(path)
		file := ast.New(res.Root, span.text)
		return schema.Extract(file)
	})
	return v.(schema.Model)
}

// AvailableColumns returns path's own columns followed by the non-wildcard
// columns of every upstream model it resolves to (recursively), per
// spec.md §4.6. Cycles are tolerated by tracking visited paths — a model
// that (transitively) refs itself contributes no further columns on the
// second visit.
func (db *Database) AvailableColumns(path string) []schema.Column {
	key := "available_columns:" + path
	if v, ok := db.topLevelGet(key); ok {
		return v.([]schema.Column)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.availableColumnsLocked(path, make(map[string]bool))
}

func (db *Database) availableColumnsLocked(path string, visiting map[string]bool) []schema.Column {
	v := db.memo("available_columns:"+path, func() any {
		if visiting[path] {
			return []schema.Column{}
		}
		visiting[path] = true
		defer delete(visiting, path)

		own := db.modelSchemaLocked(path)
		out := append([]schema.Column{}, own.Columns...)

		for _, ref := range db.modelRefsLocked(path) {
			upstream, ok := db.resolveRefLocked(ref.Name)
			if !ok {
				continue
			}
			for _, col := range db.availableColumnsLocked(upstream, visiting) {
				if col.Source.Kind == schema.Wildcard {
					continue
				}
				out = append(out, col)
			}
		}
		return out
	})
	return v.([]schema.Column)
}

// FileDiagnostics lifts parse errors (with 1-based line/column), undefined
// ref errors, and a "no valid SELECT" warning for files under a models/
// path segment, per spec.md §4.6.
func (db *Database) FileDiagnostics(path string) []Diagnostic {
	key := "file_diagnostics:" + path
	if v, ok := db.topLevelGet(key); ok {
		return v.([]Diagnostic)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.fileDiagnosticsLocked(path)
}

func (db *Database) fileDiagnosticsLocked(path string) []Diagnostic {
	v := db.memo("file_diagnostics:"+path, func() any {
		text, ok := db.fileTextLocked(path)
		if !ok {
			return []Diagnostic{}
		}
		var out []Diagnostic

		span := db.sqlSpanLocked(path)
		res := db.parseFileLocked(path)
		for _, perr := range res.Errors {
			line, col := lineCol(text, perr.Start+span.offset)
			out = append(out, Diagnostic{
				Path: path, Line: line, Column: col,
				Severity: "error", Message: perr.Message,
			})
		}

		for _, ref := range db.modelRefsLocked(path) {
			if _, ok := db.resolveRefLocked(ref.Name); !ok {
				line, col := lineCol(text, ref.Range[0])
				out = append(out, Diagnostic{
					Path: path, Line: line, Column: col,
					Severity: "error",
					Message:  fmt.Sprintf("undefined reference to model %q", ref.Name),
				})
			}
		}

		if _, ok := db.parseModelLocked(path); !ok && isUnderModelsDir(path) {
			out = append(out, Diagnostic{
				Path: path, Line: 1, Column: 1,
				Severity: "warning",
				Message:  "file under a models/ directory contains no valid SELECT",
			})
		}
		return out
	})
	return v.([]Diagnostic)
}

func isUnderModelsDir(path string) bool {
	for i := 0; i+len("models/") <= len(path); i++ {
		if path[i:i+len("models/")] == "models/" && (i == 0 || path[i-1] == '/') {
			return true
		}
	}
	return false
}

func lineCol(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1
	lastNL := -1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			lastNL = i
		}
	}
	return line, offset - lastNL
}
