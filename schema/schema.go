// Package schema implements C7: derives a model's output column list and
// per-column lineage tag from its AST, per spec.md §4.7.
package schema

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/tokenizer"
)

// SourceKind classifies where a column's value comes from.
type SourceKind int

const (
	Unknown SourceKind = iota
	FromModel
	Computed
	Wildcard
	ExternalTable
)

func (k SourceKind) String() string {
	switch k {
	case FromModel:
		return "FromModel"
	case Computed:
		return "Computed"
	case Wildcard:
		return "Wildcard"
	case ExternalTable:
		return "ExternalTable"
	default:
		return "Unknown"
	}
}

// Source is the lineage tag for one column, a sum type over SourceKind:
//   - FromModel: Model, Column set.
//   - Wildcard: Model set.
//   - ExternalTable: Table set.
//   - Computed, Unknown: no fields set. ComputedDetail may be set for Computed.
type Source struct {
	Kind   SourceKind
	Model  string
	Column string
	Table  string
}

// Column is one output column of a model.
type Column struct {
	Name   string
	Source Source
	// Expression is the exact source text of the SELECT item's expression
	// (alias excluded).
	Expression string
	Range      [2]int
	// ComputedDetail is a best-effort sub-classification of a Computed
	// expression's shape, populated only when it parses as a CEL
	// expression (pure arithmetic/logical/call syntax, no SQL-only
	// constructs); empty otherwise. Informational only — it is never
	// consulted to change Kind.
	ComputedDetail string
}

// Model is a model's full output schema.
type Model struct {
	Columns []Column
}

// Extract derives the output schema of file's top-level SELECT statement.
func Extract(file ast.File) Model {
	stmt, ok := file.SelectStmt()
	if !ok {
		return Model{}
	}
	list, ok := stmt.SelectList()
	if !ok {
		return Model{}
	}
	from, _ := stmt.FromClause()
	models := referencedModels(from, file.Src)

	var cols []Column
	for _, item := range list.Items() {
		expr := item.Expression()
		rng := item.Range()

		if expr != nil && expr.Kind == cst.Star {
			for _, m := range models {
				cols = append(cols, Column{
					Name:       "*",
					Source:     Source{Kind: Wildcard, Model: m},
					Expression: "*",
					Range:      rng,
				})
			}
			continue
		}

		name, _ := item.ColumnName()
		exprText := ""
		if expr != nil {
			exprText = strings.TrimSpace(expr.Text(file.Src))
		}

		src := classifySource(expr, models, file.Src)
		col := Column{Name: name, Source: src, Expression: exprText, Range: rng}
		if src.Kind == Computed {
			col.ComputedDetail = classifyComputed(exprText)
		}
		cols = append(cols, col)
	}
	return Model{Columns: cols}
}

func classifySource(expr *cst.Node, models []string, src string) Source {
	if expr == nil {
		return Source{Kind: Unknown}
	}
	switch expr.Kind {
	case cst.FunctionCall:
		return Source{Kind: Computed}
	case cst.ColumnRef, cst.QualifiedName:
		qualifier, column := splitQualifier(expr, src)
		switch len(models) {
		case 1:
			return Source{Kind: FromModel, Model: models[0], Column: column}
		case 0:
			table := qualifier
			if table == "" {
				table = "unknown"
			}
			return Source{Kind: ExternalTable, Table: table}
		default:
			return Source{Kind: Unknown}
		}
	default:
		return Source{Kind: Computed}
	}
}

// splitQualifier recovers ("t", "col") from a `t.col` reference, or
// ("", "col") from a bare `col`.
func splitQualifier(expr *cst.Node, src string) (qualifier, column string) {
	var idents []tokenizer.Token
	for _, tok := range expr.Tokens() {
		if tok.Kind == tokenizer.IDENT {
			idents = append(idents, tok)
		}
	}
	if len(idents) == 0 {
		return "", ""
	}
	if len(idents) >= 2 {
		return idents[len(idents)-2].Text(src), idents[len(idents)-1].Text(src)
	}
	return "", idents[0].Text(src)
}

// referencedModels collects every smelt.ref(...) model named anywhere in the
// FROM clause, including joined tables, in first-occurrence order.
func referencedModels(from ast.FromClause, src string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, tr := range from.TableRefs() {
		for _, m := range tr.ReferencedModels() {
			add(m)
		}
	}
	for _, j := range from.Joins() {
		f := ast.New(j, src)
		for _, r := range f.Refs() {
			add(r.Model)
		}
	}
	return out
}

// classifyComputed reports whether exprText parses as a CEL expression —
// a cheap signal that it is pure arithmetic/logical/call syntax rather than
// a SQL-only construct (CASE, CAST, subquery). Parse failures are expected
// and not reported as errors.
func classifyComputed(exprText string) string {
	if exprText == "" {
		return ""
	}
	env, err := cel.NewEnv()
	if err != nil {
		return ""
	}
	_, iss := env.Parse(exprText)
	if iss != nil && iss.Err() != nil {
		return ""
	}
	return "arithmetic-like"
}
