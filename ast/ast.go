// Package ast provides a read-only typed view (C3) over cst.Node trees:
// structured accessors for select lists, from clauses, expressions and,
// most importantly, smelt.ref(...) call sites.
package ast

import (
	"strings"

	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/tokenizer"
)

// File wraps a parsed file's root CST node.
type File struct {
	Root *cst.Node
	Src  string
}

// New wraps a cst.Result's root node for a given source text.
func New(root *cst.Node, src string) File {
	return File{Root: root, Src: src}
}

// SelectStmt returns the file's top-level SELECT statement, if any.
func (f File) SelectStmt() (SelectStmt, bool) {
	n := f.Root.FirstChildOfKind(cst.SelectStmt)
	if n == nil {
		return SelectStmt{}, false
	}
	return SelectStmt{n: n, src: f.Src}, true
}

// Ref is one smelt.ref('name') call site.
type Ref struct {
	Model        string // the literal name, quotes stripped
	CallRange    [2]int // byte range of the full function call
	NameRange    [2]int // byte range of the quoted literal, including quotes
	HasNamedArgs bool
}

// Refs walks the entire file and returns every smelt.ref(...) call, in
// source order, per spec.md §4.3.
func (f File) Refs() []Ref {
	var out []Ref
	var walk func(n *cst.Node)
	walk = func(n *cst.Node) {
		if n.Kind == cst.FunctionCall {
			if r, ok := refFromFunctionCall(n, f.Src); ok {
				out = append(out, r)
			}
		}
		for _, c := range n.Children {
			if !c.IsToken() {
				walk(c.Node)
			}
		}
	}
	walk(f.Root)
	return out
}

func refFromFunctionCall(n *cst.Node, src string) (Ref, bool) {
	children := n.ChildNodes()
	if len(children) < 2 {
		return Ref{}, false
	}
	qualifier := children[0]
	argList := children[len(children)-1]
	if argList.Kind != cst.ArgList {
		return Ref{}, false
	}
	if qualifier.Kind != cst.QualifiedName {
		return Ref{}, false
	}
	// QualifiedName is built left-to-right via Precede, so its direct
	// children are [ColumnRef-or-QualifiedName, '.', ident]. Recover the
	// two-part "namespace.function" text by taking the last two identifier
	// tokens under it.
	idents := identTokens(qualifier)
	if len(idents) < 2 {
		return Ref{}, false
	}
	namespace := strings.ToLower(idents[len(idents)-2].Text(src))
	name := strings.ToLower(idents[len(idents)-1].Text(src))
	if namespace != "smelt" || name != "ref" {
		return Ref{}, false
	}

	args := argList.ChildNodes()
	var hasNamed bool
	var nameRange [2]int
	var model string
	for _, a := range args {
		if a.Kind == cst.NamedArg {
			hasNamed = true
			continue
		}
	}
	// The model name is the first STRING token anywhere under the arg list.
	for _, tok := range argList.Tokens() {
		if tok.Kind == tokenizer.STRING {
			nameRange = [2]int{tok.Start, tok.End}
			model = stripQuotes(tok.Text(src))
			break
		}
	}
	if model == "" {
		return Ref{}, false
	}
	return Ref{
		Model:        model,
		CallRange:    [2]int{n.Start, n.End},
		NameRange:    nameRange,
		HasNamedArgs: hasNamed,
	}, true
}

func identTokens(n *cst.Node) []tokenizer.Token {
	var out []tokenizer.Token
	for _, tok := range n.Tokens() {
		if tok.Kind == tokenizer.IDENT {
			out = append(out, tok)
		}
	}
	return out
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// SelectStmt is the typed view over a cst.SelectStmt node.
type SelectStmt struct {
	n   *cst.Node
	src string
}

func (s SelectStmt) SelectList() (SelectList, bool) {
	n := s.n.FirstChildOfKind(cst.SelectList)
	if n == nil {
		return SelectList{}, false
	}
	return SelectList{n: n, src: s.src}, true
}

func (s SelectStmt) FromClause() (FromClause, bool) {
	n := s.n.FirstChildOfKind(cst.FromClause)
	if n == nil {
		return FromClause{}, false
	}
	return FromClause{n: n, src: s.src}, true
}

func (s SelectStmt) WhereClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.WhereClause)
	return n, n != nil
}

func (s SelectStmt) GroupByClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.GroupByClause)
	return n, n != nil
}

func (s SelectStmt) HavingClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.HavingClause)
	return n, n != nil
}

func (s SelectStmt) OrderByClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.OrderByClause)
	return n, n != nil
}

func (s SelectStmt) LimitClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.LimitClause)
	return n, n != nil
}

func (s SelectStmt) WithClause() (*cst.Node, bool) {
	n := s.n.FirstChildOfKind(cst.WithClause)
	return n, n != nil
}

func (s SelectStmt) Node() *cst.Node { return s.n }

// SelectList is the typed view over a cst.SelectList node.
type SelectList struct {
	n   *cst.Node
	src string
}

func (l SelectList) Items() []SelectItem {
	var out []SelectItem
	for _, c := range l.n.ChildNodes() {
		if c.Kind == cst.SelectItem {
			out = append(out, SelectItem{n: c, src: l.src})
		}
	}
	return out
}

// SelectItem is the typed view over a cst.SelectItem node.
type SelectItem struct {
	n   *cst.Node
	src string
}

func (i SelectItem) Range() [2]int { return [2]int{i.n.Start, i.n.End} }

func (i SelectItem) Text() string { return i.n.Text(i.src) }

// Expression returns the item's expression node (everything before an
// explicit/implicit alias).
func (i SelectItem) Expression() *cst.Node {
	children := i.n.ChildNodes()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// Alias returns the explicit or implicit alias identifier text, if any.
func (i SelectItem) Alias() (string, bool) {
	children := i.n.ChildNodes()
	if len(children) == 0 {
		return "", false
	}
	// The alias is the rightmost extra child beyond the expression: either
	// the lone trailing IDENT token (implicit) or an IDENT after AS. Since
	// SelectItem has exactly one expression child node plus zero-or-more
	// leaf alias tokens, read the last IDENT token whose start is after the
	// expression's end.
	exprEnd := children[0].End
	for _, tok := range i.n.Tokens() {
		if tok.Kind == tokenizer.IDENT && tok.Start >= exprEnd {
			return tok.Text(i.src), true
		}
	}
	return "", false
}

// ColumnName implements the SelectItem.column_name() rule from spec.md §4.3.
func (i SelectItem) ColumnName() (string, bool) {
	if alias, ok := i.Alias(); ok {
		return alias, true
	}
	expr := i.Expression()
	if expr == nil {
		return "", false
	}
	if expr.Kind == cst.Star {
		return "*", true
	}
	if expr.Kind == cst.FunctionCall {
		return strings.TrimSpace(expr.Text(i.src)), true
	}
	if expr.Kind == cst.QualifiedName {
		idents := identTokens(expr)
		if len(idents) > 0 {
			return idents[len(idents)-1].Text(i.src), true
		}
	}
	if expr.Kind == cst.ColumnRef {
		idents := identTokens(expr)
		if len(idents) > 0 {
			return idents[0].Text(i.src), true
		}
	}
	for _, tok := range expr.Tokens() {
		if tok.Kind == tokenizer.IDENT {
			return tok.Text(i.src), true
		}
	}
	return "", false
}

// FromClause is the typed view over a cst.FromClause node.
type FromClause struct {
	n   *cst.Node
	src string
}

func (f FromClause) TableRefs() []TableRef {
	var out []TableRef
	for _, c := range f.n.ChildNodes() {
		if c.Kind == cst.TableRef {
			out = append(out, TableRef{n: c, src: f.src})
		}
	}
	return out
}

func (f FromClause) Node() *cst.Node { return f.n }

func (f FromClause) Joins() []*cst.Node {
	var out []*cst.Node
	for _, c := range f.n.ChildNodes() {
		if c.Kind == cst.JoinClause {
			out = append(out, c)
		}
	}
	return out
}

// TableRef is the typed view over a cst.TableRef node.
type TableRef struct {
	n   *cst.Node
	src string
}

// ReferencedModels returns every smelt.ref('model') used directly within
// this table reference (there can be at most one in well-formed SQL, but the
// type returns a slice to tolerate malformed/duplicated input).
func (t TableRef) ReferencedModels() []string {
	var out []string
	for _, r := range (File{Root: t.n, Src: t.src}).Refs() {
		out = append(out, r.Model)
	}
	return out
}
