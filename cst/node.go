// Package cst implements the lossless, error-recovering SQL parser (C2):
// a hand-written recursive-descent parser over tokenizer.Token producing a
// concrete syntax tree whose leaves (tokens, including ERROR tokens) cover
// every byte of the source exactly once.
package cst

import (
	"strings"

	"github.com/smeltsql/smelt/tokenizer"
)

// NodeKind classifies a CST node.
type NodeKind int

const (
	File NodeKind = iota
	SelectStmt
	WithClause
	CTE
	SelectList
	SelectItem
	FromClause
	TableRef
	JoinClause
	JoinCondition
	WhereClause
	GroupByClause
	HavingClause
	OrderByClause
	OrderByItem
	LimitClause
	OffsetClause
	UnionClause

	BinaryExpr
	UnaryExpr
	CaseExpr
	WhenClause
	CastExpr
	PostfixCast
	FunctionCall
	ArgList
	NamedArg
	WindowSpec
	FrameClause
	FrameBound
	FilterClause
	ExistsExpr
	BetweenExpr
	InExpr
	ParenExpr
	Subquery
	QualifiedName
	ColumnRef
	Literal
	Star
	TypeSpec

	ErrorNode
)

func (k NodeKind) String() string {
	names := [...]string{
		"File", "SelectStmt", "WithClause", "CTE", "SelectList", "SelectItem",
		"FromClause", "TableRef", "JoinClause", "JoinCondition", "WhereClause",
		"GroupByClause", "HavingClause", "OrderByClause", "OrderByItem",
		"LimitClause", "OffsetClause", "UnionClause", "BinaryExpr", "UnaryExpr",
		"CaseExpr", "WhenClause", "CastExpr", "PostfixCast", "FunctionCall",
		"ArgList", "NamedArg", "WindowSpec", "FrameClause", "FrameBound",
		"FilterClause", "ExistsExpr", "BetweenExpr", "InExpr", "ParenExpr",
		"Subquery", "QualifiedName", "ColumnRef", "Literal", "Star", "TypeSpec",
		"ErrorNode",
	}
	if int(k) >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Element is one child of a Node: exactly one of Token or Node is set.
type Element struct {
	Token *tokenizer.Token
	Node  *Node
}

// IsToken reports whether this element is a leaf token.
func (e Element) IsToken() bool { return e.Token != nil }

// Node is a CST node: a kind tag, a byte range, and ordered children.
type Node struct {
	Kind     NodeKind
	Start    int
	End      int
	Children []Element
}

// Text returns the node's exact source substring.
func (n *Node) Text(src string) string {
	if n == nil {
		return ""
	}
	return src[n.Start:n.End]
}

// Tokens returns every leaf token under n, in order, including ERROR leaves.
func (n *Node) Tokens() []tokenizer.Token {
	var out []tokenizer.Token
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.IsToken() {
				out = append(out, *c.Token)
			} else {
				walk(c.Node)
			}
		}
	}
	walk(n)
	return out
}

// NonTrivia returns the child elements that are not whitespace/comment
// tokens, preserving order. This is the primary traversal helper for the
// AST view layer.
func (n *Node) NonTrivia() []Element {
	if n == nil {
		return nil
	}
	var out []Element
	for _, c := range n.Children {
		if c.IsToken() && tokenizer.IsTrivia(c.Token.Kind) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ChildNodes returns only the Node children (skipping all tokens), in order.
func (n *Node) ChildNodes() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.NonTrivia() {
		if !c.IsToken() {
			out = append(out, c.Node)
		}
	}
	return out
}

// FirstChildOfKind returns the first direct child Node with the given kind.
func (n *Node) FirstChildOfKind(k NodeKind) *Node {
	for _, c := range n.ChildNodes() {
		if c.Kind == k {
			return c
		}
	}
	return nil
}

// FirstToken returns the first non-trivia leaf token under n, if any.
func (n *Node) FirstToken() (tokenizer.Token, bool) {
	for _, c := range n.NonTrivia() {
		if c.IsToken() {
			return *c.Token, true
		}
		if t, ok := c.Node.FirstToken(); ok {
			return t, true
		}
	}
	return tokenizer.Token{}, false
}

// KeywordAt reports whether the node's first non-trivia token is the given
// keyword (case-insensitive; src is the file's source text).
func (n *Node) KeywordAt(src string, kw string) bool {
	t, ok := n.FirstToken()
	if !ok || t.Kind != tokenizer.KEYWORD {
		return false
	}
	return strings.EqualFold(t.Text(src), kw)
}
