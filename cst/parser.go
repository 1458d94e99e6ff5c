package cst

import (
	"fmt"
	"strings"

	"github.com/smeltsql/smelt/tokenizer"
)

// Parse is a pure function from SQL text to (CST, errors). It never panics
// and always returns a structurally complete tree, per spec.md §4.2.
func Parse(src string) Result {
	toks := tokenizer.New(src).All()
	p := &parser{src: src, toks: toks, lastEnd: 0, b: &Builder{}}

	fm := p.b.Start(0)
	p.skipTrivia()
	if !p.atEOF() {
		if p.peekKeyword("SELECT") || p.peekKeyword("WITH") {
			p.parseSelectStmt()
		} else {
			p.errorHere("expected SELECT statement")
			p.recoverToEnd()
		}
	}
	p.skipTrivia()
	if !p.atEOF() {
		p.errorHere("unexpected trailing content")
		p.recoverToEnd()
	}
	fm.Complete(p.b, File, len(src))

	root := p.b.Build(src, toks)
	return Result{Root: root, Errors: p.errors}
}

type parser struct {
	src     string
	toks    []tokenizer.Token
	pos     int
	b       *Builder
	errors  []ParseError
	lastEnd int
}

// ---- low-level token access ----

func (p *parser) atEOF() bool { return p.peek().Kind == tokenizer.EOF }

// sig returns the nth significant (non-trivia) token starting at the
// current position (n=0 is "peek").
func (p *parser) sig(n int) tokenizer.Token {
	i := p.pos
	count := -1
	for i < len(p.toks) {
		if !tokenizer.IsTrivia(p.toks[i].Kind) {
			count++
			if count == n {
				return p.toks[i]
			}
		}
		i++
	}
	return tokenizer.Token{Kind: tokenizer.EOF, Start: len(p.src), End: len(p.src)}
}

func (p *parser) peek() tokenizer.Token { return p.sig(0) }

func (p *parser) skipTrivia() {
	for p.pos < len(p.toks) && tokenizer.IsTrivia(p.toks[p.pos].Kind) {
		p.b.Token(p.pos)
		p.pos++
	}
}

// bump consumes (and records) the next significant token, draining any
// leading trivia first.
func (p *parser) bump() tokenizer.Token {
	p.skipTrivia()
	if p.pos >= len(p.toks) {
		return tokenizer.Token{Kind: tokenizer.EOF, Start: len(p.src), End: len(p.src)}
	}
	t := p.toks[p.pos]
	p.b.Token(p.pos)
	p.pos++
	p.lastEnd = t.End
	return t
}

func (p *parser) kwText(t tokenizer.Token) string {
	if t.Kind != tokenizer.KEYWORD {
		return ""
	}
	return strings.ToUpper(t.Text(p.src))
}

func (p *parser) peekKeyword(kw string) bool {
	t := p.peek()
	return t.Kind == tokenizer.KEYWORD && p.kwText(t) == kw
}

func (p *parser) sigKeyword(n int, kw string) bool {
	t := p.sig(n)
	return t.Kind == tokenizer.KEYWORD && p.kwText(t) == kw
}

func (p *parser) peekAnyKeyword(kws ...string) bool {
	for _, kw := range kws {
		if p.peekKeyword(kw) {
			return true
		}
	}
	return false
}

func (p *parser) peekKind(k tokenizer.Kind) bool { return p.peek().Kind == k }

func (p *parser) peekAnyOp(kinds ...tokenizer.Kind) bool {
	t := p.peek()
	for _, k := range kinds {
		if t.Kind == k {
			return true
		}
	}
	return false
}

func (p *parser) errorHere(format string, args ...any) {
	t := p.peek()
	p.errors = append(p.errors, ParseError{
		Message: fmt.Sprintf(format, args...),
		Start:   t.Start,
		End:     t.End,
	})
}

// expectKeyword consumes kw if present; otherwise records an error and does
// not consume (letting the caller decide how to recover).
func (p *parser) expectKeyword(kw string) bool {
	if p.peekKeyword(kw) {
		p.bump()
		return true
	}
	p.errorHere("expected %s", kw)
	return false
}

func (p *parser) expectAnyKeyword(kws ...string) bool {
	if p.peekAnyKeyword(kws...) {
		p.bump()
		return true
	}
	p.errorHere("expected one of %s", strings.Join(kws, ", "))
	return false
}

func (p *parser) expectKind(k tokenizer.Kind) bool {
	if p.peekKind(k) {
		p.bump()
		return true
	}
	p.errorHere("expected %s", k)
	return false
}

func (p *parser) expectIdent() bool { return p.expectKind(tokenizer.IDENT) }

// recoverToEnd wraps all remaining input (to EOF) in a single ErrorNode.
// Used when the parser cannot make sense of the top level at all.
func (p *parser) recoverToEnd() {
	m := p.b.Start(p.peek().Start)
	for !p.atEOF() {
		p.bump()
	}
	m.Complete(p.b, ErrorNode, p.lastEnd)
}

// recoverUntilAnyKeyword consumes tokens into a single ErrorNode until a
// synchronizing keyword or EOF is reached, without consuming the sync token.
func (p *parser) recoverUntilAnyKeyword(kws ...string) {
	start := p.pos
	m := p.b.Start(p.peek().Start)
	for !p.atEOF() && !p.peekAnyKeyword(kws...) {
		before := p.pos
		p.bump()
		if p.pos == before { // guarantee progress
			break
		}
	}
	if p.pos == start {
		// Nothing to recover into; abandon to avoid an empty ErrorNode.
		m.Abandon(p.b)
		return
	}
	m.Complete(p.b, ErrorNode, p.lastEnd)
}

// ---- clause boundary sets ----

var clauseKeywords = []string{"FROM", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "UNION"}

func (p *parser) atSelectListEnd() bool {
	if p.peekAnyKeyword(clauseKeywords...) {
		return true
	}
	return p.peekKind(tokenizer.RPAREN) || p.peekKind(tokenizer.SEMICOLON) || p.atEOF()
}

func (p *parser) atFromBoundary() bool {
	if p.isJoinStart() {
		return true
	}
	if p.peekAnyKeyword("WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "UNION", "TABLESAMPLE", "AS") {
		return true
	}
	return p.peekKind(tokenizer.RPAREN) || p.peekKind(tokenizer.SEMICOLON) || p.atEOF()
}

// ---- statement & clause grammar ----

func (p *parser) parseSelectStmt() CompletedMarker {
	m := p.b.Start(p.peek().Start)

	if p.peekKeyword("WITH") {
		p.parseWithClause()
	}
	p.expectKeyword("SELECT")

	if p.peekKeyword("DISTINCT") {
		p.bump()
		if p.peekKeyword("ON") {
			p.bump()
			p.expectKind(tokenizer.LPAREN)
			p.parseExprList(tokenizer.RPAREN)
			p.expectKind(tokenizer.RPAREN)
		}
	} else if p.peekKeyword("ALL") {
		p.bump()
	}

	p.parseSelectList()

	if p.peekKeyword("FROM") {
		p.parseFromClause()
	}
	if p.peekKeyword("WHERE") {
		p.parseWhereClause()
	}
	if p.peekKeyword("GROUP") {
		p.parseGroupByClause()
	}
	if p.peekKeyword("HAVING") {
		p.parseHavingClause()
	}
	if p.peekKeyword("ORDER") {
		p.parseOrderByClause()
	}
	if p.peekKeyword("LIMIT") {
		p.parseLimitClause()
		if p.peekKeyword("OFFSET") {
			p.parseOffsetClause()
		}
	}
	if p.peekKeyword("UNION") {
		um := p.b.Start(p.peek().Start)
		p.bump()
		if p.peekKeyword("ALL") {
			p.bump()
		}
		if p.peekKeyword("SELECT") || p.peekKeyword("WITH") {
			p.parseSelectStmt()
		} else {
			p.errorHere("expected SELECT after UNION")
		}
		um.Complete(p.b, UnionClause, p.lastEnd)
	}

	return m.Complete(p.b, SelectStmt, p.lastEnd)
}

func (p *parser) parseWithClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // WITH
	if p.peekKeyword("RECURSIVE") {
		p.bump()
	}
	for {
		cm := p.b.Start(p.peek().Start)
		p.expectIdent()
		if p.peekKind(tokenizer.LPAREN) {
			p.bump()
			p.parseIdentList(tokenizer.RPAREN)
			p.expectKind(tokenizer.RPAREN)
		}
		p.expectKeyword("AS")
		p.expectKind(tokenizer.LPAREN)
		p.parseSelectStmt()
		p.expectKind(tokenizer.RPAREN)
		cm.Complete(p.b, CTE, p.lastEnd)

		if p.peekKind(tokenizer.COMMA) {
			p.bump()
			continue
		}
		break
	}
	m.Complete(p.b, WithClause, p.lastEnd)
}

func (p *parser) parseIdentList(end tokenizer.Kind) {
	for {
		if p.peek().Kind == end {
			return
		}
		p.expectIdent()
		if p.peekKind(tokenizer.COMMA) {
			p.bump()
			if p.peek().Kind == end {
				return // permissive trailing comma
			}
			continue
		}
		return
	}
}

func (p *parser) parseSelectList() {
	m := p.b.Start(p.peek().Start)
	for {
		p.parseSelectItem()
		if p.peekKind(tokenizer.COMMA) {
			p.bump()
			if p.atSelectListEnd() {
				break // permissive trailing comma
			}
			continue
		}
		break
	}
	m.Complete(p.b, SelectList, p.lastEnd)
}

func (p *parser) parseSelectItem() {
	m := p.b.Start(p.peek().Start)
	p.parseExpr()
	if p.peekKeyword("AS") {
		p.bump()
		p.expectIdent()
	} else if p.peekKind(tokenizer.IDENT) && !p.atSelectListEnd() {
		p.bump() // implicit alias
	}
	m.Complete(p.b, SelectItem, p.lastEnd)
}

func (p *parser) isJoinStart() bool {
	if p.peekKeyword("JOIN") {
		return true
	}
	if p.peekAnyKeyword("INNER", "LEFT", "RIGHT", "FULL", "CROSS") {
		return true
	}
	return false
}

func (p *parser) parseFromClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // FROM
	p.parseTableRef()
	for p.isJoinStart() {
		p.parseJoinClause()
	}
	m.Complete(p.b, FromClause, p.lastEnd)
}

func (p *parser) parseJoinClause() {
	m := p.b.Start(p.peek().Start)
	if p.peekAnyKeyword("INNER", "LEFT", "RIGHT", "FULL", "CROSS") {
		p.bump()
		if p.peekKeyword("OUTER") {
			p.bump()
		}
	}
	p.expectKeyword("JOIN")
	p.parseTableRef()
	if p.peekKeyword("ON") {
		cm := p.b.Start(p.peek().Start)
		p.bump()
		p.parseExpr()
		cm.Complete(p.b, JoinCondition, p.lastEnd)
	} else if p.peekKeyword("USING") {
		cm := p.b.Start(p.peek().Start)
		p.bump()
		p.expectKind(tokenizer.LPAREN)
		p.parseIdentList(tokenizer.RPAREN)
		p.expectKind(tokenizer.RPAREN)
		cm.Complete(p.b, JoinCondition, p.lastEnd)
	}
	m.Complete(p.b, JoinClause, p.lastEnd)
}

func (p *parser) parseTableRef() {
	m := p.b.Start(p.peek().Start)
	if p.peekKeyword("LATERAL") {
		p.bump()
	}
	if p.peekKind(tokenizer.LPAREN) {
		p.bump()
		p.parseSelectStmt()
		p.expectKind(tokenizer.RPAREN)
	} else if p.peekKind(tokenizer.IDENT) {
		nm := p.b.Start(p.peek().Start)
		p.bump()
		cm := nm.Complete(p.b, ColumnRef, p.lastEnd)
		if p.peekKind(tokenizer.DOT) {
			pm := cm.Precede(p.b)
			p.bump()
			p.expectIdent()
			cm = pm.Complete(p.b, QualifiedName, p.lastEnd)
		}
		if p.peekKind(tokenizer.LPAREN) {
			pm := cm.Precede(p.b)
			p.parseArgList()
			pm.Complete(p.b, FunctionCall, p.lastEnd)
		}
	} else {
		p.expectIdent()
	}
	if p.peekKeyword("TABLESAMPLE") {
		p.bump()
		if p.peekAnyKeyword("BERNOULLI", "SYSTEM") {
			p.bump()
		}
		p.expectKind(tokenizer.LPAREN)
		p.parseExpr()
		p.expectKind(tokenizer.RPAREN)
		if p.peekKeyword("REPEATABLE") {
			p.bump()
			p.expectKind(tokenizer.LPAREN)
			p.parseExpr()
			p.expectKind(tokenizer.RPAREN)
		}
	}
	if p.peekKeyword("AS") {
		p.bump()
		p.expectIdent()
	} else if p.peekKind(tokenizer.IDENT) && !p.atFromBoundary() {
		p.bump()
	}
	m.Complete(p.b, TableRef, p.lastEnd)
}

func (p *parser) parseWhereClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // WHERE
	p.parseExpr()
	m.Complete(p.b, WhereClause, p.lastEnd)
}

func (p *parser) parseGroupByClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // GROUP
	p.expectKeyword("BY")
	p.parseExprList(tokenizer.EOF) // end detected via clause boundary, not a single punct
	m.Complete(p.b, GroupByClause, p.lastEnd)
}

func (p *parser) parseHavingClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // HAVING
	p.parseExpr()
	m.Complete(p.b, HavingClause, p.lastEnd)
}

func (p *parser) parseOrderByClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // ORDER
	p.expectKeyword("BY")
	for {
		p.parseOrderByItem()
		if p.peekKind(tokenizer.COMMA) {
			p.bump()
			if p.atSelectListEnd() {
				break
			}
			continue
		}
		break
	}
	m.Complete(p.b, OrderByClause, p.lastEnd)
}

func (p *parser) parseOrderByItem() {
	m := p.b.Start(p.peek().Start)
	p.parseExpr()
	if p.peekAnyKeyword("ASC", "DESC") {
		p.bump()
	}
	if p.peekKeyword("NULLS") {
		p.bump()
		p.expectAnyKeyword("FIRST", "LAST")
	}
	m.Complete(p.b, OrderByItem, p.lastEnd)
}

func (p *parser) parseLimitClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // LIMIT
	p.parseExpr()
	m.Complete(p.b, LimitClause, p.lastEnd)
}

func (p *parser) parseOffsetClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // OFFSET
	p.parseExpr()
	m.Complete(p.b, OffsetClause, p.lastEnd)
}

// parseExprList parses a comma-separated expression list. It stops at a
// clause boundary (GROUP BY's list has no closing punctuation of its own)
// or, when end is a real delimiter kind, at that delimiter.
func (p *parser) parseExprList(end tokenizer.Kind) {
	for {
		p.parseExpr()
		if p.peekKind(tokenizer.COMMA) {
			p.bump()
			if p.peek().Kind == end || (end == tokenizer.EOF && p.atSelectListEnd()) {
				return
			}
			continue
		}
		return
	}
}

// ---- expressions (Pratt-style precedence climbing) ----

func (p *parser) parseExpr() CompletedMarker { return p.parseOr() }

func (p *parser) parseOr() CompletedMarker {
	left := p.parseAnd()
	for p.peekKeyword("OR") {
		m := left.Precede(p.b)
		p.bump()
		p.parseAnd()
		left = m.Complete(p.b, BinaryExpr, p.lastEnd)
	}
	return left
}

func (p *parser) parseAnd() CompletedMarker {
	left := p.parseNot()
	for p.peekKeyword("AND") {
		m := left.Precede(p.b)
		p.bump()
		p.parseNot()
		left = m.Complete(p.b, BinaryExpr, p.lastEnd)
	}
	return left
}

func (p *parser) parseNot() CompletedMarker {
	if p.peekKeyword("NOT") && !p.sigFollowsBetweenOrIn() {
		m := p.b.Start(p.peek().Start)
		p.bump()
		p.parseNot()
		return m.Complete(p.b, UnaryExpr, p.lastEnd)
	}
	return p.parseComparison()
}

// sigFollowsBetweenOrIn reports whether the token after NOT is one that
// parseComparison handles as a postfix "NOT X" operator (BETWEEN/IN); in
// that case NOT is not a prefix boolean negation and must be left for
// parseComparison to consume alongside its left operand.
func (p *parser) sigFollowsBetweenOrIn() bool {
	return p.sigKeyword(1, "BETWEEN") || p.sigKeyword(1, "IN")
}

func (p *parser) parseComparison() CompletedMarker {
	left := p.parseAdditive()
	for {
		switch {
		case p.peekKeyword("IS"):
			m := left.Precede(p.b)
			p.bump()
			if p.peekKeyword("NOT") {
				p.bump()
			}
			p.expectKeyword("NULL")
			left = m.Complete(p.b, BinaryExpr, p.lastEnd)
		case p.peekKeyword("NOT") && p.sigFollowsBetweenOrIn():
			m := left.Precede(p.b)
			p.bump() // NOT
			switch {
			case p.peekKeyword("BETWEEN"):
				p.bump()
				p.parseAdditive()
				p.expectKeyword("AND")
				p.parseAdditive()
				left = m.Complete(p.b, BetweenExpr, p.lastEnd)
			case p.peekKeyword("IN"):
				p.bump()
				p.parseInRHS()
				left = m.Complete(p.b, InExpr, p.lastEnd)
			default:
				left = m.Complete(p.b, BinaryExpr, p.lastEnd)
			}
		case p.peekKeyword("BETWEEN"):
			m := left.Precede(p.b)
			p.bump()
			p.parseAdditive()
			p.expectKeyword("AND")
			p.parseAdditive()
			left = m.Complete(p.b, BetweenExpr, p.lastEnd)
		case p.peekKeyword("IN"):
			m := left.Precede(p.b)
			p.bump()
			p.parseInRHS()
			left = m.Complete(p.b, InExpr, p.lastEnd)
		case p.peekAnyOp(tokenizer.EQ, tokenizer.NEQ, tokenizer.LT, tokenizer.GT, tokenizer.LE, tokenizer.GE):
			m := left.Precede(p.b)
			p.bump()
			p.parseAdditive()
			left = m.Complete(p.b, BinaryExpr, p.lastEnd)
		default:
			return left
		}
	}
}

func (p *parser) parseInRHS() {
	p.expectKind(tokenizer.LPAREN)
	if p.peekKeyword("SELECT") || p.peekKeyword("WITH") {
		p.parseSelectStmt()
	} else {
		p.parseExprList(tokenizer.RPAREN)
	}
	p.expectKind(tokenizer.RPAREN)
}

func (p *parser) parseAdditive() CompletedMarker {
	left := p.parseMultiplicative()
	for p.peekAnyOp(tokenizer.PLUS, tokenizer.MINUS) {
		m := left.Precede(p.b)
		p.bump()
		p.parseMultiplicative()
		left = m.Complete(p.b, BinaryExpr, p.lastEnd)
	}
	return left
}

func (p *parser) parseMultiplicative() CompletedMarker {
	left := p.parseUnary()
	for p.peekAnyOp(tokenizer.STAR, tokenizer.SLASH) {
		m := left.Precede(p.b)
		p.bump()
		p.parseUnary()
		left = m.Complete(p.b, BinaryExpr, p.lastEnd)
	}
	return left
}

func (p *parser) parseUnary() CompletedMarker {
	if p.peekKind(tokenizer.MINUS) {
		m := p.b.Start(p.peek().Start)
		p.bump()
		p.parseUnary()
		return m.Complete(p.b, UnaryExpr, p.lastEnd)
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() CompletedMarker {
	t := p.peek()
	switch {
	case t.Kind == tokenizer.KEYWORD && p.kwText(t) == "CASE":
		return p.parseCaseExpr()
	case t.Kind == tokenizer.KEYWORD && p.kwText(t) == "CAST":
		return p.parseCastFunc()
	case t.Kind == tokenizer.KEYWORD && p.kwText(t) == "EXISTS":
		return p.parseExistsExpr()
	case t.Kind == tokenizer.LPAREN:
		return p.parseParenOrSubquery()
	case t.Kind == tokenizer.STAR:
		m := p.b.Start(t.Start)
		p.bump()
		return m.Complete(p.b, Star, p.lastEnd)
	case t.Kind == tokenizer.STRING || t.Kind == tokenizer.NUMBER:
		m := p.b.Start(t.Start)
		p.bump()
		return m.Complete(p.b, Literal, p.lastEnd)
	case t.Kind == tokenizer.IDENT:
		return p.parseIdentPrimary()
	default:
		m := p.b.Start(t.Start)
		p.errorHere("unexpected token in expression")
		if !p.atEOF() {
			p.bump()
		}
		return m.Complete(p.b, ErrorNode, p.lastEnd)
	}
}

// parseIdentPrimary handles the identifier-led forms that require
// checkpoint-based disambiguation: bare column, qualified column
// (a.b[.c]), function call (a(...) / a.b(...)), and postfix cast
// (expr::type), per spec.md §4.2's design note on checkpoints.
func (p *parser) parseIdentPrimary() CompletedMarker {
	m := p.b.Start(p.peek().Start)
	p.bump() // identifier
	cm := m.Complete(p.b, ColumnRef, p.lastEnd)

	for {
		switch {
		case p.peekKind(tokenizer.DOT):
			pm := cm.Precede(p.b)
			p.bump()
			if p.peekKind(tokenizer.STAR) {
				p.bump()
			} else {
				p.expectIdent()
			}
			cm = pm.Complete(p.b, QualifiedName, p.lastEnd)
		case p.peekKind(tokenizer.LPAREN):
			pm := cm.Precede(p.b)
			p.parseArgList()
			if p.peekKeyword("FILTER") {
				p.parseFilterClause()
			}
			if p.peekKeyword("OVER") {
				p.parseOverClause()
			}
			cm = pm.Complete(p.b, FunctionCall, p.lastEnd)
			return cm
		case p.peekKind(tokenizer.CAST):
			pm := cm.Precede(p.b)
			p.bump()
			p.parseTypeSpec()
			cm = pm.Complete(p.b, PostfixCast, p.lastEnd)
		default:
			return cm
		}
	}
}

func (p *parser) parseArgList() {
	m := p.b.Start(p.peek().Start)
	p.expectKind(tokenizer.LPAREN)
	if !p.peekKind(tokenizer.RPAREN) {
		for {
			p.parseArg()
			if p.peekKind(tokenizer.COMMA) {
				p.bump()
				if p.peekKind(tokenizer.RPAREN) {
					break
				}
				continue
			}
			break
		}
	}
	p.expectKind(tokenizer.RPAREN)
	m.Complete(p.b, ArgList, p.lastEnd)
}

func (p *parser) parseArg() {
	if (p.peekKind(tokenizer.IDENT) || p.peekKind(tokenizer.KEYWORD)) && p.sig(1).Kind == tokenizer.ARROW {
		m := p.b.Start(p.peek().Start)
		p.bump() // name
		p.bump() // =>
		p.parseExpr()
		m.Complete(p.b, NamedArg, p.lastEnd)
		return
	}
	if p.peekKeyword("DISTINCT") {
		p.bump()
	}
	p.parseExpr()
}

func (p *parser) parseFilterClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // FILTER
	p.expectKind(tokenizer.LPAREN)
	p.expectKeyword("WHERE")
	p.parseExpr()
	p.expectKind(tokenizer.RPAREN)
	m.Complete(p.b, FilterClause, p.lastEnd)
}

func (p *parser) parseOverClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // OVER
	if p.peekKind(tokenizer.LPAREN) {
		p.bump()
		if p.peekKeyword("PARTITION") {
			p.bump()
			p.expectKeyword("BY")
			p.parseExprList(tokenizer.RPAREN)
		}
		if p.peekKeyword("ORDER") {
			p.bump()
			p.expectKeyword("BY")
			for {
				p.parseOrderByItem()
				if p.peekKind(tokenizer.COMMA) {
					p.bump()
					continue
				}
				break
			}
		}
		if p.peekAnyKeyword("ROWS", "RANGE", "GROUPS") {
			p.parseFrameClause()
		}
		p.expectKind(tokenizer.RPAREN)
	} else {
		p.expectIdent() // named window reference
	}
	m.Complete(p.b, WindowSpec, p.lastEnd)
}

func (p *parser) parseFrameClause() {
	m := p.b.Start(p.peek().Start)
	p.bump() // ROWS/RANGE/GROUPS
	if p.peekKeyword("BETWEEN") {
		p.bump()
		p.parseFrameBound()
		p.expectKeyword("AND")
		p.parseFrameBound()
	} else {
		p.parseFrameBound()
	}
	m.Complete(p.b, FrameClause, p.lastEnd)
}

func (p *parser) parseFrameBound() {
	m := p.b.Start(p.peek().Start)
	switch {
	case p.peekKeyword("UNBOUNDED"):
		p.bump()
		p.expectAnyKeyword("PRECEDING", "FOLLOWING")
	case p.peekKeyword("CURRENT"):
		p.bump()
		p.expectKeyword("ROW")
	default:
		p.expectKind(tokenizer.NUMBER)
		p.expectAnyKeyword("PRECEDING", "FOLLOWING")
	}
	m.Complete(p.b, FrameBound, p.lastEnd)
}

func (p *parser) parseTypeSpec() {
	m := p.b.Start(p.peek().Start)
	p.expectIdent()
	if p.peekKind(tokenizer.LPAREN) {
		p.bump()
		p.parseExprList(tokenizer.RPAREN)
		p.expectKind(tokenizer.RPAREN)
	}
	m.Complete(p.b, TypeSpec, p.lastEnd)
}

func (p *parser) parseCaseExpr() CompletedMarker {
	m := p.b.Start(p.peek().Start)
	p.bump() // CASE
	if !p.peekKeyword("WHEN") {
		p.parseExpr() // simple-case operand
	}
	for p.peekKeyword("WHEN") {
		wm := p.b.Start(p.peek().Start)
		p.bump()
		p.parseExpr()
		p.expectKeyword("THEN")
		p.parseExpr()
		wm.Complete(p.b, WhenClause, p.lastEnd)
	}
	if p.peekKeyword("ELSE") {
		p.bump()
		p.parseExpr()
	}
	p.expectKeyword("END")
	return m.Complete(p.b, CaseExpr, p.lastEnd)
}

func (p *parser) parseCastFunc() CompletedMarker {
	m := p.b.Start(p.peek().Start)
	p.bump() // CAST
	p.expectKind(tokenizer.LPAREN)
	p.parseExpr()
	p.expectKeyword("AS")
	p.parseTypeSpec()
	p.expectKind(tokenizer.RPAREN)
	return m.Complete(p.b, CastExpr, p.lastEnd)
}

func (p *parser) parseExistsExpr() CompletedMarker {
	m := p.b.Start(p.peek().Start)
	p.bump() // EXISTS
	p.expectKind(tokenizer.LPAREN)
	p.parseSelectStmt()
	p.expectKind(tokenizer.RPAREN)
	return m.Complete(p.b, ExistsExpr, p.lastEnd)
}

func (p *parser) parseParenOrSubquery() CompletedMarker {
	m := p.b.Start(p.peek().Start)
	p.bump() // (
	var kind NodeKind = ParenExpr
	if p.peekKeyword("SELECT") || p.peekKeyword("WITH") {
		p.parseSelectStmt()
		kind = Subquery
	} else {
		p.parseExpr()
	}
	p.expectKind(tokenizer.RPAREN)
	return m.Complete(p.b, kind, p.lastEnd)
}
