package cst

import "github.com/smeltsql/smelt/tokenizer"

// tombstone marks a Start event that has been folded into an ancestor chain
// (via Precede) and must not start its own node when the event stream is
// replayed into a tree.
const tombstone NodeKind = -1

type eventKind int

const (
	evStart eventKind = iota
	evFinish
	evToken
)

type event struct {
	kind          eventKind
	nodeKind      NodeKind
	forwardParent int // index into events, or -1
	tokenIdx      int
	atOffset      int // byte offset when this Start/Finish was recorded
}

// Builder accumulates a flat event stream that is later replayed into a
// Node tree. The checkpoint mechanism (Start/Precede) lets the parser decide
// a node's Kind *after* consuming its first child or two, which is what's
// needed to tell apart `ident`, `ident.ident`, `ident(...)` and `ident::type`
// without unbounded lookahead (spec.md §4.2).
type Builder struct {
	events []event
}

// Marker is a handle to an open (not yet completed) node.
type Marker struct{ pos int }

// CompletedMarker is a handle to a finished node, usable with Precede to
// retroactively wrap it (and everything since its start) in a new parent.
type CompletedMarker struct{ pos int }

// Start opens a new node at the current position. Its Kind is unknown until
// Complete or Precede+Complete is called.
func (b *Builder) Start(atOffset int) Marker {
	b.events = append(b.events, event{kind: evStart, nodeKind: tombstone, forwardParent: -1, atOffset: atOffset})
	return Marker{pos: len(b.events) - 1}
}

// Complete assigns kind to the node opened by m and closes it.
func (m Marker) Complete(b *Builder, kind NodeKind, atOffset int) CompletedMarker {
	b.events[m.pos].nodeKind = kind
	b.events = append(b.events, event{kind: evFinish, atOffset: atOffset})
	return CompletedMarker{pos: m.pos}
}

// Abandon discards the node opened by m; its children (if any were already
// emitted) are reparented to m's parent. Only valid when no children have
// been emitted since Start (typical use: speculative lookahead that failed).
func (m Marker) Abandon(b *Builder) {
	if m.pos == len(b.events)-1 {
		b.events = b.events[:m.pos]
		return
	}
	b.events[m.pos].nodeKind = tombstone
}

// Precede opens a new marker that will become the immediate parent of the
// node completed as cm, without having to have known that ahead of time.
// This is the checkpoint primitive: parse an expression as a bare
// ColumnRef/QualifiedName, then Precede+Complete(FunctionCall) once a `(`
// is seen, or Precede+Complete(CastExpr) once `::` is seen.
func (cm CompletedMarker) Precede(b *Builder) Marker {
	newPos := len(b.events)
	b.events = append(b.events, event{kind: evStart, nodeKind: tombstone, forwardParent: -1, atOffset: b.events[cm.pos].atOffset})
	b.events[cm.pos].forwardParent = newPos
	return Marker{pos: newPos}
}

// Token appends a leaf token to whatever node is currently open; Build
// moves trivia that would lead a still-empty node up to the nearest open
// ancestor that already has content.
func (b *Builder) Token(idx int) {
	b.events = append(b.events, event{kind: evToken, tokenIdx: idx})
}

// Build replays the event stream into a Node tree. toks must be the full
// token slice (including trivia) that tokenIdx values index into.
func (b *Builder) Build(src string, toks []tokenizer.Token) *Node {
	var stack []*Node
	var root *Node

	for i := 0; i < len(b.events); i++ {
		ev := b.events[i]
		switch ev.kind {
		case evStart:
			if ev.nodeKind == tombstone {
				continue
			}
			var kinds []NodeKind
			var offsets []int
			kinds = append(kinds, ev.nodeKind)
			offsets = append(offsets, ev.atOffset)
			fp := ev.forwardParent
			for fp != -1 {
				idx := fp
				kinds = append(kinds, b.events[idx].nodeKind)
				offsets = append(offsets, b.events[idx].atOffset)
				next := b.events[idx].forwardParent
				b.events[idx].nodeKind = tombstone
				b.events[idx].forwardParent = -1
				fp = next
			}
			for k := len(kinds) - 1; k >= 0; k-- {
				stack = append(stack, &Node{Kind: kinds[k], Start: offsets[k], End: offsets[k]})
			}
		case evFinish:
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(n.Children) > 0 {
				n.Start = n.Children[0].start()
				n.End = n.Children[len(n.Children)-1].end()
			} else {
				n.End = ev.atOffset
			}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, Element{Node: n})
			}
		case evToken:
			tk := toks[ev.tokenIdx]
			if len(stack) > 0 {
				// Leading trivia belongs to the enclosing node, so a node's
				// range starts at its first significant token.
				at := len(stack) - 1
				if tokenizer.IsTrivia(tk.Kind) {
					for at > 0 && len(stack[at].Children) == 0 {
						at--
					}
				}
				stack[at].Children = append(stack[at].Children, Element{Token: &tk})
			}
		}
	}

	return root
}

func (e Element) start() int {
	if e.IsToken() {
		return e.Token.Start
	}
	return e.Node.Start
}

func (e Element) end() int {
	if e.IsToken() {
		return e.Token.End
	}
	return e.Node.End
}
