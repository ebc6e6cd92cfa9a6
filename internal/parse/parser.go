// Package parse reads Unlambda's textual surface syntax and builds an
// application tree of internal/cell nodes, allocated directly in the
// old generation (spec.md §3, "Lifecycle": the parser never touches
// the nursery).
package parse

import (
	"errors"
	"io"

	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
	"github.com/irori/unlambda/internal/heap"
)

// oldAllocator is the subset of *heap.Heap the parser needs, narrowed
// so parser tests can supply a fake without building a whole Heap.
type oldAllocator interface {
	NewOld(t cell.Tag, roots []*cell.Cell) (*cell.Cell, error)
}

// Parser turns a byte stream into a parsed expression tree.
type Parser struct {
	r      io.ByteReader
	heap   oldAllocator
	shared *cell.Shared

	// stack holds AP nodes awaiting their second child. Unlike the
	// reference implementation, which threads the pending-stack link
	// through the AP cell's own R field before it holds a real right
	// child, this uses a plain Go slice: Go already gives us a growable
	// stack, so there is no need to overload a cell field meant to
	// hold the real right-hand child with a second, transient meaning.
	stack []*cell.Cell
}

// New builds a Parser reading from r, allocating into h, and sharing
// the nine reusable nullary combinators from shared.
func New(r io.ByteReader, h oldAllocator, shared *cell.Shared) *Parser {
	return &Parser{r: r, heap: h, shared: shared}
}

// Parse reads exactly one program and returns its root expression.
// Any trailing bytes (including, when the source is stdin, the rest
// of the final source line) are left unread for the caller — this is
// what lets a program's I/O combinators see only the user's intended
// input stream (spec.md §5).
func (p *Parser) Parse() (*cell.Cell, error) {
	for {
		atom, isApply, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		if isApply {
			node, err := p.heap.NewOld(cell.AP, p.liveRoots())
			if err != nil {
				return nil, err
			}
			p.stack = append(p.stack, node)
			continue
		}

		for {
			if len(p.stack) == 0 {
				return atom, nil
			}
			top := p.stack[len(p.stack)-1]
			if top.L == nil {
				top.L = atom
				break
			}
			top.R = atom
			p.stack = p.stack[:len(p.stack)-1]
			atom = top
		}
	}
}

// liveRoots is the root set handed to a major collection that happens
// mid-parse: the nine shared combinators (which must never be swept —
// a later occurrence of their letter reuses the same pointer) plus
// whatever the in-progress stack already references.
func (p *Parser) liveRoots() []*cell.Cell {
	roots := make([]*cell.Cell, 0, len(p.stack)+9)
	s := p.shared
	roots = append(roots, s.I, s.K, s.S, s.V, s.D, s.C, s.E, s.AT, s.PIPE)
	roots = append(roots, p.stack...)
	return roots
}

// nextToken reads one token: either an application marker (isApply
// true, atom nil) or a fully-formed atom cell.
func (p *Parser) nextToken() (atom *cell.Cell, isApply bool, err error) {
	b, err := p.skipToSignificant()
	if err != nil {
		return nil, false, err
	}

	switch {
	case b == '`':
		return nil, true, nil
	case b == 'i' || b == 'I':
		return p.shared.I, false, nil
	case b == 'k' || b == 'K':
		return p.shared.K, false, nil
	case b == 's' || b == 'S':
		return p.shared.S, false, nil
	case b == 'v' || b == 'V':
		return p.shared.V, false, nil
	case b == 'd' || b == 'D':
		return p.shared.D, false, nil
	case b == 'c' || b == 'C':
		return p.shared.C, false, nil
	case b == 'e' || b == 'E':
		return p.shared.E, false, nil
	case b == '@':
		return p.shared.AT, false, nil
	case b == '|':
		return p.shared.PIPE, false, nil
	case b == 'r' || b == 'R':
		node, err := p.heap.NewOld(cell.DOT, p.liveRoots())
		if err != nil {
			return nil, false, err
		}
		node.Ch = '\n'
		return node, false, nil
	case b == '.':
		payload, err := p.readRawByte()
		if err != nil {
			return nil, false, err
		}
		node, err := p.heap.NewOld(cell.DOT, p.liveRoots())
		if err != nil {
			return nil, false, err
		}
		node.Ch = payload
		return node, false, nil
	case b == '?':
		payload, err := p.readRawByte()
		if err != nil {
			return nil, false, err
		}
		node, err := p.heap.NewOld(cell.QUES, p.liveRoots())
		if err != nil {
			return nil, false, err
		}
		node.Ch = payload
		return node, false, nil
	default:
		return nil, false, diag.Fatalf(diag.ParseError, "unrecognized source byte %q", b)
	}
}

// skipToSignificant consumes whitespace and '#' line comments and
// returns the next significant byte, or a ParseError if the input ends
// first — spec.md §4.2: "Reaching EOF mid-parse is a fatal input
// error," which this treats as including EOF before any token at all.
func (p *Parser) skipToSignificant() (byte, error) {
	for {
		b, err := p.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, diag.Fatalf(diag.ParseError, "unexpected end of input")
			}
			return 0, diag.Fatal(diag.IOError, err)
		}
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f':
			continue
		case b == '#':
			if err := p.skipComment(); err != nil {
				return 0, err
			}
			continue
		default:
			return b, nil
		}
	}
}

// skipComment consumes through end of line or EOF; EOF here is not an
// error, since a comment may legitimately be the last thing in a file.
func (p *Parser) skipComment() error {
	for {
		b, err := p.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return diag.Fatal(diag.IOError, err)
		}
		if b == '\n' {
			return nil
		}
	}
}

// readRawByte reads the single byte a '.' or '?' token carries,
// regardless of whether it is whitespace or '#' (spec.md §6).
func (p *Parser) readRawByte() (byte, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, diag.Fatalf(diag.ParseError, "unexpected end of input after '.'/'?'")
		}
		return 0, diag.Fatal(diag.IOError, err)
	}
	return b, nil
}

var _ oldAllocator = (*heap.Heap)(nil)
