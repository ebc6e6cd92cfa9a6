package eval

import (
	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/heap"
)

// youngAllocator is the allocator surface the rewrite constructors and
// the main loop need. Narrowing it to an interface (rather than taking
// *heap.Heap directly) keeps this package testable with a fake nursery
// that never needs to collect.
type youngAllocator interface {
	EnsureYoung(n int, roots heap.RootFunc) error
	AllocYoung(t cell.Tag) *cell.Cell
}

var _ youngAllocator = (*heap.Heap)(nil)

// The constructors below build the compact partial-application
// combinators spec.md §4.1/§4.3 introduces to keep the hot path from
// growing an S2 (and the dispatch chain behind it) when a cheaper
// equivalent exists. Each allocates exactly one cell; the caller
// (apply, in eval.go) is responsible for having already reserved
// headroom for it at the current safepoint.

func mkK1(h youngAllocator, x *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.K1)
	c.L = x
	return c
}

func mkS1(h youngAllocator, f *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.S1)
	c.L = f
	return c
}

func mkB1(h youngAllocator, f *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.B1)
	c.L = f
	return c
}

func mkT1(h youngAllocator, x *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.T1)
	c.L = x
	return c
}

func mkD1(h youngAllocator, expr *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.D1)
	c.L = expr
	return c
}

func mkS2(h youngAllocator, f, g *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.S2)
	c.L, c.R = f, g
	return c
}

func mkB2(h youngAllocator, f, g *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.B2)
	c.L, c.R = f, g
	return c
}

func mkC2(h youngAllocator, f, g *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.C2)
	c.L, c.R = f, g
	return c
}

func mkV2(h youngAllocator, f, g *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.V2)
	c.L, c.R = f, g
	return c
}

// mkAP builds an ordinary (unevaluated) application node, used by the
// B2/d short-circuit to freeze `g x` without forcing it (spec.md
// §4.3's B2 rule) and by S2 to build the `g x` pair its EvalRightS
// frame carries.
func mkAP(h youngAllocator, l, r *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.AP)
	c.L, c.R = l, r
	return c
}

// mkCont reifies spine as a first-class continuation value.
func mkCont(h youngAllocator, spine *cell.Cell) *cell.Cell {
	c := h.AllocYoung(cell.CONT)
	c.L = spine
	return c
}

// mkDot builds a fresh print-byte cell for '|' (spec.md §4.3's PIPE
// rule), distinct from any DOT cell the parser produced.
func mkDot(h youngAllocator, ch byte) *cell.Cell {
	c := h.AllocYoung(cell.DOT)
	c.Ch = ch
	return c
}
