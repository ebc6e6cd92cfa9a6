package heap

import (
	"github.com/sirupsen/logrus"

	"github.com/irori/unlambda/internal/cell"
)

// lowWaterFraction is the post-sweep freelist threshold from
// spec.md §4.1: if fewer than 20% of old cells are free after a
// sweep, the heap grows until that holds.
const lowWaterFraction = 0.20

// collectMajor runs a mark-sweep collection over the old generation.
// Marking starts from roots and from every shared/live pointer
// reachable through them, including cells that currently live in the
// nursery — a major collection may run in the middle of a minor one
// (when promotion finds the old freelist empty), so the graph it walks
// can contain both generations and half-installed COPIED forwarding
// pointers. Only old-generation chunks are ever swept; nursery cells
// are left untouched beyond having their mark bit cleared afterward.
func (h *Heap) collectMajor(roots []*cell.Cell) error {
	h.majorGCs++

	stack := make([]*cell.Cell, 0, 64)
	for _, r := range roots {
		if r != nil {
			stack = append(stack, r)
		}
	}
	h.markFrom(stack)

	h.sweepOld()
	h.clearNurseryMarks()

	if float64(h.freeOldCells) < lowWaterFraction*float64(h.totalOldCells) {
		for float64(h.freeOldCells) < lowWaterFraction*float64(h.totalOldCells) {
			if err := h.growOld(); err != nil {
				return err
			}
		}
	}

	h.log.MajorGC(logrus.Fields{
		"major_gcs":      h.majorGCs,
		"old_chunks":     len(h.chunks),
		"old_total_cells": h.totalOldCells,
		"old_free_cells":  h.freeOldCells,
	})
	return nil
}

// markFrom walks the graph reachable from an explicit work stack
// rather than recursing, because expression trees can be millions of
// nodes deep (spec.md §4.1, §9 "Recursion depth in mark").
func (h *Heap) markFrom(stack []*cell.Cell) {
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = h.markOne(c, stack)
	}
}

// markOne marks c (following a COPIED forwarding pointer first, if
// present) and pushes its unmarked children onto stack.
func (h *Heap) markOne(c *cell.Cell, stack []*cell.Cell) []*cell.Cell {
	for c != nil && c.T == cell.Copied {
		c = c.L
	}
	if c == nil || c.Mark {
		return stack
	}
	c.Mark = true
	if hasLeft(c.T) && c.L != nil {
		stack = append(stack, c.L)
	}
	if hasRight(c.T) && c.R != nil {
		stack = append(stack, c.R)
	}
	return stack
}

// sweepOld walks every old chunk; unmarked cells return to the
// freelist, marked cells are cleared and kept.
func (h *Heap) sweepOld() {
	h.freelist = nil
	h.freeOldCells = 0
	for ci := range h.chunks {
		chunk := h.chunks[ci]
		for i := range chunk {
			c := &chunk[i]
			if c.Mark {
				c.Mark = false
				continue
			}
			h.pushFree(c)
		}
	}
}

// clearNurseryMarks clears mark bits the traversal may have set on
// nursery cells, "for symmetry" (spec.md §4.1) — a major collection
// never sweeps the nursery, but markOne doesn't distinguish generation
// while walking, so nursery cells can come out of a major GC marked.
func (h *Heap) clearNurseryMarks() {
	for i := range h.spaceA {
		h.spaceA[i].Mark = false
	}
	for i := range h.spaceB {
		h.spaceB[i].Mark = false
	}
}

// hasLeft and hasRight report whether a cell of tag t uses its L/R
// child links, per the tag universe in spec.md §3: nullary tags use
// neither, unary tags use only L, binary/AP/frame tags use both.
func hasLeft(t cell.Tag) bool {
	switch t {
	case cell.I, cell.K, cell.S, cell.V, cell.D, cell.C, cell.E,
		cell.AT, cell.QUES, cell.PIPE, cell.DOT:
		return false
	default:
		return true
	}
}

func hasRight(t cell.Tag) bool {
	switch t {
	case cell.K1, cell.S1, cell.B1, cell.T1, cell.D1, cell.CONT:
		return false
	case cell.I, cell.K, cell.S, cell.V, cell.D, cell.C, cell.E,
		cell.AT, cell.QUES, cell.PIPE, cell.DOT:
		return false
	default:
		return true
	}
}
