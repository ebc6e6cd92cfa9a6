package heap

import (
	"github.com/sirupsen/logrus"

	"github.com/irori/unlambda/internal/cell"
)

// RootFunc produces the evaluator's current live register addresses
// on demand. It is only called when a collection is actually needed,
// so the common case (nursery has room) costs nothing beyond a length
// comparison.
type RootFunc func() []**cell.Cell

// EnsureYoung is the evaluator's safepoint: a declaration that the
// caller is about to allocate up to n cells before its next safepoint
// and needs them to already be available. The evaluator makes three
// such declarations — before each left-spine descent iteration (n = 1),
// before each continuation-frame pop (n = 1) and on entry to apply
// (n = 2) — each n being the largest number of cells that step can
// allocate before looping back to a safepoint.
func (h *Heap) EnsureYoung(n int, roots RootFunc) error {
	if h.fromFree+n <= len(*h.from) {
		return nil
	}
	return h.collectMinor(roots())
}

// AllocYoung bump-allocates a transient cell in the active nursery
// half. Callers must have already satisfied EnsureYoung for at least
// one cell.
func (h *Heap) AllocYoung(t cell.Tag) *cell.Cell {
	c := &(*h.from)[h.fromFree]
	h.fromFree++
	*c = cell.Cell{T: t}
	return c
}

// collectMinor performs a Cheney-style copying collection: every live
// cell reachable from roots is copied out of the "from" nursery half
// into "to" (or promoted into the old generation, if it has reached
// AgeMax), from-space cells are overwritten with COPIED forwarding
// records as they move, and the roles of from/to swap once the copy
// finishes.
//
// Rather than index-scanning a fixed to-space array slot by slot (the
// layout a fixed-size C array forces), this walks an explicit queue of
// already-copied destination pointers — Go pointers make that the
// simpler encoding, and it treats a promoted (now old-generation) cell
// exactly like a to-space cell: both just go on the same queue to have
// their children rewritten.
func (h *Heap) collectMinor(roots []**cell.Cell) error {
	h.minorGCs++

	toFree := 0
	queue := make([]*cell.Cell, 0, h.fromFree/2+1)

	copyRoot := func(slot **cell.Cell) error {
		if slot == nil || *slot == nil {
			return nil
		}
		dest, err := h.copyCell(*slot, &toFree, &queue, roots)
		if err != nil {
			return err
		}
		*slot = dest
		return nil
	}
	for _, r := range roots {
		if err := copyRoot(r); err != nil {
			return err
		}
	}

	for i := 0; i < len(queue); i++ {
		c := queue[i]
		if hasLeft(c.T) && c.L != nil {
			nl, err := h.copyCell(c.L, &toFree, &queue, roots)
			if err != nil {
				return err
			}
			c.L = nl
		}
		if hasRight(c.T) && c.R != nil {
			nr, err := h.copyCell(c.R, &toFree, &queue, roots)
			if err != nil {
				return err
			}
			c.R = nr
		}
	}

	h.from, h.to = h.to, h.from
	h.fromFree = toFree

	h.log.MinorGC(logrus.Fields{
		"minor_gcs": h.minorGCs,
		"promoted":  h.promoted,
		"live":      toFree,
	})
	return nil
}

// copyCell implements spec.md §4.1's copy_cell: old cells are returned
// unchanged, already-forwarded cells return their forwarding target,
// and everything else is copied into to-space (or promoted into the
// old generation once its age reaches AgeMax) with a COPIED forwarding
// record left behind in from-space.
func (h *Heap) copyCell(c *cell.Cell, toFree *int, queue *[]*cell.Cell, roots []**cell.Cell) (*cell.Cell, error) {
	if c.IsOld() {
		return c, nil
	}
	if c.T == cell.Copied {
		return c.L, nil
	}

	var dest *cell.Cell
	if c.Age == cell.AgeMax {
		promoted, err := h.allocForPromotion(roots)
		if err != nil {
			return nil, err
		}
		dest = promoted
		dest.T, dest.Ch, dest.Age = c.T, c.Ch, cell.OldAge
		h.promoted++
	} else {
		dest = &(*h.to)[*toFree]
		*toFree++
		dest.T, dest.Ch, dest.Age = c.T, c.Ch, c.Age+1
	}
	dest.L, dest.R = c.L, c.R
	*queue = append(*queue, dest)

	// Install the forwarding pointer last: c's own T/Ch/L/R were already
	// read above, so retagging it now cannot lose information.
	c.T = cell.Copied
	c.L = dest
	return dest, nil
}

// allocForPromotion pops one cell from the old-generation freelist,
// running a major collection first if it is empty (spec.md §4.1: "If
// the old freelist is empty when a promotion is needed, run a major
// GC first"). The major collection's roots are simply the evaluator's
// current register values — markOne follows COPIED forwarding pointers,
// so it sees a consistent graph regardless of how much of the minor
// copy has completed.
func (h *Heap) allocForPromotion(roots []**cell.Cell) (*cell.Cell, error) {
	if h.freelist == nil {
		live := make([]*cell.Cell, 0, len(roots))
		for _, r := range roots {
			if r != nil && *r != nil {
				live = append(live, *r)
			}
		}
		if err := h.collectMajor(live); err != nil {
			return nil, err
		}
	}
	if h.freelist == nil {
		if err := h.growOld(); err != nil {
			return nil, err
		}
	}
	return h.popFree(), nil
}
