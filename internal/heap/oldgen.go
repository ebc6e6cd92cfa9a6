package heap

import (
	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
)

// growOld appends one fixed-size chunk to the old generation and
// threads every cell in it onto the freelist. It is the only place
// that allocates chunk backing storage, so MaxChunks is enforced here.
func (h *Heap) growOld() error {
	if h.limits.MaxChunks > 0 && len(h.chunks) >= h.limits.MaxChunks {
		return diag.Fatalf(diag.OOMError,
			"old generation already holds %d chunks (limit %d)",
			len(h.chunks), h.limits.MaxChunks)
	}
	chunk := make([]cell.Cell, h.limits.ChunkSize)
	h.chunks = append(h.chunks, chunk)
	for i := range chunk {
		h.pushFree(&chunk[i])
	}
	h.totalOldCells += len(chunk)
	return nil
}

// pushFree prepends c to the old-generation freelist, threading the
// link through c.L the way the teacher's gclink overlays a free-list
// pointer on a cell that is, by definition, not currently holding
// anything else.
func (h *Heap) pushFree(c *cell.Cell) {
	*c = cell.Cell{T: cell.Copied, L: h.freelist}
	h.freelist = c
	h.freeOldCells++
}

// popFree removes and returns the head of the old-generation
// freelist. Caller must have already ensured the freelist is
// non-empty.
func (h *Heap) popFree() *cell.Cell {
	c := h.freelist
	h.freelist = c.L
	h.freeOldCells--
	*c = cell.Cell{Age: cell.OldAge}
	return c
}

// NewOld allocates a fresh old-generation cell of tag t, used by the
// parser for AP nodes and literal-carrying atoms (spec.md §3,
// "Lifecycle"). If the freelist is empty it runs a major collection
// first, then grows the heap if the collection didn't free enough,
// exactly as spec.md §4.1 describes for in-evaluator promotion.
//
// roots is the parser's (or evaluator's) live old-generation-reaching
// pointers; major GC never relocates cells, so plain *cell.Cell values
// suffice — nothing needs to be written back.
func (h *Heap) NewOld(t cell.Tag, roots []*cell.Cell) (*cell.Cell, error) {
	if h.freelist == nil {
		if err := h.collectMajor(roots); err != nil {
			return nil, err
		}
	}
	if h.freelist == nil {
		if err := h.growOld(); err != nil {
			return nil, err
		}
	}
	c := h.popFree()
	c.T = t
	return c, nil
}
