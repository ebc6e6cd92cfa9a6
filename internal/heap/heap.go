// Package heap is the interpreter's generational memory manager: a
// copying two-space nursery for transient partial applications and
// continuation frames, and a mark-sweep old generation, held as a
// freelist over fixed-size chunks, for the long-lived expression tree
// the parser builds.
//
// The split mirrors the teacher's own allocator hierarchy
// (MCache → MCentral → MHeap in src/runtime/malloc.go), collapsed to
// two tiers because this interpreter has exactly one object size (a
// Cell) rather than the dozens of size classes a general-purpose
// allocator needs.
package heap

import (
	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
)

// Limits bounds the heap's shape and growth.
type Limits struct {
	YoungSize int // cells per nursery half
	ChunkSize int // cells per old-generation chunk
	MaxChunks int // 0 = unlimited
}

// DefaultLimits matches the reference interpreter's sizing: small
// enough that minor collections are frequent (exercising the copying
// collector heavily in tests) but large enough that a short program
// rarely needs one at all.
func DefaultLimits() Limits {
	return Limits{
		YoungSize: 4096,
		ChunkSize: 4096,
		MaxChunks: 0,
	}
}

// Stats is a point-in-time snapshot of allocator activity, read by
// cmd/unlambda for the run-end report it logs through internal/diag.
type Stats struct {
	MinorGCs      int
	MajorGCs      int
	Promoted      int64
	OldChunks     int
	OldTotalCells int
	OldFreeCells  int
}

// Heap owns the nursery halves and the old-generation chunk list.
type Heap struct {
	limits Limits
	log    *diag.Logger

	spaceA, spaceB []cell.Cell
	from, to       *[]cell.Cell
	fromFree       int // bump pointer into *from

	chunks   [][]cell.Cell
	freelist *cell.Cell // threaded through Cell.L, teacher's gclink trick

	totalOldCells int
	freeOldCells  int

	minorGCs int
	majorGCs int
	promoted int64
}

// New builds a Heap with one old-generation chunk already present, the
// way the parser expects to be able to allocate the program tree
// immediately.
func New(limits Limits, log *diag.Logger) (*Heap, error) {
	if log == nil {
		log = diag.NewLogger(0)
	}
	h := &Heap{
		limits: limits,
		log:    log,
		spaceA: make([]cell.Cell, limits.YoungSize),
		spaceB: make([]cell.Cell, limits.YoungSize),
	}
	h.from = &h.spaceA
	h.to = &h.spaceB
	if err := h.growOld(); err != nil {
		return nil, err
	}
	return h, nil
}

// Stats returns a snapshot of allocator counters.
func (h *Heap) Stats() Stats {
	return Stats{
		MinorGCs:      h.minorGCs,
		MajorGCs:      h.majorGCs,
		Promoted:      h.promoted,
		OldChunks:     len(h.chunks),
		OldTotalCells: h.totalOldCells,
		OldFreeCells:  h.freeOldCells,
	}
}
