package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
	"github.com/irori/unlambda/internal/heap"
)

func smallLimits() heap.Limits {
	return heap.Limits{YoungSize: 8, ChunkSize: 8, MaxChunks: 0}
}

func TestNewOldAllocatesFromFreelist(t *testing.T) {
	h, err := heap.New(smallLimits(), diag.NewLogger(0))
	require.NoError(t, err)

	c, err := h.NewOld(cell.I, nil)
	require.NoError(t, err)
	require.Equal(t, cell.I, c.T)
	require.True(t, c.IsOld())

	stats := h.Stats()
	require.Equal(t, 1, stats.OldChunks)
	require.Equal(t, 8, stats.OldTotalCells)
	require.Equal(t, 7, stats.OldFreeCells)
}

func TestNewOldCollectsWhenFreelistExhausted(t *testing.T) {
	h, err := heap.New(smallLimits(), diag.NewLogger(0))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := h.NewOld(cell.I, nil)
		require.NoError(t, err)
	}
	// Freelist now empty: NewOld must run a major GC (no live roots,
	// everything in the first chunk is garbage) which frees the whole
	// chunk back, rather than needing to grow.
	c, err := h.NewOld(cell.K, nil)
	require.NoError(t, err)
	require.Equal(t, cell.K, c.T)

	stats := h.Stats()
	require.Equal(t, 1, stats.MajorGCs)
	require.Equal(t, 1, stats.OldChunks, "major GC should have reclaimed the dead chunk instead of growing")
}

func TestNewOldHonorsMaxChunksAsOOM(t *testing.T) {
	limits := heap.Limits{YoungSize: 8, ChunkSize: 4, MaxChunks: 1}
	h, err := heap.New(limits, diag.NewLogger(0))
	require.NoError(t, err)

	roots := make([]*cell.Cell, 0, 4)
	for i := 0; i < 4; i++ {
		c, err := h.NewOld(cell.I, nil)
		require.NoError(t, err)
		roots = append(roots, c) // keep them alive so GC can't reclaim
	}

	_, err = h.NewOld(cell.K, roots)
	require.Error(t, err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, diag.OOMError, fatal.Category())
}

func TestMinorGCCopiesReachableCellsAndUpdatesRoots(t *testing.T) {
	limits := smallLimits() // YoungSize: 8
	h, err := heap.New(limits, diag.NewLogger(0))
	require.NoError(t, err)

	rootsFn := func() []**cell.Cell { return nil }
	require.NoError(t, h.EnsureYoung(1, rootsFn))
	val := h.AllocYoung(cell.K1)
	val.Ch = 42

	roots := []**cell.Cell{&val}
	rootsFn = func() []**cell.Cell { return roots }

	// Drive allocations past the nursery half's capacity so EnsureYoung
	// is forced to run a minor collection; val must survive it with its
	// payload intact and its address rewritten in place.
	for i := 0; i < limits.YoungSize+2; i++ {
		require.NoError(t, h.EnsureYoung(1, rootsFn))
		h.AllocYoung(cell.I)
	}

	require.GreaterOrEqual(t, h.Stats().MinorGCs, 1)
	require.Equal(t, cell.K1, val.T)
	require.Equal(t, byte(42), val.Ch)
}
