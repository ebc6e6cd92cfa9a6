package cell_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irori/unlambda/internal/cell"
)

func TestIsOld(t *testing.T) {
	young := &cell.Cell{T: cell.I, Age: 0}
	require.False(t, young.IsOld())

	atThreshold := &cell.Cell{T: cell.I, Age: cell.AgeMax}
	require.False(t, atThreshold.IsOld(), "age == AgeMax is still a nursery cell until it is copied once more")

	old := &cell.Cell{T: cell.I, Age: cell.OldAge}
	require.True(t, old.IsOld())
}

func TestNewSharedAllocatesEachOnce(t *testing.T) {
	var allocated []cell.Tag
	alloc := func(t cell.Tag) *cell.Cell {
		allocated = append(allocated, t)
		return &cell.Cell{T: t, Age: cell.OldAge}
	}

	shared := cell.NewShared(alloc)

	require.Len(t, allocated, 9)
	require.Equal(t, cell.I, shared.I.T)
	require.Equal(t, cell.PIPE, shared.PIPE.T)
	require.True(t, shared.I.IsOld())
}

func TestTagStringCoversDispatchTags(t *testing.T) {
	for _, tc := range []struct {
		tag  cell.Tag
		want string
	}{
		{cell.I, "i"},
		{cell.AP, "ap"},
		{cell.EvalRight, "eval_right"},
		{cell.Copied, "copied"},
	} {
		require.Equal(t, tc.want, tc.tag.String())
	}
}
