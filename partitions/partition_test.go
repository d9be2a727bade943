package partitions

import (
	"testing"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxesOfSize(sizes ...int) []amr.Box {
	boxes := make([]amr.Box, len(sizes))
	x := 0
	for b, n := range sizes {
		boxes[b] = amr.NewBox(amr.IntVect{x, 0, 0}, amr.IntVect{x + n - 1, 0, 0})
		x += n
	}
	return boxes
}

func TestBuildPartitions(t *testing.T) {
	testCases := []struct {
		name     string
		sizes    []int
		np       int
		strategy PartitionStrategy
		bToP     []int
		kpartMax int
	}{
		{"block even", []int{4, 4, 4, 4}, 2, BlockPartition, []int{0, 0, 1, 1}, 2},
		{"block uneven", []int{4, 4, 4, 4, 4}, 2, BlockPartition, []int{0, 0, 0, 1, 1}, 3},
		{"block more ranks than boxes", []int{4, 4}, 3, BlockPartition, []int{0, 1}, 1},
		{"round robin", []int{4, 4, 4, 4, 4}, 2, RoundRobin, []int{0, 1, 0, 1, 0}, 3},
		{"balanced", []int{1, 8, 2, 6, 3}, 2, NodeBalanced, []int{1, 0, 0, 1, 1}, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pb := PartitionBuilder{
				Boxes:         boxesOfSize(tc.sizes...),
				NumPartitions: tc.np,
				Strategy:      tc.strategy,
			}
			layout, err := pb.BuildPartitions()
			require.NoError(t, err)
			assert.Equal(t, tc.bToP, layout.BToP)
			assert.Equal(t, tc.kpartMax, layout.KpartMax)
			assert.Equal(t, tc.np, len(layout.Partitions))

			total := 0
			for _, n := range tc.sizes {
				total += n
			}
			assert.Equal(t, total, layout.TotalNodes)
		})
	}
}

func TestBalancedNodeCounts(t *testing.T) {
	pb := PartitionBuilder{
		Boxes:         boxesOfSize(1, 8, 2, 6, 3),
		NumPartitions: 2,
		Strategy:      NodeBalanced,
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	// 8+2 against 6+3+1
	assert.Equal(t, 10, layout.Partitions[0].NumNodes)
	assert.Equal(t, 10, layout.Partitions[1].NumNodes)
	assert.Equal(t, []int{1, 2}, layout.Partitions[0].Boxes)
	assert.Equal(t, []int{0, 3, 4}, layout.Partitions[1].Boxes)
}

func TestBuildPartitionsErrors(t *testing.T) {
	_, err := (&PartitionBuilder{Boxes: boxesOfSize(2), NumPartitions: 0}).BuildPartitions()
	assert.Error(t, err)

	bad := []amr.Box{amr.NewBox(amr.IntVect{2, 0, 0}, amr.IntVect{1, 0, 0})}
	_, err = (&PartitionBuilder{Boxes: bad, NumPartitions: 1}).BuildPartitions()
	assert.Error(t, err)
}

func TestValidateLayoutDetectsCorruption(t *testing.T) {
	layout, err := (&PartitionBuilder{
		Boxes:         boxesOfSize(2, 2, 2),
		NumPartitions: 2,
	}).BuildPartitions()
	require.NoError(t, err)

	layout.BToP[0] = 1
	assert.Error(t, layout.ValidateLayout())
	assert.Equal(t, -1, layout.GetPartition(7))
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, NodeBalanced} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("metis")
	assert.Error(t, err)
}
