package tensorlap

import (
	"math/rand"
	"testing"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/stencil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIDs(valid amr.Box) (*amr.NodeIDs, *amr.Owner) {
	nid := amr.NewArray4[int64](valid.GrowXY(1))
	nid.Fill(-1)
	owner := amr.NewArray4[int32](valid.GrowXY(1))
	owner.FillBox(valid, 1)
	return nid, owner
}

func TestAssembleThreeNodes(t *testing.T) {
	// 2x2 box, node (1,1) covered
	valid := amr.NewBox2D(2, 2)
	nid, owner := newIDs(valid)
	nid.Set(0, 0, 0, 0)
	nid.Set(1, 0, 0, 1)
	nid.Set(0, 1, 0, 2)

	tr := AssembleIJMatrix(valid, nid, owner, anisotropic)
	require.NoError(t, tr.Validate())

	assert.Equal(t, []int64{0, 1, 2}, tr.Rows)
	assert.Equal(t, []int64{3, 3, 3}, tr.NCols)
	var links int64
	for _, nc := range tr.NCols {
		links += nc
	}
	assert.Equal(t, int64(6+3), links)
	assert.NotContains(t, tr.Cols, int64(-1))

	w := anisotropic.Weights()
	assert.Equal(t, []int64{
		0, 2, 1, // (0,1) precedes (1,0) in neighbor order
		1, 0, 2,
		2, 0, 1,
	}, tr.Cols)
	assert.Equal(t, []float64{
		w.Center, w.Y, w.X,
		w.Center, w.X, w.Dpm,
		w.Center, w.Y, w.Dpm,
	}, tr.Values)
}

func TestAssembleSkipsUnowned(t *testing.T) {
	valid := amr.NewBox2D(3, 1)
	nid, owner := newIDs(valid)
	valid.ForEach(func(i, j, k int) { nid.Set(i, j, k, int64(i)) })
	owner.Set(2, 0, 0, 0)

	tr := AssembleIJMatrix(valid, nid, owner, isotropic)
	require.NoError(t, tr.Validate())
	assert.Equal(t, []int64{0, 1}, tr.Rows)
	// node 2 still appears as a column of row 1
	s, e := tr.RowRange(1)
	assert.Contains(t, tr.Cols[s:e], int64(2))
}

func TestAssembleRowIntegrity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		valid := amr.NewBox2D(2+rng.Intn(6), 2+rng.Intn(6))
		nid, owner := newIDs(valid)
		next := int64(0)
		nid.Box.ForEach(func(i, j, k int) {
			if rng.Float64() < 0.75 {
				nid.Set(i, j, k, next)
				next++
			}
		})
		valid.ForEach(func(i, j, k int) {
			if rng.Float64() < 0.1 {
				owner.Set(i, j, k, 0)
			}
		})
		c := stencil.Coefficients{
			S:     [3]float64{1 + rng.Float64(), rng.Float64() - 0.5, 1 + rng.Float64()},
			DxInv: [3]float64{1, 1 + rng.Float64(), 1},
		}

		tr := AssembleIJMatrix(valid, nid, owner, c)
		require.NoError(t, tr.Validate(), "trial %d", trial)
		assert.LessOrEqual(t, tr.NNZ(), 9*tr.NumRows())
		assert.NotContains(t, tr.Cols, int64(-1))

		k := 0
		valid.ForEach(func(i, j, kk int) {
			if nid.At(i, j, kk) < 0 || owner.At(i, j, kk) == 0 {
				return
			}
			want := int64(1)
			for _, o := range stencil.Neighbors {
				if nid.At(i+o.Di, j+o.Dj, kk) >= 0 {
					want++
				}
			}
			assert.Equal(t, nid.At(i, j, kk), tr.Rows[k])
			assert.Equal(t, want, tr.NCols[k], "trial %d node (%d,%d)", trial, i, j)
			k++
		})
		assert.Equal(t, k, tr.NumRows())
	}
}
