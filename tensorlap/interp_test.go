package tensorlap

import (
	"testing"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/parallel"
	"github.com/stretchr/testify/assert"
)

func newInterpFields(fine amr.Box) (f, c *amr.Array4[float64], msk *amr.Mask) {
	f = amr.NewArray4[float64](fine.GrowXY(1))
	c = amr.NewArray4[float64](fine.Coarsen(2).GrowXY(1))
	msk = amr.NewArray4[int32](fine.GrowXY(1))
	return
}

func TestInterpAddConstant(t *testing.T) {
	fine := amr.NewBox2D(4, 4)
	f, c, msk := newInterpFields(fine)
	c.Fill(3.0)
	InterpAdd[float64](parallel.Serial{}, fine, f, c, msk)
	fine.ForEach(func(i, j, k int) {
		assert.InDelta(t, 3.0, f.At(i, j, k), 1e-15, "node (%d,%d)", i, j)
	})
}

func TestInterpAddSkipsMasked(t *testing.T) {
	fine := amr.NewBox2D(4, 4)
	f, c, msk := newInterpFields(fine)
	c.Fill(3.0)
	f.Fill(1.0)
	msk.Set(1, 1, 0, 1)
	msk.Set(2, 3, 0, 1)
	InterpAdd[float64](parallel.NewPool(2), fine, f, c, msk)

	assert.Equal(t, 1.0, f.At(1, 1, 0))
	assert.Equal(t, 1.0, f.At(2, 3, 0))
	assert.InDelta(t, 4.0, f.At(0, 0, 0), 1e-15)
	assert.InDelta(t, 4.0, f.At(3, 2, 0), 1e-15)
}

func TestInterpAddBilinearExact(t *testing.T) {
	bilinear := func(x, y int) float64 {
		fx, fy := float64(x), float64(y)
		return 1 + 2*fx - 3*fy + 0.5*fx*fy
	}
	testCases := []struct {
		name string
		fine amr.Box
	}{
		{"origin", amr.NewBox2D(7, 5)},
		{"negative indices", amr.NewBox(amr.IntVect{-3, -5, 0}, amr.IntVect{2, 1, 0})},
		{"two planes", amr.NewBox(amr.IntVect{1, 1, 0}, amr.IntVect{6, 4, 1})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, c, msk := newInterpFields(tc.fine)
			c.Box.ForEach(func(ic, jc, k int) {
				c.Set(ic, jc, k, bilinear(2*ic, 2*jc))
			})
			InterpAdd[float64](parallel.Serial{}, tc.fine, f, c, msk)
			tc.fine.ForEach(func(i, j, k int) {
				assert.InDelta(t, bilinear(i, j), f.At(i, j, k), 1e-12, "node (%d,%d,%d)", i, j, k)
			})
		})
	}
}

func TestInterpAddAccumulates(t *testing.T) {
	fine := amr.NewBox2D(3, 3)
	f, c, msk := newInterpFields(fine)
	c.Fill(0.5)
	InterpAdd[float64](parallel.Serial{}, fine, f, c, msk)
	InterpAdd[float64](parallel.Serial{}, fine, f, c, msk)
	fine.ForEach(func(i, j, k int) {
		assert.InDelta(t, 1.0, f.At(i, j, k), 1e-15)
	})
}

func TestCoarseCover(t *testing.T) {
	testCases := []struct {
		name     string
		fine     amr.Box
		expected amr.Box
	}{
		{"even upper", amr.NewBox2D(5, 5), amr.NewBox2D(3, 3)},
		{"odd upper i", amr.NewBox(amr.IntVect{0, 0, 0}, amr.IntVect{5, 4, 0}),
			amr.NewBox(amr.IntVect{0, 0, 0}, amr.IntVect{3, 2, 0})},
		{"odd upper both", amr.NewBox2D(6, 6), amr.NewBox2D(4, 4)},
		{"negative odd", amr.NewBox(amr.IntVect{-5, -3, 1}, amr.IntVect{-1, 2, 2}),
			amr.NewBox(amr.IntVect{-3, -2, 1}, amr.IntVect{0, 1, 2})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CoarseCover(tc.fine))
		})
	}

	// every coarse node InterpAdd reads lies in the cover
	fine := amr.NewBox(amr.IntVect{-3, -1, 0}, amr.IntVect{4, 5, 0})
	cover := CoarseCover(fine)
	fine.ForEach(func(i, j, k int) {
		ic, jc := amr.Coarsen(i, 2), amr.Coarsen(j, 2)
		for _, iv := range []amr.IntVect{{ic, jc, k}, {ic + i&1, jc + j&1, k}} {
			assert.True(t, cover.Contains(iv), "node (%d,%d) reads %v", i, j, iv)
		}
	})
}
