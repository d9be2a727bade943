package bottom

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/ijmatrix"
	"github.com/notargets/MLNodeKernel/parallel"
	"github.com/notargets/MLNodeKernel/stencil"
	"github.com/notargets/MLNodeKernel/tensorlap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coef = stencil.Coefficients{S: [3]float64{1, 0.3, 1}, DxInv: [3]float64{1, 1, 1}}

// dirichletSystem numbers the valid nodes of an nx x ny box lexicographically,
// the halo is a zero Dirichlet boundary.
func dirichletSystem(nx, ny int) (amr.Box, *amr.NodeIDs, *ijmatrix.Triplets) {
	valid := amr.NewBox2D(nx, ny)
	nid := amr.NewArray4[int64](valid.GrowXY(1))
	nid.Fill(-1)
	owner := amr.NewArray4[int32](valid.GrowXY(1))
	owner.FillBox(valid, 1)
	var next int64
	valid.ForEach(func(i, j, k int) {
		nid.Set(i, j, k, next)
		next++
	})
	return valid, nid, tensorlap.AssembleIJMatrix(valid, nid, owner, coef)
}

func TestCGSolvesAssembledSystem(t *testing.T) {
	valid, nid, tr := dirichletSystem(7, 6)
	n := tr.NumRows()

	rng := rand.New(rand.NewSource(2))
	b := make([]float64, n)
	for i := range b {
		b[i] = 2*rng.Float64() - 1
	}

	cg := NewCG(Settings{Tol: 1e-12})
	require.NoError(t, cg.Setup(tr))
	x := make([]float64, n)
	require.NoError(t, cg.Solve(x, b))
	assert.LessOrEqual(t, cg.Stats.Iterations, n)

	// scatter back and apply the matrix-free operator
	sol := amr.NewArray4[float64](valid.GrowXY(1))
	valid.ForEach(func(i, j, k int) { sol.Set(i, j, k, x[nid.At(i, j, k)]) })
	ax := amr.NewArray4[float64](sol.Box)
	tensorlap.Adotx[float64](parallel.Serial{}, valid, ax, sol, coef)
	valid.ForEach(func(i, j, k int) {
		assert.InDelta(t, b[nid.At(i, j, k)], ax.At(i, j, k), 1e-9, "node (%d,%d)", i, j)
	})
}

func TestCGZeroRHS(t *testing.T) {
	_, _, tr := dirichletSystem(3, 3)
	cg := NewCG(Settings{})
	require.NoError(t, cg.Setup(tr))
	x := make([]float64, tr.NumRows())
	require.NoError(t, cg.Solve(x, make([]float64, tr.NumRows())))
	assert.Equal(t, 0, cg.Stats.Iterations)
}

func TestCGErrors(t *testing.T) {
	t.Run("solve before setup", func(t *testing.T) {
		assert.Error(t, NewCG(Settings{}).Solve(nil, nil))
	})
	t.Run("empty system", func(t *testing.T) {
		assert.Error(t, NewCG(Settings{}).Setup(ijmatrix.NewTriplets(0)))
	})
	t.Run("length mismatch", func(t *testing.T) {
		_, _, tr := dirichletSystem(3, 3)
		cg := NewCG(Settings{})
		require.NoError(t, cg.Setup(tr))
		assert.Error(t, cg.Solve(make([]float64, 3), make([]float64, 9)))
	})
	t.Run("not converged", func(t *testing.T) {
		_, _, tr := dirichletSystem(8, 8)
		cg := NewCG(Settings{Tol: 1e-14, MaxIter: 1})
		require.NoError(t, cg.Setup(tr))
		b := make([]float64, tr.NumRows())
		for i := range b {
			b[i] = float64(i%5) - 2
		}
		err := cg.Solve(make([]float64, len(b)), b)
		assert.True(t, errors.Is(err, ErrNotConverged))
	})
}
