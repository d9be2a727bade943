package tensorlap

import (
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/parallel"
	"github.com/notargets/MLNodeKernel/stencil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	isotropic   = stencil.Coefficients{S: [3]float64{1, 0, 1}, DxInv: [3]float64{1, 1, 1}}
	anisotropic = stencil.Coefficients{S: [3]float64{2, 0.5, 1}, DxInv: [3]float64{2, 1, 1}}
)

// level allocates fields over an nx x ny valid box with one halo layer
type level struct {
	valid    amr.Box
	sol, rhs *amr.Array4[float64]
	msk      *amr.Mask
}

func newLevel(nx, ny int) *level {
	valid := amr.NewBox2D(nx, ny)
	grown := valid.GrowXY(1)
	msk := amr.NewArray4[int32](grown)
	msk.FillBoundary(valid, 1)
	return &level{
		valid: valid,
		sol:   amr.NewArray4[float64](grown),
		rhs:   amr.NewArray4[float64](grown),
		msk:   msk,
	}
}

func randomize(a *amr.Array4[float64], rng *rand.Rand) {
	for n := range a.Data {
		a.Data[n] = 2*rng.Float64() - 1
	}
}

func residualNorms(l *level, c stencil.Coefficients) (inf, two float64) {
	res := amr.NewArray4[float64](l.sol.Box)
	Residual[float64](parallel.Serial{}, l.valid, res, l.rhs, l.sol, l.msk, c)
	l.valid.ForEach(func(i, j, k int) {
		v := res.At(i, j, k)
		inf = math.Max(inf, math.Abs(v))
		two += v * v
	})
	return inf, math.Sqrt(two)
}

func TestAdotxUniformField(t *testing.T) {
	for _, c := range []stencil.Coefficients{isotropic, anisotropic} {
		l := newLevel(4, 4)
		l.sol.Fill(5.0)
		y := amr.NewArray4[float64](l.sol.Box)
		y.Fill(-1)
		Adotx[float64](parallel.Serial{}, l.valid, y, l.sol, c)
		l.valid.ForEach(func(i, j, k int) {
			assert.InDelta(t, 0.0, y.At(i, j, k), 1e-12, "node (%d,%d)", i, j)
		})
		// halo untouched
		assert.Equal(t, -1.0, y.At(-1, -1, 0))
	}

	t.Run("float32", func(t *testing.T) {
		valid := amr.NewBox2D(4, 4)
		x := amr.NewArray4[float32](valid.GrowXY(1))
		y := amr.NewArray4[float32](valid.GrowXY(1))
		x.Fill(5.0)
		Adotx[float32](parallel.Serial{}, valid, y, x, anisotropic)
		valid.ForEach(func(i, j, k int) {
			assert.InDelta(t, 0.0, float64(y.At(i, j, k)), 1e-4)
		})
	})
}

func TestAdotxMatchesDenseStencil(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := newLevel(6, 5)
	randomize(l.sol, rng)
	y := amr.NewArray4[float64](l.sol.Box)
	Adotx[float64](parallel.Serial{}, l.valid, y, l.sol, anisotropic)

	m := anisotropic.Weights().Matrix()
	l.valid.ForEach(func(i, j, k int) {
		var want float64
		for di := -1; di <= 1; di++ {
			for dj := -1; dj <= 1; dj++ {
				want += m.At(di+1, dj+1) * l.sol.At(i+di, j+dj, k)
			}
		}
		assert.InDelta(t, want, y.At(i, j, k), 1e-12, "node (%d,%d)", i, j)
	})
}

func TestAdotxPlanesIndependent(t *testing.T) {
	valid := amr.NewBox(amr.IntVect{0, 0, 0}, amr.IntVect{3, 3, 2})
	grown := valid.GrowXY(1)
	x := amr.NewArray4[float64](grown)
	y := amr.NewArray4[float64](grown)
	// each plane uniform, different per plane
	grown.ForEach(func(i, j, k int) { x.Set(i, j, k, float64(10*k+1)) })
	Adotx[float64](parallel.Serial{}, valid, y, x, anisotropic)
	valid.ForEach(func(i, j, k int) {
		assert.InDelta(t, 0.0, y.At(i, j, k), 1e-11)
	})
}

func TestGaussSeidelMaskedNodesZeroed(t *testing.T) {
	l := newLevel(5, 5)
	l.sol.Fill(7)
	l.msk.Set(2, 2, 0, 1)
	l.msk.Set(0, 4, 0, 1)
	GaussSeidel[float64](parallel.Serial{}, l.valid, l.sol, l.rhs, l.msk, isotropic)
	assert.Equal(t, 0.0, l.sol.At(2, 2, 0))
	assert.Equal(t, 0.0, l.sol.At(0, 4, 0))
	// halo is outside the sweep
	assert.Equal(t, 7.0, l.sol.At(-1, 2, 0))
}

func TestGaussSeidelSingleNode(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	valid := amr.NewBox2D(1, 1)
	sol := amr.NewArray4[float64](valid.GrowXY(1))
	rhs := amr.NewArray4[float64](valid.GrowXY(1))
	msk := amr.NewArray4[int32](valid.GrowXY(1))
	randomize(sol, rng)
	rhs.Set(0, 0, 0, 0.25)

	w := anisotropic.Weights()
	var ax float64
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			ax += w.At(di, dj) * sol.At(di, dj, 0)
		}
	}
	want := sol.At(0, 0, 0) + (0.25-ax)/w.Center

	GaussSeidel[float64](parallel.Serial{}, valid, sol, rhs, msk, anisotropic)
	assert.InDelta(t, want, sol.At(0, 0, 0), 1e-12)

	// the updated node satisfies its own row exactly
	y := amr.NewArray4[float64](sol.Box)
	Adotx[float64](parallel.Serial{}, valid, y, sol, anisotropic)
	assert.InDelta(t, 0.25, y.At(0, 0, 0), 1e-12)
}

func TestGaussSeidelReducesResidual(t *testing.T) {
	for _, c := range []stencil.Coefficients{
		isotropic,
		{S: [3]float64{1, 0.3, 1}, DxInv: [3]float64{1, 1, 1}},
		anisotropic,
	} {
		rng := rand.New(rand.NewSource(11))
		l := newLevel(8, 8)
		randomize(l.rhs, rng)

		inf0, two0 := residualNorms(l, c)
		prevInf, prevTwo := inf0, two0
		for sweep := 0; sweep < 30; sweep++ {
			GaussSeidel[float64](parallel.Serial{}, l.valid, l.sol, l.rhs, l.msk, c)
			inf, two := residualNorms(l, c)
			assert.LessOrEqual(t, inf, prevInf*(1+1e-12), "sweep %d", sweep)
			assert.LessOrEqual(t, two, prevTwo*(1+1e-12), "sweep %d", sweep)
			prevInf, prevTwo = inf, two
		}
		assert.Less(t, prevInf, 0.01*inf0)
	}
}

func TestNormalize(t *testing.T) {
	l := newLevel(3, 3)
	l.sol.Fill(1)
	l.msk.Set(1, 1, 0, 1)
	d := anisotropic.Diagonal()

	Normalize[float64](parallel.Serial{}, l.valid, l.sol, l.msk, anisotropic)
	assert.InDelta(t, 1/d, l.sol.At(0, 0, 0), 1e-15)
	assert.Equal(t, 1.0, l.sol.At(1, 1, 0))

	// applying twice divides twice
	Normalize[float64](parallel.Serial{}, l.valid, l.sol, l.msk, anisotropic)
	assert.InDelta(t, 1/(d*d), l.sol.At(2, 2, 0), 1e-15)
	assert.Equal(t, 1.0, l.sol.At(1, 1, 0))
}

func TestResidual(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	l := newLevel(4, 6)
	randomize(l.sol, rng)
	randomize(l.rhs, rng)
	l.msk.Set(3, 3, 0, 1)

	ax := amr.NewArray4[float64](l.sol.Box)
	Adotx[float64](parallel.Serial{}, l.valid, ax, l.sol, isotropic)
	res := amr.NewArray4[float64](l.sol.Box)
	Residual[float64](parallel.Serial{}, l.valid, res, l.rhs, l.sol, l.msk, isotropic)

	l.valid.ForEach(func(i, j, k int) {
		if l.msk.At(i, j, k) != 0 {
			assert.Equal(t, 0.0, res.At(i, j, k))
			return
		}
		assert.InDelta(t, l.rhs.At(i, j, k)-ax.At(i, j, k), res.At(i, j, k), 1e-14)
	})
}

func TestPoolMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	l := newLevel(17, 13)
	randomize(l.sol, rng)
	randomize(l.rhs, rng)
	l.msk.Set(4, 4, 0, 1)

	ySerial := amr.NewArray4[float64](l.sol.Box)
	yPool := amr.NewArray4[float64](l.sol.Box)
	pool := parallel.NewPool(4)
	Adotx[float64](parallel.Serial{}, l.valid, ySerial, l.sol, anisotropic)
	Adotx[float64](pool, l.valid, yPool, l.sol, anisotropic)
	require.Equal(t, ySerial.Data, yPool.Data)

	s1, s2 := l.sol.Clone(), l.sol.Clone()
	for sweep := 0; sweep < 3; sweep++ {
		GaussSeidel[float64](parallel.Serial{}, l.valid, s1, l.rhs, l.msk, anisotropic)
		GaussSeidel[float64](pool, l.valid, s2, l.rhs, l.msk, anisotropic)
	}
	assert.Equal(t, s1.Data, s2.Data)
}
