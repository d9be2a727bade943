// Package bottom is a reference consumer of assembled triplets: a
// Jacobi-preconditioned conjugate gradient solve of the coarsest-level system.
package bottom

import (
	"errors"
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"github.com/notargets/MLNodeKernel/ijmatrix"
	"gonum.org/v1/gonum/floats"
)

// ErrNotConverged is returned when MaxIter is reached above tolerance
var ErrNotConverged = errors.New("bottom: CG did not converge")

// Settings controls the CG iteration
type Settings struct {
	Tol     float64 // relative residual reduction, default 1e-10
	MaxIter int     // default 10 * n
}

// Stats reports the last solve
type Stats struct {
	Iterations   int
	ResidualNorm float64
}

// CG solves A x = b for the negative definite node operator by iterating on
// -A x = -b. Setup takes ownership of the triplets.
type CG struct {
	Settings
	Stats Stats

	n    int
	a    *sparse.CSR
	dinv []float64 // inverse diagonal of -A
}

var _ ijmatrix.Solver = (*CG)(nil)

// NewCG creates a solver with the given settings
func NewCG(s Settings) *CG {
	return &CG{Settings: s}
}

// Setup builds the CSR operator. Row ids must number 0..n-1 for n rows.
func (cg *CG) Setup(t *ijmatrix.Triplets) error {
	n := t.NumRows()
	if n == 0 {
		return fmt.Errorf("bottom: empty system")
	}
	a, err := t.ToCSR(n)
	if err != nil {
		return fmt.Errorf("bottom: %w", err)
	}
	dinv := make([]float64, n)
	pos := 0
	for k, row := range t.Rows {
		d := -t.Values[pos]
		if d <= 0 {
			return fmt.Errorf("bottom: row %d has non-positive diagonal %g of -A", row, d)
		}
		dinv[row] = 1 / d
		pos += int(t.NCols[k])
	}
	cg.n, cg.a, cg.dinv = n, a, dinv
	return nil
}

// negMulVec sets dst = -A x
func (cg *CG) negMulVec(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	cg.a.DoNonZero(func(i, j int, v float64) {
		dst[i] -= v * x[j]
	})
}

// Solve improves x in place so that A x = b
func (cg *CG) Solve(x, b []float64) error {
	if cg.a == nil {
		return fmt.Errorf("bottom: Solve called before Setup")
	}
	if len(x) != cg.n || len(b) != cg.n {
		return fmt.Errorf("bottom: vectors of length %d, %d for %d unknowns", len(x), len(b), cg.n)
	}
	tol := cg.Tol
	if tol <= 0 {
		tol = 1e-10
	}
	maxIter := cg.MaxIter
	if maxIter <= 0 {
		maxIter = 10 * cg.n
	}

	var (
		r  = make([]float64, cg.n)
		z  = make([]float64, cg.n)
		p  = make([]float64, cg.n)
		Ap = make([]float64, cg.n)
	)
	// r = -b - (-A) x
	cg.negMulVec(Ap, x)
	for i := range r {
		r[i] = -b[i] - Ap[i]
	}
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		bnorm = 1
	}

	cg.Stats = Stats{ResidualNorm: floats.Norm(r, 2)}
	if cg.Stats.ResidualNorm <= tol*bnorm {
		return nil
	}

	var rho, rhoPrev float64
	for it := 1; it <= maxIter; it++ {
		floats.MulTo(z, cg.dinv, r) // z = M^-1 r
		rho = floats.Dot(r, z)
		if it == 1 {
			copy(p, z)
		} else {
			beta := rho / rhoPrev
			floats.AddScaledTo(p, z, beta, p) // p = z + beta p
		}
		cg.negMulVec(Ap, p)
		alpha := rho / floats.Dot(p, Ap)
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, Ap)

		cg.Stats = Stats{Iterations: it, ResidualNorm: floats.Norm(r, 2)}
		if cg.Stats.ResidualNorm <= tol*bnorm {
			return nil
		}
		if math.IsNaN(cg.Stats.ResidualNorm) {
			break
		}
		rhoPrev = rho
	}
	return fmt.Errorf("%w: residual %g after %d iterations",
		ErrNotConverged, cg.Stats.ResidualNorm, cg.Stats.Iterations)
}
