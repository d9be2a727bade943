// Package tensorlap implements the node-centered anisotropic tensor-Laplacian
// kernels of a geometric multigrid level: operator apply, Gauss-Seidel
// smoothing, normalization, additive prolongation and sparse assembly.
//
// The stencil is the 2D nine-point operator; fields are 2D-embedded-in-3D and
// each k plane is treated independently. Kernels perform no bounds or value
// checks: the caller guarantees one valid halo layer around the range, a
// nonzero diagonal and consistent masks.
package tensorlap

import (
	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/parallel"
	"github.com/notargets/MLNodeKernel/stencil"
)

// weights holds the stencil in the field precision
type weights[T amr.Real] struct {
	center, x, y, dpp, dpm T
}

func weightsOf[T amr.Real](c stencil.Coefficients) weights[T] {
	w := c.Weights()
	return weights[T]{
		center: T(w.Center),
		x:      T(w.X),
		y:      T(w.Y),
		dpp:    T(w.Dpp),
		dpm:    T(w.Dpm),
	}
}

// apply evaluates the full nine-point stencil at (i, j, k)
func (w weights[T]) apply(x *amr.Array4[T], i, j, k int) T {
	return x.At(i-1, j-1, k)*w.dpp +
		x.At(i-1, j, k)*w.x +
		x.At(i-1, j+1, k)*w.dpm +
		x.At(i, j-1, k)*w.y +
		x.At(i, j, k)*w.center +
		x.At(i, j+1, k)*w.y +
		x.At(i+1, j-1, k)*w.dpm +
		x.At(i+1, j, k)*w.x +
		x.At(i+1, j+1, k)*w.dpp
}

// Adotx overwrites y on b with the operator applied to x. The mask is not
// consulted; Dirichlet values must already sit in x.
func Adotx[T amr.Real](ex parallel.Executor, b amr.Box, y, x *amr.Array4[T], c stencil.Coefficients) {
	w := weightsOf[T](c)
	ex.ForEach(b, parallel.DataParallel, func(i, j, k int) {
		y.Set(i, j, k, w.apply(x, i, j, k))
	})
}

// GaussSeidel performs one lexicographic Gauss-Seidel sweep over b. Covered
// nodes are forced to zero. The sweep reads neighbors already updated in the
// same pass, so it always runs in order whatever executor is passed.
func GaussSeidel[T amr.Real](ex parallel.Executor, b amr.Box, sol, rhs *amr.Array4[T],
	msk *amr.Mask, c stencil.Coefficients) {
	w := weightsOf[T](c)
	ex.ForEach(b, parallel.SequentialRequired, func(i, j, k int) {
		if msk.At(i, j, k) != 0 {
			sol.Set(i, j, k, 0)
			return
		}
		Ax := w.apply(sol, i, j, k)
		sol.Add(i, j, k, (rhs.At(i, j, k)-Ax)/w.center)
	})
}

// Normalize divides phi by the diagonal at every active node of b. Applying it
// twice to the same quantity divides twice.
func Normalize[T amr.Real](ex parallel.Executor, b amr.Box, phi *amr.Array4[T],
	msk *amr.Mask, c stencil.Coefficients) {
	diag := T(c.Diagonal())
	ex.ForEach(b, parallel.DataParallel, func(i, j, k int) {
		if msk.At(i, j, k) == 0 {
			phi.Set(i, j, k, phi.At(i, j, k)/diag)
		}
	})
}

// Residual sets res = rhs - A sol at active nodes of b and zero at covered ones
func Residual[T amr.Real](ex parallel.Executor, b amr.Box, res, rhs, sol *amr.Array4[T],
	msk *amr.Mask, c stencil.Coefficients) {
	w := weightsOf[T](c)
	ex.ForEach(b, parallel.DataParallel, func(i, j, k int) {
		if msk.At(i, j, k) != 0 {
			res.Set(i, j, k, 0)
			return
		}
		res.Set(i, j, k, rhs.At(i, j, k)-w.apply(sol, i, j, k))
	})
}
