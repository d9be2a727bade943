package tensorlap

import (
	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/parallel"
)

func interpLineX[T amr.Real](crse *amr.Array4[T], ic, jc, k int) T {
	return (crse.At(ic, jc, k) + crse.At(ic+1, jc, k)) * 0.5
}

func interpLineY[T amr.Real](crse *amr.Array4[T], ic, jc, k int) T {
	return (crse.At(ic, jc, k) + crse.At(ic, jc+1, k)) * 0.5
}

func interpFaceXY[T amr.Real](crse *amr.Array4[T], ic, jc, k int) T {
	return (interpLineY(crse, ic, jc, k) +
		interpLineY(crse, ic+1, jc, k) +
		interpLineX(crse, ic, jc, k) +
		interpLineX(crse, ic, jc+1, k)) * 0.25
}

// interpNode returns the bilinear coarse value at fine node (i, j, k)
func interpNode[T amr.Real](crse *amr.Array4[T], i, j, k int) T {
	ic := amr.Coarsen(i, 2)
	jc := amr.Coarsen(j, 2)
	iOdd := ic*2 != i
	jOdd := jc*2 != j
	switch {
	case iOdd && jOdd:
		// center of a coarse x-y face
		return interpFaceXY(crse, ic, jc, k)
	case iOdd:
		// on a coarse x line
		return interpLineX(crse, ic, jc, k)
	case jOdd:
		// on a coarse y line
		return interpLineY(crse, ic, jc, k)
	default:
		// coincident with a coarse node
		return crse.At(ic, jc, k)
	}
}

// CoarseCover returns the coarse nodes InterpAdd reads for fine box b: b
// coarsened by 2, extended by one node on every odd upper side in i and j
func CoarseCover(b amr.Box) amr.Box {
	c := b.Coarsen(2)
	for d := 0; d < 2; d++ {
		if c.Hi[d]*2 != b.Hi[d] {
			c.Hi[d]++
		}
	}
	return c
}

// InterpAdd adds the bilinear interpolation of crse to fine at every unmasked
// fine node of b, refinement ratio 2. Masked nodes are neither read nor written.
// The coarse field must cover CoarseCover(b).
func InterpAdd[T amr.Real](ex parallel.Executor, b amr.Box, fine, crse *amr.Array4[T], msk *amr.Mask) {
	ex.ForEach(b, parallel.DataParallel, func(i, j, k int) {
		if msk.At(i, j, k) == 0 {
			fine.Add(i, j, k, interpNode(crse, i, j, k))
		}
	})
}
