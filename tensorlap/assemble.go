package tensorlap

import (
	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/ijmatrix"
	"github.com/notargets/MLNodeKernel/stencil"
)

// FillIJMatrix appends one row per owned node of b with a non-negative id:
// the diagonal first, then every neighbor in stencil.Neighbors order whose id
// is non-negative. Neighbors with negative ids (covered, outside the domain)
// are dropped. One pass, in lexicographic order.
func FillIJMatrix(b amr.Box, nid *amr.NodeIDs, owner *amr.Owner, c stencil.Coefficients,
	t *ijmatrix.Triplets) {
	w := c.Weights()
	var nbrWeight [len(stencil.Neighbors)]float64
	for n := range stencil.Neighbors {
		nbrWeight[n] = w.Neighbor(n)
	}

	b.ForEach(func(i, j, k int) {
		row := nid.At(i, j, k)
		if row < 0 || owner.At(i, j, k) == 0 {
			return
		}
		t.Rows = append(t.Rows, row)
		t.Cols = append(t.Cols, row)
		t.Values = append(t.Values, w.Center)
		nc := int64(1)

		for n, o := range stencil.Neighbors {
			if col := nid.At(i+o.Di, j+o.Dj, k); col >= 0 {
				t.Cols = append(t.Cols, col)
				t.Values = append(t.Values, nbrWeight[n])
				nc++
			}
		}

		t.NCols = append(t.NCols, nc)
	})
}

// AssembleIJMatrix reserves the lists for b, fills them and trims them to size
func AssembleIJMatrix(b amr.Box, nid *amr.NodeIDs, owner *amr.Owner, c stencil.Coefficients) *ijmatrix.Triplets {
	t := ijmatrix.NewTriplets(b.NumPts())
	FillIJMatrix(b, nid, owner, c, t)
	t.Finish()
	return t
}
