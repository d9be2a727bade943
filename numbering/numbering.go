// Package numbering assigns global row ids to the active nodes of a list of
// node boxes, the input the sparse assembler expects.
//
// Adjacent node boxes share their boundary nodes. Each shared node is owned
// by the lowest-index box containing it; only the owner numbers it and only
// the owner's mask decides whether it is active. Boxes are distributed over
// ranks with partitions.PartitionBuilder and ids are contiguous per rank:
// rank r owns ids [RankStart[r], RankStart[r+1]).
package numbering

import (
	"fmt"

	"github.com/notargets/MLNodeKernel/amr"
	"github.com/notargets/MLNodeKernel/partitions"
)

// Numbering is the result of Number, indexed by box
type Numbering struct {
	Layout *partitions.PartitionLayout

	// IDs[b] covers boxes[b] grown by one node in i and j. Nodes of other
	// boxes seen through the halo carry their global id; everything not in
	// the system is -1.
	IDs []*amr.NodeIDs
	// Owners[b] is 1 on the valid nodes box b owns, 0 elsewhere. Covered
	// nodes keep their owner flag but carry id -1; a node is a row of the
	// system only where the flag is set and the id is non-negative.
	Owners []*amr.Owner

	RankStart []int64
	NumNodes  int64
}

// Number builds the global numbering. masks[b] must cover boxes[b]; nonzero
// marks a covered node.
func Number(boxes []amr.Box, masks []*amr.Mask, nranks int,
	strategy partitions.PartitionStrategy) (*Numbering, error) {
	if len(masks) != len(boxes) {
		return nil, fmt.Errorf("numbering: %d masks for %d boxes", len(masks), len(boxes))
	}
	for b, box := range boxes {
		if masks[b] == nil || !masks[b].Box.ContainsBox(box) {
			return nil, fmt.Errorf("numbering: mask %d does not cover box %v", b, box)
		}
	}

	pb := &partitions.PartitionBuilder{
		Boxes:         boxes,
		NumPartitions: nranks,
		Strategy:      strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, fmt.Errorf("numbering: %w", err)
	}

	// lowest-index box wins
	ownerBox := make(map[amr.IntVect]int)
	for b, box := range boxes {
		box.ForEach(func(i, j, k int) {
			iv := amr.IntVect{i, j, k}
			if _, ok := ownerBox[iv]; !ok {
				ownerBox[iv] = b
			}
		})
	}

	ids := make(map[amr.IntVect]int64, len(ownerBox))
	rankStart := make([]int64, nranks+1)
	var next int64
	for _, part := range layout.Partitions {
		rankStart[part.ID] = next
		for _, b := range part.Boxes {
			msk := masks[b]
			boxes[b].ForEach(func(i, j, k int) {
				iv := amr.IntVect{i, j, k}
				if ownerBox[iv] == b && msk.At(i, j, k) == 0 {
					ids[iv] = next
					next++
				}
			})
		}
	}
	rankStart[nranks] = next

	nb := &Numbering{
		Layout:    layout,
		IDs:       make([]*amr.NodeIDs, len(boxes)),
		Owners:    make([]*amr.Owner, len(boxes)),
		RankStart: rankStart,
		NumNodes:  next,
	}
	for b, box := range boxes {
		grown := box.GrowXY(1)
		nid := amr.NewArray4[int64](grown)
		grown.ForEach(func(i, j, k int) {
			if id, ok := ids[amr.IntVect{i, j, k}]; ok {
				nid.Set(i, j, k, id)
			} else {
				nid.Set(i, j, k, -1)
			}
		})
		owner := amr.NewArray4[int32](grown)
		box.ForEach(func(i, j, k int) {
			if ownerBox[amr.IntVect{i, j, k}] == b {
				owner.Set(i, j, k, 1)
			}
		})
		nb.IDs[b], nb.Owners[b] = nid, owner
	}
	return nb, nil
}

// Rank returns the rank owning global id, or -1
func (nb *Numbering) Rank(id int64) int {
	if id < 0 || id >= nb.NumNodes {
		return -1
	}
	for r := 0; r+1 < len(nb.RankStart); r++ {
		if id < nb.RankStart[r+1] {
			return r
		}
	}
	return -1
}

// RankBoxes returns the boxes distributed to rank r, or nil
func (nb *Numbering) RankBoxes(r int) []int {
	if r < 0 || r >= len(nb.Layout.Partitions) {
		return nil
	}
	return nb.Layout.Partitions[r].Boxes
}

// Gather returns the vector indexed by global id holding fields[b] at every
// row box b owns. fields[b] must cover box b.
func Gather[T amr.Real](nb *Numbering, fields []*amr.Array4[T]) ([]float64, error) {
	if len(fields) != len(nb.IDs) {
		return nil, fmt.Errorf("numbering: %d fields for %d boxes", len(fields), len(nb.IDs))
	}
	x := make([]float64, nb.NumNodes)
	for b, owner := range nb.Owners {
		nid := nb.IDs[b]
		f := fields[b]
		if f == nil {
			return nil, fmt.Errorf("numbering: field %d is nil", b)
		}
		var err error
		owner.Box.ForEach(func(i, j, k int) {
			if err != nil || owner.At(i, j, k) == 0 {
				return
			}
			id := nid.At(i, j, k)
			if id < 0 {
				return
			}
			if !f.Box.Contains(amr.IntVect{i, j, k}) {
				err = fmt.Errorf("numbering: field %d does not cover node (%d,%d,%d)", b, i, j, k)
				return
			}
			x[id] = float64(f.At(i, j, k))
		})
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Scatter writes x into fields[b] at every node of box b, halo included,
// that carries a global id. Other nodes are left untouched.
func Scatter[T amr.Real](nb *Numbering, x []float64, fields []*amr.Array4[T]) error {
	if int64(len(x)) != nb.NumNodes {
		return fmt.Errorf("numbering: vector length %d, want %d", len(x), nb.NumNodes)
	}
	if len(fields) != len(nb.IDs) {
		return fmt.Errorf("numbering: %d fields for %d boxes", len(fields), len(nb.IDs))
	}
	for b, nid := range nb.IDs {
		f := fields[b]
		if f == nil || !f.Box.ContainsBox(nid.Box) {
			return fmt.Errorf("numbering: field %d must cover %v", b, nid.Box)
		}
		nid.Box.ForEach(func(i, j, k int) {
			if id := nid.At(i, j, k); id >= 0 {
				f.Set(i, j, k, T(x[id]))
			}
		})
	}
	return nil
}
