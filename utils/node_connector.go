package utils

import (
	"fmt"

	"github.com/notargets/MLNodeKernel/amr"
)

// NodeConnector manages pick and place indices for node boxes that share
// boundary nodes. Every field node that lies in another box's valid region is
// refreshed from the owner: the lowest-index box whose valid region holds it.
type NodeConnector struct {
	NumBoxes int
	Halo     int

	Valid []amr.Box // Valid node boxes
	Grown []amr.Box // Field boxes, valid grown by Halo in i and j

	// Pick/Place indices per box pair
	PickIndices  [][]PickBuffer  // [sourceBox][targetBox]
	PlaceIndices [][]PlaceBuffer // [targetBox][sourceBox]
}

// PickBuffer contains indices for gathering owner values to send
type PickBuffer struct {
	Indices   []int // Flat indices into the source field
	TargetBox int
}

// PlaceBuffer contains indices for scattering received values
type PlaceBuffer struct {
	Indices   []int // Flat indices into the target field
	SourceBox int
}

// NewNodeConnector creates a connector for fields allocated over each box
// grown by halo nodes
func NewNodeConnector(boxes []amr.Box, halo int) (*NodeConnector, error) {
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no boxes")
	}
	if halo < 0 {
		return nil, fmt.Errorf("invalid halo %d", halo)
	}
	nc := &NodeConnector{
		NumBoxes: len(boxes),
		Halo:     halo,
		Valid:    boxes,
		Grown:    make([]amr.Box, len(boxes)),
	}
	for b, box := range boxes {
		if !box.Ok() {
			return nil, fmt.Errorf("box %d is empty: %v", b, box)
		}
		nc.Grown[b] = box.GrowXY(halo)
	}

	nc.initializeBuffers()
	nc.BuildIndices()
	return nc, nil
}

func (nc *NodeConnector) initializeBuffers() {
	nc.PickIndices = make([][]PickBuffer, nc.NumBoxes)
	nc.PlaceIndices = make([][]PlaceBuffer, nc.NumBoxes)
	for p := 0; p < nc.NumBoxes; p++ {
		nc.PickIndices[p] = make([]PickBuffer, nc.NumBoxes)
		nc.PlaceIndices[p] = make([]PlaceBuffer, nc.NumBoxes)
		for q := 0; q < nc.NumBoxes; q++ {
			nc.PickIndices[p][q] = PickBuffer{TargetBox: q}
			nc.PlaceIndices[p][q] = PlaceBuffer{SourceBox: q}
		}
	}
}

// Owner returns the lowest-index box whose valid region holds iv, or -1
func (nc *NodeConnector) Owner(iv amr.IntVect) int {
	for b, box := range nc.Valid {
		if box.Contains(iv) {
			return b
		}
	}
	return -1
}

// flatIndex matches the amr.Array4 layout over b
func flatIndex(b amr.Box, i, j, k int) int {
	l := b.Length()
	return (i - b.Lo[0]) + l[0]*((j-b.Lo[1])+l[1]*(k-b.Lo[2]))
}

// BuildIndices constructs pick and place indices for all box pairs, each
// target's nodes in lexicographic order
func (nc *NodeConnector) BuildIndices() {
	for t := 0; t < nc.NumBoxes; t++ {
		target := nc.Grown[t]
		target.ForEach(func(i, j, k int) {
			src := nc.Owner(amr.IntVect{i, j, k})
			if src < 0 || src == t {
				return
			}
			nc.PickIndices[src][t].Indices = append(nc.PickIndices[src][t].Indices,
				flatIndex(nc.Grown[src], i, j, k))
			nc.PlaceIndices[t][src].Indices = append(nc.PlaceIndices[t][src].Indices,
				flatIndex(target, i, j, k))
		})
	}
}

// GetPickIndices returns pick indices for sending from source to target box
func (nc *NodeConnector) GetPickIndices(sourceBox, targetBox int) []int {
	if sourceBox < 0 || sourceBox >= nc.NumBoxes || targetBox < 0 || targetBox >= nc.NumBoxes {
		return nil
	}
	return nc.PickIndices[sourceBox][targetBox].Indices
}

// GetPlaceIndices returns place indices for target box receiving from source
func (nc *NodeConnector) GetPlaceIndices(targetBox, sourceBox int) []int {
	if targetBox < 0 || targetBox >= nc.NumBoxes || sourceBox < 0 || sourceBox >= nc.NumBoxes {
		return nil
	}
	return nc.PlaceIndices[targetBox][sourceBox].Indices
}

// Verify checks index validity and conservation properties
func (nc *NodeConnector) Verify() error {
	for p := 0; p < nc.NumBoxes; p++ {
		n := nc.Grown[p].NumPts()
		for q := 0; q < nc.NumBoxes; q++ {
			for _, idx := range nc.PickIndices[p][q].Indices {
				if idx < 0 || idx >= n {
					return fmt.Errorf("invalid pick index %d for box %d (max %d)", idx, p, n-1)
				}
			}
			for _, idx := range nc.PlaceIndices[p][q].Indices {
				if idx < 0 || idx >= n {
					return fmt.Errorf("invalid place index %d for box %d (max %d)", idx, p, n-1)
				}
			}
			pickLen := len(nc.PickIndices[p][q].Indices)
			placeLen := len(nc.PlaceIndices[q][p].Indices)
			if pickLen != placeLen {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, pickLen, q, p, placeLen)
			}
		}
	}

	// every field node held by another box is placed exactly once
	for t := 0; t < nc.NumBoxes; t++ {
		placed := make(map[int]bool)
		for q := 0; q < nc.NumBoxes; q++ {
			for _, idx := range nc.PlaceIndices[t][q].Indices {
				if placed[idx] {
					return fmt.Errorf("box %d: index %d placed twice", t, idx)
				}
				placed[idx] = true
			}
		}
		expected := 0
		nc.Grown[t].ForEach(func(i, j, k int) {
			if o := nc.Owner(amr.IntVect{i, j, k}); o >= 0 && o != t {
				expected++
			}
		})
		if len(placed) != expected {
			return fmt.Errorf("conservation error: box %d places %d of %d foreign nodes",
				t, len(placed), expected)
		}
	}
	return nil
}

// Exchange copies owner values into every box's shared and halo nodes.
// fields[b] must be allocated over Grown[b].
func Exchange[T amr.Element](nc *NodeConnector, fields []*amr.Array4[T]) error {
	if len(fields) != nc.NumBoxes {
		return fmt.Errorf("%d fields for %d boxes", len(fields), nc.NumBoxes)
	}
	for b, f := range fields {
		if f == nil || f.Box != nc.Grown[b] {
			return fmt.Errorf("field %d must be allocated over %v", b, nc.Grown[b])
		}
	}
	for src := 0; src < nc.NumBoxes; src++ {
		for t := 0; t < nc.NumBoxes; t++ {
			pick := nc.PickIndices[src][t].Indices
			place := nc.PlaceIndices[t][src].Indices
			for n, idx := range pick {
				fields[t].Data[place[n]] = fields[src].Data[idx]
			}
		}
	}
	return nil
}
