package partitions

import (
	"fmt"
)

// Partition is the set of node boxes owned by one rank. On the device each
// box of a partition is one @outer work unit.
type Partition struct {
	// Unique identifier for this partition, also its rank
	ID int

	// Box membership
	Boxes    []int // Global box indices in this partition, ascending
	NumBoxes int   // Actual number of boxes
	MaxBoxes int   // Padded size, equal to KpartMax of the layout

	// Node counts
	NumNodes int // Sum of valid nodes over the boxes
}

// PartitionLayout manages the decomposition of a box list across ranks
type PartitionLayout struct {
	// All partitions
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumBoxes) across all partitions
	TotalBoxes    int // Sum of all boxes across partitions
	TotalNodes    int // Sum of all valid nodes, shared nodes counted per box
	NumPartitions int

	// Box to partition mapping
	BToP []int // Length TotalBoxes: box b belongs to partition BToP[b]
}

// GetPartition returns the partition containing a box, or -1
func (pl *PartitionLayout) GetPartition(boxID int) int {
	if boxID < 0 || boxID >= len(pl.BToP) {
		return -1
	}
	return pl.BToP[boxID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, NumPartitions %d",
			len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.BToP) != pl.TotalBoxes {
		return fmt.Errorf("BToP length %d != TotalBoxes %d", len(pl.BToP), pl.TotalBoxes)
	}

	actualMax, seen := 0, 0
	for _, p := range pl.Partitions {
		if p.NumBoxes != len(p.Boxes) {
			return fmt.Errorf("partition %d: NumBoxes %d != len(Boxes) %d",
				p.ID, p.NumBoxes, len(p.Boxes))
		}
		if p.NumBoxes > actualMax {
			actualMax = p.NumBoxes
		}
		if p.MaxBoxes != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxBoxes %d != KpartMax %d",
				p.ID, p.MaxBoxes, pl.KpartMax)
		}
		for n, b := range p.Boxes {
			if pl.GetPartition(b) != p.ID {
				return fmt.Errorf("partition %d lists box %d mapped to partition %d",
					p.ID, b, pl.GetPartition(b))
			}
			if n > 0 && p.Boxes[n-1] >= b {
				return fmt.Errorf("partition %d: boxes not ascending at %d", p.ID, n)
			}
		}
		seen += p.NumBoxes
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if seen != pl.TotalBoxes {
		return fmt.Errorf("partitions hold %d boxes, expected %d", seen, pl.TotalBoxes)
	}
	return nil
}
