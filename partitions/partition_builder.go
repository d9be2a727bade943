package partitions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/MLNodeKernel/amr"
)

// PartitionBuilder distributes node boxes across a fixed number of ranks
type PartitionBuilder struct {
	Boxes         []amr.Box
	NumPartitions int
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how boxes are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive boxes
	RoundRobin                              // Distribute cyclically
	NodeBalanced                            // Greedy balance of node counts
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case NodeBalanced:
		return "balanced"
	default:
		return fmt.Sprintf("PartitionStrategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name, as printed by String, to its value
func ParseStrategy(name string) (PartitionStrategy, error) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, NodeBalanced} {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from the box list
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("need at least one partition, got %d", pb.NumPartitions)
	}
	for b, box := range pb.Boxes {
		if !box.Ok() {
			return nil, fmt.Errorf("box %d is empty: %v", b, box)
		}
	}

	bToP := pb.partitionBoxes()
	partitions := pb.createPartitions(bToP)
	kpartMax := calculateKpartMax(partitions)
	totalNodes := 0
	for i := range partitions {
		partitions[i].MaxBoxes = kpartMax
		totalNodes += partitions[i].NumNodes
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalBoxes:    len(pb.Boxes),
		TotalNodes:    totalNodes,
		NumPartitions: pb.NumPartitions,
		BToP:          bToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// partitionBoxes assigns boxes to partitions
func (pb *PartitionBuilder) partitionBoxes() []int {
	nb, np := len(pb.Boxes), pb.NumPartitions
	bToP := make([]int, nb)

	switch pb.Strategy {
	case RoundRobin:
		for b := range bToP {
			bToP[b] = b % np
		}

	case NodeBalanced:
		// Largest box first onto the lightest partition, ties to the lower ID
		order := make([]int, nb)
		for b := range order {
			order[b] = b
		}
		sort.SliceStable(order, func(x, y int) bool {
			return pb.Boxes[order[x]].NumPts() > pb.Boxes[order[y]].NumPts()
		})
		load := make([]int, np)
		for _, b := range order {
			target := 0
			for p := 1; p < np; p++ {
				if load[p] < load[target] {
					target = p
				}
			}
			bToP[b] = target
			load[target] += pb.Boxes[b].NumPts()
		}

	default:
		boxesPerPartition := int(math.Ceil(float64(nb) / float64(np)))
		for b := range bToP {
			bToP[b] = b / boxesPerPartition
			if bToP[b] >= np {
				bToP[b] = np - 1
			}
		}
	}
	return bToP
}

// createPartitions builds partition structures from box assignments
func (pb *PartitionBuilder) createPartitions(bToP []int) []Partition {
	partitions := make([]Partition, pb.NumPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Boxes: make([]int, 0)}
	}
	for b, part := range bToP {
		partitions[part].Boxes = append(partitions[part].Boxes, b)
		partitions[part].NumBoxes++
		partitions[part].NumNodes += pb.Boxes[b].NumPts()
	}
	return partitions
}

// calculateKpartMax finds the maximum box count across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumBoxes > kpartMax {
			kpartMax = p.NumBoxes
		}
	}
	return kpartMax
}
