package amr

import "fmt"

// IntVect is a node coordinate (i, j, k)
type IntVect [3]int

// Box is an inclusive node-index range [Lo, Hi] in each direction
type Box struct {
	Lo, Hi IntVect
}

// NewBox creates a box from inclusive lower and upper corners
func NewBox(lo, hi IntVect) Box {
	return Box{Lo: lo, Hi: hi}
}

// NewBox2D creates a single-plane (k = 0) box covering nodes [0,nx-1] x [0,ny-1]
func NewBox2D(nx, ny int) Box {
	return Box{Lo: IntVect{0, 0, 0}, Hi: IntVect{nx - 1, ny - 1, 0}}
}

// Ok reports whether the box contains at least one node
func (b Box) Ok() bool {
	return b.Lo[0] <= b.Hi[0] && b.Lo[1] <= b.Hi[1] && b.Lo[2] <= b.Hi[2]
}

// Length returns the number of nodes along each direction
func (b Box) Length() IntVect {
	return IntVect{b.Hi[0] - b.Lo[0] + 1, b.Hi[1] - b.Lo[1] + 1, b.Hi[2] - b.Lo[2] + 1}
}

// NumPts returns the number of nodes in the box, zero for an empty box
func (b Box) NumPts() int {
	if !b.Ok() {
		return 0
	}
	l := b.Length()
	return l[0] * l[1] * l[2]
}

// Contains reports whether node iv lies inside the box
func (b Box) Contains(iv IntVect) bool {
	for d := 0; d < 3; d++ {
		if iv[d] < b.Lo[d] || iv[d] > b.Hi[d] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely inside b
func (b Box) ContainsBox(o Box) bool {
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

// Grow extends the box by n nodes on every side in all three directions
func (b Box) Grow(n int) Box {
	return b.GrowDir(0, n).GrowDir(1, n).GrowDir(2, n)
}

// GrowXY extends the box by n nodes in the i and j directions only.
// Halos of in-plane stencils are allocated this way.
func (b Box) GrowXY(n int) Box {
	return b.GrowDir(0, n).GrowDir(1, n)
}

// GrowDir extends the box by n nodes on both sides of direction dir
func (b Box) GrowDir(dir, n int) Box {
	b.Lo[dir] -= n
	b.Hi[dir] += n
	return b
}

// Intersect returns the common part of two boxes; the result may not be Ok
func (b Box) Intersect(o Box) Box {
	var r Box
	for d := 0; d < 3; d++ {
		r.Lo[d] = max(b.Lo[d], o.Lo[d])
		r.Hi[d] = min(b.Hi[d], o.Hi[d])
	}
	return r
}

// Coarsen maps a node box to the coarse node box of the given ratio in i and j
func (b Box) Coarsen(ratio int) Box {
	r := b
	for d := 0; d < 2; d++ {
		r.Lo[d] = Coarsen(b.Lo[d], ratio)
		r.Hi[d] = Coarsen(b.Hi[d], ratio)
	}
	return r
}

// Refine maps a node box to the fine node box of the given ratio in i and j.
// The k range is kept, fields are 2D-embedded-in-3D.
func (b Box) Refine(ratio int) Box {
	r := b
	for d := 0; d < 2; d++ {
		r.Lo[d] = b.Lo[d] * ratio
		r.Hi[d] = b.Hi[d] * ratio
	}
	return r
}

// ForEach visits every node of the box in lexicographic order, i fastest
func (b Box) ForEach(fn func(i, j, k int)) {
	for k := b.Lo[2]; k <= b.Hi[2]; k++ {
		for j := b.Lo[1]; j <= b.Hi[1]; j++ {
			for i := b.Lo[0]; i <= b.Hi[0]; i++ {
				fn(i, j, k)
			}
		}
	}
}

func (b Box) String() string {
	return fmt.Sprintf("((%d,%d,%d) (%d,%d,%d))",
		b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2])
}

// Coarsen divides i by ratio rounding toward negative infinity
func Coarsen(i, ratio int) int {
	if i >= 0 {
		return i / ratio
	}
	return -((-i + ratio - 1) / ratio)
}
