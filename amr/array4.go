package amr

import "fmt"

// Real is the element type of solution, right-hand-side and coarse fields
type Real interface {
	~float32 | ~float64
}

// Element is any value type an Array4 can hold
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// Array4 is a flat node field over its allocated box, halo included.
// Layout: (i-lo.x) + nx*((j-lo.y) + ny*(k-lo.z)), the same layout the device
// kernels use through the box table _IDX macros.
// No bounds checking is done by At/Set; callers guarantee valid indices.
type Array4[T Element] struct {
	Box  Box
	Data []T
	nx   int
	nxy  int
}

// Mask holds per-node coarse-fine classification, 0 = active, nonzero = covered
type Mask = Array4[int32]

// Owner holds per-node ownership flags, nonzero = owned by this process
type Owner = Array4[int32]

// NodeIDs holds global row numbers, negative = not part of the linear system
type NodeIDs = Array4[int64]

// NewArray4 allocates a zeroed field over box b
func NewArray4[T Element](b Box) *Array4[T] {
	if !b.Ok() {
		panic(fmt.Sprintf("cannot allocate field over empty box %v", b))
	}
	return WrapArray4(b, make([]T, b.NumPts()))
}

// WrapArray4 views caller-owned storage as a field over box b
func WrapArray4[T Element](b Box, data []T) *Array4[T] {
	if len(data) != b.NumPts() {
		panic(fmt.Sprintf("storage length %d does not match box %v (%d nodes)",
			len(data), b, b.NumPts()))
	}
	l := b.Length()
	return &Array4[T]{
		Box:  b,
		Data: data,
		nx:   l[0],
		nxy:  l[0] * l[1],
	}
}

// Index returns the flat offset of node (i, j, k)
func (a *Array4[T]) Index(i, j, k int) int {
	return (i - a.Box.Lo[0]) + a.nx*(j-a.Box.Lo[1]) + a.nxy*(k-a.Box.Lo[2])
}

// At reads node (i, j, k)
func (a *Array4[T]) At(i, j, k int) T {
	return a.Data[a.Index(i, j, k)]
}

// Set writes node (i, j, k)
func (a *Array4[T]) Set(i, j, k int, v T) {
	a.Data[a.Index(i, j, k)] = v
}

// Add accumulates v into node (i, j, k)
func (a *Array4[T]) Add(i, j, k int, v T) {
	a.Data[a.Index(i, j, k)] += v
}

// Fill sets every allocated node to v
func (a *Array4[T]) Fill(v T) {
	for n := range a.Data {
		a.Data[n] = v
	}
}

// FillBox sets the nodes of b (clipped to the allocation) to v
func (a *Array4[T]) FillBox(b Box, v T) {
	a.Box.Intersect(b).ForEach(func(i, j, k int) {
		a.Set(i, j, k, v)
	})
}

// FillBoundary sets every allocated node outside interior to v.
// Typical use: covered halo in a mask, or Dirichlet values before Adotx.
func (a *Array4[T]) FillBoundary(interior Box, v T) {
	a.Box.ForEach(func(i, j, k int) {
		if !interior.Contains(IntVect{i, j, k}) {
			a.Set(i, j, k, v)
		}
	})
}

// Clone returns a deep copy of the field
func (a *Array4[T]) Clone() *Array4[T] {
	data := make([]T, len(a.Data))
	copy(data, a.Data)
	return WrapArray4(a.Box, data)
}
