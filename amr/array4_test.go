package amr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray4Indexing(t *testing.T) {
	b := NewBox(IntVect{-1, -1, 0}, IntVect{2, 3, 1})
	a := NewArray4[float64](b)
	require.Len(t, a.Data, 4*5*2)

	// Offsets must be unique and cover the buffer exactly once
	seen := make(map[int]bool)
	n := 0
	b.ForEach(func(i, j, k int) {
		idx := a.Index(i, j, k)
		assert.Equal(t, n, idx, "lexicographic order must match storage order")
		assert.False(t, seen[idx])
		seen[idx] = true
		n++
	})

	a.Set(2, 3, 1, 7.5)
	a.Add(2, 3, 1, 0.5)
	assert.Equal(t, 8.0, a.At(2, 3, 1))
	assert.Equal(t, 8.0, a.Data[len(a.Data)-1])
}

func TestArray4Fill(t *testing.T) {
	interior := NewBox2D(3, 3)
	m := NewArray4[int32](interior.GrowXY(1))
	m.FillBoundary(interior, 1)

	count := 0
	m.Box.ForEach(func(i, j, k int) {
		if m.At(i, j, k) != 0 {
			count++
			assert.False(t, interior.Contains(IntVect{i, j, k}))
		}
	})
	assert.Equal(t, 25-9, count)

	m.FillBox(NewBox(IntVect{1, 1, 0}, IntVect{1, 1, 0}), 2)
	assert.Equal(t, int32(2), m.At(1, 1, 0))

	c := m.Clone()
	c.Fill(0)
	assert.Equal(t, int32(2), m.At(1, 1, 0), "clone must not alias")
}

func TestWrapArray4LengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		WrapArray4(NewBox2D(2, 2), make([]float32, 3))
	})
	assert.Panics(t, func() {
		NewArray4[float64](NewBox(IntVect{1, 0, 0}, IntVect{0, 0, 0}))
	})
}
