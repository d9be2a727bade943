package ijmatrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three-node chain 0 - 1 - 2
func chain() *Triplets {
	t := NewTriplets(3)
	t.Rows = append(t.Rows, 0, 1, 2)
	t.NCols = append(t.NCols, 2, 3, 2)
	t.Cols = append(t.Cols, 0, 1, 1, 0, 2, 2, 1)
	t.Values = append(t.Values, -2, 1, -2, 1, 1, -2, 1)
	return t
}

func TestTripletsReserveAndFinish(t *testing.T) {
	tr := NewTriplets(10)
	assert.Equal(t, 10, cap(tr.Rows))
	assert.Equal(t, 90, cap(tr.Cols))
	assert.Equal(t, 90, cap(tr.Values))

	tr.Rows = append(tr.Rows, 4)
	tr.NCols = append(tr.NCols, 1)
	tr.Cols = append(tr.Cols, 4)
	tr.Values = append(tr.Values, -1)
	tr.Finish()

	assert.Equal(t, 1, cap(tr.Rows))
	assert.Equal(t, 1, cap(tr.Cols))
	assert.Equal(t, []int64{4}, tr.Rows)
	assert.Equal(t, []float64{-1}, tr.Values)
	assert.NoError(t, tr.Validate())
}

func TestTripletsValidate(t *testing.T) {
	require.NoError(t, chain().Validate())

	testCases := []struct {
		name    string
		corrupt func(tr *Triplets)
	}{
		{"duplicate row", func(tr *Triplets) { tr.Rows[2] = 1 }},
		{"count mismatch", func(tr *Triplets) { tr.NCols[1] = 2 }},
		{"negative column", func(tr *Triplets) { tr.Cols[3] = -1 }},
		{"diagonal not first", func(tr *Triplets) { tr.Cols[0] = 1 }},
		{"ragged lists", func(tr *Triplets) { tr.Values = tr.Values[:5] }},
		{"missing count", func(tr *Triplets) { tr.NCols = tr.NCols[:2] }},
		{"overrun", func(tr *Triplets) { tr.NCols[2] = 5 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := chain()
			tc.corrupt(tr)
			assert.Error(t, tr.Validate())
		})
	}
}

func TestTripletsRowRange(t *testing.T) {
	tr := chain()
	s, e := tr.RowRange(1)
	assert.Equal(t, 2, s)
	assert.Equal(t, 5, e)
	assert.Equal(t, []int64{1, 0, 2}, tr.Cols[s:e])
}

func TestTripletsToCSR(t *testing.T) {
	csr, err := chain().ToCSR(3)
	require.NoError(t, err)

	r, c := csr.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 7, csr.NNZ())

	want := [3][3]float64{
		{-2, 1, 0},
		{1, -2, 1},
		{0, 1, -2},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, want[i][j], csr.At(i, j), "(%d,%d)", i, j)
		}
	}

	_, err = chain().ToCSR(2)
	assert.Error(t, err)
}

func TestTripletsAppend(t *testing.T) {
	tr := NewTriplets(1)
	tr.Rows = append(tr.Rows, 3)
	tr.NCols = append(tr.NCols, 1)
	tr.Cols = append(tr.Cols, 3)
	tr.Values = append(tr.Values, -1)

	tr.Append(chain())
	require.NoError(t, tr.Validate())
	assert.Equal(t, 4, tr.NumRows())
	assert.Equal(t, 8, tr.NNZ())
	s, e := tr.RowRange(2)
	assert.Equal(t, []int64{1, 0, 2}, tr.Cols[s:e])
}
