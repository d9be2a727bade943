package ijmatrix

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// Triplets is the row-wise sparse form handed to an external algebraic
// solver: Rows[k] is the global id of the k-th emitted row, NCols[k] the
// number of (column, value) pairs that row appended to Cols/Values.
// The diagonal pair is always the first pair of its row.
type Triplets struct {
	Rows   []int64
	NCols  []int64
	Cols   []int64
	Values []float64
}

// MaxRowEntries bounds the pairs of one row: diagonal plus eight neighbors
const MaxRowEntries = 9

// NewTriplets reserves room for up to maxRows rows of the nine-point operator
func NewTriplets(maxRows int) *Triplets {
	if maxRows < 0 {
		maxRows = 0
	}
	return &Triplets{
		Rows:   make([]int64, 0, maxRows),
		NCols:  make([]int64, 0, maxRows),
		Cols:   make([]int64, 0, MaxRowEntries*maxRows),
		Values: make([]float64, 0, MaxRowEntries*maxRows),
	}
}

// NumRows returns the number of emitted rows
func (t *Triplets) NumRows() int {
	return len(t.Rows)
}

// NNZ returns the number of emitted (column, value) pairs
func (t *Triplets) NNZ() int {
	return len(t.Cols)
}

// Finish trims the reserved capacity so the lists can be handed over at
// their exact size
func (t *Triplets) Finish() {
	t.Rows = shrink(t.Rows)
	t.NCols = shrink(t.NCols)
	t.Cols = shrink(t.Cols)
	t.Values = shrink(t.Values)
}

func shrink[T int64 | float64](s []T) []T {
	if cap(s) == len(s) {
		return s
	}
	r := make([]T, len(s))
	copy(r, s)
	return r
}

// Validate checks the row integrity of the lists: parallel lengths, NCols
// totals, unique row ids, diagonal-first rows and non-negative columns.
func (t *Triplets) Validate() error {
	if len(t.Rows) != len(t.NCols) {
		return fmt.Errorf("%d rows but %d column counts", len(t.Rows), len(t.NCols))
	}
	if len(t.Cols) != len(t.Values) {
		return fmt.Errorf("%d columns but %d values", len(t.Cols), len(t.Values))
	}

	seen := make(map[int64]struct{}, len(t.Rows))
	pos := int64(0)
	for k, row := range t.Rows {
		if row < 0 {
			return fmt.Errorf("row %d has negative id %d", k, row)
		}
		if _, dup := seen[row]; dup {
			return fmt.Errorf("row id %d emitted twice", row)
		}
		seen[row] = struct{}{}

		nc := t.NCols[k]
		if nc < 1 || nc > MaxRowEntries {
			return fmt.Errorf("row %d has %d entries", row, nc)
		}
		if pos+nc > int64(len(t.Cols)) {
			return fmt.Errorf("row %d runs past the column list (%d > %d)",
				row, pos+nc, len(t.Cols))
		}
		if t.Cols[pos] != row {
			return fmt.Errorf("row %d does not start with its diagonal (col %d)", row, t.Cols[pos])
		}
		for _, c := range t.Cols[pos : pos+nc] {
			if c < 0 {
				return fmt.Errorf("row %d references excluded column %d", row, c)
			}
		}
		pos += nc
	}
	if pos != int64(len(t.Cols)) {
		return fmt.Errorf("column counts total %d but %d columns were pushed", pos, len(t.Cols))
	}
	return nil
}

// Append concatenates the rows of o after those of t, as when several boxes
// of one rank are filled into separate lists
func (t *Triplets) Append(o *Triplets) {
	t.Rows = append(t.Rows, o.Rows...)
	t.NCols = append(t.NCols, o.NCols...)
	t.Cols = append(t.Cols, o.Cols...)
	t.Values = append(t.Values, o.Values...)
}

// RowRange returns the [start, end) span of row k's pairs in Cols/Values
func (t *Triplets) RowRange(k int) (start, end int) {
	for r := 0; r < k; r++ {
		start += int(t.NCols[r])
	}
	return start, start + int(t.NCols[k])
}

// ToCSR converts the lists to an n x n CSR matrix indexed by global id
func (t *Triplets) ToCSR(n int) (*sparse.CSR, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid triplets: %w", err)
	}
	ia := make([]int, 0, len(t.Cols))
	ja := make([]int, 0, len(t.Cols))
	pos := 0
	for k, row := range t.Rows {
		if row >= int64(n) {
			return nil, fmt.Errorf("row id %d outside %d x %d matrix", row, n, n)
		}
		for p := pos; p < pos+int(t.NCols[k]); p++ {
			if t.Cols[p] >= int64(n) {
				return nil, fmt.Errorf("column id %d outside %d x %d matrix", t.Cols[p], n, n)
			}
			ia = append(ia, int(row))
			ja = append(ja, int(t.Cols[p]))
		}
		pos += int(t.NCols[k])
	}
	data := make([]float64, len(t.Values))
	copy(data, t.Values)
	return sparse.NewCOO(n, n, ia, ja, data).ToCSR(), nil
}

// Solver consumes assembled triplets. Setup takes ownership of t; the
// caller must not reuse it afterwards.
type Solver interface {
	Setup(t *Triplets) error
	Solve(x, b []float64) error
}
