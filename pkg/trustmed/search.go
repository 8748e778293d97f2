package trustmed

import (
	"errors"
	"fmt"
	"sort"
)

// Neighbor is a row of a FlatIndex and its squared L2 distance to a query.
type Neighbor struct {
	Row      int
	Distance float64
}

// FlatIndex is an exact k-NN index over row-ordered vectors using squared
// Euclidean distance. There is no quantization or clustering: every search
// scans all rows, so results are exact and cost is linear in the number of
// rows. Row i is the only key; callers keep their metadata in the same order.
type FlatIndex struct {
	dim  int
	rows [][]float32
}

// NewFlatIndex builds an index over vectors. All vectors must share one
// non-zero dimension.
func NewFlatIndex(vectors [][]float32) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return nil, errors.New("flat index: no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("flat index: zero-dimension vector at row 0")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("flat index: row %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return &FlatIndex{
		dim:  dim,
		rows: vectors,
	}, nil
}

// Dimension returns the vector dimension.
func (ix *FlatIndex) Dimension() int { return ix.dim }

// Len returns the number of rows.
func (ix *FlatIndex) Len() int { return len(ix.rows) }

// Vectors returns the row-ordered vectors. Callers must not modify them.
func (ix *FlatIndex) Vectors() [][]float32 { return ix.rows }

// SquaredL2 returns the squared Euclidean distance between a and b, which
// must have the same length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Search returns the min(k, Len()) rows closest to query, ascending by
// distance. Equal distances keep row order.
func (ix *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("flat index: query dimension %d, want %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, len(ix.rows))
	for i, row := range ix.rows {
		neighbors[i] = Neighbor{Row: i, Distance: SquaredL2(query, row)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}
