package graph

import "fmt"

// InterestMatrix holds one fixed-length vector of non-negative interest
// indicators per node, stored row-major.
type InterestMatrix struct {
	n    int
	dim  int
	data []int
}

// NewInterestMatrix returns an all-zero n x dim matrix.
func NewInterestMatrix(n, dim int) (*InterestMatrix, error) {
	if n < 0 || dim < 0 {
		return nil, fmt.Errorf("%w: interest matrix %dx%d", ErrMalformedInput, n, dim)
	}
	return &InterestMatrix{n: n, dim: dim, data: make([]int, n*dim)}, nil
}

// N returns the number of rows.
func (m *InterestMatrix) N() int { return m.n }

// Dim returns the vector length shared by every row.
func (m *InterestMatrix) Dim() int { return m.dim }

// Set replaces u's row.
func (m *InterestMatrix) Set(u int, vec []int) error {
	if u < 0 || u >= m.n {
		return fmt.Errorf("%w: node %d, %d rows", ErrNodeOutOfRange, u, m.n)
	}
	if len(vec) != m.dim {
		return fmt.Errorf("%w: node %d has %d values, want %d", ErrInterestDimension, u, len(vec), m.dim)
	}
	for d, v := range vec {
		if v < 0 {
			return fmt.Errorf("%w: node %d interest[%d] = %d", ErrNegativeValue, u, d, v)
		}
	}
	copy(m.data[u*m.dim:(u+1)*m.dim], vec)
	return nil
}

// Row returns u's vector. The slice aliases the matrix and must not be
// modified.
func (m *InterestMatrix) Row(u int) []int {
	return m.data[u*m.dim : (u+1)*m.dim]
}

// RowSum returns the sum of u's interest indicators.
func (m *InterestMatrix) RowSum(u int) int {
	sum := 0
	for _, v := range m.Row(u) {
		sum += v
	}
	return sum
}
