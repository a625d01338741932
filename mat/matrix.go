// Package mat provides the address matrix used by every stage of the
// simulator. Entries are opaque addresses; Null marks an empty request slot.
package mat

import (
	"fmt"
	"strings"
)

// Null is the sentinel that means no request in this slot.
const Null int64 = -1

// Matrix is a dense, row-major matrix of addresses.
type Matrix struct {
	rows, cols int
	data       []int64
}

// New creates a rows x cols matrix filled with Null.
func New(rows, cols int) Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("invalid matrix shape %dx%d", rows, cols))
	}

	m := Matrix{rows: rows, cols: cols, data: make([]int64, rows*cols)}
	for i := range m.data {
		m.data[i] = Null
	}

	return m
}

// FromRows creates a matrix by copying the given rows. All rows must have the
// same length.
func FromRows(rows [][]int64) Matrix {
	if len(rows) == 0 {
		return Matrix{}
	}

	m := Matrix{rows: len(rows), cols: len(rows[0])}
	m.data = make([]int64, 0, m.rows*m.cols)

	for i, r := range rows {
		if len(r) != m.cols {
			panic(fmt.Sprintf("row %d has %d columns, want %d", i, len(r), m.cols))
		}

		m.data = append(m.data, r...)
	}

	return m
}

// FromSlice wraps a flat slice as a rows x cols matrix without copying.
func FromSlice(rows, cols int, data []int64) Matrix {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("slice of %d elements cannot form %dx%d", len(data), rows, cols))
	}

	return Matrix{rows: rows, cols: cols, data: data}
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m Matrix) Cols() int { return m.cols }

// Shape returns the number of rows and columns.
func (m Matrix) Shape() (int, int) { return m.rows, m.cols }

// Len returns the number of elements.
func (m Matrix) Len() int { return len(m.data) }

// IsEmpty tells if the matrix holds no element at all.
func (m Matrix) IsEmpty() bool { return len(m.data) == 0 }

// At returns the element at row r and column c.
func (m Matrix) At(r, c int) int64 {
	return m.data[r*m.cols+c]
}

// Set writes the element at row r and column c.
func (m *Matrix) Set(r, c int, v int64) {
	m.data[r*m.cols+c] = v
}

// Row returns a view of row r. Modifying the view modifies the matrix.
func (m Matrix) Row(r int) []int64 {
	return m.data[r*m.cols : (r+1)*m.cols]
}

// Col returns a copy of column c.
func (m Matrix) Col(c int) []int64 {
	col := make([]int64, m.rows)
	for r := 0; r < m.rows; r++ {
		col[r] = m.data[r*m.cols+c]
	}

	return col
}

// Data returns the backing slice in row-major order.
func (m Matrix) Data() []int64 { return m.data }

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := Matrix{rows: m.rows, cols: m.cols, data: make([]int64, len(m.data))}
	copy(out.data, m.data)

	return out
}

// Slice copies the block [r0, r1) x [c0, c1).
func (m Matrix) Slice(r0, r1, c0, c1 int) Matrix {
	if r0 < 0 || c0 < 0 || r1 > m.rows || c1 > m.cols || r0 > r1 || c0 > c1 {
		panic(fmt.Sprintf("slice [%d:%d, %d:%d] out of %dx%d",
			r0, r1, c0, c1, m.rows, m.cols))
	}

	out := Matrix{rows: r1 - r0, cols: c1 - c0}
	out.data = make([]int64, 0, out.rows*out.cols)

	for r := r0; r < r1; r++ {
		out.data = append(out.data, m.data[r*m.cols+c0:r*m.cols+c1]...)
	}

	return out
}

// SliceRows copies rows [r0, r1).
func (m Matrix) SliceRows(r0, r1 int) Matrix {
	return m.Slice(r0, r1, 0, m.cols)
}

// SliceCols copies columns [c0, c1).
func (m Matrix) SliceCols(c0, c1 int) Matrix {
	return m.Slice(0, m.rows, c0, c1)
}

// SelectCols copies the columns whose keep flag is true, in order.
func (m Matrix) SelectCols(keep []bool) Matrix {
	if len(keep) != m.cols {
		panic(fmt.Sprintf("column mask of %d for %d columns", len(keep), m.cols))
	}

	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}

	out := Matrix{rows: m.rows, cols: n, data: make([]int64, 0, m.rows*n)}
	for r := 0; r < m.rows; r++ {
		row := m.Row(r)
		for c, k := range keep {
			if k {
				out.data = append(out.data, row[c])
			}
		}
	}

	return out
}

// Transpose returns the transposed matrix.
func (m Matrix) Transpose() Matrix {
	out := Matrix{rows: m.cols, cols: m.rows, data: make([]int64, len(m.data))}
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			out.data[c*m.rows+r] = m.data[r*m.cols+c]
		}
	}

	return out
}

// FlipRows returns the matrix with its row order reversed.
func (m Matrix) FlipRows() Matrix {
	out := Matrix{rows: m.rows, cols: m.cols, data: make([]int64, 0, len(m.data))}
	for r := m.rows - 1; r >= 0; r-- {
		out.data = append(out.data, m.Row(r)...)
	}

	return out
}

// PadTo extends the matrix to rows x cols, filling new slots with Null. The
// matrix is never shrunk.
func (m Matrix) PadTo(rows, cols int) Matrix {
	if rows < m.rows {
		rows = m.rows
	}

	if cols < m.cols {
		cols = m.cols
	}

	if rows == m.rows && cols == m.cols {
		return m
	}

	out := New(rows, cols)
	for r := 0; r < m.rows; r++ {
		copy(out.data[r*cols:r*cols+m.cols], m.Row(r))
	}

	return out
}

// VStack concatenates matrices vertically. All non-empty inputs must have the
// same number of columns.
func VStack(ms ...Matrix) Matrix {
	cols, rows := -1, 0
	for _, m := range ms {
		if m.rows == 0 && m.cols == 0 {
			continue
		}

		if cols == -1 {
			cols = m.cols
		} else if m.cols != cols {
			panic(fmt.Sprintf("cannot stack %d columns on %d columns", m.cols, cols))
		}

		rows += m.rows
	}

	if cols == -1 {
		return Matrix{}
	}

	out := Matrix{rows: rows, cols: cols, data: make([]int64, 0, rows*cols)}
	for _, m := range ms {
		out.data = append(out.data, m.data...)
	}

	return out
}

// HStack concatenates matrices horizontally. All inputs must have the same
// number of rows.
func HStack(ms ...Matrix) Matrix {
	if len(ms) == 0 {
		return Matrix{}
	}

	rows, cols := ms[0].rows, 0
	for _, m := range ms {
		if m.rows != rows {
			panic(fmt.Sprintf("cannot join %d rows with %d rows", m.rows, rows))
		}

		cols += m.cols
	}

	out := Matrix{rows: rows, cols: cols, data: make([]int64, 0, rows*cols)}
	for r := 0; r < rows; r++ {
		for _, m := range ms {
			out.data = append(out.data, m.Row(r)...)
		}
	}

	return out
}

// Reshape lays the elements out, in row-major order, into lines of the given
// width. The last line is padded with Null.
func (m Matrix) Reshape(width int) Matrix {
	if width <= 0 {
		panic("reshape width must be positive")
	}

	lines := (len(m.data) + width - 1) / width
	out := New(lines, width)
	copy(out.data, m.data)

	return out
}

// CountNull returns the number of Null entries.
func (m Matrix) CountNull() int {
	n := 0
	for _, v := range m.data {
		if v == Null {
			n++
		}
	}

	return n
}

// CountRequests returns the number of non-Null entries.
func (m Matrix) CountRequests() int {
	return len(m.data) - m.CountNull()
}

// RowHasRequest tells if row r holds at least one non-Null entry.
func (m Matrix) RowHasRequest(r int) bool {
	for _, v := range m.Row(r) {
		if v != Null {
			return true
		}
	}

	return false
}

// Equal tells if two matrices have the same shape and entries.
func (m Matrix) Equal(o Matrix) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}

	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}

	return true
}

// String renders the matrix one row per line.
func (m Matrix) String() string {
	sb := strings.Builder{}
	for r := 0; r < m.rows; r++ {
		for c, v := range m.Row(r) {
			if c > 0 {
				sb.WriteByte(' ')
			}

			fmt.Fprintf(&sb, "%d", v)
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
