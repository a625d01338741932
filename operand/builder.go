// Package operand generates the address matrices of the three operands of a
// layer: the input feature map, the filters, and the output feature map.
package operand

import (
	"errors"

	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/topology"
)

var (
	// ErrParamsNotSet is returned when matrices are requested before
	// SetParams is called.
	ErrParamsNotSet = errors.New("operand: parameters not set")

	// ErrIllegalArguments is returned when a requested block does not fit in
	// the operand matrix.
	ErrIllegalArguments = errors.New("operand: illegal arguments")
)

// Offsets are the base addresses of the three operands.
type Offsets struct {
	Ifmap  int64
	Filter int64
	Ofmap  int64
}

// DefaultOffsets returns the offsets used when none are configured.
func DefaultOffsets() Offsets {
	return Offsets{Ifmap: 0, Filter: 10000000, Ofmap: 20000000}
}

// SparsityParams controls how filters are pruned.
type SparsityParams struct {
	Enabled          bool
	OptimizedMapping bool

	// BlockSize is M of the randomly drawn N:M ratios used by the optimized
	// mapping.
	BlockSize int
	RandSeed  int64
}

// Builder creates the operand matrices of one layer.
type Builder struct {
	layer    topology.Layer
	offsets  Offsets
	sparsity SparsityParams

	paramsSet bool
	ready     bool

	ifmap         mat.Matrix
	ifmapOriginal mat.Matrix
	filter        mat.Matrix
	ofmap         mat.Matrix
	mask          mat.Matrix
}

// NewBuilder creates a builder without parameters.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetParams sets the layer to generate operands for.
func (b *Builder) SetParams(
	layer topology.Layer,
	offsets Offsets,
	sparsity SparsityParams,
) {
	b.layer = layer
	b.offsets = offsets
	b.sparsity = sparsity
	b.paramsSet = true
	b.ready = false
}

// Layer returns the layer the builder was set up for.
func (b *Builder) Layer() topology.Layer {
	return b.layer
}

// CreateOperandMatrices generates all three operand matrices.
func (b *Builder) CreateOperandMatrices() error {
	if !b.paramsSet {
		return ErrParamsNotSet
	}

	b.createFilterMatrix()
	b.createIfmapMatrix()
	b.createOfmapMatrix()
	b.ready = true

	return nil
}

func (b *Builder) ensureReady() error {
	if b.ready {
		return nil
	}

	return b.CreateOperandMatrices()
}

func (b *Builder) createIfmapMatrix() {
	rows := b.layer.OfmapPixels()
	cols := b.layer.WindowSize()

	m := mat.New(rows, cols)
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		for j := 0; j < cols; j++ {
			row[j] = b.ifmapAddr(i, j)
		}
	}

	b.ifmapOriginal = m
	b.ifmap = m

	if b.sparsity.Enabled && !b.sparsity.OptimizedMapping {
		b.ifmap = m.SelectCols(b.keptWindowRows())
	}
}

// ifmapAddr returns the address of the ifmap element used by output pixel i
// at window position j, or Null if the position falls outside of the ifmap.
func (b *Builder) ifmapAddr(i, j int) int64 {
	l := b.layer

	ofmapRow, ofmapCol := i/l.OfmapCols(), i%l.OfmapCols()
	inRow, inCol := ofmapRow*l.RowStride, ofmapCol*l.ColStride

	kRow, k := j/(l.FilterCols*l.Channels), j%(l.FilterCols*l.Channels)
	kCol, ch := k/l.Channels, k%l.Channels

	if kRow+inRow >= l.IfmapRows || kCol+inCol >= l.IfmapCols {
		return mat.Null
	}

	px := (kRow+inRow)*l.IfmapCols + kCol + inCol

	return int64(px*l.Channels+ch) + b.offsets.Ifmap
}

func (b *Builder) createFilterMatrix() {
	rows := b.layer.WindowSize()
	cols := b.layer.NumFilters
	elemsPerFilter := int64(b.layer.WindowSize())

	m := mat.New(rows, cols)
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		for j := 0; j < cols; j++ {
			row[j] = int64(j)*elemsPerFilter + int64(i) + b.offsets.Filter
		}
	}

	b.filter = m
	b.mask = denseMask(rows, cols)

	if !b.sparsity.Enabled {
		return
	}

	if b.sparsity.OptimizedMapping {
		b.mask = randomMask(rows, cols, b.sparsity.BlockSize, b.sparsity.RandSeed)
		b.filter = compressPairs(m, b.mask, b.sparsity.BlockSize)

		return
	}

	b.mask = fixedMask(rows, cols, b.layer.SparsityN, b.layer.SparsityM)
	b.filter = condense(m, b.mask, b.layer.SparsityN, b.layer.SparsityM)
}

// keptWindowRows tells which window positions survive the fixed pruning
// pattern. The pattern is the same for every filter.
func (b *Builder) keptWindowRows() []bool {
	keep := make([]bool, b.mask.Rows())
	for r := range keep {
		keep[r] = b.mask.At(r, 0) == 1
	}

	return keep
}

func (b *Builder) createOfmapMatrix() {
	rows := b.layer.OfmapPixels()
	cols := b.layer.NumFilters

	m := mat.New(rows, cols)
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		for j := 0; j < cols; j++ {
			row[j] = int64(cols*i+j) + b.offsets.Ofmap
		}
	}

	b.ofmap = m
}

// IfmapMatrix returns the ifmap operand matrix.
func (b *Builder) IfmapMatrix() (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return b.ifmap, nil
}

// OriginalIfmapMatrix returns the ifmap operand matrix before pruning.
func (b *Builder) OriginalIfmapMatrix() (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return b.ifmapOriginal, nil
}

// FilterMatrix returns the filter operand matrix.
func (b *Builder) FilterMatrix() (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return b.filter, nil
}

// OfmapMatrix returns the ofmap operand matrix.
func (b *Builder) OfmapMatrix() (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return b.ofmap, nil
}

// SparsityMask returns the pruning mask of the filters, one entry per
// weight, 1 for kept and 0 for pruned.
func (b *Builder) SparsityMask() (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return b.mask, nil
}

// IfmapMatrixPart returns a block of the ifmap operand matrix. A negative
// count extends the block to the end of the matrix.
func (b *Builder) IfmapMatrixPart(startRow, numRows, startCol, numCols int) (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return part(b.ifmap, startRow, numRows, startCol, numCols)
}

// FilterMatrixPart returns a block of the filter operand matrix.
func (b *Builder) FilterMatrixPart(startRow, numRows, startCol, numCols int) (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return part(b.filter, startRow, numRows, startCol, numCols)
}

// OfmapMatrixPart returns a block of the ofmap operand matrix.
func (b *Builder) OfmapMatrixPart(startRow, numRows, startCol, numCols int) (mat.Matrix, error) {
	if err := b.check(); err != nil {
		return mat.Matrix{}, err
	}

	return part(b.ofmap, startRow, numRows, startCol, numCols)
}

func (b *Builder) check() error {
	if !b.paramsSet {
		return ErrParamsNotSet
	}

	return b.ensureReady()
}

func part(m mat.Matrix, startRow, numRows, startCol, numCols int) (mat.Matrix, error) {
	if numRows < 0 {
		numRows = m.Rows() - startRow
	}

	if numCols < 0 {
		numCols = m.Cols() - startCol
	}

	if startRow < 0 || startCol < 0 || numRows < 0 || numCols < 0 ||
		startRow+numRows > m.Rows() || startCol+numCols > m.Cols() {
		return mat.Matrix{}, ErrIllegalArguments
	}

	return m.Slice(startRow, startRow+numRows, startCol, startCol+numCols), nil
}
