// Package topology describes the workload: the ordered list of convolution or
// GEMM layers and the shape parameters derived from them.
package topology

import (
	"fmt"
	"strings"

	"github.com/sarchlab/systolica/config"
)

// Layer is the geometry of one convolution layer. A GEMM layer is expressed
// as a convolution with a 1 x K filter over an M x K input.
type Layer struct {
	Name       string
	IfmapRows  int
	IfmapCols  int
	FilterRows int
	FilterCols int
	Channels   int
	NumFilters int
	RowStride  int
	ColStride  int

	// SparsityN and SparsityM form the N:M structured sparsity ratio. A dense
	// layer uses 1:1.
	SparsityN int
	SparsityM int
}

// GEMMLayer builds the layer that multiplies an M x K matrix by a K x N
// matrix.
func GEMMLayer(name string, m, n, k int) Layer {
	return Layer{
		Name:       name,
		IfmapRows:  m,
		IfmapCols:  k,
		FilterRows: 1,
		FilterCols: k,
		Channels:   1,
		NumFilters: n,
		RowStride:  1,
		ColStride:  1,
		SparsityN:  1,
		SparsityM:  1,
	}
}

// Validate checks that the layer can be simulated.
func (l Layer) Validate() error {
	switch {
	case l.IfmapRows <= 0 || l.IfmapCols <= 0:
		return fmt.Errorf("layer %s: ifmap dimensions must be positive", l.Name)
	case l.FilterRows <= 0 || l.FilterCols <= 0:
		return fmt.Errorf("layer %s: filter dimensions must be positive", l.Name)
	case l.Channels <= 0 || l.NumFilters <= 0:
		return fmt.Errorf("layer %s: channels and filters must be positive", l.Name)
	case l.RowStride <= 0 || l.ColStride <= 0:
		return fmt.Errorf("layer %s: strides must be positive", l.Name)
	case l.FilterRows > l.IfmapRows:
		return fmt.Errorf("layer %s: filter height cannot be larger than ifmap height", l.Name)
	case l.FilterCols > l.IfmapCols:
		return fmt.Errorf("layer %s: filter width cannot be larger than ifmap width", l.Name)
	case l.SparsityN <= 0 || l.SparsityM <= 0 || l.SparsityN > l.SparsityM:
		return fmt.Errorf("layer %s: invalid sparsity ratio %d:%d",
			l.Name, l.SparsityN, l.SparsityM)
	}

	return nil
}

// OfmapRows returns the height of the output feature map.
func (l Layer) OfmapRows() int {
	return ceilDiv(l.IfmapRows-l.FilterRows+l.RowStride, l.RowStride)
}

// OfmapCols returns the width of the output feature map.
func (l Layer) OfmapCols() int {
	return ceilDiv(l.IfmapCols-l.FilterCols+l.ColStride, l.ColStride)
}

// OfmapPixels returns the number of output pixels per filter.
func (l Layer) OfmapPixels() int {
	return l.OfmapRows() * l.OfmapCols()
}

// WindowSize returns the number of elements in one convolution window.
func (l Layer) WindowSize() int {
	return l.FilterRows * l.FilterCols * l.Channels
}

// NumMACs returns the number of multiply-accumulate operations of the layer.
func (l Layer) NumMACs() int {
	return l.OfmapPixels() * l.WindowSize() * l.NumFilters
}

// IsSparse tells if the layer prunes any weight.
func (l Layer) IsSparse() bool {
	return l.SparsityN < l.SparsityM
}

// IsDepthwise tells if the layer is marked as a depth-wise convolution.
func (l Layer) IsDepthwise() bool {
	return strings.Contains(l.Name, "DP")
}

// SpatioTemporal returns the spatial rows, spatial columns, and temporal
// extent that the given dataflow maps onto the array.
func (l Layer) SpatioTemporal(df config.Dataflow) (sr, sc, t int) {
	switch df {
	case config.OutputStationary:
		return l.OfmapPixels(), l.NumFilters, l.WindowSize()
	case config.WeightStationary:
		return l.WindowSize(), l.NumFilters, l.OfmapPixels()
	case config.InputStationary:
		return l.WindowSize(), l.OfmapPixels(), l.NumFilters
	default:
		panic(fmt.Sprintf("unknown dataflow %q", df))
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
