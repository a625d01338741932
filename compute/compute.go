// Package compute turns operand matrices into the per-cycle demand seen by
// the edges of a systolic array, for each supported dataflow.
package compute

import (
	"fmt"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/mat"
)

// SparsityParams tells how the filter operand was pruned. For the optimized
// mapping, M is the block size.
type SparsityParams struct {
	Enabled          bool
	OptimizedMapping bool
	N                int
	M                int
}

// Params are the inputs of a demand generator.
type Params struct {
	ArrayRows int
	ArrayCols int

	Ifmap  mat.Matrix
	Filter mat.Matrix
	Ofmap  mat.Matrix

	// IfmapOriginal is the ifmap before pruning. Only the optimized sparse
	// mapping reads it.
	IfmapOriginal mat.Matrix

	Sparsity SparsityParams
}

// A System generates the prefetch and demand matrices of one layer.
type System interface {
	SetParams(p Params)

	CreatePrefetchMatrices()
	PrefetchMatrices() (ifmap, filter mat.Matrix)

	CreateDemandMatrices()
	DemandMatrices() (ifmap, filter, ofmap mat.Matrix)

	AvgMappingEfficiency() float64
	AvgComputeUtilization() float64

	IfmapRequests() int64
	FilterRequests() int64
	OfmapRequests() int64
}

// New creates the demand generator of a dataflow.
func New(df config.Dataflow) System {
	switch df {
	case config.OutputStationary:
		return &outputStationary{}
	case config.WeightStationary:
		return &weightStationary{}
	case config.InputStationary:
		return &inputStationary{}
	default:
		panic(fmt.Sprintf("unknown dataflow %q", df))
	}
}

// folding holds what all dataflows track while folding operands onto the
// array.
type folding struct {
	p Params

	arrRow, arrCol int
	sr, sc, t      int

	rowFold, colFold int

	ifmapPrefetch  mat.Matrix
	filterPrefetch mat.Matrix

	ifmapDemand  mat.Matrix
	filterDemand mat.Matrix
	ofmapDemand  mat.Matrix

	ifmapReads  int64
	filterReads int64
	ofmapWrites int64

	mappingEfficiency []float64
	computeUtil       []float64

	paramsSet     bool
	prefetchReady bool
	demandReady   bool
}

func (f *folding) setParams(p Params) {
	if p.ArrayRows <= 0 || p.ArrayCols <= 0 {
		panic(fmt.Sprintf("invalid array dimensions %dx%d",
			p.ArrayRows, p.ArrayCols))
	}

	*f = folding{p: p, arrRow: p.ArrayRows, arrCol: p.ArrayCols, paramsSet: true}
}

func (f *folding) mustHaveParams() {
	if !f.paramsSet {
		panic("parameters are not set")
	}
}

func (f *folding) checkOperandAgreement() {
	if f.p.Ifmap.Cols() != f.p.Filter.Rows() {
		panic(fmt.Sprintf("dimension mismatch between operands: "+
			"ifmap has %d columns, filter has %d rows",
			f.p.Ifmap.Cols(), f.p.Filter.Rows()))
	}
}

func (f *folding) recordFold(macUsed, cycles int, mappingEff float64) {
	arr := float64(f.arrRow * f.arrCol)
	util := float64(macUsed*f.t) / (arr * float64(cycles))

	f.mappingEfficiency = append(f.mappingEfficiency, mappingEff)
	f.computeUtil = append(f.computeUtil, util)
}

// finishDemand checks the shape laws of the generated demand. A negative
// width skips the check of that operand.
func (f *folding) finishDemand(ifmapWidth, filterWidth, ofmapWidth int) {
	rows := f.filterDemand.Rows()
	if f.ifmapDemand.Rows() != rows {
		panic(fmt.Sprintf("ifmap and filter demands out of sync: %d vs %d rows",
			f.ifmapDemand.Rows(), rows))
	}

	if f.ofmapDemand.Rows() != rows {
		panic(fmt.Sprintf("ofmap and filter demands out of sync: %d vs %d rows",
			f.ofmapDemand.Rows(), rows))
	}

	checkWidth("ifmap", f.ifmapDemand, ifmapWidth)
	checkWidth("filter", f.filterDemand, filterWidth)
	checkWidth("ofmap", f.ofmapDemand, ofmapWidth)

	f.demandReady = true
}

func checkWidth(name string, m mat.Matrix, want int) {
	if want >= 0 && m.Cols() != want {
		panic(fmt.Sprintf("%s demand has %d lanes, want %d", name, m.Cols(), want))
	}
}

func (f *folding) PrefetchMatrices() (ifmap, filter mat.Matrix) {
	if !f.prefetchReady {
		panic("prefetch matrices are not created")
	}

	return f.ifmapPrefetch, f.filterPrefetch
}

func (f *folding) DemandMatrices() (ifmap, filter, ofmap mat.Matrix) {
	f.mustHaveDemand()
	return f.ifmapDemand, f.filterDemand, f.ofmapDemand
}

func (f *folding) mustHaveDemand() {
	if !f.demandReady {
		panic("demand matrices are not created")
	}
}

func (f *folding) AvgMappingEfficiency() float64 {
	f.mustHaveDemand()
	return average(f.mappingEfficiency)
}

func (f *folding) AvgComputeUtilization() float64 {
	f.mustHaveDemand()
	return average(f.computeUtil)
}

func (f *folding) IfmapRequests() int64 {
	f.mustHaveDemand()
	return f.ifmapReads
}

func (f *folding) FilterRequests() int64 {
	f.mustHaveDemand()
	return f.filterReads
}

func (f *folding) OfmapRequests() int64 {
	f.mustHaveDemand()
	return f.ofmapWrites
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}

	sum := 0.0
	for _, x := range xs {
		sum += x
	}

	return sum / float64(len(xs))
}

// span returns the bounds of fold i of the given size over n elements. Folds
// past the end are empty.
func span(i, size, n int) (start, end int) {
	start = min(i*size, n)
	end = min(start+size, n)

	return start, end
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
