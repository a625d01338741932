package compute

import (
	"math"

	"github.com/sarchlab/systolica/mat"
)

// weightStationary pins a tile of filter weights in the array. Ifmap rows
// stream in from the left and partial sums leave from the bottom edge.
type weightStationary struct {
	folding

	rowFoldDemand int
}

func (s *weightStationary) SetParams(p Params) {
	s.setParams(p)
	if !p.Sparsity.Enabled {
		s.checkOperandAgreement()
	}

	s.sr = p.Ifmap.Cols()
	s.sc = p.Filter.Cols()
	s.t = p.Ifmap.Rows()
	s.rowFold = ceilDiv(s.sr, s.arrRow)
	s.rowFoldDemand = ceilDiv(p.Filter.Rows(), s.arrRow)
	s.colFold = ceilDiv(s.sc, s.arrCol)
}

func (s *weightStationary) optimized() bool {
	return s.p.Sparsity.Enabled && s.p.Sparsity.OptimizedMapping
}

func (s *weightStationary) CreatePrefetchMatrices() {
	s.mustHaveParams()

	folds := make([]mat.Matrix, 0, s.rowFold)
	for fr := 0; fr < s.rowFold; fr++ {
		start, end := span(fr, s.arrRow, s.sr)
		folds = append(folds, s.p.Ifmap.SliceCols(start, end).PadTo(s.t, s.arrRow))
	}

	s.ifmapPrefetch = mat.DiagonalFlatten(mat.VStack(folds...))

	folds = folds[:0]
	for fc := 0; fc < s.colFold; fc++ {
		start, end := span(fc, s.arrCol, s.sc)
		fold := s.p.Filter.SliceCols(start, end)
		folds = append(folds, fold.PadTo(fold.Rows(), s.arrCol))
	}

	s.filterPrefetch = mat.VStack(folds...)
	s.prefetchReady = true
}

func (s *weightStationary) CreateDemandMatrices() {
	s.mustHaveParams()

	s.createIfmapDemand()
	s.createFilterDemand()
	s.createOfmapDemand()

	ifmapWidth := s.arrRow
	if s.optimized() {
		ifmapWidth = -1
	}

	s.finishDemand(ifmapWidth, s.arrCol, s.arrCol)
}

func (s *weightStationary) createIfmapDemand() {
	folds := make([]mat.Matrix, 0, s.rowFoldDemand*s.colFold)
	sparseReads := 0.0

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFoldDemand; fr++ {
			if s.optimized() {
				folds = append(folds, s.sparseIfmapFold(fr))
				continue
			}

			start, end := span(fr, s.arrRow, s.sr)
			fold := s.p.Ifmap.SliceCols(start, end)

			if s.p.Sparsity.Enabled {
				// Reads cover the unpruned window.
				sparseReads += float64(fold.Len()*s.p.Sparsity.M) /
					float64(s.p.Sparsity.N)
			} else {
				s.ifmapReads += int64(fold.Len())
			}

			fold = mat.VStack(
				mat.New(s.arrRow, s.arrRow),
				fold.PadTo(s.t, s.arrRow),
				mat.New(s.arrCol-1, s.arrRow),
			)
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.ifmapReads += int64(math.Round(sparseReads))
	s.ifmapDemand = mat.VStack(folds...)
}

// sparseIfmapFold feeds two tiles of the unpruned ifmap per fold. The
// compressed filter selects which of them each PE uses.
func (s *weightStationary) sparseIfmapFold(fr int) mat.Matrix {
	orig := s.p.IfmapOriginal
	start, end := span(fr, 2*s.arrRow, orig.Cols())

	fold := mat.SkewRowSparsity(orig.SliceCols(start, end), s.arrRow, s.p.Sparsity.M)
	s.ifmapReads += int64(fold.Len())

	width := max(s.arrRow, fold.Cols())

	return mat.VStack(
		mat.New(s.arrRow, width),
		fold.PadTo(fold.Rows(), width),
		mat.New(s.arrCol-1, width),
	)
}

func (s *weightStationary) createFilterDemand() {
	suffix := mat.New(s.arrRow+s.arrCol+s.t-2, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFoldDemand*s.colFold)
	filterRows := s.p.Filter.Rows()
	arr := s.arrRow * s.arrCol

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFoldDemand; fr++ {
			r0, r1 := span(fr, s.arrRow, filterRows)
			c0, c1 := span(fc, s.arrCol, s.sc)

			fold := s.p.Filter.Slice(r0, r1, c0, c1)
			s.filterReads += int64(fold.Len())

			fold = fold.PadTo(s.arrRow, s.arrCol).FlipRows()
			unused := fold.CountNull()
			fold = mat.VStack(fold, suffix)

			s.recordFold((r1-r0)*(c1-c0), fold.Rows()+fold.Cols()-1,
				float64(arr-unused)/float64(arr))

			folds = append(folds, fold)
		}
	}

	s.filterDemand = mat.VStack(folds...)
}

func (s *weightStationary) createOfmapDemand() {
	prefix := mat.New(2*s.arrRow-1, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFoldDemand*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFoldDemand; fr++ {
			start, end := span(fc, s.arrCol, s.sc)
			fold := s.p.Ofmap.SliceCols(start, end)
			s.ofmapWrites += int64(fold.Len())

			fold = mat.VStack(prefix, fold.PadTo(fold.Rows(), s.arrCol))
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.ofmapDemand = mat.VStack(folds...)
}
