package compute

import "github.com/sarchlab/systolica/mat"

// outputStationary keeps one output pixel of one filter in every PE. Ifmap
// rows enter from the left edge and filter columns from the top edge.
type outputStationary struct {
	folding

	ifmapT mat.Matrix
}

func (s *outputStationary) SetParams(p Params) {
	s.setParams(p)
	s.checkOperandAgreement()

	s.ifmapT = p.Ifmap.Transpose()
	s.sr = p.Ifmap.Rows()
	s.sc = p.Filter.Cols()
	s.t = p.Ifmap.Cols()
	s.rowFold = ceilDiv(s.sr, s.arrRow)
	s.colFold = ceilDiv(s.sc, s.arrCol)
}

func (s *outputStationary) CreatePrefetchMatrices() {
	s.mustHaveParams()

	folds := make([]mat.Matrix, 0, s.rowFold)
	for fr := 0; fr < s.rowFold; fr++ {
		start, end := span(fr, s.arrRow, s.sr)
		folds = append(folds, s.ifmapT.SliceCols(start, end).PadTo(s.t, s.arrRow))
	}

	s.ifmapPrefetch = mat.DiagonalFlatten(mat.VStack(folds...))

	folds = folds[:0]
	for fc := 0; fc < s.colFold; fc++ {
		start, end := span(fc, s.arrCol, s.sc)
		folds = append(folds, s.p.Filter.SliceCols(start, end).PadTo(s.t, s.arrCol))
	}

	s.filterPrefetch = mat.DiagonalFlatten(mat.VStack(folds...))
	s.prefetchReady = true
}

func (s *outputStationary) CreateDemandMatrices() {
	s.mustHaveParams()

	s.createIfmapDemand()
	s.createFilterDemand()
	s.createOfmapDemand()

	s.finishDemand(s.arrRow, s.arrCol, s.arrCol)
}

func (s *outputStationary) createIfmapDemand() {
	suffix := mat.New(s.arrCol-1, s.arrRow)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			start, end := span(fr, s.arrRow, s.sr)
			fold := s.ifmapT.SliceCols(start, end)
			s.ifmapReads += int64(fold.Len())

			fold = mat.VStack(fold.PadTo(s.t, s.arrRow), suffix)
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.ifmapDemand = mat.VStack(folds...)
}

func (s *outputStationary) createFilterDemand() {
	suffix := mat.New(s.arrRow-1, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			start, end := span(fc, s.arrCol, s.sc)
			fold := s.p.Filter.SliceCols(start, end)
			s.filterReads += int64(fold.Len())

			fold = mat.VStack(fold.PadTo(s.t, s.arrCol), suffix)
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.filterDemand = mat.VStack(folds...)
}

func (s *outputStationary) createOfmapDemand() {
	prefix := mat.New(s.t-1, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			r0, r1 := span(fr, s.arrRow, s.sr)
			c0, c1 := span(fc, s.arrCol, s.sc)

			fold := s.p.Ofmap.Slice(r0, r1, c0, c1)
			s.ofmapWrites += int64(fold.Len())

			fold = mat.VStack(prefix, fold.PadTo(s.arrRow, s.arrCol).FlipRows())

			macUsed := (r1 - r0) * (c1 - c0)
			s.recordFold(macUsed, fold.Rows()+fold.Cols()-1,
				float64(macUsed)/float64(s.arrRow*s.arrCol))

			folds = append(folds, mat.Skew(fold))
		}
	}

	s.ofmapDemand = mat.VStack(folds...)
}
