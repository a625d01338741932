package compute

import "github.com/sarchlab/systolica/mat"

// inputStationary pins a tile of the ifmap in the array. Filter columns
// stream in from the left and partial sums leave from the bottom edge.
type inputStationary struct {
	folding

	ifmapT mat.Matrix
}

func (s *inputStationary) SetParams(p Params) {
	s.setParams(p)
	s.checkOperandAgreement()

	s.ifmapT = p.Ifmap.Transpose()
	s.sr = p.Ifmap.Cols()
	s.sc = p.Ifmap.Rows()
	s.t = p.Filter.Cols()
	s.rowFold = ceilDiv(s.sr, s.arrRow)
	s.colFold = ceilDiv(s.sc, s.arrCol)
}

func (s *inputStationary) CreatePrefetchMatrices() {
	s.mustHaveParams()

	folds := make([]mat.Matrix, 0, s.colFold)
	for fc := 0; fc < s.colFold; fc++ {
		start, end := span(fc, s.arrCol, s.sc)
		folds = append(folds, s.ifmapT.SliceCols(start, end).PadTo(s.sr, s.arrCol))
	}

	s.ifmapPrefetch = mat.VStack(folds...)

	folds = make([]mat.Matrix, 0, s.rowFold)
	for fr := 0; fr < s.rowFold; fr++ {
		start, end := span(fr, s.arrRow, s.sr)
		fold := s.p.Filter.SliceRows(start, end).Transpose()
		folds = append(folds, fold.PadTo(s.t, s.arrRow))
	}

	s.filterPrefetch = mat.DiagonalFlatten(mat.VStack(folds...))
	s.prefetchReady = true
}

func (s *inputStationary) CreateDemandMatrices() {
	s.mustHaveParams()

	s.createIfmapDemand()
	s.createFilterDemand()
	s.createOfmapDemand()

	s.finishDemand(s.arrCol, s.arrRow, s.arrCol)
}

func (s *inputStationary) createIfmapDemand() {
	suffix := mat.New(s.arrRow+s.arrCol+s.t-2, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			r0, r1 := span(fr, s.arrRow, s.sr)
			c0, c1 := span(fc, s.arrCol, s.sc)

			fold := s.ifmapT.Slice(r0, r1, c0, c1)
			s.ifmapReads += int64(fold.Len())

			fold = mat.VStack(fold.PadTo(s.arrRow, s.arrCol).FlipRows(), suffix)

			macUsed := (r1 - r0) * (c1 - c0)
			s.recordFold(macUsed, fold.Rows()+fold.Cols()-1,
				float64(macUsed)/float64(s.arrRow*s.arrCol))

			folds = append(folds, fold)
		}
	}

	s.ifmapDemand = mat.VStack(folds...)
}

func (s *inputStationary) createFilterDemand() {
	prefix := mat.New(s.arrRow, s.arrRow)
	suffix := mat.New(s.arrCol-1, s.arrRow)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			start, end := span(fr, s.arrRow, s.sr)
			fold := s.p.Filter.SliceRows(start, end).Transpose()
			s.filterReads += int64(fold.Len())

			fold = mat.VStack(prefix, fold.PadTo(s.t, s.arrRow), suffix)
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.filterDemand = mat.VStack(folds...)
}

func (s *inputStationary) createOfmapDemand() {
	prefix := mat.New(2*s.arrRow-1, s.arrCol)
	folds := make([]mat.Matrix, 0, s.rowFold*s.colFold)

	for fc := 0; fc < s.colFold; fc++ {
		for fr := 0; fr < s.rowFold; fr++ {
			start, end := span(fc, s.arrCol, s.sc)
			fold := s.p.Ofmap.SliceRows(start, end).Transpose()
			s.ofmapWrites += int64(fold.Len())

			fold = mat.VStack(prefix, fold.PadTo(s.t, s.arrCol))
			folds = append(folds, mat.Skew(fold))
		}
	}

	s.ofmapDemand = mat.VStack(folds...)
}
