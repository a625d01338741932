package compute_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/compute"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/operand"
	"github.com/sarchlab/systolica/topology"
)

const n = mat.Null

// gemmParams describes a 3x2 by 2x2 multiplication on a 2x2 array.
func gemmParams() compute.Params {
	return compute.Params{
		ArrayRows: 2,
		ArrayCols: 2,
		Ifmap: mat.FromRows([][]int64{
			{0, 1},
			{2, 3},
			{4, 5},
		}),
		Filter: mat.FromRows([][]int64{
			{100, 102},
			{101, 103},
		}),
		Ofmap: mat.FromRows([][]int64{
			{200, 201},
			{202, 203},
			{204, 205},
		}),
	}
}

func generate(df config.Dataflow, p compute.Params) compute.System {
	s := compute.New(df)
	s.SetParams(p)
	s.CreatePrefetchMatrices()
	s.CreateDemandMatrices()

	return s
}

// requests collects every address of a demand matrix.
func requests(m mat.Matrix) map[int64]int {
	seen := map[int64]int{}
	for _, v := range m.Data() {
		if v != mat.Null {
			seen[v]++
		}
	}

	return seen
}

func expectCoverage(op, demand mat.Matrix) {
	seen := requests(demand)
	for _, v := range op.Data() {
		if v != mat.Null {
			Expect(seen).To(HaveKey(v))
		}
	}
}

var _ = Describe("Output Stationary", func() {
	var s compute.System

	BeforeEach(func() {
		s = generate(config.OutputStationary, gemmParams())
	})

	It("should generate demand with the fold shape", func() {
		ifmap, filter, ofmap := s.DemandMatrices()

		Expect(ifmap.Rows()).To(Equal(8))
		Expect(ifmap.Cols()).To(Equal(2))
		Expect(filter.Rows()).To(Equal(8))
		Expect(filter.Cols()).To(Equal(2))
		Expect(ofmap.Rows()).To(Equal(8))
		Expect(ofmap.Cols()).To(Equal(2))
	})

	It("should skew the ifmap", func() {
		ifmap, _, _ := s.DemandMatrices()

		Expect(ifmap.Row(0)).To(Equal([]int64{0, n}))
		Expect(ifmap.Row(1)).To(Equal([]int64{1, 2}))
		Expect(ifmap.Row(2)).To(Equal([]int64{n, 3}))
		Expect(ifmap.Row(3)).To(Equal([]int64{n, n}))
		Expect(ifmap.Row(4)).To(Equal([]int64{4, n}))
	})

	It("should flatten prefetches diagonally", func() {
		ifmap, _ := s.PrefetchMatrices()

		Expect(ifmap.Rows()).To(Equal(1))
		Expect(ifmap.Row(0)).To(Equal([]int64{0, 1, 2, 4, 3, 5, n, n}))
	})

	It("should count requests and metrics", func() {
		Expect(s.IfmapRequests()).To(Equal(int64(6)))
		Expect(s.FilterRequests()).To(Equal(int64(8)))
		Expect(s.OfmapRequests()).To(Equal(int64(6)))
		Expect(s.AvgMappingEfficiency()).To(BeNumerically("~", 0.75))
		Expect(s.AvgComputeUtilization()).To(BeNumerically("~", 0.375))
	})

	It("should cover every operand address", func() {
		p := gemmParams()
		ifmap, filter, ofmap := s.DemandMatrices()

		expectCoverage(p.Ifmap, ifmap)
		expectCoverage(p.Filter, filter)
		expectCoverage(p.Ofmap, ofmap)
	})

	It("should reject mismatching operands", func() {
		p := gemmParams()
		p.Filter = mat.New(3, 2)

		Expect(func() { compute.New(config.OutputStationary).SetParams(p) }).
			To(Panic())
	})

	It("should panic on getters before generation", func() {
		s := compute.New(config.OutputStationary)
		s.SetParams(gemmParams())

		Expect(func() { s.DemandMatrices() }).To(Panic())
		Expect(func() { s.PrefetchMatrices() }).To(Panic())
		Expect(func() { s.AvgMappingEfficiency() }).To(Panic())
	})
})

var _ = Describe("Weight Stationary", func() {
	It("should generate demand with the fold shape", func() {
		s := generate(config.WeightStationary, gemmParams())
		ifmap, filter, ofmap := s.DemandMatrices()

		Expect(ifmap.Rows()).To(Equal(7))
		Expect(filter.Rows()).To(Equal(7))
		Expect(ofmap.Rows()).To(Equal(7))
		Expect(ifmap.Cols()).To(Equal(2))
		Expect(filter.Cols()).To(Equal(2))
		Expect(ofmap.Cols()).To(Equal(2))
	})

	It("should pin the flipped filter tile", func() {
		s := generate(config.WeightStationary, gemmParams())
		_, filter, _ := s.DemandMatrices()

		Expect(filter.Row(0)).To(Equal([]int64{101, 103}))
		Expect(filter.Row(1)).To(Equal([]int64{100, 102}))

		for r := 2; r < filter.Rows(); r++ {
			Expect(filter.RowHasRequest(r)).To(BeFalse())
		}
	})

	It("should count requests and metrics", func() {
		s := generate(config.WeightStationary, gemmParams())

		Expect(s.IfmapRequests()).To(Equal(int64(6)))
		Expect(s.FilterRequests()).To(Equal(int64(4)))
		Expect(s.OfmapRequests()).To(Equal(int64(6)))
		Expect(s.AvgMappingEfficiency()).To(BeNumerically("~", 1.0))
		Expect(s.AvgComputeUtilization()).To(BeNumerically("~", 0.375))
	})

	It("should keep the filter prefetch unflattened", func() {
		s := generate(config.WeightStationary, gemmParams())
		ifmap, filter := s.PrefetchMatrices()

		Expect(ifmap.Rows()).To(Equal(1))
		Expect(filter.Rows()).To(Equal(2))
		Expect(filter.Cols()).To(Equal(2))
	})

	It("should cover every operand address", func() {
		p := gemmParams()
		s := generate(config.WeightStationary, p)
		ifmap, filter, ofmap := s.DemandMatrices()

		expectCoverage(p.Ifmap, ifmap)
		expectCoverage(p.Filter, filter)
		expectCoverage(p.Ofmap, ofmap)
	})

	It("should inflate ifmap reads under fixed sparsity", func() {
		p := gemmParams()
		p.Sparsity = compute.SparsityParams{Enabled: true, N: 2, M: 4}

		s := generate(config.WeightStationary, p)
		Expect(s.IfmapRequests()).To(Equal(int64(12)))
	})

	It("should round sparse ifmap reads once over all folds", func() {
		p := compute.Params{
			ArrayRows: 2,
			ArrayCols: 2,
			Ifmap: mat.FromRows([][]int64{
				{0, 1, 2},
				{3, 4, 5},
			}),
			Filter: mat.FromRows([][]int64{
				{100, 103},
				{101, 104},
				{102, 105},
			}),
			Ofmap: mat.FromRows([][]int64{
				{200, 201},
				{202, 203},
			}),
			Sparsity: compute.SparsityParams{Enabled: true, N: 3, M: 4},
		}

		s := generate(config.WeightStationary, p)
		Expect(s.IfmapRequests()).To(Equal(int64(8)))
	})

	It("should map two tiles per fold with the optimized mapping", func() {
		b := operand.NewBuilder()
		b.SetParams(topology.Layer{
			Name:      "conv",
			IfmapRows: 4, IfmapCols: 4,
			FilterRows: 3, FilterCols: 3,
			Channels: 1, NumFilters: 2,
			RowStride: 1, ColStride: 1,
			SparsityN: 1, SparsityM: 1,
		}, operand.DefaultOffsets(), operand.SparsityParams{
			Enabled:          true,
			OptimizedMapping: true,
			BlockSize:        4,
			RandSeed:         1,
		})

		ifmapOp, _ := b.IfmapMatrix()
		filterOp, _ := b.FilterMatrix()
		ofmapOp, _ := b.OfmapMatrix()
		original, _ := b.OriginalIfmapMatrix()

		s := generate(config.WeightStationary, compute.Params{
			ArrayRows:     4,
			ArrayCols:     2,
			Ifmap:         ifmapOp,
			Filter:        filterOp,
			Ofmap:         ofmapOp,
			IfmapOriginal: original,
			Sparsity: compute.SparsityParams{
				Enabled: true, OptimizedMapping: true, N: 2, M: 4,
			},
		})

		ifmap, filter, ofmap := s.DemandMatrices()
		Expect(ifmap.Rows()).To(Equal(24))
		Expect(filter.Rows()).To(Equal(24))
		Expect(ofmap.Rows()).To(Equal(24))
		Expect(ifmap.Cols()).To(Equal(16))
		Expect(filter.Cols()).To(Equal(2))
	})
})

var _ = Describe("Input Stationary", func() {
	var s compute.System

	BeforeEach(func() {
		s = generate(config.InputStationary, gemmParams())
	})

	It("should generate demand with the fold shape", func() {
		ifmap, filter, ofmap := s.DemandMatrices()

		Expect(ifmap.Rows()).To(Equal(12))
		Expect(filter.Rows()).To(Equal(12))
		Expect(ofmap.Rows()).To(Equal(12))
		Expect(ifmap.Cols()).To(Equal(2))
		Expect(filter.Cols()).To(Equal(2))
		Expect(ofmap.Cols()).To(Equal(2))
	})

	It("should pin the flipped ifmap tile", func() {
		ifmap, _, _ := s.DemandMatrices()

		Expect(ifmap.Row(0)).To(Equal([]int64{1, 3}))
		Expect(ifmap.Row(1)).To(Equal([]int64{0, 2}))
	})

	It("should count requests and metrics", func() {
		Expect(s.IfmapRequests()).To(Equal(int64(6)))
		Expect(s.FilterRequests()).To(Equal(int64(8)))
		Expect(s.OfmapRequests()).To(Equal(int64(6)))
		Expect(s.AvgMappingEfficiency()).To(BeNumerically("~", 0.75))
		Expect(s.AvgComputeUtilization()).To(BeNumerically("~", 6.0/28))
	})

	It("should flatten only the filter prefetch", func() {
		ifmap, filter := s.PrefetchMatrices()

		Expect(ifmap.Rows()).To(Equal(4))
		Expect(ifmap.Cols()).To(Equal(2))
		Expect(filter.Rows()).To(Equal(1))
	})

	It("should cover every operand address", func() {
		p := gemmParams()
		ifmap, filter, ofmap := s.DemandMatrices()

		expectCoverage(p.Ifmap, ifmap)
		expectCoverage(p.Filter, filter)
		expectCoverage(p.Ofmap, ofmap)
	})
})

var _ = Describe("Dataflow selection", func() {
	It("should panic on an unknown dataflow", func() {
		Expect(func() { compute.New("xs") }).To(Panic())
	})
})

var _ = Describe("Operand agreement", func() {
	mismatched := func() compute.Params {
		return compute.Params{
			ArrayRows: 2,
			ArrayCols: 2,
			Ifmap:     mat.New(3, 3),
			Filter:    mat.New(2, 2),
			Ofmap:     mat.New(3, 2),
			Sparsity:  compute.SparsityParams{Enabled: true, N: 1, M: 2},
		}
	}

	DescribeTable("should reject mismatching operands under sparsity",
		func(df config.Dataflow) {
			Expect(func() { compute.New(df).SetParams(mismatched()) }).
				To(Panic())
		},
		Entry("output stationary", config.OutputStationary),
		Entry("input stationary", config.InputStationary),
	)

	It("should let weight stationary take a condensed filter", func() {
		Expect(func() {
			compute.New(config.WeightStationary).SetParams(mismatched())
		}).NotTo(Panic())
	})

	It("should reject mismatching dense operands in weight stationary", func() {
		p := mismatched()
		p.Sparsity = compute.SparsityParams{}

		Expect(func() { compute.New(config.WeightStationary).SetParams(p) }).
			To(Panic())
	})
})
