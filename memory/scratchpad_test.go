package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/memory"
)

var _ = Describe("Scratchpad", func() {
	var (
		cfg                     memory.ScratchpadConfig
		ifmap, filter, ofmap    mat.Matrix
		ifmapFetch, filterFetch mat.Matrix
	)

	BeforeEach(func() {
		cfg = memory.ScratchpadConfig{
			WordSize:         1,
			IfmapBufBytes:    1024,
			FilterBufBytes:   1024,
			OfmapBufBytes:    1024,
			ReadActiveFrac:   0.5,
			WriteActiveFrac:  0.5,
			HitLatency:       1,
			IfmapBandwidth:   2,
			FilterBandwidth:  2,
			OfmapBandwidth:   2,
			ReadPortLatency:  1,
			WritePortLatency: 0,
		}

		ifmap = mat.FromRows([][]int64{{0, 1}, {2, 3}, {null, null}})
		filter = mat.FromRows([][]int64{{10, 11}, {null, 12}, {13, null}})
		ofmap = mat.FromRows([][]int64{{null, null}, {20, null}, {21, 22}})

		ifmapFetch = sequence(0, 4)
		filterFetch = sequence(10, 14)
	})

	run := func(cfg memory.ScratchpadConfig) *memory.Scratchpad {
		s := memory.NewScratchpad(cfg)
		s.SetReadBufPrefetchMatrices(ifmapFetch, filterFetch)
		s.ServiceMemoryRequests(ifmap, filter, ofmap)

		return s
	}

	It("should panic when queried before a run", func() {
		s := memory.NewScratchpad(cfg)

		Expect(func() { s.TotalComputeCycles() }).To(Panic())
		Expect(func() { s.StallCycles() }).To(Panic())
		Expect(func() { s.IfmapSRAMStartStop() }).To(Panic())
		Expect(func() { s.OfmapDRAMDetails() }).To(Panic())
	})

	It("should panic on demand matrices of different lengths", func() {
		s := memory.NewScratchpad(cfg)
		s.SetReadBufPrefetchMatrices(ifmapFetch, filterFetch)

		Expect(func() {
			s.ServiceMemoryRequests(ifmap.SliceRows(0, 2), filter, ofmap)
		}).To(Panic())
	})

	It("should replay the demand without stalls when everything fits", func() {
		s := run(cfg)

		Expect(s.TotalComputeCycles()).To(Equal(int64(2)))
		Expect(s.StallCycles()).To(Equal(int64(0)))

		Expect(s.IfmapSRAMTrace().Col(0)).To(Equal([]int64{1, 2, 3}))
		Expect(s.OfmapSRAMTrace().Col(0)).To(Equal([]int64{0, 1, 2}))
		Expect(s.IfmapSRAMTrace().Row(1)).To(Equal([]int64{2, 2, 3}))
	})

	It("should report SRAM start and stop cycles", func() {
		s := run(cfg)

		start, stop := s.IfmapSRAMStartStop()
		Expect([]int64{start, stop}).To(Equal([]int64{1, 2}))

		start, stop = s.FilterSRAMStartStop()
		Expect([]int64{start, stop}).To(Equal([]int64{1, 3}))

		start, stop = s.OfmapSRAMStartStop()
		Expect([]int64{start, stop}).To(Equal([]int64{1, 2}))
	})

	It("should report DRAM details", func() {
		s := run(cfg)

		start, stop, reads := s.IfmapDRAMDetails()
		Expect([]int64{start, stop, reads}).To(Equal([]int64{-2, -1, 4}))

		start, stop, reads = s.FilterDRAMDetails()
		Expect([]int64{start, stop, reads}).To(Equal([]int64{-2, -1, 4}))

		start, stop, writes := s.OfmapDRAMDetails()
		Expect([]int64{start, stop, writes}).To(Equal([]int64{2, 3, 3}))

		Expect(s.OfmapDRAMTrace().Rows()).To(Equal(2))
	})

	It("should give matching DRAM bandwidth from details and traces", func() {
		s := run(cfg)

		start, stop, reads := s.IfmapDRAMDetails()
		trace := s.IfmapDRAMTrace()

		counted := 0
		for r := 0; r < trace.Rows(); r++ {
			for _, a := range trace.Row(r)[1:] {
				if a != null {
					counted++
				}
			}
		}

		bw := float64(reads) / float64(stop-start+1)
		Expect(bw).To(BeNumerically("~", float64(counted)/float64(stop-start+1)))
	})

	It("should give identical results on fresh scratchpads", func() {
		a := run(cfg)
		b := run(cfg)

		Expect(a.IfmapSRAMTrace().Equal(b.IfmapSRAMTrace())).To(BeTrue())
		Expect(a.FilterDRAMTrace().Equal(b.FilterDRAMTrace())).To(BeTrue())
		Expect(a.OfmapDRAMTrace().Equal(b.OfmapDRAMTrace())).To(BeTrue())
		Expect(a.StallCycles()).To(Equal(b.StallCycles()))
	})

	It("should stall every operand when one of them misses", func() {
		cfg.IfmapBufBytes = 4
		cfg.IfmapBandwidth = 1
		ifmapFetch = sequence(0, 8)
		ifmap = mat.FromRows([][]int64{{0, 1}, {6, 7}, {null, null}})

		s := run(cfg)

		Expect(s.StallCycles()).To(Equal(int64(6)))
		Expect(s.TotalComputeCycles()).To(Equal(int64(8)))

		cycles := s.FilterSRAMTrace().Col(0)
		for i := 1; i < len(cycles); i++ {
			Expect(cycles[i]).To(BeNumerically(">", cycles[i-1]))
		}
	})

	It("should run the estimate mode without prefetch matrices", func() {
		cfg.EstimateBandwidthMode = true
		s := memory.NewScratchpad(cfg)
		s.SetReadBufPrefetchMatrices(ifmapFetch, filterFetch)
		s.ServiceMemoryRequests(ifmap, filter, ofmap)

		Expect(s.EstimateBandwidthMode()).To(BeTrue())
		Expect(s.StallCycles()).To(Equal(int64(0)))

		start, stop, reads := s.IfmapDRAMDetails()
		Expect([]int64{start, stop, reads}).To(Equal([]int64{-5, -1, 4}))
	})

	It("should replay a latency trace on the read ports", func() {
		cfg.LatencyTrace = []int64{4}
		cfg.RequestQueueSize = 2

		s := run(cfg)

		start, _, _ := s.IfmapDRAMDetails()
		Expect(start).To(Equal(int64(-2)))
		Expect(s.StallCycles()).To(Equal(int64(3)))
	})

	It("should pass hooks to buffers and ports", func() {
		hook := &recordingHook{}
		s := memory.NewScratchpad(cfg)
		s.AcceptHook(hook)
		s.SetReadBufPrefetchMatrices(ifmapFetch, filterFetch)
		s.ServiceMemoryRequests(ifmap, filter, ofmap)

		Expect(hook.count(memory.HookPosBufferFill)).To(Equal(4))
		Expect(hook.count(memory.HookPosBufferDrain)).To(Equal(2))
		Expect(hook.count(memory.HookPosPortReq)).To(Equal(6))
	})

	It("should run again after a reset", func() {
		s := run(cfg)
		first := s.OfmapDRAMTrace()

		s.ResetBufferStates()
		Expect(func() { s.TotalComputeCycles() }).To(Panic())

		s.SetReadBufPrefetchMatrices(ifmapFetch, filterFetch)
		s.ServiceMemoryRequests(ifmap, filter, ofmap)

		Expect(s.OfmapDRAMTrace().Equal(first)).To(BeTrue())
	})
})
