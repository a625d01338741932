package core_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/core"
	"github.com/sarchlab/systolica/memory"
	"github.com/sarchlab/systolica/topology"
)

var _ = Describe("LayerSim", func() {
	var (
		layer topology.Layer
		cfg   *config.Config
	)

	BeforeEach(func() {
		layer = topology.GEMMLayer("gemm", 4, 4, 4)
		cfg = config.NewBuilder().
			WithArrayDims(4, 4).
			WithUserBandwidths(4).
			Build()
	})

	run := func() *core.LayerSim {
		s := core.NewLayerSim(0, layer, cfg)
		Expect(s.Run()).To(Succeed())

		return s
	}

	It("should panic when reports are read before the run", func() {
		s := core.NewLayerSim(0, layer, cfg)

		Expect(func() { s.CalcReportData() }).To(Panic())
		Expect(func() { s.ComputeReport() }).To(Panic())
		Expect(func() { s.Traces() }).To(Panic())
		Expect(func() { s.NumCompute() }).To(Panic())
	})

	It("should not stall when every operand fits in the buffers", func() {
		s := run()

		c := s.ComputeReport()
		Expect(c.TotalCycles).To(BeNumerically(">", 0))
		Expect(c.StallCycles).To(Equal(int64(0)))
		Expect(s.MemorySystem().EstimateBandwidthMode()).To(BeFalse())
	})

	It("should compute the overall utilization from the compute count", func() {
		s := run()

		c := s.ComputeReport()
		Expect(s.NumCompute()).To(Equal(int64(16)))
		Expect(c.OverallUtil).To(BeNumerically("~",
			float64(16*100)/float64(c.TotalCycles*16)))
	})

	It("should report SRAM accesses from the demand", func() {
		s := run()

		d := s.DetailReport()
		Expect(d.IfmapSRAM.Count).To(Equal(int64(16)))
		Expect(d.FilterSRAM.Count).To(Equal(int64(16)))
		Expect(d.OfmapSRAM.Count).To(Equal(int64(16)))

		b := s.BandwidthReport()
		total := float64(s.ComputeReport().TotalCycles)
		Expect(b.IfmapSRAM).To(BeNumerically("~", 16/total))
	})

	It("should derive DRAM bandwidth from the access window", func() {
		s := run()

		d := s.DetailReport().IfmapDRAM
		Expect(d.Count).To(Equal(int64(16)))
		Expect(s.BandwidthReport().IfmapDRAM).To(BeNumerically("~",
			float64(d.Count)/float64(d.Stop-d.Start+1)))
	})

	It("should estimate bandwidth in CALC mode", func() {
		cfg = config.NewBuilder().WithArrayDims(4, 4).WithCalcBandwidth().Build()
		s := run()

		Expect(s.MemorySystem().EstimateBandwidthMode()).To(BeTrue())
		Expect(s.ComputeReport().StallCycles).To(Equal(int64(0)))
	})

	for _, df := range []config.Dataflow{
		config.OutputStationary,
		config.WeightStationary,
		config.InputStationary,
	} {
		It("should run the "+string(df)+" dataflow", func() {
			cfg = config.NewBuilder().
				WithArrayDims(2, 2).
				WithDataflow(df).
				WithUserBandwidths(2, 2, 2).
				Build()
			s := run()

			c := s.ComputeReport()
			Expect(c.TotalCycles).To(BeNumerically(">", 0))
			Expect(c.StallCycles).To(BeNumerically(">=", 0))
			Expect(c.MappingEfficiency).To(BeNumerically(">", 0))
			Expect(s.SparseReport()).To(BeNil())
		})
	}

	It("should use a memory system set by the caller", func() {
		sp := memory.NewScratchpad(memory.ScratchpadConfig{
			WordSize:         1,
			IfmapBufBytes:    1024,
			FilterBufBytes:   1024,
			OfmapBufBytes:    1024,
			ReadActiveFrac:   0.5,
			WriteActiveFrac:  0.5,
			HitLatency:       1,
			IfmapBandwidth:   4,
			FilterBandwidth:  4,
			OfmapBandwidth:   4,
			ReadPortLatency:  1,
			WritePortLatency: 0,
		})

		s := core.NewLayerSim(0, layer, cfg)
		s.SetMemorySystem(sp)
		Expect(s.Run()).To(Succeed())

		Expect(s.MemorySystem()).To(BeIdenticalTo(sp))
		Expect(sp.TotalComputeCycles()).
			To(Equal(s.ComputeReport().TotalCycles))
	})

	It("should report the storage of sparse filters", func() {
		layer.SparsityN, layer.SparsityM = 2, 4
		cfg = config.NewBuilder().
			WithArrayDims(4, 4).
			WithUserBandwidths(4).
			WithSparsity(config.CSR, false, 4).
			Build()

		s := run()

		sr := s.SparseReport()
		Expect(sr).NotTo(BeNil())
		Expect(sr.Representation).To(Equal(config.CSR))
		Expect(sr.OriginalStorage).To(Equal(16.0))
		Expect(sr.MetadataStorage).To(BeNumerically(">", 0))
		Expect(s.BandwidthReport().FilterMetadataSRAM).
			To(Equal(sr.AvgFilterMetadataSRAMBW))
		Expect(s.Result().Sparse).To(Equal(sr))
	})

	It("should fail on an unknown sparse representation", func() {
		layer.SparsityN, layer.SparsityM = 2, 4
		cfg = config.NewBuilder().
			WithArrayDims(4, 4).
			WithUserBandwidths(4).
			WithSparsity(config.Representation("coo"), false, 4).
			Build()

		s := core.NewLayerSim(0, layer, cfg)

		var err error
		Expect(func() { err = s.Run() }).NotTo(Panic())
		Expect(err).To(MatchError(ContainSubstring("unknown sparse representation")))
	})

	It("should fail when the latency trace is missing", func() {
		cfg.Memory.LatencyTrace = filepath.Join(GinkgoT().TempDir(), "none.csv")
		cfg.Memory.RequestQueueSize = 4

		s := core.NewLayerSim(0, layer, cfg)
		Expect(s.Run()).NotTo(Succeed())
	})

	It("should replay a latency trace", func() {
		path := filepath.Join(GinkgoT().TempDir(), "latency.csv")
		Expect(os.WriteFile(path, []byte("latency\n3\n5\n"), 0o644)).To(Succeed())
		cfg.Memory.LatencyTrace = path
		cfg.Memory.RequestQueueSize = 4

		s := run()

		Expect(s.ComputeReport().StallCycles).To(BeNumerically(">", 0))
	})

	It("should save the six traces of the layer", func() {
		s := run()
		dir := GinkgoT().TempDir()

		Expect(s.SaveTraces(dir)).To(Succeed())

		for _, name := range []string{
			"IFMAP_SRAM_TRACE.csv", "FILTER_SRAM_TRACE.csv", "OFMAP_SRAM_TRACE.csv",
			"IFMAP_DRAM_TRACE.csv", "FILTER_DRAM_TRACE.csv", "OFMAP_DRAM_TRACE.csv",
		} {
			Expect(filepath.Join(dir, "layer0", name)).To(BeAnExistingFile())
		}
	})

	It("should print the layer report", func() {
		s := run()

		var buf bytes.Buffer
		core.PrintLayerReport(&buf, s)

		Expect(buf.String()).To(ContainSubstring("Compute cycles"))
		Expect(buf.String()).To(ContainSubstring("Average OFMAP DRAM BW"))
	})
})
