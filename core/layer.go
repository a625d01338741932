// Package core simulates one layer of a workload on a systolic array. It
// connects the operand builder, the dataflow demand generator, and the
// scratchpad, and turns what they report into per-layer results.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/compute"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/memory"
	"github.com/sarchlab/systolica/operand"
	"github.com/sarchlab/systolica/report"
	"github.com/sarchlab/systolica/topology"
)

// The backing bandwidths used when the bandwidth is estimated. The ofmap
// drains one line per cycle.
const (
	calcIfmapBandwidth  = 10
	calcFilterBandwidth = 10
)

// LayerSim simulates a single layer.
type LayerSim struct {
	id    int
	layer topology.Layer
	cfg   *config.Config

	operands *operand.Builder
	compute  compute.System
	memory   *memory.Scratchpad
	hooks    []sim.Hook

	memoryReady bool
	runDone     bool
	reportReady bool

	numCompute  int64
	numMACUnits int64

	computeReport   report.ComputeReport
	bandwidthReport report.BandwidthReport
	detailReport    report.DetailReport
	sparseReport    *report.SparseReport

	filterStorage operand.Storage
}

// NewLayerSim creates the simulation of the layer with the given index.
func NewLayerSim(id int, layer topology.Layer, cfg *config.Config) *LayerSim {
	s := &LayerSim{
		id:          id,
		layer:       layer,
		cfg:         cfg,
		operands:    operand.NewBuilder(),
		compute:     compute.New(cfg.Architecture.Dataflow),
		numMACUnits: int64(cfg.Architecture.ArrayRows * cfg.Architecture.ArrayCols),
	}

	a := cfg.Architecture
	s.operands.SetParams(layer,
		operand.Offsets{
			Ifmap:  a.IfmapOffset,
			Filter: a.FilterOffset,
			Ofmap:  a.OfmapOffset,
		},
		operand.SparsityParams{
			Enabled:          cfg.Sparsity.Enabled,
			OptimizedMapping: cfg.Sparsity.OptimizedMapping,
			BlockSize:        cfg.Sparsity.BlockSize,
			RandSeed:         cfg.Sparsity.RandSeed,
		})

	return s
}

// ID returns the index of the layer in the topology.
func (s *LayerSim) ID() int {
	return s.id
}

// Layer returns the simulated layer.
func (s *LayerSim) Layer() topology.Layer {
	return s.layer
}

// SetMemorySystem hands in a scratchpad that is managed by the caller. The
// simulation will not build its own.
func (s *LayerSim) SetMemorySystem(sp *memory.Scratchpad) {
	s.memory = sp
	s.memoryReady = true

	for _, h := range s.hooks {
		sp.AcceptHook(h)
	}
}

// AcceptHook registers a hook with the buffers and ports of the scratchpad,
// including one that is built later by Run.
func (s *LayerSim) AcceptHook(hook sim.Hook) {
	s.hooks = append(s.hooks, hook)

	if s.memory != nil {
		s.memory.AcceptHook(hook)
	}
}

// BufferName tells which operand a buffer or a port of the scratchpad
// serves.
func (s *LayerSim) BufferName(domain sim.Hookable) string {
	if s.memory == nil {
		return ""
	}

	return s.memory.BufferName(domain)
}

// MemorySystem returns the scratchpad, which is nil until the layer runs or
// one is set.
func (s *LayerSim) MemorySystem() *memory.Scratchpad {
	return s.memory
}

// Run generates the operands and the demand of the layer and replays the
// demand through the scratchpad.
func (s *LayerSim) Run() error {
	params, err := s.computeParams()
	if err != nil {
		return fmt.Errorf("layer %d: %w", s.id, err)
	}

	if s.cfg.Sparsity.Enabled {
		s.filterStorage, err = s.operands.FilterStorage(s.cfg.Sparsity.Representation)
		if err != nil {
			return fmt.Errorf("layer %d: %w", s.id, err)
		}
	}

	s.numCompute = int64(s.layer.OfmapPixels()) * int64(s.layer.WindowSize())

	s.compute.SetParams(params)
	s.compute.CreatePrefetchMatrices()
	s.compute.CreateDemandMatrices()

	ifmapPrefetch, filterPrefetch := s.compute.PrefetchMatrices()
	ifmapDemand, filterDemand, ofmapDemand := s.compute.DemandMatrices()

	if !s.memoryReady {
		sp, err := s.buildMemorySystem()
		if err != nil {
			return fmt.Errorf("layer %d: %w", s.id, err)
		}

		s.memory = sp
		for _, h := range s.hooks {
			sp.AcceptHook(h)
		}
	}

	if !s.memory.EstimateBandwidthMode() {
		s.memory.SetReadBufPrefetchMatrices(ifmapPrefetch, filterPrefetch)
	}

	Trace("LayerSim",
		"Behavior", "Service",
		"Layer", s.id,
		"Name", s.layer.Name,
		"DemandRows", ofmapDemand.Rows(),
	)

	s.memory.ServiceMemoryRequests(ifmapDemand, filterDemand, ofmapDemand)

	s.runDone = true
	s.reportReady = false

	return nil
}

func (s *LayerSim) computeParams() (compute.Params, error) {
	ifmap, err := s.operands.IfmapMatrix()
	if err != nil {
		return compute.Params{}, err
	}

	filter, err := s.operands.FilterMatrix()
	if err != nil {
		return compute.Params{}, err
	}

	ofmap, err := s.operands.OfmapMatrix()
	if err != nil {
		return compute.Params{}, err
	}

	original, err := s.operands.OriginalIfmapMatrix()
	if err != nil {
		return compute.Params{}, err
	}

	sp := s.cfg.Sparsity
	m := s.layer.SparsityM
	if sp.OptimizedMapping {
		m = sp.BlockSize
	}

	return compute.Params{
		ArrayRows:     s.cfg.Architecture.ArrayRows,
		ArrayCols:     s.cfg.Architecture.ArrayCols,
		Ifmap:         ifmap,
		Filter:        filter,
		Ofmap:         ofmap,
		IfmapOriginal: original,
		Sparsity: compute.SparsityParams{
			Enabled:          sp.Enabled,
			OptimizedMapping: sp.OptimizedMapping,
			N:                s.layer.SparsityN,
			M:                m,
		},
	}, nil
}

func (s *LayerSim) buildMemorySystem() (*memory.Scratchpad, error) {
	a := s.cfg.Architecture
	m := s.cfg.Memory

	spCfg := memory.ScratchpadConfig{
		WordSize:         int64(m.WordSize),
		IfmapBufBytes:    int64(a.IfmapSRAMKB) * 1024,
		FilterBufBytes:   int64(a.FilterSRAMKB) * 1024,
		OfmapBufBytes:    int64(a.OfmapSRAMKB) * 1024,
		ReadActiveFrac:   m.ReadActiveFrac,
		WriteActiveFrac:  m.WriteActiveFrac,
		HitLatency:       m.HitLatency,
		ReadPortLatency:  m.ReadPortLatency,
		WritePortLatency: m.WritePortLatency,
		RequestQueueSize: m.RequestQueueSize,
	}

	if s.cfg.UseUserBandwidth() {
		spCfg.IfmapBandwidth, spCfg.FilterBandwidth, spCfg.OfmapBandwidth =
			s.cfg.UserBandwidths()
	} else {
		spCfg.EstimateBandwidthMode = true
		spCfg.IfmapBandwidth = calcIfmapBandwidth
		spCfg.FilterBandwidth = calcFilterBandwidth
		spCfg.OfmapBandwidth = a.ArrayCols
	}

	if m.LatencyTrace != "" {
		latencies, err := memory.LoadLatencyTrace(m.LatencyTrace)
		if err != nil {
			return nil, err
		}

		spCfg.LatencyTrace = latencies
	}

	return memory.NewScratchpad(spCfg), nil
}

func (s *LayerSim) mustHaveRun() {
	if !s.runDone {
		panic(fmt.Sprintf("layer %d has not run yet", s.id))
	}
}

// CalcReportData gathers the report items from the compute system and the
// scratchpad.
func (s *LayerSim) CalcReportData() {
	s.mustHaveRun()

	total := s.memory.TotalComputeCycles()

	s.computeReport = report.ComputeReport{
		TotalCycles:       total,
		StallCycles:       s.memory.StallCycles(),
		OverallUtil:       float64(s.numCompute*100) / float64(total*s.numMACUnits),
		MappingEfficiency: s.compute.AvgMappingEfficiency() * 100,
		ComputeUtil:       s.compute.AvgComputeUtilization() * 100,
	}

	s.calcDetailReport()
	s.calcBandwidthReport()

	if s.cfg.Sparsity.Enabled {
		s.calcSparseReport()
	}

	s.reportReady = true
}

func (s *LayerSim) calcDetailReport() {
	d := &s.detailReport
	sp := s.memory

	d.IfmapSRAM.Start, d.IfmapSRAM.Stop = sp.IfmapSRAMStartStop()
	d.IfmapSRAM.Count = s.compute.IfmapRequests()

	d.FilterSRAM.Start, d.FilterSRAM.Stop = sp.FilterSRAMStartStop()
	d.FilterSRAM.Count = s.compute.FilterRequests()

	d.OfmapSRAM.Start, d.OfmapSRAM.Stop = sp.OfmapSRAMStartStop()
	d.OfmapSRAM.Count = s.compute.OfmapRequests()

	d.IfmapDRAM.Start, d.IfmapDRAM.Stop, d.IfmapDRAM.Count = sp.IfmapDRAMDetails()
	d.FilterDRAM.Start, d.FilterDRAM.Stop, d.FilterDRAM.Count = sp.FilterDRAMDetails()
	d.OfmapDRAM.Start, d.OfmapDRAM.Stop, d.OfmapDRAM.Count = sp.OfmapDRAMDetails()
}

func (s *LayerSim) calcBandwidthReport() {
	total := float64(s.computeReport.TotalCycles)
	d := s.detailReport

	s.bandwidthReport = report.BandwidthReport{
		IfmapSRAM:  float64(d.IfmapSRAM.Count) / total,
		FilterSRAM: float64(d.FilterSRAM.Count) / total,
		OfmapSRAM:  float64(d.OfmapSRAM.Count) / total,
		IfmapDRAM:  dramBandwidth(d.IfmapDRAM),
		FilterDRAM: dramBandwidth(d.FilterDRAM),
		OfmapDRAM:  dramBandwidth(d.OfmapDRAM),
	}
}

func dramBandwidth(a report.AccessDetail) float64 {
	return float64(a.Count) / float64(a.Stop-a.Start+1)
}

// calcSparseReport charges every filter word read from the SRAM with its
// share of the metadata.
func (s *LayerSim) calcSparseReport() {
	storage := s.filterStorage

	metadataBW := 0.0
	if data := storage.New - storage.Metadata; data > 0 {
		perWord := storage.Metadata / data
		metadataBW = s.bandwidthReport.FilterSRAM * perWord
	}

	s.bandwidthReport.FilterMetadataSRAM = metadataBW
	s.sparseReport = &report.SparseReport{
		Representation:          s.cfg.Sparsity.Representation,
		OriginalStorage:         storage.Original,
		NewStorage:              storage.New,
		MetadataStorage:         storage.Metadata,
		AvgFilterMetadataSRAMBW: metadataBW,
	}
}

func (s *LayerSim) ensureReport() {
	if !s.reportReady {
		s.CalcReportData()
	}
}

// NumCompute returns the number of MACs that produce the ofmap of one
// filter, summed over the window.
func (s *LayerSim) NumCompute() int64 {
	s.mustHaveRun()
	return s.numCompute
}

// ComputeReport returns the cycles and the utilization of the layer.
func (s *LayerSim) ComputeReport() report.ComputeReport {
	s.ensureReport()
	return s.computeReport
}

// BandwidthReport returns the average bandwidths of the layer.
func (s *LayerSim) BandwidthReport() report.BandwidthReport {
	s.ensureReport()
	return s.bandwidthReport
}

// DetailReport returns the access windows of the layer.
func (s *LayerSim) DetailReport() report.DetailReport {
	s.ensureReport()
	return s.detailReport
}

// SparseReport returns the filter storage of the layer. It is nil when
// sparsity is off.
func (s *LayerSim) SparseReport() *report.SparseReport {
	s.ensureReport()
	return s.sparseReport
}

// Result bundles all the reports of the layer.
func (s *LayerSim) Result() report.LayerResult {
	s.ensureReport()

	return report.LayerResult{
		LayerID:   s.id,
		Name:      s.layer.Name,
		Compute:   s.computeReport,
		Bandwidth: s.bandwidthReport,
		Detail:    s.detailReport,
		Sparse:    s.sparseReport,
	}
}

// Traces returns the SRAM and DRAM traces of the three operands.
func (s *LayerSim) Traces() report.TraceSet {
	s.mustHaveRun()

	return report.TraceSet{
		IfmapSRAM:  s.memory.IfmapSRAMTrace(),
		FilterSRAM: s.memory.FilterSRAMTrace(),
		OfmapSRAM:  s.memory.OfmapSRAMTrace(),
		IfmapDRAM:  s.memory.IfmapDRAMTrace(),
		FilterDRAM: s.memory.FilterDRAMTrace(),
		OfmapDRAM:  s.memory.OfmapDRAMTrace(),
	}
}

// SaveTraces writes the traces into <dir>/layer<ID>.
func (s *LayerSim) SaveTraces(dir string) error {
	return report.SaveTraces(dir, s.id, s.Traces())
}
