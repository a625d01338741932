package memory

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// readBuffer is what the scratchpad needs from a read buffer.
type readBuffer interface {
	sim.Hookable

	ServiceReads(reqs mat.Matrix, cycles []int64) []int64
	HitLatency() int64
	TraceMatrix() mat.Matrix
	NumAccesses() int64
	ExternalAccessStartStop() (start, stop int64)
	Reset()
}

// ScratchpadConfig describes the three buffers of a scratchpad and their
// ports.
type ScratchpadConfig struct {
	WordSize int64

	IfmapBufBytes  int64
	FilterBufBytes int64
	OfmapBufBytes  int64

	ReadActiveFrac  float64
	WriteActiveFrac float64
	HitLatency      int64

	IfmapBandwidth  int
	FilterBandwidth int
	OfmapBandwidth  int

	// EstimateBandwidthMode uses buffers that never miss and estimate the
	// bandwidth they would need instead.
	EstimateBandwidthMode bool

	ReadPortLatency  int64
	WritePortLatency int64

	// LatencyTrace, when not empty, makes both read ports replay these
	// latencies.
	LatencyTrace     []int64
	RequestQueueSize int
}

// Scratchpad is a double-buffered memory system with two read buffers for
// the IFMAP and the filter and one write buffer for the OFMAP.
type Scratchpad struct {
	cfg ScratchpadConfig

	ifmapPort  ReadPort
	filterPort ReadPort
	ofmapPort  WritePort

	ifmapBuf  readBuffer
	filterBuf readBuffer
	ofmapBuf  *WriteBuffer

	ifmapTrace  mat.Matrix
	filterTrace mat.Matrix
	ofmapTrace  mat.Matrix

	totalCycles int64
	stallCycles int64
	tracesValid bool
}

// NewScratchpad creates a scratchpad with ports built from the config.
func NewScratchpad(cfg ScratchpadConfig) *Scratchpad {
	var ifmapPort, filterPort ReadPort
	if len(cfg.LatencyTrace) > 0 {
		queue := cfg.RequestQueueSize
		if queue <= 0 {
			queue = 1
		}

		ifmapPort = NewTraceReplayPort(cfg.LatencyTrace, queue)
		filterPort = NewTraceReplayPort(cfg.LatencyTrace, queue)
	} else {
		ifmapPort = NewFixedLatencyPort(cfg.ReadPortLatency)
		filterPort = NewFixedLatencyPort(cfg.ReadPortLatency)
	}

	return NewScratchpadWithPorts(cfg,
		ifmapPort, filterPort, NewFixedLatencyPort(cfg.WritePortLatency))
}

// NewScratchpadWithPorts creates a scratchpad on top of the given ports.
func NewScratchpadWithPorts(
	cfg ScratchpadConfig,
	ifmapPort, filterPort ReadPort,
	ofmapPort WritePort,
) *Scratchpad {
	s := &Scratchpad{
		cfg:        cfg,
		ifmapPort:  ifmapPort,
		filterPort: filterPort,
		ofmapPort:  ofmapPort,
	}

	s.ifmapBuf = s.newReadBuffer(cfg.IfmapBufBytes, cfg.IfmapBandwidth, ifmapPort)
	s.filterBuf = s.newReadBuffer(cfg.FilterBufBytes, cfg.FilterBandwidth, filterPort)
	s.ofmapBuf = NewWriteBuffer(WriteBufferConfig{
		TotalSizeBytes:   cfg.OfmapBufBytes,
		WordSize:         cfg.WordSize,
		ActiveBufFrac:    cfg.WriteActiveFrac,
		BackingBandwidth: cfg.OfmapBandwidth,
	}, ofmapPort)

	return s
}

func (s *Scratchpad) newReadBuffer(size int64, bw int, port ReadPort) readBuffer {
	rc := ReadBufferConfig{
		TotalSizeBytes:   size,
		WordSize:         s.cfg.WordSize,
		ActiveBufFrac:    s.cfg.ReadActiveFrac,
		HitLatency:       s.cfg.HitLatency,
		BackingBandwidth: bw,
	}

	if s.cfg.EstimateBandwidthMode {
		return NewEstimateBwReadBuffer(rc, port)
	}

	return NewReadBuffer(rc, port)
}

// AcceptHook registers the hook with every buffer and every port that
// accepts hooks.
func (s *Scratchpad) AcceptHook(hook sim.Hook) {
	s.ifmapBuf.AcceptHook(hook)
	s.filterBuf.AcceptHook(hook)
	s.ofmapBuf.AcceptHook(hook)

	for _, p := range []any{s.ifmapPort, s.filterPort, s.ofmapPort} {
		if h, ok := p.(sim.Hookable); ok {
			h.AcceptHook(hook)
		}
	}
}

// BufferName tells which operand a hook domain belongs to. It returns
// "IFMAP", "FILTER", or "OFMAP", and an empty string for foreign domains.
func (s *Scratchpad) BufferName(domain sim.Hookable) string {
	switch any(domain) {
	case s.ifmapBuf, s.ifmapPort:
		return "IFMAP"
	case s.filterBuf, s.filterPort:
		return "FILTER"
	case s.ofmapBuf, s.ofmapPort:
		return "OFMAP"
	default:
		return ""
	}
}

// EstimateBandwidthMode tells if the read buffers estimate bandwidth.
func (s *Scratchpad) EstimateBandwidthMode() bool {
	return s.cfg.EstimateBandwidthMode
}

// SetReadBufPrefetchMatrices sets the fetch order of the read buffers. The
// estimating buffers do not prefetch, so the call does nothing for them.
func (s *Scratchpad) SetReadBufPrefetchMatrices(ifmap, filter mat.Matrix) {
	if s.cfg.EstimateBandwidthMode {
		return
	}

	s.ifmapBuf.(*ReadBuffer).SetFetchMatrix(ifmap)
	s.filterBuf.(*ReadBuffer).SetFetchMatrix(filter)
}

// ResetBufferStates resets the three buffers.
func (s *Scratchpad) ResetBufferStates() {
	s.ifmapBuf.Reset()
	s.filterBuf.Reset()
	s.ofmapBuf.Reset()

	for _, p := range []any{s.ifmapPort, s.filterPort} {
		if r, ok := p.(*TraceReplayPort); ok {
			r.Reset()
		}
	}

	s.tracesValid = false
}

// ServiceMemoryRequests replays the demand matrices one cycle at a time.
// A cycle that stalls on any operand delays every later cycle by the
// longest of the stalls.
func (s *Scratchpad) ServiceMemoryRequests(ifmap, filter, ofmap mat.Matrix) {
	rows := ofmap.Rows()
	if ifmap.Rows() != rows || filter.Rows() != rows {
		panic(fmt.Sprintf("demand matrices have %d, %d and %d rows",
			ifmap.Rows(), filter.Rows(), rows))
	}

	if rows == 0 {
		panic("demand matrices are empty")
	}

	s.totalCycles = 0
	s.stallCycles = 0

	ifmapServiced := make([]int64, rows)
	filterServiced := make([]int64, rows)
	ofmapServiced := make([]int64, rows)

	ifmapHit := s.ifmapBuf.HitLatency()
	filterHit := s.filterBuf.HitLatency()

	for i := 0; i < rows; i++ {
		cycle := []int64{int64(i) + s.stallCycles}

		ifmapServiced[i] = s.ifmapBuf.ServiceReads(rowOf(ifmap, i), cycle)[0]
		ifmapStall := ifmapServiced[i] - cycle[0] - ifmapHit

		filterServiced[i] = s.filterBuf.ServiceReads(rowOf(filter, i), cycle)[0]
		filterStall := filterServiced[i] - cycle[0] - filterHit

		ofmapServiced[i] = s.ofmapBuf.ServiceWrites(rowOf(ofmap, i), cycle)[0]
		ofmapStall := ofmapServiced[i] - cycle[0] - 1

		s.stallCycles += max(ifmapStall, filterStall, ofmapStall, 0)
	}

	if s.cfg.EstimateBandwidthMode {
		s.ifmapBuf.(*EstimateBwReadBuffer).CompleteAllPrefetches()
		s.filterBuf.(*EstimateBwReadBuffer).CompleteAllPrefetches()
	}

	s.ofmapBuf.EmptyAllBuffers(ofmapServiced[rows-1])

	s.ifmapTrace = withCycles(ifmapServiced, ifmap)
	s.filterTrace = withCycles(filterServiced, filter)
	s.ofmapTrace = withCycles(ofmapServiced, ofmap)

	s.totalCycles = ofmapServiced[rows-1]
	s.tracesValid = true

	slog.Debug("Scratchpad",
		"Behavior", "Serviced",
		"Rows", rows,
		"TotalCycles", s.totalCycles,
		"StallCycles", s.stallCycles,
	)
}

func rowOf(m mat.Matrix, i int) mat.Matrix {
	return mat.FromSlice(1, m.Cols(), m.Row(i))
}

func withCycles(cycles []int64, demand mat.Matrix) mat.Matrix {
	return mat.HStack(mat.FromSlice(len(cycles), 1, cycles), demand)
}

func (s *Scratchpad) mustHaveTraces() {
	if !s.tracesValid {
		panic("traces are not generated yet")
	}
}

// TotalComputeCycles returns the cycle at which the last OFMAP line is
// written.
func (s *Scratchpad) TotalComputeCycles() int64 {
	s.mustHaveTraces()
	return s.totalCycles
}

// StallCycles returns the number of cycles the array waited for memory.
func (s *Scratchpad) StallCycles() int64 {
	s.mustHaveTraces()
	return s.stallCycles
}

// IfmapSRAMStartStop returns the first and the last cycle with an IFMAP read.
func (s *Scratchpad) IfmapSRAMStartStop() (start, stop int64) {
	s.mustHaveTraces()
	return sramStartStop(s.ifmapTrace)
}

// FilterSRAMStartStop returns the first and the last cycle with a filter
// read.
func (s *Scratchpad) FilterSRAMStartStop() (start, stop int64) {
	s.mustHaveTraces()
	return sramStartStop(s.filterTrace)
}

// OfmapSRAMStartStop returns the first and the last cycle with an OFMAP
// write.
func (s *Scratchpad) OfmapSRAMStartStop() (start, stop int64) {
	s.mustHaveTraces()
	return sramStartStop(s.ofmapTrace)
}

func sramStartStop(trace mat.Matrix) (start, stop int64) {
	hasRequest := func(r int) bool {
		return countRequests(trace.Row(r)[1:]) > 0
	}

	for r := 0; r < trace.Rows(); r++ {
		if hasRequest(r) {
			start = trace.At(r, 0)
			break
		}
	}

	for r := trace.Rows() - 1; r >= 0; r-- {
		if hasRequest(r) {
			stop = trace.At(r, 0)
			break
		}
	}

	return start, stop
}

// IfmapDRAMDetails returns the first and the last cycle of the IFMAP DRAM
// reads and the number of addresses read.
func (s *Scratchpad) IfmapDRAMDetails() (start, stop, reads int64) {
	s.mustHaveTraces()
	start, stop = s.ifmapBuf.ExternalAccessStartStop()

	return start, stop, s.ifmapBuf.NumAccesses()
}

// FilterDRAMDetails returns the first and the last cycle of the filter DRAM
// reads and the number of addresses read.
func (s *Scratchpad) FilterDRAMDetails() (start, stop, reads int64) {
	s.mustHaveTraces()
	start, stop = s.filterBuf.ExternalAccessStartStop()

	return start, stop, s.filterBuf.NumAccesses()
}

// OfmapDRAMDetails returns the first and the last cycle of the OFMAP DRAM
// writes and the number of addresses written.
func (s *Scratchpad) OfmapDRAMDetails() (start, stop, writes int64) {
	s.mustHaveTraces()
	start, stop = s.ofmapBuf.ExternalAccessStartStop()

	return start, stop, s.ofmapBuf.NumAccesses()
}

// IfmapSRAMTrace returns the IFMAP demand prefixed with the serviced cycles.
func (s *Scratchpad) IfmapSRAMTrace() mat.Matrix {
	s.mustHaveTraces()
	return s.ifmapTrace
}

// FilterSRAMTrace returns the filter demand prefixed with the serviced
// cycles.
func (s *Scratchpad) FilterSRAMTrace() mat.Matrix {
	s.mustHaveTraces()
	return s.filterTrace
}

// OfmapSRAMTrace returns the OFMAP demand prefixed with the serviced cycles.
func (s *Scratchpad) OfmapSRAMTrace() mat.Matrix {
	s.mustHaveTraces()
	return s.ofmapTrace
}

// IfmapDRAMTrace returns the lines the IFMAP buffer read from DRAM.
func (s *Scratchpad) IfmapDRAMTrace() mat.Matrix {
	return s.ifmapBuf.TraceMatrix()
}

// FilterDRAMTrace returns the lines the filter buffer read from DRAM.
func (s *Scratchpad) FilterDRAMTrace() mat.Matrix {
	return s.filterBuf.TraceMatrix()
}

// OfmapDRAMTrace returns the lines the OFMAP buffer wrote to DRAM.
func (s *Scratchpad) OfmapDRAMTrace() mat.Matrix {
	return s.ofmapBuf.TraceMatrix()
}
