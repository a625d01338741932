package memory

import (
	"log/slog"
	"math"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// addrSet keeps the addresses of a set in arrival order.
type addrSet struct {
	members map[int64]struct{}
	order   []int64
}

func newAddrSet() *addrSet {
	return &addrSet{members: map[int64]struct{}{}}
}

func (s *addrSet) add(addr int64) bool {
	if _, ok := s.members[addr]; ok {
		return false
	}

	s.members[addr] = struct{}{}
	s.order = append(s.order, addr)

	return true
}

func (s *addrSet) has(addr int64) bool {
	_, ok := s.members[addr]
	return ok
}

// EstimateBwReadBuffer is the read buffer used when the DRAM bandwidth is
// not given. Every read hits. The buffer only watches which addresses are
// requested and, each time a prefetch window worth of new addresses has been
// seen, records the prefetch that a real buffer would have needed and the
// bandwidth that prefetch requires.
type EstimateBwReadBuffer struct {
	*sim.HookableBase

	cfg  ReadBufferConfig
	port ReadPort

	itemsPerSet     int
	numActiveSets   int
	numPrefetchSets int

	sets         []*addrSet
	current      *addrSet
	currentSetID int

	readStart, readEnd         int
	prefetchStart, prefetchEnd int

	lastPrefetchStart int64
	lastPrefetchEnd   int64
	prefetchBandwidth int

	firstRequestCycle int64
	firstRequestSeen  bool
	activeDone        bool

	numAccess  int64
	trace      [][]int64
	traceWidth int
}

// NewEstimateBwReadBuffer creates a bandwidth-estimating read buffer.
func NewEstimateBwReadBuffer(
	cfg ReadBufferConfig,
	port ReadPort,
) *EstimateBwReadBuffer {
	cfg.mustValidate()
	cfg.ActiveBufFrac = math.Round(cfg.ActiveBufFrac*100) / 100

	b := &EstimateBwReadBuffer{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		port:         port,
	}
	b.Reset()

	return b
}

// Reset clears every set and the trace.
func (b *EstimateBwReadBuffer) Reset() {
	total := b.cfg.TotalSizeBytes / b.cfg.WordSize

	b.itemsPerSet = max(int(total/numHashSets), 1)
	b.numActiveSets = int(b.cfg.ActiveBufFrac * numHashSets)
	b.numPrefetchSets = numHashSets - b.numActiveSets

	b.sets = nil
	b.current = newAddrSet()
	b.currentSetID = 0

	b.readStart = 0
	b.readEnd = b.numActiveSets - 1
	b.prefetchStart, b.prefetchEnd = -1, -1

	b.lastPrefetchStart = -2
	b.lastPrefetchEnd = -1
	b.prefetchBandwidth = b.cfg.BackingBandwidth

	b.firstRequestCycle = 0
	b.firstRequestSeen = false
	b.activeDone = false

	b.numAccess = 0
	b.trace = nil
	b.traceWidth = 0
}

// HitLatency returns the number of cycles a hit takes.
func (b *EstimateBwReadBuffer) HitLatency() int64 {
	return b.cfg.HitLatency
}

// ServiceReads serves every line after the hit latency and tracks the
// addresses for the prefetch estimation.
func (b *EstimateBwReadBuffer) ServiceReads(
	reqs mat.Matrix,
	cycles []int64,
) []int64 {
	mustMatchCycles(reqs, cycles)

	out := make([]int64, len(cycles))
	for i, cycle := range cycles {
		out[i] = cycle + b.cfg.HitLatency

		row := reqs.Row(i)
		if !b.firstRequestSeen && countRequests(row) > 0 {
			b.firstRequestCycle = cycle
			b.firstRequestSeen = true
		}

		for _, addr := range row {
			if addr != mat.Null {
				b.managePrefetches(cycle, addr)
			}
		}
	}

	return out
}

func (b *EstimateBwReadBuffer) managePrefetches(cycle, addr int64) {
	if b.hit(addr) {
		return
	}

	if !b.current.add(addr) {
		return
	}

	if len(b.current.order) < b.itemsPerSet {
		return
	}

	b.sets = append(b.sets, b.current)
	b.current = newAddrSet()
	b.currentSetID++

	if b.currentSetID != b.readEnd+1 {
		return
	}

	if !b.activeDone {
		b.prefetchBandwidth = b.cfg.BackingBandwidth
		b.lastPrefetchEnd = b.firstRequestCycle - 1 - b.port.Latency()
		cyclesNeeded := ceilDiv64(
			int64(b.numActiveSets*b.itemsPerSet), int64(b.prefetchBandwidth))
		b.lastPrefetchStart = b.lastPrefetchEnd - cyclesNeeded + 1

		b.prefetch(0, b.numActiveSets-1)

		b.prefetchStart = b.readEnd + 1
		b.prefetchEnd = b.prefetchStart + b.numPrefetchSets - 1
		b.activeDone = true
	} else {
		b.adaptBandwidth(b.numPrefetchSets)
		b.prefetch(b.prefetchStart, b.prefetchEnd)

		b.prefetchStart += b.numPrefetchSets
		b.prefetchEnd += b.numPrefetchSets
	}

	b.readStart += b.numPrefetchSets
	b.readEnd += b.numPrefetchSets
	b.lastPrefetchStart = b.lastPrefetchEnd + 1
	b.lastPrefetchEnd = cycle
}

// adaptBandwidth sets the bandwidth needed to move numSets sets within the
// span of the last prefetch.
func (b *EstimateBwReadBuffer) adaptBandwidth(numSets int) {
	elems := int64(numSets * b.itemsPerSet)
	span := max(b.lastPrefetchEnd-b.lastPrefetchStart+1, 1)
	b.prefetchBandwidth = max(int(ceilDiv64(elems, span)), 1)
}

func (b *EstimateBwReadBuffer) hit(addr int64) bool {
	end := min(b.currentSetID, b.readEnd+1)
	for i := b.readStart; i < end; i++ {
		if b.sets[i].has(addr) {
			return true
		}
	}

	return false
}

// CompleteAllPrefetches issues the prefetch of the sets that have been seen
// since the last prefetch.
func (b *EstimateBwReadBuffer) CompleteAllPrefetches() {
	if len(b.current.order) > 0 {
		b.sets = append(b.sets, b.current)
		b.current = newAddrSet()
	} else {
		b.currentSetID--
	}

	if !b.activeDone {
		b.prefetchBandwidth = b.cfg.BackingBandwidth
		b.lastPrefetchEnd = -1 - b.port.Latency()

		numSets := b.currentSetID + 1
		b.numActiveSets = numSets
		cyclesNeeded := ceilDiv64(
			int64(numSets*b.itemsPerSet), int64(b.prefetchBandwidth))
		b.lastPrefetchStart = b.lastPrefetchEnd - cyclesNeeded + 1

		b.prefetch(0, numSets-1)
		b.activeDone = true

		return
	}

	numSets := b.currentSetID - b.prefetchStart + 1
	b.prefetchEnd = b.currentSetID
	b.adaptBandwidth(numSets)
	b.prefetch(b.prefetchStart, b.prefetchEnd)
}

// prefetch requests the sets [from, to] from the backing port, spread over
// the span of the last prefetch.
func (b *EstimateBwReadBuffer) prefetch(from, to int) {
	var addrs []int64
	for i := max(from, 0); i <= to && i < len(b.sets); i++ {
		addrs = append(addrs, b.sets[i].order...)
	}

	b.numAccess += int64(len(addrs))

	bw := b.prefetchBandwidth
	numCycles := max(b.lastPrefetchEnd-b.lastPrefetchStart+1, 1)
	numCycles = max(numCycles, ceilDiv64(int64(len(addrs)), int64(bw)))

	reqs := mat.New(int(numCycles), bw)
	copy(reqs.Data(), addrs)

	cycles := make([]int64, numCycles)
	for i := range cycles {
		cycles[i] = b.lastPrefetchStart + int64(i)
	}

	resp := b.port.ServiceReads(reqs, cycles)

	b.traceWidth = max(b.traceWidth, bw+1)
	for i, c := range resp {
		row := make([]int64, 0, bw+1)
		row = append(row, c)
		row = append(row, reqs.Row(i)...)
		b.trace = append(b.trace, row)

		if b.NumHooks() > 0 {
			b.InvokeHook(sim.HookCtx{
				Domain: b,
				Pos:    HookPosBufferFill,
				Item:   BufferFill{Addrs: reqs.Row(i), Cycle: c},
			})
		}
	}

	slog.Debug("EstimateBwReadBuffer",
		"Behavior", "Prefetch",
		"Sets", to-from+1,
		"Bandwidth", bw,
		"Start", b.lastPrefetchStart,
	)
}

// CurrentBandwidth returns the bandwidth of the last prefetch.
func (b *EstimateBwReadBuffer) CurrentBandwidth() int {
	return b.prefetchBandwidth
}

// TraceMatrix returns the prefetch lines, each prefixed with its serviced
// cycle. Lines narrower than the widest line are padded with Null.
func (b *EstimateBwReadBuffer) TraceMatrix() mat.Matrix {
	if len(b.trace) == 0 {
		return mat.Matrix{}
	}

	out := mat.New(len(b.trace), b.traceWidth)
	for i, row := range b.trace {
		copy(out.Row(i), row)
	}

	return out
}

// NumAccesses returns the number of addresses prefetched.
func (b *EstimateBwReadBuffer) NumAccesses() int64 {
	if len(b.trace) == 0 {
		panic("trace is not ready yet")
	}

	return b.numAccess
}

// ExternalAccessStartStop returns the cycles of the first and the last
// prefetch line.
func (b *EstimateBwReadBuffer) ExternalAccessStartStop() (start, stop int64) {
	if len(b.trace) == 0 {
		panic("trace is not ready yet")
	}

	return b.trace[0][0], b.trace[len(b.trace)-1][0]
}
