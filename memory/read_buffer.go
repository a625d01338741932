package memory

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// HookPosBufferFill marks a line that a buffer has received from its
// backing port.
var HookPosBufferFill = &sim.HookPos{Name: "BufferFill"}

// BufferFill is the hook item of HookPosBufferFill.
type BufferFill struct {
	Addrs []int64
	Cycle int64
}

// numHashSets is the number of sets a buffer is split into.
const numHashSets = 100

// ReadBufferConfig describes a double-buffered read buffer.
type ReadBufferConfig struct {
	TotalSizeBytes   int64
	WordSize         int64
	ActiveBufFrac    float64
	HitLatency       int64
	BackingBandwidth int
}

func (c ReadBufferConfig) mustValidate() {
	if c.ActiveBufFrac < 0.5 || c.ActiveBufFrac >= 1 {
		panic(fmt.Sprintf("active buffer fraction %v is not in [0.5, 1)",
			c.ActiveBufFrac))
	}

	if c.WordSize <= 0 {
		panic("word size must be positive")
	}

	if c.BackingBandwidth <= 0 {
		panic("backing bandwidth must be positive")
	}

	if c.TotalSizeBytes < c.WordSize {
		panic("buffer cannot hold a single word")
	}
}

// splitSize returns the number of elements in the whole buffer and in its
// active part.
func splitSize(totalBytes, wordSize int64, frac float64) (total, active int64) {
	total = totalBytes / wordSize
	active = ceilInt64(float64(total) * frac)

	return total, active
}

// lineCursor points at an element of a fetch matrix that is laid out in
// lines of equal width. It wraps around at the end of the matrix.
type lineCursor struct {
	line, col    int
	lines, width int
}

func (c *lineCursor) advance(n int64) {
	total := int64(c.lines * c.width)
	if total == 0 {
		return
	}

	pos := (int64(c.line*c.width+c.col) + n) % total
	c.line = int(pos / int64(c.width))
	c.col = int(pos % int64(c.width))
}

// ReadBuffer is a double-buffered read buffer. The active part serves hits
// while the prefetch part is filled from the backing port. Membership is
// tracked per set of addresses rather than per line.
type ReadBuffer struct {
	*sim.HookableBase

	cfg  ReadBufferConfig
	port ReadPort

	totalSize    int64
	activeSize   int64
	prefetchSize int64

	fetch  mat.Matrix
	cursor lineCursor

	sets            []map[int64]struct{}
	numActiveSets   int
	numPrefetchSets int
	activeStart     int
	activeEnd       int
	prefetchStart   int
	prefetchEnd     int

	lastPrefetch int64
	numAccess    int64
	trace        []int64

	hashedValid bool
	activeFull  bool
	traceValid  bool
}

// NewReadBuffer creates a read buffer backed by the given port.
func NewReadBuffer(cfg ReadBufferConfig, port ReadPort) *ReadBuffer {
	cfg.mustValidate()

	b := &ReadBuffer{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		port:         port,
	}

	b.totalSize, b.activeSize = splitSize(
		cfg.TotalSizeBytes, cfg.WordSize, cfg.ActiveBufFrac)
	b.prefetchSize = b.totalSize - b.activeSize
	b.Reset()

	return b
}

// Reset drops the fetch matrix and every piece of state built while serving
// reads. The sizes and the port are kept.
func (b *ReadBuffer) Reset() {
	b.fetch = mat.Matrix{}
	b.cursor = lineCursor{}
	b.sets = nil
	b.numActiveSets, b.numPrefetchSets = 0, 0
	b.activeStart, b.activeEnd = 0, 0
	b.prefetchStart, b.prefetchEnd = 0, 0
	b.lastPrefetch = -1
	b.numAccess = 0
	b.trace = nil
	b.hashedValid = false
	b.activeFull = false
	b.traceValid = false
}

// HitLatency returns the number of cycles a hit takes.
func (b *ReadBuffer) HitLatency() int64 {
	return b.cfg.HitLatency
}

// ActiveSize returns the number of elements the active part holds.
func (b *ReadBuffer) ActiveSize() int64 {
	return b.activeSize
}

// PrefetchSize returns the number of elements the prefetch part holds.
func (b *ReadBuffer) PrefetchSize() int64 {
	return b.prefetchSize
}

// SetFetchMatrix sets the addresses the buffer fetches, in fetch order. The
// matrix is laid out again in lines as wide as the backing bandwidth.
func (b *ReadBuffer) SetFetchMatrix(m mat.Matrix) {
	b.fetch = m.Reshape(b.cfg.BackingBandwidth)
	b.cursor = lineCursor{lines: b.fetch.Rows(), width: b.fetch.Cols()}

	b.PrepareHashedBuffer()
}

// PrepareHashedBuffer splits the fetch matrix into sets and sizes the active
// and prefetch windows in sets.
func (b *ReadBuffer) PrepareHashedBuffer() {
	elemsPerSet := int(ceilDiv64(b.totalSize, numHashSets))

	b.sets = b.sets[:0]
	current := map[int64]struct{}{}
	count := 0

	for _, addr := range b.fetch.Data() {
		if addr != mat.Null {
			current[addr] = struct{}{}
			count++
		}

		if count >= elemsPerSet {
			b.sets = append(b.sets, current)
			current = map[int64]struct{}{}
			count = 0
		}
	}
	b.sets = append(b.sets, current)

	maxActive := int(ceilDiv64(b.activeSize, int64(elemsPerSet)))
	maxPrefetch := int(ceilDiv64(b.prefetchSize, int64(elemsPerSet)))

	b.numActiveSets = min(maxActive, len(b.sets))
	b.numPrefetchSets = min(maxPrefetch, len(b.sets)-b.numActiveSets)
	b.hashedValid = true
}

// ActiveBufferHit tells if the address is in the active window.
func (b *ReadBuffer) ActiveBufferHit(addr int64) bool {
	if !b.activeFull {
		panic("active buffer is not filled yet")
	}

	if b.activeStart < b.activeEnd {
		return b.inSets(addr, b.activeStart, b.activeEnd)
	}

	return b.inSets(addr, b.activeStart, len(b.sets)) ||
		b.inSets(addr, 0, b.activeEnd)
}

func (b *ReadBuffer) inSets(addr int64, from, to int) bool {
	for i := from; i < to; i++ {
		if _, ok := b.sets[i][addr]; ok {
			return true
		}
	}

	return false
}

// ServiceReads returns the cycle at which each line of requests is served.
// The first call fills the active buffer. Every miss rotates the windows and
// delays the remaining lines until the new prefetch lands.
func (b *ReadBuffer) ServiceReads(reqs mat.Matrix, cycles []int64) []int64 {
	mustMatchCycles(reqs, cycles)

	if !b.hashedValid {
		panic("fetch matrix is not set")
	}

	var dramStall int64
	if !b.activeFull && len(cycles) > 0 {
		dramStall = b.PrefetchActiveBuffer(cycles[0])
	}

	out := make([]int64, len(cycles))
	offset := b.cfg.HitLatency

	for i, cycle := range cycles {
		for _, addr := range reqs.Row(i) {
			if addr == mat.Null {
				continue
			}

			offset += b.waitForAddr(addr, cycle+offset)
		}

		out[i] = cycle + offset + dramStall
	}

	return out
}

// waitForAddr prefetches until the address enters the active window and
// returns the cycles the request has to wait.
func (b *ReadBuffer) waitForAddr(addr, ready int64) int64 {
	var stall int64

	for rotations := 0; !b.ActiveBufferHit(addr); rotations++ {
		if b.numPrefetchSets == 0 {
			panic("prefetch buffer is too small to hold a set")
		}

		if rotations > len(b.sets) {
			panic(fmt.Sprintf("address %d is not in the fetch matrix", addr))
		}

		b.NewPrefetch()

		if late := b.lastPrefetch - (ready + stall); late > 0 {
			stall += late
		}
	}

	return stall
}

// PrefetchActiveBuffer fills the active buffer so that it is complete right
// before the start cycle. It returns the cycles lost to the port latency.
func (b *ReadBuffer) PrefetchActiveBuffer(start int64) int64 {
	bw := int64(b.cfg.BackingBandwidth)
	numLines := min(ceilDiv64(b.activeSize, bw), int64(b.fetch.Rows()))
	size := min(b.activeSize, numLines*bw)

	reqs := b.takeElements(size)
	cycles := make([]int64, reqs.Rows())
	for i := range cycles {
		cycles[i] = start + int64(i) - numLines - b.port.Latency()
	}

	b.fill(reqs, cycles)

	b.activeStart, b.activeEnd = 0, b.numActiveSets
	b.prefetchStart = b.activeEnd
	b.prefetchEnd = b.prefetchStart + b.numPrefetchSets
	b.activeFull = true

	slog.Debug("ReadBuffer",
		"Behavior", "PrefetchActive",
		"Lines", reqs.Rows(),
		"LastPrefetch", b.lastPrefetch,
	)

	if len(cycles) == 0 {
		return 0
	}

	return b.lastPrefetch - cycles[len(cycles)-1] - 1
}

// NewPrefetch moves the active window over the sets that were prefetched
// and requests the next window of the fetch matrix.
func (b *ReadBuffer) NewPrefetch() {
	if !b.activeFull {
		panic("active buffer is empty")
	}

	n := len(b.sets)
	b.activeStart = (b.activeStart + b.numPrefetchSets) % n
	b.activeEnd = (b.activeStart + b.numActiveSets) % n
	b.prefetchStart = b.activeEnd
	b.prefetchEnd = (b.prefetchStart + b.numPrefetchSets) % n

	reqs := b.takeElements(b.prefetchSize)
	cycles := make([]int64, reqs.Rows())
	for i := range cycles {
		cycles[i] = b.lastPrefetch + int64(i) + 1
	}

	b.fill(reqs, cycles)
}

// takeElements reads the next size elements of the fetch matrix from the
// cursor on. The lines keep their position in the fetch matrix, so slots
// outside the range are Null.
func (b *ReadBuffer) takeElements(size int64) mat.Matrix {
	width := b.cursor.width
	total := int64(b.cursor.lines * width)
	size = min(size, total)

	if size <= 0 {
		return mat.New(0, width)
	}

	numLines := ceilDiv64(int64(b.cursor.col)+size, int64(width))
	out := mat.New(int(numLines), width)

	line, col := b.cursor.line, b.cursor.col
	for i := int64(0); i < size; i++ {
		pos := int64(b.cursor.col) + i
		out.Set(int(pos/int64(width)), int(pos%int64(width)), b.fetch.At(line, col))

		col++
		if col == width {
			col = 0
			line = (line + 1) % b.cursor.lines
		}
	}

	b.cursor.advance(size)

	return out
}

// fill sends the lines to the port and records the responses.
func (b *ReadBuffer) fill(reqs mat.Matrix, cycles []int64) {
	if reqs.Rows() == 0 {
		return
	}

	resp := b.port.ServiceReads(reqs, cycles)

	b.lastPrefetch = resp[0]
	for i, c := range resp {
		row := reqs.Row(i)

		b.trace = append(b.trace, c)
		b.trace = append(b.trace, row...)

		b.lastPrefetch = max(b.lastPrefetch, c)

		b.numAccess += int64(countRequests(row))

		if b.NumHooks() > 0 {
			b.InvokeHook(sim.HookCtx{
				Domain: b,
				Pos:    HookPosBufferFill,
				Item:   BufferFill{Addrs: row, Cycle: c},
			})
		}
	}

	b.traceValid = true
}

// TraceMatrix returns the lines requested from the backing port, each
// prefixed with its serviced cycle. It is empty before the first fill.
func (b *ReadBuffer) TraceMatrix() mat.Matrix {
	if !b.traceValid {
		return mat.Matrix{}
	}

	width := b.cfg.BackingBandwidth + 1
	data := make([]int64, len(b.trace))
	copy(data, b.trace)

	return mat.FromSlice(len(data)/width, width, data)
}

// NumAccesses returns the number of addresses read from the backing port.
func (b *ReadBuffer) NumAccesses() int64 {
	if !b.traceValid {
		panic("trace is not ready yet")
	}

	return b.numAccess
}

// ExternalAccessStartStop returns the first and the last cycle at which the
// backing port served the buffer.
func (b *ReadBuffer) ExternalAccessStartStop() (start, stop int64) {
	if !b.traceValid {
		panic("trace is not ready yet")
	}

	width := b.cfg.BackingBandwidth + 1
	start, stop = b.trace[0], b.trace[0]

	for i := 0; i < len(b.trace); i += width {
		start = min(start, b.trace[i])
		stop = max(stop, b.trace[i])
	}

	return start, stop
}

func countRequests(row []int64) int {
	n := 0
	for _, v := range row {
		if v != mat.Null {
			n++
		}
	}

	return n
}

func ceilDiv64(a, b int64) int64 {
	return (a + b - 1) / b
}

func ceilInt64(v float64) int64 {
	i := int64(v)
	if float64(i) < v {
		i++
	}

	return i
}
