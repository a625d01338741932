package memory

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// HookPosBufferDrain marks a line that a write buffer has sent to its
// backing port. The item is a BufferFill.
var HookPosBufferDrain = &sim.HookPos{Name: "BufferDrain"}

// MaxCacheLines is the number of assembled lines a write buffer keeps before
// moving them to its trace.
const MaxCacheLines = 1024

// WriteBufferConfig describes a double-buffered write buffer.
type WriteBufferConfig struct {
	TotalSizeBytes   int64
	WordSize         int64
	ActiveBufFrac    float64
	BackingBandwidth int
}

// WriteBuffer collects the writes of the array into lines. Once the active
// part is full, the collected lines drain to the backing port while new
// writes keep arriving. Writes stall only when the buffer is full before the
// drain ends.
type WriteBuffer struct {
	*sim.HookableBase

	cfg  WriteBufferConfig
	port WritePort

	totalSize int64
	drainSize int64
	freeSpace int64

	line    []int64
	lineIdx int
	cache   [][]int64
	lines   [][]int64

	drainStartLine int
	drainEndCycle  int64

	numAccess int64
	cycles    []int64
}

// NewWriteBuffer creates a write buffer backed by the given port.
func NewWriteBuffer(cfg WriteBufferConfig, port WritePort) *WriteBuffer {
	if cfg.ActiveBufFrac < 0.5 || cfg.ActiveBufFrac >= 1 {
		panic(fmt.Sprintf("active buffer fraction %v is not in [0.5, 1)",
			cfg.ActiveBufFrac))
	}

	if cfg.WordSize <= 0 || cfg.BackingBandwidth <= 0 {
		panic("word size and backing bandwidth must be positive")
	}

	b := &WriteBuffer{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		port:         port,
	}

	var active int64
	b.totalSize, active = splitSize(
		cfg.TotalSizeBytes, cfg.WordSize, cfg.ActiveBufFrac)
	b.drainSize = b.totalSize - active
	b.Reset()

	return b
}

// Reset empties the buffer and drops the trace.
func (b *WriteBuffer) Reset() {
	b.freeSpace = b.totalSize
	b.line = nil
	b.lineIdx = 0
	b.cache = nil
	b.lines = nil
	b.drainStartLine = 0
	b.drainEndCycle = 0
	b.numAccess = 0
	b.cycles = nil
}

// FreeSpace returns the number of elements the buffer can still take.
func (b *WriteBuffer) FreeSpace() int64 {
	return b.freeSpace
}

// ServiceWrites takes the writes and returns the cycle at which each line is
// accepted.
func (b *WriteBuffer) ServiceWrites(reqs mat.Matrix, cycles []int64) []int64 {
	mustMatchCycles(reqs, cycles)

	out := make([]int64, len(cycles))
	var offset int64

	for i, cycle := range cycles {
		current := cycle + offset

		for _, elem := range reqs.Row(i) {
			if elem == mat.Null {
				continue
			}

			b.store(elem)

			switch {
			case current < b.drainEndCycle:
				if b.freeSpace <= 0 {
					offset += b.drainEndCycle - current
					current = b.drainEndCycle
				}
			case b.freeSpace < b.totalSize-b.drainSize:
				b.flushCache(true)
				b.drainEndCycle = b.EmptyDrainBuf(current)
			}
		}

		out[i] = current
	}

	return out
}

// store puts an element in the line being assembled.
func (b *WriteBuffer) store(elem int64) {
	width := b.cfg.BackingBandwidth
	if b.line == nil {
		b.line = nullLine(width)
	}

	b.line[b.lineIdx] = elem
	b.lineIdx++
	b.freeSpace--

	if b.lineIdx < width {
		return
	}

	b.cache = append(b.cache, b.line)
	b.line = nil
	b.lineIdx = 0

	if len(b.cache) >= MaxCacheLines {
		b.flushCache(false)
	}
}

// flushCache moves the cached lines to the trace. When forced, the partial
// line being assembled goes too.
func (b *WriteBuffer) flushCache(force bool) {
	if force && b.lineIdx != 0 {
		b.cache = append(b.cache, b.line)
		b.line = nil
		b.lineIdx = 0
	}

	b.lines = append(b.lines, b.cache...)
	b.cache = nil
}

// EmptyDrainBuf drains up to a drain buffer worth of lines starting at the
// given cycle and returns the cycle at which the last line is written.
func (b *WriteBuffer) EmptyDrainBuf(start int64) int64 {
	width := int64(b.cfg.BackingBandwidth)
	numLines := int(max(ceilDiv64(b.drainSize, width), 1))
	end := min(b.drainStartLine+numLines, len(b.lines))

	if end <= b.drainStartLine {
		return start
	}

	reqs := mat.FromRows(b.lines[b.drainStartLine:end])
	drained := int64(reqs.CountRequests())

	cycles := make([]int64, reqs.Rows())
	for i := range cycles {
		cycles[i] = start + int64(i)
	}

	resp := b.port.ServiceWrites(reqs, cycles)
	b.cycles = append(b.cycles, resp...)

	if b.NumHooks() > 0 {
		for i, c := range resp {
			b.InvokeHook(sim.HookCtx{
				Domain: b,
				Pos:    HookPosBufferDrain,
				Item:   BufferFill{Addrs: reqs.Row(i), Cycle: c},
			})
		}
	}

	b.numAccess += drained
	b.freeSpace += drained
	b.drainStartLine = end

	slog.Debug("WriteBuffer",
		"Behavior", "Drain",
		"Lines", reqs.Rows(),
		"Start", start,
		"End", resp[len(resp)-1],
	)

	return resp[len(resp)-1]
}

// EmptyAllBuffers drains everything left in the buffer, one drain buffer
// after the other, starting at the given cycle.
func (b *WriteBuffer) EmptyAllBuffers(cycle int64) {
	b.flushCache(true)

	for b.drainStartLine < len(b.lines) {
		b.drainEndCycle = b.EmptyDrainBuf(cycle)
		cycle = b.drainEndCycle + 1
	}
}

// TraceMatrix returns the drained lines, each prefixed with the cycle it was
// written at. It is empty before the first drain.
func (b *WriteBuffer) TraceMatrix() mat.Matrix {
	if len(b.cycles) == 0 {
		return mat.Matrix{}
	}

	out := mat.New(len(b.cycles), b.cfg.BackingBandwidth+1)
	for i, c := range b.cycles {
		row := out.Row(i)
		row[0] = c
		copy(row[1:], b.lines[i])
	}

	return out
}

// NumAccesses returns the number of elements written to the backing port.
func (b *WriteBuffer) NumAccesses() int64 {
	if len(b.cycles) == 0 {
		panic("trace is not ready yet")
	}

	return b.numAccess
}

// ExternalAccessStartStop returns the cycles of the first and the last
// drained line.
func (b *WriteBuffer) ExternalAccessStartStop() (start, stop int64) {
	if len(b.cycles) == 0 {
		panic("trace is not ready yet")
	}

	return b.cycles[0], b.cycles[len(b.cycles)-1]
}

func nullLine(width int) []int64 {
	line := make([]int64, width)
	for i := range line {
		line[i] = mat.Null
	}

	return line
}
