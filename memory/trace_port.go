package memory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/btree"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// inflight is a request line that the backing store has not answered yet.
type inflight struct {
	done int64
	seq  uint64
}

func (r inflight) Less(than btree.Item) bool {
	o := than.(inflight)
	if r.done != o.done {
		return r.done < o.done
	}

	return r.seq < o.seq
}

// TraceReplayPort replays latencies measured on a real memory system. The
// n-th line issued takes the n-th latency of the sequence, wrapping around
// at the end. At most queueSize lines can be in flight; a line issued on a
// full queue waits for the earliest completion. Lines complete in issue
// order.
type TraceReplayPort struct {
	*sim.HookableBase

	latencies []int64
	queueSize int

	next         int
	seq          uint64
	pending      *btree.BTree
	lastServiced int64
}

// NewTraceReplayPort creates a port that replays the given latencies.
func NewTraceReplayPort(latencies []int64, queueSize int) *TraceReplayPort {
	if len(latencies) == 0 {
		panic("latency trace is empty")
	}

	if queueSize <= 0 {
		panic("request queue size must be positive")
	}

	for _, l := range latencies {
		if l < 0 {
			panic("latency trace holds a negative latency")
		}
	}

	p := &TraceReplayPort{
		HookableBase: sim.NewHookableBase(),
		latencies:    latencies,
		queueSize:    queueSize,
	}
	p.Reset()

	return p
}

// Reset forgets all in-flight lines and restarts the latency sequence.
func (p *TraceReplayPort) Reset() {
	p.next = 0
	p.seq = 0
	p.pending = btree.New(8)
	p.lastServiced = -1 << 62
}

// Latency returns the first latency of the sequence.
func (p *TraceReplayPort) Latency() int64 {
	return p.latencies[0]
}

// InFlight returns the number of lines not yet retired.
func (p *TraceReplayPort) InFlight() int {
	return p.pending.Len()
}

// ServiceReads issues the lines in order and returns their completion cycles.
func (p *TraceReplayPort) ServiceReads(reqs mat.Matrix, cycles []int64) []int64 {
	return p.service(reqs, cycles)
}

// ServiceWrites issues the lines in order and returns their completion cycles.
func (p *TraceReplayPort) ServiceWrites(reqs mat.Matrix, cycles []int64) []int64 {
	return p.service(reqs, cycles)
}

func (p *TraceReplayPort) service(reqs mat.Matrix, cycles []int64) []int64 {
	mustMatchCycles(reqs, cycles)

	out := make([]int64, len(cycles))
	for i, c := range cycles {
		issue := p.retire(c)

		done := issue + p.latencies[p.next]
		p.next = (p.next + 1) % len(p.latencies)

		if done < p.lastServiced {
			done = p.lastServiced
		}
		p.lastServiced = done

		p.pending.ReplaceOrInsert(inflight{done: done, seq: p.seq})
		p.seq++

		out[i] = done
		invokePortHook(p.HookableBase, p, reqs.Row(i), c, done)
	}

	return out
}

// retire drops the lines completed by the given cycle. If the queue is still
// full, the issue cycle moves to the earliest completion.
func (p *TraceReplayPort) retire(cycle int64) int64 {
	for p.pending.Len() > 0 {
		first := p.pending.Min().(inflight)
		if first.done > cycle {
			break
		}

		p.pending.DeleteMin()
	}

	for p.pending.Len() >= p.queueSize {
		first := p.pending.DeleteMin().(inflight)
		if first.done > cycle {
			cycle = first.done
		}
	}

	return cycle
}

// LoadLatencyTrace reads a latency sequence from a CSV file. The first field
// of each record is the latency in cycles. A header line is skipped.
func LoadLatencyTrace(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open latency trace: %w", err)
	}
	defer f.Close()

	return ParseLatencyTrace(f)
}

// ParseLatencyTrace reads a latency sequence from CSV records.
func ParseLatencyTrace(r io.Reader) ([]int64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var latencies []int64

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read latency trace: %w", err)
		}

		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		v, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}

			return nil, fmt.Errorf("line %d: invalid latency %q", line, record[0])
		}

		if v < 0 {
			return nil, fmt.Errorf("line %d: negative latency %d", line, v)
		}

		latencies = append(latencies, v)
	}

	if len(latencies) == 0 {
		return nil, errors.New("latency trace holds no latency")
	}

	return latencies, nil
}
