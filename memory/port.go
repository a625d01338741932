// Package memory models the on-chip buffers of a systolic array and the
// backing ports that stand for DRAM.
package memory

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
)

// HookPosPortReq marks a line of requests that a port has serviced.
var HookPosPortReq = &sim.HookPos{Name: "PortReq"}

// PortReq is the hook item of HookPosPortReq.
type PortReq struct {
	Addrs    []int64
	Issued   int64
	Serviced int64
}

// A ReadPort services the read lines that a buffer sends to the backing
// store. The returned slice holds one serviced cycle per line.
type ReadPort interface {
	ServiceReads(reqs mat.Matrix, cycles []int64) []int64
	Latency() int64
}

// A WritePort services the lines that a write buffer drains.
type WritePort interface {
	ServiceWrites(reqs mat.Matrix, cycles []int64) []int64
	Latency() int64
}

// FixedLatencyPort answers every line after the same number of cycles.
type FixedLatencyPort struct {
	*sim.HookableBase

	latency int64
}

// NewFixedLatencyPort creates a port with the given latency.
func NewFixedLatencyPort(latency int64) *FixedLatencyPort {
	if latency < 0 {
		panic("port latency cannot be negative")
	}

	return &FixedLatencyPort{
		HookableBase: sim.NewHookableBase(),
		latency:      latency,
	}
}

// NewReadPort creates a fixed-latency read port with the default latency.
func NewReadPort() *FixedLatencyPort {
	return NewFixedLatencyPort(1)
}

// NewWritePort creates a fixed-latency write port with the default latency.
func NewWritePort() *FixedLatencyPort {
	return NewFixedLatencyPort(0)
}

// Latency returns the latency of the port.
func (p *FixedLatencyPort) Latency() int64 {
	return p.latency
}

// ServiceReads returns the cycles shifted by the latency.
func (p *FixedLatencyPort) ServiceReads(reqs mat.Matrix, cycles []int64) []int64 {
	return p.service(reqs, cycles)
}

// ServiceWrites returns the cycles shifted by the latency.
func (p *FixedLatencyPort) ServiceWrites(reqs mat.Matrix, cycles []int64) []int64 {
	return p.service(reqs, cycles)
}

func (p *FixedLatencyPort) service(reqs mat.Matrix, cycles []int64) []int64 {
	mustMatchCycles(reqs, cycles)

	out := make([]int64, len(cycles))
	for i, c := range cycles {
		out[i] = c + p.latency
		invokePortHook(p.HookableBase, p, reqs.Row(i), c, out[i])
	}

	return out
}

func invokePortHook(
	base *sim.HookableBase,
	domain sim.Hookable,
	addrs []int64,
	issued, serviced int64,
) {
	if base.NumHooks() == 0 {
		return
	}

	base.InvokeHook(sim.HookCtx{
		Domain: domain,
		Pos:    HookPosPortReq,
		Item: PortReq{
			Addrs:    addrs,
			Issued:   issued,
			Serviced: serviced,
		},
	})
}

func mustMatchCycles(reqs mat.Matrix, cycles []int64) {
	if reqs.Rows() != len(cycles) {
		panic(fmt.Sprintf("%d request lines but %d cycles",
			reqs.Rows(), len(cycles)))
	}
}
