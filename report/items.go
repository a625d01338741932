// Package report turns the results of a simulation into files: the CSV
// reports, the per-layer trace dumps, a human-readable summary, and an
// optional SQLite recording.
package report

import (
	"time"

	"github.com/sarchlab/systolica/config"
)

// ComputeReport is the compute section of a layer result.
type ComputeReport struct {
	TotalCycles       int64
	StallCycles       int64
	OverallUtil       float64
	MappingEfficiency float64
	ComputeUtil       float64
}

// BandwidthReport holds average bandwidths in words per cycle.
type BandwidthReport struct {
	IfmapSRAM  float64
	FilterSRAM float64
	OfmapSRAM  float64
	IfmapDRAM  float64
	FilterDRAM float64
	OfmapDRAM  float64

	// FilterMetadataSRAM is only reported when sparsity is on.
	FilterMetadataSRAM float64
}

// AccessDetail is when an operand is accessed and how often.
type AccessDetail struct {
	Start int64
	Stop  int64
	Count int64
}

// DetailReport lists the access windows of every operand on both sides of
// the scratchpad.
type DetailReport struct {
	IfmapSRAM  AccessDetail
	FilterSRAM AccessDetail
	OfmapSRAM  AccessDetail
	IfmapDRAM  AccessDetail
	FilterDRAM AccessDetail
	OfmapDRAM  AccessDetail
}

// Items flattens the report in the column order of the detailed access
// report.
func (d DetailReport) Items() []int64 {
	out := make([]int64, 0, 18)
	for _, a := range []AccessDetail{
		d.IfmapSRAM, d.FilterSRAM, d.OfmapSRAM,
		d.IfmapDRAM, d.FilterDRAM, d.OfmapDRAM,
	} {
		out = append(out, a.Start, a.Stop, a.Count)
	}

	return out
}

// SparseReport is the storage of a pruned filter.
type SparseReport struct {
	Representation          config.Representation
	OriginalStorage         float64
	NewStorage              float64
	MetadataStorage         float64
	AvgFilterMetadataSRAMBW float64
}

// HostUsage is what simulating a layer cost on the host.
type HostUsage struct {
	WallTime time.Duration
	RSSBytes uint64
}

// LayerResult collects everything reported for one layer.
type LayerResult struct {
	LayerID   int
	Name      string
	Compute   ComputeReport
	Bandwidth BandwidthReport
	Detail    DetailReport

	// Sparse is nil for dense runs.
	Sparse *SparseReport

	// StartCycle is where the layer begins when layers run back to back.
	StartCycle    int64
	SimulatedTime float64
	Host          HostUsage
}
