package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	LevelTrace slog.Level = slog.LevelInfo + 1
)

func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// PrintLayerReport writes the compute and bandwidth results of a layer that
// has run.
func PrintLayerReport(w io.Writer, s *LayerSim) {
	c := s.ComputeReport()
	b := s.BandwidthReport()

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Layer %d (%s)", s.ID(), s.Layer().Name))
	t.AppendHeader(table.Row{"Item", "Value"})

	t.AppendRow(table.Row{"Compute cycles", c.TotalCycles})
	t.AppendRow(table.Row{"Stall cycles", c.StallCycles})
	t.AppendRow(table.Row{"Overall utilization", fmt.Sprintf("%.2f%%", c.OverallUtil)})
	t.AppendRow(table.Row{"Mapping efficiency", fmt.Sprintf("%.2f%%", c.MappingEfficiency)})
	t.AppendSeparator()

	bw := func(name string, v float64) {
		t.AppendRow(table.Row{name, fmt.Sprintf("%.3f words/cycle", v)})
	}

	bw("Average IFMAP SRAM BW", b.IfmapSRAM)
	bw("Average Filter SRAM BW", b.FilterSRAM)
	if s.SparseReport() != nil {
		bw("Average Filter Metadata SRAM BW", b.FilterMetadataSRAM)
	}
	bw("Average OFMAP SRAM BW", b.OfmapSRAM)
	bw("Average IFMAP DRAM BW", b.IfmapDRAM)
	bw("Average Filter DRAM BW", b.FilterDRAM)
	bw("Average OFMAP DRAM BW", b.OfmapDRAM)

	fmt.Fprintln(w, t.Render())
}

// LogLayer writes the results of a layer to the debug log.
func LogLayer(s *LayerSim) {
	c := s.ComputeReport()
	d := s.DetailReport()

	slog.Debug("LayerResult",
		"Layer", s.ID(),
		"Name", s.Layer().Name,
		"TotalCycles", c.TotalCycles,
		"StallCycles", c.StallCycles,
		"IfmapDRAMReads", d.IfmapDRAM.Count,
		"FilterDRAMReads", d.FilterDRAM.Count,
		"OfmapDRAMWrites", d.OfmapDRAM.Count,
	)
}
