package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// Summary is the human-readable overview of a run.
type Summary struct {
	RunName       string
	Dataflow      string
	ArrayRows     int
	ArrayCols     int
	Sparse        bool
	Results       []LayerResult
	TotalCycles   int64
	SimulatedTime float64
}

// WriteReport renders the summary as text tables.
func (s *Summary) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "RUN %s: %dx%d %s array, %d layers\n",
		s.RunName, s.ArrayRows, s.ArrayCols, s.Dataflow, len(s.Results))
	fmt.Fprintln(w, separator)

	fmt.Fprintln(w, s.computeTable().Render())
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.bandwidthTable().Render())

	if s.Sparse {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.sparseTable().Render())
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total cycles: %d\n", s.TotalCycles)
	fmt.Fprintf(w, "Simulated time: %.9f s\n", s.SimulatedTime)
}

func (s *Summary) computeTable() prettytable.Writer {
	t := prettytable.NewWriter()
	t.SetTitle("Compute")
	t.AppendHeader(prettytable.Row{
		"Layer", "Name", "Cycles", "Stalls", "Util %", "Mapping %",
		"Compute Util %", "Wall Time",
	})

	for _, r := range s.Results {
		c := r.Compute
		t.AppendRow(prettytable.Row{
			r.LayerID, r.Name, c.TotalCycles, c.StallCycles,
			fmt.Sprintf("%.2f", c.OverallUtil),
			fmt.Sprintf("%.2f", c.MappingEfficiency),
			fmt.Sprintf("%.2f", c.ComputeUtil),
			r.Host.WallTime,
		})
	}

	return t
}

func (s *Summary) bandwidthTable() prettytable.Writer {
	t := prettytable.NewWriter()
	t.SetTitle("Average Bandwidth (words/cycle)")
	t.AppendHeader(prettytable.Row{
		"Layer", "IFMAP SRAM", "Filter SRAM", "OFMAP SRAM",
		"IFMAP DRAM", "Filter DRAM", "OFMAP DRAM",
	})

	for _, r := range s.Results {
		b := r.Bandwidth
		t.AppendRow(prettytable.Row{
			r.LayerID,
			fmt.Sprintf("%.3f", b.IfmapSRAM),
			fmt.Sprintf("%.3f", b.FilterSRAM),
			fmt.Sprintf("%.3f", b.OfmapSRAM),
			fmt.Sprintf("%.3f", b.IfmapDRAM),
			fmt.Sprintf("%.3f", b.FilterDRAM),
			fmt.Sprintf("%.3f", b.OfmapDRAM),
		})
	}

	return t
}

func (s *Summary) sparseTable() prettytable.Writer {
	t := prettytable.NewWriter()
	t.SetTitle("Sparse Filter Storage")
	t.AppendHeader(prettytable.Row{
		"Layer", "Representation", "Original", "New", "Metadata",
		"Metadata SRAM BW",
	})

	for _, r := range s.Results {
		if r.Sparse == nil {
			continue
		}

		t.AppendRow(prettytable.Row{
			r.LayerID, r.Sparse.Representation,
			r.Sparse.OriginalStorage, r.Sparse.NewStorage,
			r.Sparse.MetadataStorage,
			fmt.Sprintf("%.3f", r.Sparse.AvgFilterMetadataSRAMBW),
		})
	}

	return t
}

// SaveReportToFile writes the summary into a file.
func (s *Summary) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	s.WriteReport(file)

	return nil
}
