package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// The names of the report files written into a run directory.
const (
	ComputeReportFile   = "COMPUTE_REPORT.csv"
	BandwidthReportFile = "BANDWIDTH_REPORT.csv"
	DetailReportFile    = "DETAILED_ACCESS_REPORT.csv"
	SparseReportFile    = "SPARSE_REPORT.csv"
)

var computeHeader = []string{
	"LayerID", "Total Cycles", "Stall Cycles", "Overall Util %",
	"Mapping Efficiency %", "Compute Util %",
}

var detailHeader = []string{
	"LayerID",
	"SRAM IFMAP Start Cycle", "SRAM IFMAP Stop Cycle", "SRAM IFMAP Reads",
	"SRAM Filter Start Cycle", "SRAM Filter Stop Cycle", "SRAM Filter Reads",
	"SRAM OFMAP Start Cycle", "SRAM OFMAP Stop Cycle", "SRAM OFMAP Writes",
	"DRAM IFMAP Start Cycle", "DRAM IFMAP Stop Cycle", "DRAM IFMAP Reads",
	"DRAM Filter Start Cycle", "DRAM Filter Stop Cycle", "DRAM Filter Reads",
	"DRAM OFMAP Start Cycle", "DRAM OFMAP Stop Cycle", "DRAM OFMAP Writes",
}

var sparseHeader = []string{
	"LayerID", "Sparsity Representation", "Original Filter Storage",
	"New Storage (Filter+Metadata)", "Filter Metadata Storage",
	"Avg FILTER Metadata SRAM BW",
}

func bandwidthHeader(sparse bool) []string {
	h := []string{"LayerID", "Avg IFMAP SRAM BW", "Avg FILTER SRAM BW"}
	if sparse {
		h = append(h, "Avg FILTER Metadata SRAM BW")
	}

	return append(h, "Avg OFMAP SRAM BW",
		"Avg IFMAP DRAM BW", "Avg FILTER DRAM BW", "Avg OFMAP DRAM BW")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// WriteComputeReport writes one row of compute results per layer.
func WriteComputeReport(w io.Writer, results []LayerResult) error {
	return writeRecords(w, computeHeader, results, func(r LayerResult) []string {
		c := r.Compute
		return []string{
			strconv.Itoa(r.LayerID),
			formatInt(c.TotalCycles),
			formatInt(c.StallCycles),
			formatFloat(c.OverallUtil),
			formatFloat(c.MappingEfficiency),
			formatFloat(c.ComputeUtil),
		}
	})
}

// WriteBandwidthReport writes the average bandwidths of every layer. The
// filter metadata column is only present for sparse runs.
func WriteBandwidthReport(w io.Writer, results []LayerResult, sparse bool) error {
	return writeRecords(w, bandwidthHeader(sparse), results, func(r LayerResult) []string {
		b := r.Bandwidth
		rec := []string{
			strconv.Itoa(r.LayerID),
			formatFloat(b.IfmapSRAM),
			formatFloat(b.FilterSRAM),
		}

		if sparse {
			rec = append(rec, formatFloat(b.FilterMetadataSRAM))
		}

		return append(rec,
			formatFloat(b.OfmapSRAM),
			formatFloat(b.IfmapDRAM),
			formatFloat(b.FilterDRAM),
			formatFloat(b.OfmapDRAM),
		)
	})
}

// WriteDetailReport writes the access windows of every layer.
func WriteDetailReport(w io.Writer, results []LayerResult) error {
	return writeRecords(w, detailHeader, results, func(r LayerResult) []string {
		rec := []string{strconv.Itoa(r.LayerID)}
		for _, v := range r.Detail.Items() {
			rec = append(rec, formatInt(v))
		}

		return rec
	})
}

// WriteSparseReport writes the filter storage of every sparse layer.
func WriteSparseReport(w io.Writer, results []LayerResult) error {
	return writeRecords(w, sparseHeader, results, func(r LayerResult) []string {
		s := r.Sparse
		if s == nil {
			s = &SparseReport{}
		}

		return []string{
			strconv.Itoa(r.LayerID),
			string(s.Representation),
			formatFloat(s.OriginalStorage),
			formatFloat(s.NewStorage),
			formatFloat(s.MetadataStorage),
			formatFloat(s.AvgFilterMetadataSRAMBW),
		}
	})
}

func writeRecords(
	w io.Writer,
	header []string,
	results []LayerResult,
	record func(LayerResult) []string,
) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

type reportFile struct {
	name  string
	write func(io.Writer) error
}

// SaveReports writes all report files into dir, creating it if needed.
func SaveReports(dir string, results []LayerResult, sparse bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	files := []reportFile{
		{ComputeReportFile, func(w io.Writer) error {
			return WriteComputeReport(w, results)
		}},
		{BandwidthReportFile, func(w io.Writer) error {
			return WriteBandwidthReport(w, results, sparse)
		}},
		{DetailReportFile, func(w io.Writer) error {
			return WriteDetailReport(w, results)
		}},
	}

	if sparse {
		files = append(files, reportFile{SparseReportFile, func(w io.Writer) error {
			return WriteSparseReport(w, results)
		}})
	}

	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := write(file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
