package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sarchlab/systolica/mat"
)

// TraceSet holds the six traces of one layer. Every row starts with the
// cycle the line was serviced, followed by its addresses.
type TraceSet struct {
	IfmapSRAM  mat.Matrix
	FilterSRAM mat.Matrix
	OfmapSRAM  mat.Matrix
	IfmapDRAM  mat.Matrix
	FilterDRAM mat.Matrix
	OfmapDRAM  mat.Matrix
}

func (t TraceSet) files() map[string]mat.Matrix {
	return map[string]mat.Matrix{
		"IFMAP_SRAM_TRACE.csv":  t.IfmapSRAM,
		"FILTER_SRAM_TRACE.csv": t.FilterSRAM,
		"OFMAP_SRAM_TRACE.csv":  t.OfmapSRAM,
		"IFMAP_DRAM_TRACE.csv":  t.IfmapDRAM,
		"FILTER_DRAM_TRACE.csv": t.FilterDRAM,
		"OFMAP_DRAM_TRACE.csv":  t.OfmapDRAM,
	}
}

// LayerTraceDir is the directory that holds the traces of a layer.
func LayerTraceDir(top string, layerID int) string {
	return filepath.Join(top, fmt.Sprintf("layer%d", layerID))
}

// SaveTraces writes the traces of a layer into <top>/layer<ID>.
func SaveTraces(top string, layerID int, traces TraceSet) error {
	dir := LayerTraceDir(top, layerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}

	for name, m := range traces.files() {
		err := writeFile(filepath.Join(dir, name), func(w io.Writer) error {
			return WriteTrace(w, m)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteTrace writes a trace matrix as CSV, one line per row. Null slots are
// kept so that every line has the same width.
func WriteTrace(w io.Writer, trace mat.Matrix) error {
	cw := csv.NewWriter(w)
	rec := make([]string, trace.Cols())

	for r := 0; r < trace.Rows(); r++ {
		for c, v := range trace.Row(r) {
			rec[c] = strconv.FormatInt(v, 10)
		}

		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
