package topology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Topology is the ordered list of layers of a workload.
type Topology struct {
	Name   string
	Layers []Layer
}

// NumLayers returns the number of layers.
func (t *Topology) NumLayers() int {
	return len(t.Layers)
}

// Add appends a layer after validating it.
func (t *Topology) Add(l Layer) error {
	if l.SparsityN == 0 && l.SparsityM == 0 {
		l.SparsityN, l.SparsityM = 1, 1
	}

	if err := l.Validate(); err != nil {
		return err
	}

	t.Layers = append(t.Layers, l)

	return nil
}

// Load reads a topology file. GEMM files list M, N, K per layer; convolution
// files list the layer geometry.
func Load(path string, gemm bool) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology file: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var t *Topology
	if gemm {
		t, err = ParseGEMM(f, name)
	} else {
		t, err = ParseConv(f, name)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse topology file %s: %w", path, err)
	}

	return t, nil
}

// ParseConv reads a convolution topology. The first row is a header. Each
// following row is
//
//	name, ifmap h, ifmap w, filter h, filter w, channels, filters, stride[, N:M]
//
// Layers whose name contains "DP" are depth-wise and are split into one
// single-channel layer per channel.
func ParseConv(r io.Reader, name string) (*Topology, error) {
	t := &Topology{Name: name}

	err := readRows(r, func(line int, fields []string) error {
		if len(fields) < 8 {
			return fmt.Errorf("line %d: want at least 8 fields, got %d",
				line, len(fields))
		}

		nums, err := atoiAll(fields[1:8])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		n, m, err := parseRatio(fields[8:])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		l := Layer{
			Name:       fields[0],
			IfmapRows:  nums[0],
			IfmapCols:  nums[1],
			FilterRows: nums[2],
			FilterCols: nums[3],
			Channels:   nums[4],
			NumFilters: nums[5],
			RowStride:  nums[6],
			ColStride:  nums[6],
			SparsityN:  n,
			SparsityM:  m,
		}

		if !l.IsDepthwise() {
			return t.Add(l)
		}

		channels := l.Channels
		for ch := 0; ch < channels; ch++ {
			dl := l
			dl.Name = fmt.Sprintf("%sChannel_%d", l.Name, ch)
			dl.Channels = 1

			if err := t.Add(dl); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// ParseGEMM reads a GEMM topology. The first row is a header. Each following
// row is
//
//	name, M, N, K[, N:M]
func ParseGEMM(r io.Reader, name string) (*Topology, error) {
	t := &Topology{Name: name}

	err := readRows(r, func(line int, fields []string) error {
		if len(fields) < 4 {
			return fmt.Errorf("line %d: want at least 4 fields, got %d",
				line, len(fields))
		}

		nums, err := atoiAll(fields[1:4])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		n, m, err := parseRatio(fields[4:])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		l := GEMMLayer(fields[0], nums[0], nums[1], nums[2])
		l.SparsityN, l.SparsityM = n, m

		return t.Add(l)
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

func readRows(r io.Reader, handle func(line int, fields []string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header := true
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if header {
			header = false
			continue
		}

		fields := trimFields(rec)
		if len(fields) == 0 {
			continue
		}

		line, _ := reader.FieldPos(0)
		if err := handle(line, fields); err != nil {
			return err
		}
	}
}

// trimFields strips spaces and drops the empty fields left by trailing
// commas.
func trimFields(rec []string) []string {
	fields := make([]string, 0, len(rec))
	for _, f := range rec {
		fields = append(fields, strings.TrimSpace(f))
	}

	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}

	return fields
}

func atoiAll(fields []string) ([]int, error) {
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}

		nums[i] = n
	}

	return nums, nil
}

func parseRatio(fields []string) (n, m int, err error) {
	if len(fields) == 0 {
		return 1, 1, nil
	}

	parts := strings.Split(fields[0], ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid sparsity ratio %q", fields[0])
	}

	n, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}

	m, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}

	return n, m, nil
}

// WriteCSV writes the topology in the convolution format.
func (t *Topology) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Layer name", "IFMAP height", "IFMAP width", "Filter height",
		"Filter width", "Channels", "Num filter", "Stride height",
		"Sparsity", "",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, l := range t.Layers {
		rec := []string{
			l.Name,
			strconv.Itoa(l.IfmapRows),
			strconv.Itoa(l.IfmapCols),
			strconv.Itoa(l.FilterRows),
			strconv.Itoa(l.FilterCols),
			strconv.Itoa(l.Channels),
			strconv.Itoa(l.NumFilters),
			strconv.Itoa(l.RowStride),
			fmt.Sprintf("%d:%d", l.SparsityN, l.SparsityM),
			"",
		}

		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// Save writes the topology to a file in the convolution format.
func (t *Topology) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create topology file: %w", err)
	}
	defer f.Close()

	if err := t.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write topology file: %w", err)
	}

	return nil
}
