package verify

import (
	"fmt"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/topology"
)

// RunLint performs static checks on a configuration and a topology.
// Returns a list of issues found, or empty list if no issues.
func RunLint(cfg *config.Config, topo *topology.Topology) []Issue {
	var issues []Issue

	issues = append(issues, lintArch(cfg)...)
	issues = append(issues, lintSparsityConfig(cfg)...)

	for i, l := range topo.Layers {
		issues = append(issues, lintLayer(i, l, cfg)...)
	}

	return issues
}

func archIssue(msg string, details map[string]interface{}) Issue {
	return Issue{Type: IssueArch, Layer: -1, Message: msg, Details: details}
}

func lintArch(cfg *config.Config) []Issue {
	var issues []Issue

	a := cfg.Architecture
	m := cfg.Memory

	if a.ArrayRows <= 0 || a.ArrayCols <= 0 {
		issues = append(issues, archIssue(
			fmt.Sprintf("Array dimensions must be positive, got %dx%d",
				a.ArrayRows, a.ArrayCols),
			map[string]interface{}{"rows": a.ArrayRows, "cols": a.ArrayCols}))
	}

	sizes := map[string]int{
		"ifmap":  a.IfmapSRAMKB,
		"filter": a.FilterSRAMKB,
		"ofmap":  a.OfmapSRAMKB,
	}
	for _, name := range []string{"ifmap", "filter", "ofmap"} {
		if sizes[name] <= 0 {
			issues = append(issues, archIssue(
				fmt.Sprintf("The %s buffer size must be positive, got %d KB",
					name, sizes[name]),
				map[string]interface{}{"buffer": name, "size_kb": sizes[name]}))
		}
	}

	if m.WordSize <= 0 {
		issues = append(issues, archIssue(
			fmt.Sprintf("Word size must be positive, got %d", m.WordSize), nil))
	}

	fracs := []struct {
		name string
		frac float64
	}{
		{"read", m.ReadActiveFrac},
		{"write", m.WriteActiveFrac},
	}
	for _, f := range fracs {
		if f.frac < 0.5 || f.frac >= 1 {
			issues = append(issues, archIssue(
				fmt.Sprintf("The %s active fraction %v is outside [0.5, 1)",
					f.name, f.frac),
				map[string]interface{}{"buffer": f.name, "frac": f.frac}))
		}
	}

	switch a.Dataflow {
	case config.OutputStationary, config.WeightStationary, config.InputStationary:
	default:
		issues = append(issues, archIssue(
			fmt.Sprintf("Unknown dataflow %q", a.Dataflow), nil))
	}

	issues = append(issues, lintBandwidth(cfg)...)

	return issues
}

func lintBandwidth(cfg *config.Config) []Issue {
	a := cfg.Architecture

	switch a.BandwidthMode {
	case config.CalcBandwidth:
		return nil
	case config.UserBandwidth:
	default:
		return []Issue{archIssue(
			fmt.Sprintf("Unknown bandwidth mode %q", a.BandwidthMode), nil)}
	}

	if len(a.Bandwidths) == 0 {
		return []Issue{archIssue("USER bandwidth mode without bandwidths", nil)}
	}

	var issues []Issue
	for i, bw := range a.Bandwidths {
		if bw <= 0 {
			issues = append(issues, archIssue(
				fmt.Sprintf("Bandwidth %d must be positive, got %d", i, bw),
				map[string]interface{}{"index": i, "bandwidth": bw}))
		}
	}

	if n := len(a.Bandwidths); n != 1 && n != 3 {
		issues = append(issues, archIssue(
			fmt.Sprintf("Expected 1 or 3 bandwidths, got %d; only the first is used", n),
			map[string]interface{}{"count": n}))
	}

	return issues
}

func sparsityIssue(layer int, msg string, details map[string]interface{}) Issue {
	return Issue{Type: IssueSparsity, Layer: layer, Message: msg, Details: details}
}

func lintSparsityConfig(cfg *config.Config) []Issue {
	sp := cfg.Sparsity
	if !sp.Enabled {
		return nil
	}

	var issues []Issue

	switch sp.Representation {
	case config.CSR, config.CSC, config.EllpackBlock:
	default:
		issues = append(issues, sparsityIssue(-1,
			fmt.Sprintf("Unknown sparse representation %q", sp.Representation), nil))
	}

	if !sp.OptimizedMapping {
		return issues
	}

	if sp.BlockSize < 2 || sp.BlockSize%2 != 0 {
		issues = append(issues, sparsityIssue(-1,
			fmt.Sprintf("Optimized mapping needs an even block size, got %d",
				sp.BlockSize),
			map[string]interface{}{"block_size": sp.BlockSize}))
	}

	if cfg.Architecture.Dataflow != config.WeightStationary {
		issues = append(issues, sparsityIssue(-1,
			fmt.Sprintf("Optimized mapping requires the ws dataflow, got %q",
				cfg.Architecture.Dataflow),
			map[string]interface{}{"dataflow": cfg.Architecture.Dataflow}))
	}

	return issues
}

func lintLayer(id int, l topology.Layer, cfg *config.Config) []Issue {
	if err := l.Validate(); err != nil {
		typ := IssueTopology
		if l.SparsityN > l.SparsityM {
			typ = IssueSparsity
		}

		return []Issue{{
			Type:    typ,
			Layer:   id,
			Message: err.Error(),
			Details: map[string]interface{}{"name": l.Name},
		}}
	}

	var issues []Issue

	if l.IsSparse() && !cfg.Sparsity.Enabled {
		issues = append(issues, sparsityIssue(id,
			fmt.Sprintf("Layer %s is %d:%d sparse but sparsity is off; it runs dense",
				l.Name, l.SparsityN, l.SparsityM), nil))
	}

	return append(issues, lintOffsets(id, l, cfg)...)
}

type addrRange struct {
	name       string
	start, end int64
}

func (r addrRange) overlaps(o addrRange) bool {
	return r.start < o.end && o.start < r.end
}

// lintOffsets checks that the address ranges of the three operands of a
// layer do not overlap.
func lintOffsets(id int, l topology.Layer, cfg *config.Config) []Issue {
	a := cfg.Architecture

	ifmapSize := int64(l.IfmapRows) * int64(l.IfmapCols) * int64(l.Channels)
	filterSize := int64(l.WindowSize()) * int64(l.NumFilters)
	ofmapSize := int64(l.OfmapPixels()) * int64(l.NumFilters)

	ranges := []addrRange{
		{"ifmap", a.IfmapOffset, a.IfmapOffset + ifmapSize},
		{"filter", a.FilterOffset, a.FilterOffset + filterSize},
		{"ofmap", a.OfmapOffset, a.OfmapOffset + ofmapSize},
	}

	var issues []Issue
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if !ranges[i].overlaps(ranges[j]) {
				continue
			}

			issues = append(issues, Issue{
				Type:  IssueTopology,
				Layer: id,
				Message: fmt.Sprintf("The %s and %s address ranges overlap",
					ranges[i].name, ranges[j].name),
				Details: map[string]interface{}{
					ranges[i].name: fmt.Sprintf("[%d, %d)", ranges[i].start, ranges[i].end),
					ranges[j].name: fmt.Sprintf("[%d, %d)", ranges[j].start, ranges[j].end),
				},
			})
		}
	}

	return issues
}
