package verify

import (
	"fmt"

	"github.com/google/btree"

	"github.com/sarchlab/systolica/compute"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/operand"
	"github.com/sarchlab/systolica/topology"
)

// addrSet is an ordered set of the addresses found in a matrix.
type addrSet struct {
	tree *btree.BTree
}

type addr int64

func (a addr) Less(than btree.Item) bool {
	return a < than.(addr)
}

func newAddrSet(m mat.Matrix) addrSet {
	s := addrSet{tree: btree.New(16)}

	for _, a := range m.Data() {
		if a != mat.Null {
			s.tree.ReplaceOrInsert(addr(a))
		}
	}

	return s
}

// common returns the number of shared addresses and the smallest of them.
func (s addrSet) common(o addrSet) (n int, first int64) {
	first = mat.Null

	s.tree.Ascend(func(i btree.Item) bool {
		if o.tree.Has(i) {
			if n == 0 {
				first = int64(i.(addr))
			}
			n++
		}

		return true
	})

	return n, first
}

// missing returns the number of addresses of s that are not in o and the
// smallest of them.
func (s addrSet) missing(o addrSet) (n int, first int64) {
	first = mat.Null

	s.tree.Ascend(func(i btree.Item) bool {
		if !o.tree.Has(i) {
			if n == 0 {
				first = int64(i.(addr))
			}
			n++
		}

		return true
	})

	return n, first
}

type layerMatrices struct {
	ifmap, filter, ofmap                   mat.Matrix
	ifmapDemand, filterDemand, ofmapDemand mat.Matrix
}

// CheckLayer generates the operand and demand matrices of a layer and checks
// them against the laws every dataflow must keep.
func CheckLayer(id int, layer topology.Layer, cfg *config.Config) []Issue {
	m, issue := buildLayerMatrices(id, layer, cfg)
	if issue != nil {
		return []Issue{*issue}
	}

	var issues []Issue

	issues = append(issues, checkDisjoint(id, m)...)
	issues = append(issues, checkDemandShape(id, m, cfg)...)
	issues = append(issues, checkCoverage(id, m, cfg)...)

	return issues
}

func matrixIssue(layer int, msg string, details map[string]interface{}) Issue {
	return Issue{Type: IssueMatrix, Layer: layer, Message: msg, Details: details}
}

func buildLayerMatrices(
	id int,
	layer topology.Layer,
	cfg *config.Config,
) (m layerMatrices, issue *Issue) {
	defer func() {
		if r := recover(); r != nil {
			i := matrixIssue(id, fmt.Sprintf("Demand generation failed: %v", r), nil)
			issue = &i
		}
	}()

	a := cfg.Architecture
	sp := cfg.Sparsity

	b := operand.NewBuilder()
	b.SetParams(layer,
		operand.Offsets{
			Ifmap:  a.IfmapOffset,
			Filter: a.FilterOffset,
			Ofmap:  a.OfmapOffset,
		},
		operand.SparsityParams{
			Enabled:          sp.Enabled,
			OptimizedMapping: sp.OptimizedMapping,
			BlockSize:        sp.BlockSize,
			RandSeed:         sp.RandSeed,
		})

	if err := b.CreateOperandMatrices(); err != nil {
		i := matrixIssue(id, fmt.Sprintf("Operand generation failed: %v", err), nil)
		return m, &i
	}

	m.ifmap, _ = b.IfmapMatrix()
	m.filter, _ = b.FilterMatrix()
	m.ofmap, _ = b.OfmapMatrix()
	original, _ := b.OriginalIfmapMatrix()

	n, bm := layer.SparsityN, layer.SparsityM
	if sp.OptimizedMapping {
		bm = sp.BlockSize
	}

	sys := compute.New(a.Dataflow)
	sys.SetParams(compute.Params{
		ArrayRows:     a.ArrayRows,
		ArrayCols:     a.ArrayCols,
		Ifmap:         m.ifmap,
		Filter:        m.filter,
		Ofmap:         m.ofmap,
		IfmapOriginal: original,
		Sparsity: compute.SparsityParams{
			Enabled:          sp.Enabled,
			OptimizedMapping: sp.OptimizedMapping,
			N:                n,
			M:                bm,
		},
	})
	sys.CreateDemandMatrices()

	m.ifmapDemand, m.filterDemand, m.ofmapDemand = sys.DemandMatrices()

	return m, nil
}

func checkDisjoint(id int, m layerMatrices) []Issue {
	sets := []struct {
		name string
		set  addrSet
	}{
		{"ifmap", newAddrSet(m.ifmap)},
		{"filter", newAddrSet(m.filter)},
		{"ofmap", newAddrSet(m.ofmap)},
	}

	var issues []Issue
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			n, first := sets[i].set.common(sets[j].set)
			if n == 0 {
				continue
			}

			issues = append(issues, matrixIssue(id,
				fmt.Sprintf("The %s and %s operands share %d addresses",
					sets[i].name, sets[j].name, n),
				map[string]interface{}{"first_shared": first}))
		}
	}

	return issues
}

func checkDemandShape(id int, m layerMatrices, cfg *config.Config) []Issue {
	var issues []Issue

	rows := m.filterDemand.Rows()
	if m.ifmapDemand.Rows() != rows || m.ofmapDemand.Rows() != rows {
		issues = append(issues, matrixIssue(id,
			fmt.Sprintf("Demand matrices have %d, %d, and %d rows",
				m.ifmapDemand.Rows(), rows, m.ofmapDemand.Rows()), nil))
	}

	r, c := cfg.Architecture.ArrayRows, cfg.Architecture.ArrayCols
	widths := map[config.Dataflow][3]int{
		config.WeightStationary: {r, c, c},
		config.OutputStationary: {r, c, c},
		config.InputStationary:  {c, r, c},
	}
	want := widths[cfg.Architecture.Dataflow]

	if cfg.Sparsity.Enabled && cfg.Sparsity.OptimizedMapping {
		want[0] = -1
	}

	got := []struct {
		name string
		m    mat.Matrix
	}{
		{"ifmap", m.ifmapDemand},
		{"filter", m.filterDemand},
		{"ofmap", m.ofmapDemand},
	}
	for i, g := range got {
		if want[i] < 0 || g.m.Cols() == want[i] {
			continue
		}

		issues = append(issues, matrixIssue(id,
			fmt.Sprintf("The %s demand has %d lanes, want %d",
				g.name, g.m.Cols(), want[i]),
			map[string]interface{}{"lanes": g.m.Cols(), "want": want[i]}))
	}

	return issues
}

// checkCoverage checks that every operand address is requested at least
// once. Pruned operands are only checked for the ofmap.
func checkCoverage(id int, m layerMatrices, cfg *config.Config) []Issue {
	type pair struct {
		name           string
		operand, trace mat.Matrix
	}

	pairs := []pair{{"ofmap", m.ofmap, m.ofmapDemand}}
	if !cfg.Sparsity.Enabled {
		pairs = append(pairs,
			pair{"ifmap", m.ifmap, m.ifmapDemand},
			pair{"filter", m.filter, m.filterDemand})
	}

	var issues []Issue
	for _, p := range pairs {
		n, first := newAddrSet(p.operand).missing(newAddrSet(p.trace))
		if n == 0 {
			continue
		}

		issues = append(issues, matrixIssue(id,
			fmt.Sprintf("%d %s addresses are never requested", n, p.name),
			map[string]interface{}{"first_missing": first}))
	}

	return issues
}
