// Package verify provides internal debugging tools for systolica runs.
//
// This package implements two complementary verification stages:
//
// 1. Static Lint (lint.go): Fast checks of the configuration and the topology
//   - ARCH checks: array and buffer sizes, active fractions, bandwidths
//   - TOPOLOGY checks: layer geometry, overlapping operand address ranges
//   - SPARSITY checks: N:M ratios and the constraints of the optimized mapping
//
// 2. Matrix Checks (check.go): Generates the operand and demand matrices of a
// layer without replaying them through the memory system
//   - Operand address sets are disjoint
//   - The three demand matrices have the same number of rows
//   - Every demand matrix has one column per array lane it feeds
//   - Every operand address shows up in the demand stream
//
// # Address Model
//
// Every layer has three operand matrices. The addresses start from the
// configured offsets:
//
//	IFMAP  [ofmap pixels x window]      from ifmap_offset
//	FILTER [window x filters]           from filter_offset
//	OFMAP  [ofmap pixels x filters]     from ofmap_offset
//
// A -1 entry marks an empty slot that issues no request.
//
// # Usage Example
//
//	issues := verify.RunLint(cfg, topo)
//	for _, issue := range issues {
//	    log.Printf("[%s] layer %d: %s", issue.Type, issue.Layer, issue.Message)
//	}
//
//	report := verify.GenerateReport(cfg, topo, true)
//	report.WriteReport(os.Stdout)
package verify

// IssueType categorizes lint issues
type IssueType string

const (
	IssueArch     IssueType = "ARCH"     // Architecture configuration error
	IssueTopology IssueType = "TOPOLOGY" // Layer geometry or address layout error
	IssueSparsity IssueType = "SPARSITY" // Sparsity ratio or mapping error
	IssueMatrix   IssueType = "MATRIX"   // Generated matrices break a law
)

// Issue represents a single lint issue
type Issue struct {
	Type    IssueType              // ARCH, TOPOLOGY, SPARSITY, or MATRIX
	Layer   int                    // Layer index (-1 if not applicable)
	Message string                 // Human-readable description
	Details map[string]interface{} // Additional structured data
}
