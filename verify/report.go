package verify

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/topology"
)

// VerificationReport represents a complete verification report
type VerificationReport struct {
	RunName        string
	Dataflow       config.Dataflow
	ArrayRows      int
	ArrayCols      int
	LayerCount     int
	LintIssues     []Issue
	ArchIssues     []Issue
	TopologyIssues []Issue
	SparsityIssues []Issue
	MatrixIssues   []Issue
	MatrixChecked  bool
}

// GenerateReport runs the lint and, if asked, the matrix checks of every
// layer, and returns a report.
func GenerateReport(
	cfg *config.Config,
	topo *topology.Topology,
	checkMatrices bool,
) *VerificationReport {
	report := &VerificationReport{
		RunName:    cfg.RunName,
		Dataflow:   cfg.Architecture.Dataflow,
		ArrayRows:  cfg.Architecture.ArrayRows,
		ArrayCols:  cfg.Architecture.ArrayCols,
		LayerCount: topo.NumLayers(),
	}

	report.LintIssues = RunLint(cfg, topo)

	for _, issue := range report.LintIssues {
		switch issue.Type {
		case IssueArch:
			report.ArchIssues = append(report.ArchIssues, issue)
		case IssueTopology:
			report.TopologyIssues = append(report.TopologyIssues, issue)
		default:
			report.SparsityIssues = append(report.SparsityIssues, issue)
		}
	}

	// Demand generation panics on broken inputs, so the matrices are only
	// checked when the configuration is sound.
	if !checkMatrices || len(report.ArchIssues) > 0 || cfg.Validate() != nil {
		return report
	}

	report.MatrixChecked = true
	for i, l := range topo.Layers {
		if l.Validate() != nil {
			continue
		}

		report.MatrixIssues = append(report.MatrixIssues, CheckLayer(i, l, cfg)...)
	}

	return report
}

// Passed tells if no issue was found.
func (r *VerificationReport) Passed() bool {
	return len(r.LintIssues) == 0 && len(r.MatrixIssues) == 0
}

func writeIssues(w io.Writer, title string, issues []Issue, dash string) {
	if len(issues) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s ISSUES (%d):\n", title, len(issues))
	fmt.Fprintln(w, dash)

	for _, issue := range issues {
		if issue.Layer < 0 {
			fmt.Fprintf(w, "  [config] %s\n", issue.Message)
		} else {
			fmt.Fprintf(w, "  [layer %d] %s\n", issue.Layer, issue.Message)
		}

		for k, v := range issue.Details {
			fmt.Fprintf(w, "    %s: %v\n", k, v)
		}
	}
}

// WriteReport writes a formatted report to a writer
func (r *VerificationReport) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)
	dash := strings.Repeat("-", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "VERIFICATION REPORT: %s\n", r.RunName)
	fmt.Fprintln(w, separator)

	fmt.Fprintf(w, "\n✓ %dx%d %s array, %d layers\n",
		r.ArrayRows, r.ArrayCols, r.Dataflow, r.LayerCount)

	// STAGE 1: LINT
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "STAGE 1: STATIC LINT CHECKS")
	fmt.Fprintln(w, separator)

	if len(r.LintIssues) == 0 {
		fmt.Fprintln(w, "✓ No lint issues found!")
	} else {
		fmt.Fprintf(w, "⚠ Found %d lint issues:\n", len(r.LintIssues))
		writeIssues(w, "ARCH", r.ArchIssues, dash)
		writeIssues(w, "TOPOLOGY", r.TopologyIssues, dash)
		writeIssues(w, "SPARSITY", r.SparsityIssues, dash)
	}

	// STAGE 2: MATRICES
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "STAGE 2: MATRIX CHECKS")
	fmt.Fprintln(w, separator)

	switch {
	case !r.MatrixChecked:
		fmt.Fprintln(w, "- Skipped")
	case len(r.MatrixIssues) == 0:
		fmt.Fprintln(w, "✓ All demand matrices are well formed")
	default:
		fmt.Fprintf(w, "⚠ Found %d matrix issues:\n", len(r.MatrixIssues))
		writeIssues(w, "MATRIX", r.MatrixIssues, dash)
	}

	// SUMMARY
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "VERIFICATION SUMMARY")
	fmt.Fprintln(w, separator)

	fmt.Fprintf(w, "Lint Result: %d issues detected (%d ARCH, %d TOPOLOGY, %d SPARSITY)\n",
		len(r.LintIssues), len(r.ArchIssues), len(r.TopologyIssues),
		len(r.SparsityIssues))
	fmt.Fprintf(w, "Matrix Result: %d issues detected\n", len(r.MatrixIssues))

	if r.Passed() {
		fmt.Fprintln(w, "✓ RUN PASSED ALL CHECKS")
	} else {
		fmt.Fprintln(w, "⚠ RUN HAS ISSUES")
	}

	fmt.Fprintln(w)
}

// SaveReportToFile saves the report to a file
func (r *VerificationReport) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	r.WriteReport(file)
	return nil
}
