package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/systolica/api"
	"github.com/sarchlab/systolica/report"
)

var (
	outputDir string
	noTrace   bool
	dbName    string
	parallel  bool
	verbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every layer of a topology.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runAll(cmd); err != nil {
			return fail(err)
		}

		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&outputDir, "path", "p", ".", "top directory of the outputs")
	f.BoolVar(&noTrace, "no-trace", false, "do not save the per-layer traces")
	f.StringVar(&dbName, "db", "", "record results into <name>.sqlite3")
	f.BoolVar(&parallel, "parallel", false, "simulate the layers in parallel")
	f.BoolVarP(&verbose, "verbose", "v", true, "print the report of every layer")

	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command) error {
	cfg, topo, err := loadInputs()
	if err != nil {
		return err
	}

	builder := api.DriverBuilder{}.
		WithConfig(cfg).
		WithTopology(topo).
		WithOutputDir(outputDir).
		WithTraceSaving(!noTrace).
		WithParallel(parallel).
		WithVerbose(verbose)

	if cmdFlagSet(cmd, "db") {
		recorder, err := report.NewRecorder(dbName)
		if err != nil {
			return err
		}
		defer recorder.Close()

		builder = builder.WithRecorder(recorder, true)
		color.Cyan("Recording results to %s.sqlite3\n", recorder.Name())
	}

	driver := builder.Build("Driver")
	if err := driver.Run(); err != nil {
		return err
	}

	summary := driver.Summary()
	summary.WriteReport(os.Stdout)

	color.Green("Reports written to %s\n", driver.RunDir())

	return nil
}

func cmdFlagSet(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}
