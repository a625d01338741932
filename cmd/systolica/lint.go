package main

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/systolica/verify"
)

var (
	checkMatrices bool
	lintReport    string
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check a config and a topology without simulating them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, topo, err := loadInputs()
		if err != nil {
			return fail(err)
		}

		r := verify.GenerateReport(cfg, topo, checkMatrices)
		r.WriteReport(os.Stdout)

		if lintReport != "" {
			if err := r.SaveReportToFile(lintReport); err != nil {
				return fail(err)
			}
		}

		if !r.Passed() {
			return fail(errors.New("lint found issues"))
		}

		color.Green("No issues found\n")

		return nil
	},
}

func init() {
	lintCmd.Flags().BoolVar(&checkMatrices, "matrices", false,
		"also generate and check the demand matrices of every layer")
	lintCmd.Flags().StringVarP(&lintReport, "output", "o", "",
		"also save the report to this file")

	rootCmd.AddCommand(lintCmd)
}
