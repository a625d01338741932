package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/systolica/core"
)

var layerTraceDir string

var layerCmd = &cobra.Command{
	Use:   "layer [index]",
	Short: "Run a single layer of a topology.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fail(fmt.Errorf("invalid layer index %q", args[0]))
		}

		if err := runLayer(id); err != nil {
			return fail(err)
		}

		return nil
	},
}

func init() {
	layerCmd.Flags().StringVar(&layerTraceDir, "trace-dir", "",
		"save the traces of the layer under this directory")

	rootCmd.AddCommand(layerCmd)
}

func runLayer(id int) error {
	cfg, topo, err := loadInputs()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if id < 0 || id >= topo.NumLayers() {
		return fmt.Errorf("layer %d is out of range, the topology has %d layers",
			id, topo.NumLayers())
	}

	s := core.NewLayerSim(id, topo.Layers[id], cfg)
	if err := s.Run(); err != nil {
		return err
	}

	s.CalcReportData()
	core.PrintLayerReport(os.Stdout, s)

	if layerTraceDir == "" {
		return nil
	}

	if err := s.SaveTraces(layerTraceDir); err != nil {
		return err
	}

	color.Green("Traces written to %s\n", layerTraceDir)

	return nil
}
