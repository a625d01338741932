package main

import (
	"fmt"
	"log"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/core"
	"github.com/sarchlab/systolica/topology"
)

// Compares the filter storage of the sparse representations on one 2:4
// layer.
func main() {
	layer := topology.GEMMLayer("fc", 32, 32, 64)
	layer.SparsityN, layer.SparsityM = 2, 4

	reps := []config.Representation{
		config.CSR,
		config.CSC,
		config.EllpackBlock,
	}

	for _, rep := range reps {
		cfg := config.NewBuilder().
			WithArrayDims(8, 8).
			WithSparsity(rep, false, 4).
			Build()

		s := core.NewLayerSim(0, layer, cfg)
		if err := s.Run(); err != nil {
			log.Fatal(err)
		}

		s.CalcReportData()

		sp := s.SparseReport()
		fmt.Printf("%-14s original %6.0f  new %6.0f  metadata %6.0f  cycles %d\n",
			rep, sp.OriginalStorage, sp.NewStorage, sp.MetadataStorage,
			s.ComputeReport().TotalCycles)
	}
}
