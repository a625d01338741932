package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/api"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/topology"
	"github.com/tebeka/atexit"
)

var (
	size     = flag.Int("size", 8, "rows and columns of the array")
	dataflow = flag.String("dataflow", "ws", "os, ws, or is")
)

func gemm(driver *api.Driver) {
	if err := driver.Run(); err != nil {
		log.Fatal(err)
	}

	for _, r := range driver.LayerResults() {
		fmt.Printf("%s: %d cycles, %d stalls, %.2f%% util\n",
			r.Name, r.Compute.TotalCycles, r.Compute.StallCycles,
			r.Compute.OverallUtil)
	}

	fmt.Printf("total: %d cycles, %.3g s\n",
		driver.TotalCycles(), driver.SimulatedTime())
}

func main() {
	flag.Parse()

	cfg := config.NewBuilder().
		WithRunName("gemm_sample").
		WithArrayDims(*size, *size).
		WithDataflow(config.Dataflow(*dataflow)).
		WithUserBandwidths(*size).
		Build()

	topo := &topology.Topology{Name: "gemm"}
	for i, dims := range [][3]int{{64, 64, 64}, {128, 32, 16}} {
		l := topology.GEMMLayer(fmt.Sprintf("gemm%d", i), dims[0], dims[1], dims[2])
		if err := topo.Add(l); err != nil {
			log.Fatal(err)
		}
	}

	driver := api.DriverBuilder{}.
		WithEngine(sim.NewSerialEngine()).
		WithFreq(1 * sim.GHz).
		WithConfig(cfg).
		WithTopology(topo).
		WithOutputDir("output").
		Build("Driver")

	gemm(driver)
	atexit.Exit(0)
}
