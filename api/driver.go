// Package api runs a whole workload. The driver simulates every layer of a
// topology on an akita engine and writes the reports of the run.
package api

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/core"
	"github.com/sarchlab/systolica/report"
	"github.com/sarchlab/systolica/topology"
	"github.com/shirou/gopsutil/process"
)

// SummaryFile is the name of the text summary written into a run directory.
const SummaryFile = "SUMMARY.txt"

// layerEvent triggers the simulation of one layer.
type layerEvent struct {
	*sim.EventBase
	layer int
}

// Driver simulates the layers of a topology one event per layer.
type Driver struct {
	name       string
	engine     sim.Engine
	freq       sim.Freq
	cfg        *config.Config
	topo       *topology.Topology
	outputDir  string
	saveTraces bool
	recorder   *report.Recorder
	recordDRAM bool
	verbose    bool
	out        io.Writer
	parallel   bool

	lock    sync.Mutex
	layers  []*core.LayerSim
	host    []report.HostUsage
	errs    []error
	results []report.LayerResult
	runDir  string
	done    bool
}

// Name returns the name of the driver.
func (d *Driver) Name() string {
	return d.name
}

// RunDir returns the directory that holds the reports of the run.
func (d *Driver) RunDir() string {
	return filepath.Join(d.outputDir, d.cfg.RunName)
}

// Run simulates all layers and writes the reports.
func (d *Driver) Run() error {
	if d.done {
		return errors.New("the driver has already run")
	}

	if err := d.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if d.topo.NumLayers() == 0 {
		return errors.New("the topology has no layer")
	}

	d.runDir = d.RunDir()
	if err := os.MkdirAll(d.runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	d.createLayers()
	d.scheduleLayers()

	if err := d.engine.Run(); err != nil {
		return err
	}

	if err := errors.Join(d.errs...); err != nil {
		return err
	}

	d.collectResults()
	d.done = true

	return d.writeReports()
}

func (d *Driver) createLayers() {
	d.layers = make([]*core.LayerSim, d.topo.NumLayers())
	d.host = make([]report.HostUsage, d.topo.NumLayers())

	for i, l := range d.topo.Layers {
		s := core.NewLayerSim(i, l, d.cfg)
		if d.recorder != nil && d.recordDRAM {
			s.AcceptHook(d.recorder.LayerHook(i, s))
		}

		d.layers[i] = s
	}
}

func (d *Driver) scheduleLayers() {
	if !d.parallel {
		d.scheduleLayer(0, 0)
		return
	}

	for i := range d.layers {
		d.scheduleLayer(i, 0)
	}
}

func (d *Driver) scheduleLayer(i int, t sim.VTimeInSec) {
	d.engine.Schedule(layerEvent{
		EventBase: sim.NewEventBase(t, d),
		layer:     i,
	})
}

// Handle simulates the layer of a layer event. In serial mode, the next
// layer starts when this one finishes.
func (d *Driver) Handle(e sim.Event) error {
	evt := e.(layerEvent)
	s := d.layers[evt.layer]

	core.Trace("Driver",
		"Behavior", "StartLayer",
		"Layer", evt.layer,
		"Time", float64(evt.Time()),
	)

	start := time.Now()
	err := d.runLayer(s)
	usage := report.HostUsage{WallTime: time.Since(start), RSSBytes: residentSetSize()}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.host[evt.layer] = usage

	if err != nil {
		d.errs = append(d.errs, err)
		return err
	}

	if d.verbose {
		core.PrintLayerReport(d.out, s)
	}

	core.LogLayer(s)

	next := evt.layer + 1
	if !d.parallel && next < len(d.layers) {
		cycles := s.ComputeReport().TotalCycles
		d.scheduleLayer(next, d.freq.NCyclesLater(int(cycles), evt.Time()))
	}

	return nil
}

func (d *Driver) runLayer(s *core.LayerSim) error {
	if err := s.Run(); err != nil {
		return err
	}

	s.CalcReportData()

	if d.saveTraces {
		if err := s.SaveTraces(d.runDir); err != nil {
			return fmt.Errorf("layer %d: %w", s.ID(), err)
		}
	}

	return nil
}

func residentSetSize() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return 0
	}

	return info.RSS
}

// collectResults lays the layers out back to back, no matter if they were
// simulated in parallel.
func (d *Driver) collectResults() {
	d.results = make([]report.LayerResult, len(d.layers))

	var cycle int64
	for i, s := range d.layers {
		r := s.Result()
		r.StartCycle = cycle
		r.Host = d.host[i]

		cycle += r.Compute.TotalCycles
		r.SimulatedTime = d.cyclesToSeconds(r.Compute.TotalCycles)

		d.results[i] = r
	}
}

func (d *Driver) cyclesToSeconds(cycles int64) float64 {
	return float64(cycles) * float64(d.freq.Period())
}

func (d *Driver) writeReports() error {
	sparse := d.cfg.Sparsity.Enabled

	if err := report.SaveReports(d.runDir, d.results, sparse); err != nil {
		return err
	}

	if err := d.Summary().SaveReportToFile(filepath.Join(d.runDir, SummaryFile)); err != nil {
		return err
	}

	if d.recorder == nil {
		return nil
	}

	for _, r := range d.results {
		d.recorder.RecordLayer(r)
	}

	return d.recorder.Flush()
}

func (d *Driver) mustBeDone() {
	if !d.done {
		panic("the driver has not run yet")
	}
}

// TotalCycles returns the cycles of all layers run back to back.
func (d *Driver) TotalCycles() int64 {
	d.mustBeDone()

	var total int64
	for _, r := range d.results {
		total += r.Compute.TotalCycles
	}

	return total
}

// SimulatedTime returns the time the array takes for all layers.
func (d *Driver) SimulatedTime() float64 {
	return d.cyclesToSeconds(d.TotalCycles())
}

// LayerResults returns the results of every layer in topology order.
func (d *Driver) LayerResults() []report.LayerResult {
	d.mustBeDone()
	return d.results
}

// Layers returns the layer simulations of the run.
func (d *Driver) Layers() []*core.LayerSim {
	d.mustBeDone()
	return d.layers
}

// Summary returns the text summary of the run.
func (d *Driver) Summary() *report.Summary {
	d.mustBeDone()

	return &report.Summary{
		RunName:       d.cfg.RunName,
		Dataflow:      string(d.cfg.Architecture.Dataflow),
		ArrayRows:     d.cfg.Architecture.ArrayRows,
		ArrayCols:     d.cfg.Architecture.ArrayCols,
		Sparse:        d.cfg.Sparsity.Enabled,
		Results:       d.results,
		TotalCycles:   d.TotalCycles(),
		SimulatedTime: d.SimulatedTime(),
	}
}
