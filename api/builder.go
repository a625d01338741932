package api

import (
	"io"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/report"
	"github.com/sarchlab/systolica/topology"
)

// DriverBuilder creates a new instance of Driver.
type DriverBuilder struct {
	engine        sim.Engine
	freq          sim.Freq
	cfg           *config.Config
	topo          *topology.Topology
	outputDir     string
	saveTraces    bool
	recorder      *report.Recorder
	recordDRAM    bool
	verbose       bool
	verboseOutput io.Writer
	parallel      bool
}

// WithEngine sets the engine. Without one, the driver creates a serial or a
// parallel engine.
func (b DriverBuilder) WithEngine(engine sim.Engine) DriverBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the array.
func (b DriverBuilder) WithFreq(freq sim.Freq) DriverBuilder {
	b.freq = freq
	return b
}

// WithConfig sets the architecture and run configuration.
func (b DriverBuilder) WithConfig(cfg *config.Config) DriverBuilder {
	b.cfg = cfg
	return b
}

// WithTopology sets the layers to simulate.
func (b DriverBuilder) WithTopology(topo *topology.Topology) DriverBuilder {
	b.topo = topo
	return b
}

// WithOutputDir sets where the run directory is created.
func (b DriverBuilder) WithOutputDir(dir string) DriverBuilder {
	b.outputDir = dir
	return b
}

// WithTraceSaving sets if the per-layer traces are written.
func (b DriverBuilder) WithTraceSaving(save bool) DriverBuilder {
	b.saveTraces = save
	return b
}

// WithRecorder records the layer results into a database. With recordDRAM,
// every buffer fill and drain is recorded as well.
func (b DriverBuilder) WithRecorder(r *report.Recorder, recordDRAM bool) DriverBuilder {
	b.recorder = r
	b.recordDRAM = recordDRAM
	return b
}

// WithVerbose prints a report of every layer when it finishes.
func (b DriverBuilder) WithVerbose(verbose bool) DriverBuilder {
	b.verbose = verbose
	return b
}

// WithVerboseOutput sets where the verbose reports go. It defaults to the
// standard output.
func (b DriverBuilder) WithVerboseOutput(w io.Writer) DriverBuilder {
	b.verboseOutput = w
	return b
}

// WithParallel simulates all layers at the same time.
func (b DriverBuilder) WithParallel(parallel bool) DriverBuilder {
	b.parallel = parallel
	return b
}

// Build creates a driver.
func (b DriverBuilder) Build(name string) *Driver {
	if b.cfg == nil {
		panic("config is not set")
	}

	if b.topo == nil {
		panic("topology is not set")
	}

	d := &Driver{
		name:       name,
		engine:     b.engine,
		freq:       b.freq,
		cfg:        b.cfg,
		topo:       b.topo,
		outputDir:  b.outputDir,
		saveTraces: b.saveTraces,
		recorder:   b.recorder,
		recordDRAM: b.recordDRAM,
		verbose:    b.verbose,
		out:        b.verboseOutput,
		parallel:   b.parallel,
	}

	if d.engine == nil {
		if d.parallel {
			d.engine = sim.NewParallelEngine()
		} else {
			d.engine = sim.NewSerialEngine()
		}
	}

	if d.freq == 0 {
		d.freq = b.cfg.Freq()
	}

	if d.outputDir == "" {
		d.outputDir = "."
	}

	if d.out == nil {
		d.out = os.Stdout
	}

	return d
}
