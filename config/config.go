// Package config holds the architecture and run configuration of a
// simulation.
package config

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Dataflow names how operands are mapped onto the array.
type Dataflow string

// The supported dataflows.
const (
	OutputStationary Dataflow = "os"
	WeightStationary Dataflow = "ws"
	InputStationary  Dataflow = "is"
)

// BandwidthMode selects where the backing-store bandwidth comes from.
type BandwidthMode string

// In USER mode the bandwidth is given. In CALC mode it is estimated from the
// demand.
const (
	UserBandwidth BandwidthMode = "USER"
	CalcBandwidth BandwidthMode = "CALC"
)

// Representation is the storage format of a sparse filter.
type Representation string

// The supported sparse representations.
const (
	CSR          Representation = "csr"
	CSC          Representation = "csc"
	EllpackBlock Representation = "ellpack_block"
)

// Architecture describes the array and its scratchpad.
type Architecture struct {
	ArrayRows     int           `yaml:"array_rows"`
	ArrayCols     int           `yaml:"array_cols"`
	IfmapSRAMKB   int           `yaml:"ifmap_sram_kb"`
	FilterSRAMKB  int           `yaml:"filter_sram_kb"`
	OfmapSRAMKB   int           `yaml:"ofmap_sram_kb"`
	IfmapOffset   int64         `yaml:"ifmap_offset"`
	FilterOffset  int64         `yaml:"filter_offset"`
	OfmapOffset   int64         `yaml:"ofmap_offset"`
	Dataflow      Dataflow      `yaml:"dataflow"`
	BandwidthMode BandwidthMode `yaml:"bandwidth_mode"`
	Bandwidths    []int         `yaml:"bandwidths,omitempty"`
}

// Memory tunes the buffers and the ports behind them.
type Memory struct {
	WordSize         int     `yaml:"word_size"`
	ReadActiveFrac   float64 `yaml:"read_active_frac"`
	WriteActiveFrac  float64 `yaml:"write_active_frac"`
	HitLatency       int64   `yaml:"hit_latency"`
	ReadPortLatency  int64   `yaml:"read_port_latency"`
	WritePortLatency int64   `yaml:"write_port_latency"`

	// LatencyTrace, when set, replaces the fixed read latency with the
	// per-request latencies listed in the file.
	LatencyTrace     string `yaml:"latency_trace"`
	RequestQueueSize int    `yaml:"request_queue_size"`
}

// Sparsity configures N:M structured sparsity.
type Sparsity struct {
	Enabled          bool           `yaml:"enabled"`
	Representation   Representation `yaml:"representation"`
	OptimizedMapping bool           `yaml:"optimized_mapping"`
	BlockSize        int            `yaml:"block_size"`
	RandSeed         int64          `yaml:"rand_seed"`
}

// Config is the full configuration of a run.
type Config struct {
	RunName      string       `yaml:"run_name"`
	FreqMHz      float64      `yaml:"freq_mhz"`
	TopologyPath string       `yaml:"topology"`
	GEMMInput    bool         `yaml:"gemm_input"`
	Architecture Architecture `yaml:"architecture"`
	Memory       Memory       `yaml:"memory"`
	Sparsity     Sparsity     `yaml:"sparsity"`
}

// Default returns the configuration of a 4x4 weight-stationary array.
func Default() *Config {
	return &Config{
		RunName: "systolica_run",
		FreqMHz: 1000,
		Architecture: Architecture{
			ArrayRows:     4,
			ArrayCols:     4,
			IfmapSRAMKB:   256,
			FilterSRAMKB:  256,
			OfmapSRAMKB:   128,
			IfmapOffset:   0,
			FilterOffset:  10000000,
			OfmapOffset:   20000000,
			Dataflow:      WeightStationary,
			BandwidthMode: CalcBandwidth,
		},
		Memory: Memory{
			WordSize:         1,
			ReadActiveFrac:   0.5,
			WriteActiveFrac:  0.5,
			HitLatency:       1,
			ReadPortLatency:  1,
			WritePortLatency: 0,
			RequestQueueSize: 64,
		},
		Sparsity: Sparsity{
			Representation: EllpackBlock,
			BlockSize:      4,
			RandSeed:       40,
		},
	}
}

// Validate checks that the configuration can drive a simulation.
func (c *Config) Validate() error {
	a := c.Architecture

	if a.ArrayRows <= 0 || a.ArrayCols <= 0 {
		return fmt.Errorf("array dimensions must be positive, got %dx%d",
			a.ArrayRows, a.ArrayCols)
	}

	if a.IfmapSRAMKB <= 0 || a.FilterSRAMKB <= 0 || a.OfmapSRAMKB <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}

	switch a.Dataflow {
	case OutputStationary, WeightStationary, InputStationary:
	default:
		return fmt.Errorf("invalid dataflow %q", a.Dataflow)
	}

	switch a.BandwidthMode {
	case UserBandwidth:
		if len(a.Bandwidths) == 0 {
			return fmt.Errorf("USER bandwidth mode needs at least one bandwidth")
		}

		for _, bw := range a.Bandwidths {
			if bw <= 0 {
				return fmt.Errorf("bandwidth must be positive, got %d", bw)
			}
		}
	case CalcBandwidth:
	default:
		return fmt.Errorf("use either USER or CALC as bandwidth mode, got %q",
			a.BandwidthMode)
	}

	return c.validateMemory()
}

func (c *Config) validateMemory() error {
	m := c.Memory

	if m.WordSize <= 0 {
		return fmt.Errorf("word size must be positive")
	}

	if m.ReadActiveFrac < 0.5 || m.ReadActiveFrac >= 1 {
		return fmt.Errorf("read active fraction %v is not in [0.5, 1)",
			m.ReadActiveFrac)
	}

	if m.WriteActiveFrac < 0.5 || m.WriteActiveFrac >= 1 {
		return fmt.Errorf("write active fraction %v is not in [0.5, 1)",
			m.WriteActiveFrac)
	}

	if m.LatencyTrace != "" && m.RequestQueueSize <= 0 {
		return fmt.Errorf("request queue size must be positive")
	}

	if !c.Sparsity.Enabled {
		return nil
	}

	switch c.Sparsity.Representation {
	case CSR, CSC, EllpackBlock:
	default:
		return fmt.Errorf("invalid sparse representation %q",
			c.Sparsity.Representation)
	}

	if c.Sparsity.OptimizedMapping &&
		(c.Sparsity.BlockSize < 2 || c.Sparsity.BlockSize%2 != 0) {
		return fmt.Errorf("optimized mapping needs an even block size, got %d",
			c.Sparsity.BlockSize)
	}

	if c.Sparsity.OptimizedMapping &&
		c.Architecture.Dataflow != WeightStationary {
		return fmt.Errorf("optimized mapping requires the ws dataflow, got %q",
			c.Architecture.Dataflow)
	}

	return nil
}

// UseUserBandwidth tells if the bandwidths are given by the user.
func (c *Config) UseUserBandwidth() bool {
	return c.Architecture.BandwidthMode == UserBandwidth
}

// UserBandwidths returns the backing bandwidth of the ifmap, filter, and
// ofmap buffers. A single entry feeds all three buffers.
func (c *Config) UserBandwidths() (ifmap, filter, ofmap int) {
	bws := c.Architecture.Bandwidths
	if len(bws) >= 3 {
		return bws[0], bws[1], bws[2]
	}

	return bws[0], bws[0], bws[0]
}

// Freq returns the frequency of the array.
func (c *Config) Freq() sim.Freq {
	if c.FreqMHz <= 0 {
		return 1 * sim.GHz
	}

	return sim.Freq(c.FreqMHz) * sim.MHz
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Architecture.Bandwidths = append([]int(nil), c.Architecture.Bandwidths...)

	return &out
}

// Builder can build configurations programmatically.
type Builder struct {
	cfg *Config
}

// NewBuilder creates a builder that starts from the default configuration.
func NewBuilder() Builder {
	return Builder{cfg: Default()}
}

func (b Builder) with(f func(c *Config)) Builder {
	if b.cfg == nil {
		b.cfg = Default()
	}

	c := b.cfg.Clone()
	f(c)
	b.cfg = c

	return b
}

// WithRunName sets the name of the run.
func (b Builder) WithRunName(name string) Builder {
	return b.with(func(c *Config) { c.RunName = name })
}

// WithArrayDims sets the number of rows and columns of the array.
func (b Builder) WithArrayDims(rows, cols int) Builder {
	return b.with(func(c *Config) {
		c.Architecture.ArrayRows = rows
		c.Architecture.ArrayCols = cols
	})
}

// WithDataflow sets the dataflow.
func (b Builder) WithDataflow(df Dataflow) Builder {
	return b.with(func(c *Config) { c.Architecture.Dataflow = df })
}

// WithBufferSizesKB sets the size of the three buffers in KB.
func (b Builder) WithBufferSizesKB(ifmap, filter, ofmap int) Builder {
	return b.with(func(c *Config) {
		c.Architecture.IfmapSRAMKB = ifmap
		c.Architecture.FilterSRAMKB = filter
		c.Architecture.OfmapSRAMKB = ofmap
	})
}

// WithOffsets sets the base address of the three operands.
func (b Builder) WithOffsets(ifmap, filter, ofmap int64) Builder {
	return b.with(func(c *Config) {
		c.Architecture.IfmapOffset = ifmap
		c.Architecture.FilterOffset = filter
		c.Architecture.OfmapOffset = ofmap
	})
}

// WithUserBandwidths switches to USER mode with the given bandwidths.
func (b Builder) WithUserBandwidths(bws ...int) Builder {
	return b.with(func(c *Config) {
		c.Architecture.BandwidthMode = UserBandwidth
		c.Architecture.Bandwidths = append([]int(nil), bws...)
	})
}

// WithCalcBandwidth switches to CALC mode.
func (b Builder) WithCalcBandwidth() Builder {
	return b.with(func(c *Config) {
		c.Architecture.BandwidthMode = CalcBandwidth
		c.Architecture.Bandwidths = nil
	})
}

// WithSparsity enables N:M sparsity with the given representation.
func (b Builder) WithSparsity(rep Representation, optimized bool, blockSize int) Builder {
	return b.with(func(c *Config) {
		c.Sparsity.Enabled = true
		c.Sparsity.Representation = rep
		c.Sparsity.OptimizedMapping = optimized
		c.Sparsity.BlockSize = blockSize
	})
}

// WithRandSeed sets the seed of the sparsity pattern generator.
func (b Builder) WithRandSeed(seed int64) Builder {
	return b.with(func(c *Config) { c.Sparsity.RandSeed = seed })
}

// WithActiveFracs sets the active part of the read and write buffers.
func (b Builder) WithActiveFracs(read, write float64) Builder {
	return b.with(func(c *Config) {
		c.Memory.ReadActiveFrac = read
		c.Memory.WriteActiveFrac = write
	})
}

// WithWordSize sets the number of bytes per word.
func (b Builder) WithWordSize(size int) Builder {
	return b.with(func(c *Config) { c.Memory.WordSize = size })
}

// WithLatencyTrace replays the latencies in the file on the read ports.
func (b Builder) WithLatencyTrace(path string, queueSize int) Builder {
	return b.with(func(c *Config) {
		c.Memory.LatencyTrace = path
		c.Memory.RequestQueueSize = queueSize
	})
}

// WithTopology sets the topology file.
func (b Builder) WithTopology(path string, gemm bool) Builder {
	return b.with(func(c *Config) {
		c.TopologyPath = path
		c.GEMMInput = gemm
	})
}

// Build returns the configuration.
func (b Builder) Build() *Config {
	if b.cfg == nil {
		return Default()
	}

	return b.cfg.Clone()
}
