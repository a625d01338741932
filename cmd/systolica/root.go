package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/topology"
)

var (
	configPath   string
	topologyPath string
	gemmInput    bool
	envFile      string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "systolica",
	Short: "Systolica is a cycle-level simulator of systolic-array accelerators.",
	Long: `Systolica simulates convolution and GEMM layers on a systolic array ` +
		`with a double-buffered scratchpad, and reports cycles, ` +
		`utilization, and memory bandwidth.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logLevel)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "architecture config (YAML)")
	f.StringVarP(&topologyPath, "topology", "t", "", "topology file (CSV)")
	f.BoolVar(&gemmInput, "gemm", false, "the topology lists M, N, K per layer")
	f.StringVar(&envFile, "env", "", "env file with SYSTOLICA_* overrides")
	f.StringVar(&logLevel, "log-level", "warn", "debug, trace, info, warn, or error")
}

func setupLogger(level string) error {
	var l slog.Level

	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "trace":
		l = slog.LevelInfo + 1
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))

	return nil
}

// loadInputs reads the config and the topology named by the flags. The
// topology flag overrides the path in the config.
func loadInputs() (*config.Config, *topology.Topology, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error

		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, nil, err
	}

	path := cfg.TopologyPath
	gemm := cfg.GEMMInput
	if topologyPath != "" {
		path = topologyPath
		gemm = gemmInput
	}

	if path == "" {
		return nil, nil, fmt.Errorf("no topology given, use -t")
	}

	topo, err := topology.Load(path, gemm)
	if err != nil {
		return nil, nil, err
	}

	return cfg, topo, nil
}

func fail(err error) error {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
