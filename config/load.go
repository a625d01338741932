package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// The environment variables that override configuration fields.
const (
	EnvRunName       = "SYSTOLICA_RUN_NAME"
	EnvDataflow      = "SYSTOLICA_DATAFLOW"
	EnvArrayRows     = "SYSTOLICA_ARRAY_ROWS"
	EnvArrayCols     = "SYSTOLICA_ARRAY_COLS"
	EnvBandwidthMode = "SYSTOLICA_BANDWIDTH_MODE"
	EnvBandwidths    = "SYSTOLICA_BANDWIDTHS"
	EnvTopology      = "SYSTOLICA_TOPOLOGY"
)

// Load reads a YAML configuration file. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.Architecture.Dataflow = Dataflow(
		strings.ToLower(string(cfg.Architecture.Dataflow)))
	cfg.Architecture.BandwidthMode = BandwidthMode(
		strings.ToUpper(string(cfg.Architecture.BandwidthMode)))

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given .env file into the environment and applies the
// SYSTOLICA_* overrides. An empty envFile means ".env" in the working
// directory, which may be absent.
func (c *Config) ApplyEnv(envFile string) error {
	optional := envFile == ""
	if optional {
		envFile = ".env"
	}

	err := godotenv.Load(envFile)
	if err != nil && !(optional && errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	if v, ok := os.LookupEnv(EnvRunName); ok {
		c.RunName = v
	}

	if v, ok := os.LookupEnv(EnvDataflow); ok {
		c.Architecture.Dataflow = Dataflow(strings.ToLower(v))
	}

	if v, ok := os.LookupEnv(EnvTopology); ok {
		c.TopologyPath = v
	}

	if err := envInt(EnvArrayRows, &c.Architecture.ArrayRows); err != nil {
		return err
	}

	if err := envInt(EnvArrayCols, &c.Architecture.ArrayCols); err != nil {
		return err
	}

	if v, ok := os.LookupEnv(EnvBandwidthMode); ok {
		c.Architecture.BandwidthMode = BandwidthMode(strings.ToUpper(v))
	}

	if v, ok := os.LookupEnv(EnvBandwidths); ok {
		bws, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBandwidths, err)
		}

		c.Architecture.Bandwidths = bws
	}

	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	*dst = n

	return nil
}

func parseIntList(s string) ([]int, error) {
	var out []int

	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}

		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}

		out = append(out, n)
	}

	return out, nil
}
