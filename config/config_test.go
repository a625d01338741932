package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/config"
)

var _ = Describe("Config", func() {
	It("should provide valid defaults", func() {
		cfg := config.Default()

		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.Architecture.ArrayRows).To(Equal(4))
		Expect(cfg.Architecture.Dataflow).To(Equal(config.WeightStationary))
		Expect(cfg.Architecture.FilterOffset).To(Equal(int64(10000000)))
		Expect(cfg.UseUserBandwidth()).To(BeFalse())
		Expect(cfg.Freq()).To(Equal(1000 * sim.MHz))
	})

	It("should reject an invalid dataflow", func() {
		cfg := config.NewBuilder().WithDataflow("xs").Build()
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("dataflow")))
	})

	It("should reject USER mode without bandwidth", func() {
		cfg := config.NewBuilder().WithUserBandwidths().Build()
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should reject active fractions outside [0.5, 1)", func() {
		cfg := config.NewBuilder().WithActiveFracs(0.4, 0.5).Build()
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg = config.NewBuilder().WithActiveFracs(0.5, 1).Build()
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should reject an odd block size with optimized mapping", func() {
		cfg := config.NewBuilder().
			WithSparsity(config.EllpackBlock, true, 3).
			Build()
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should accept optimized mapping only on a ws array", func() {
		b := config.NewBuilder().WithSparsity(config.EllpackBlock, true, 4)
		Expect(b.Build().Validate()).To(Succeed())

		cfg := b.WithDataflow(config.OutputStationary).Build()
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should spread a single user bandwidth over all buffers", func() {
		cfg := config.NewBuilder().WithUserBandwidths(8).Build()
		i, f, o := cfg.UserBandwidths()
		Expect([]int{i, f, o}).To(Equal([]int{8, 8, 8}))

		cfg = config.NewBuilder().WithUserBandwidths(8, 4, 2).Build()
		i, f, o = cfg.UserBandwidths()
		Expect([]int{i, f, o}).To(Equal([]int{8, 4, 2}))
	})

	It("should not share state between builds", func() {
		b := config.NewBuilder().WithUserBandwidths(1, 2, 3)
		c1 := b.Build()
		c1.Architecture.Bandwidths[0] = 100

		c2 := b.Build()
		Expect(c2.Architecture.Bandwidths[0]).To(Equal(1))
	})
})

var _ = Describe("Loading", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "config")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	It("should parse YAML on top of the defaults", func() {
		cfg, err := config.Parse([]byte(`
run_name: test
architecture:
  array_rows: 8
  dataflow: OS
  bandwidth_mode: user
  bandwidths: [10]
`))

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.RunName).To(Equal("test"))
		Expect(cfg.Architecture.ArrayRows).To(Equal(8))
		Expect(cfg.Architecture.ArrayCols).To(Equal(4))
		Expect(cfg.Architecture.Dataflow).To(Equal(config.OutputStationary))
		Expect(cfg.UseUserBandwidth()).To(BeTrue())
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should reject unknown fields", func() {
		_, err := config.Parse([]byte("array_height: 3\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should accept an empty document", func() {
		cfg, err := config.Parse(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
	})

	It("should save and load a file", func() {
		path := filepath.Join(dir, "cfg.yaml")
		cfg := config.NewBuilder().
			WithRunName("saved").
			WithArrayDims(16, 8).
			WithDataflow(config.InputStationary).
			Build()

		Expect(cfg.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(cfg))
	})

	It("should report a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "none.yaml"))
		Expect(err).To(MatchError(ContainSubstring("failed to read config file")))
	})

	It("should apply environment overrides", func() {
		envFile := filepath.Join(dir, "test.env")
		Expect(os.WriteFile(envFile, []byte(
			"SYSTOLICA_ARRAY_ROWS=32\nSYSTOLICA_BANDWIDTHS=4, 5,6\n"), 0o644)).
			To(Succeed())

		DeferCleanup(os.Unsetenv, config.EnvArrayRows)
		DeferCleanup(os.Unsetenv, config.EnvBandwidths)
		Expect(os.Setenv(config.EnvDataflow, "IS")).To(Succeed())
		DeferCleanup(os.Unsetenv, config.EnvDataflow)

		cfg := config.Default()
		Expect(cfg.ApplyEnv(envFile)).To(Succeed())

		Expect(cfg.Architecture.ArrayRows).To(Equal(32))
		Expect(cfg.Architecture.Bandwidths).To(Equal([]int{4, 5, 6}))
		Expect(cfg.Architecture.Dataflow).To(Equal(config.InputStationary))
	})

	It("should fail on a missing explicit env file", func() {
		cfg := config.Default()
		Expect(cfg.ApplyEnv(filepath.Join(dir, "none.env"))).NotTo(Succeed())
	})
})
