package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justin-oleary/kernprof/pkg/profiler"
	"github.com/justin-oleary/kernprof/pkg/report"
	"github.com/justin-oleary/kernprof/pkg/workload"
)

func newRunCmd(g *globalOpts) *cobra.Command {
	var (
		workloadName string
		iterations   int
		metrics      string
		mode         string
		format       string
		seed         uint64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Profile a workload and print the report",
		Long: `Run a built-in workload with the selected metric suite live on the
device, then print a count (per-kernel statistics) or trace (per-launch
counters) report. The baseline time_only suite is restored afterwards.

Examples:
  # Per-kernel statistics for the default workload
  kprof run

  # Cache hit rates per launch
  kprof run --workload mpm99 --metrics cache_hit_rate --mode trace

  # Custom counters as CSV
  kprof run --metrics dram__bytes.sum,lts__t_sector_hit_rate.pct --mode trace --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workload") {
				cfg.Agent.Workload = workloadName
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Agent.Iterations = iterations
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Profiler.Metrics = metrics
			}
			if cfg.Agent.Iterations <= 0 {
				return fmt.Errorf("--iterations must be >= 1")
			}

			m, err := profiler.ParseMode(mode)
			if err != nil {
				return err
			}
			f, err := report.NewFormatter(report.Format(format))
			if err != nil {
				return err
			}
			suite, err := cfg.Suite()
			if err != nil {
				return err
			}
			w, err := workload.Get(cfg.Agent.Workload)
			if err != nil {
				return err
			}

			dev, err := openBackend(cfg.Profiler)
			if err != nil {
				return err
			}
			defer dev.Close()

			s := profiler.NewSession(dev, profiler.WithLogger(logger))
			s.SetMode(true)

			logger.Debug("profiling workload", "workload", w.Name, "suite", suite.Name(), "iterations", cfg.Agent.Iterations)
			res, err := workload.Runner{Launcher: dev, Seed: seed}.Profile(cmd.Context(), s, w, cfg.Agent.Iterations, suite)
			if err != nil {
				return err
			}

			var r profiler.Report = res.Count
			if m == profiler.Trace {
				r = res.Trace
			}
			return f.Format(cmd.OutOrStdout(), r)
		},
	}

	cmd.Flags().StringVar(&workloadName, "workload", "mixed", fmt.Sprintf("workload to run: %v", workload.Names()))
	cmd.Flags().IntVar(&iterations, "iterations", 20, "number of workload iterations")
	cmd.Flags().StringVar(&metrics, "metrics", "time_only", "metric suite name or comma-separated metric ids")
	cmd.Flags().StringVar(&mode, "mode", "count", "report mode: count, trace")
	cmd.Flags().StringVar(&format, "format", "text", fmt.Sprintf("output format: %v", report.Formats()))
	cmd.Flags().Uint64Var(&seed, "seed", 1, "jitter seed for reproducible runs")
	return cmd
}
