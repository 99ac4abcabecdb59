package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/justin-oleary/kernprof/pkg/profiler"
	"github.com/justin-oleary/kernprof/pkg/workload"
)

func newQueryCmd(g *globalOpts) *cobra.Command {
	var (
		workloadName string
		iterations   int
		seed         uint64
	)

	cmd := &cobra.Command{
		Use:   "query <kernel>...",
		Short: "Print timing statistics for named kernels",
		Long: `Run a workload with timing only and print launch count and
min/avg/max device time for each named kernel, followed by the total device
time of the run. Unknown kernels are reported but do not fail the command.`,
		Args: cobra.MinimumNArgs(1),
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
			if err := s.Clear(); err != nil {
				return err
			}
			if _, err := (workload.Runner{Launcher: dev, Seed: seed}).Run(cmd.Context(), w, cfg.Agent.Iterations); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "KERNEL\tCOUNT\tMIN(ms)\tAVG(ms)\tMAX(ms)")
			for _, name := range args {
				q, err := s.QueryByName(name)
				if errors.Is(err, profiler.ErrNotFound) {
					fmt.Fprintf(tw, "%s\t0\t-\t-\t-\n", name)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\n", name, q.Count, q.MinTimeMs, q.AvgTimeMs, q.MaxTimeMs)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			total, err := s.TotalElapsedSeconds()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total device time: %.6f s\n", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&workloadName, "workload", "mixed", fmt.Sprintf("workload to run: %v", workload.Names()))
	cmd.Flags().IntVar(&iterations, "iterations", 20, "number of workload iterations")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "jitter seed for reproducible runs")
	return cmd
}
