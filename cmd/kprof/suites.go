package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

func newSuitesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "suites [name]",
		Short: "List metric suites and their counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)

			if all {
				fmt.Fprintln(tw, "METRIC\tLABEL\tSCALE")
				for _, id := range profiler.MetricIDs() {
					m, err := profiler.Describe(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%s\t%s\t%g\n", m.ID(), strings.TrimSpace(m.Label()), m.Scale())
				}
				return tw.Flush()
			}

			names := profiler.SuiteNames()
			if len(args) == 1 {
				names = args
			}
			fmt.Fprintln(tw, "SUITE\tMETRICS")
			for _, name := range names {
				s, err := profiler.Suite(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", s.Name(), strings.Join(s.IDs(), ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every metric in the catalog instead of suites")
	return cmd
}
