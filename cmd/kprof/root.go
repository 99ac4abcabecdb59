package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/justin-oleary/kernprof/pkg/config"
	"github.com/justin-oleary/kernprof/pkg/device"
	"github.com/justin-oleary/kernprof/pkg/profiler"
	"github.com/justin-oleary/kernprof/pkg/workload"
)

// backend is a device the CLI can both profile and launch kernels on.
type backend interface {
	profiler.Device
	workload.Launcher
	Close()
}

type globalOpts struct {
	configPath string
	device     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var g globalOpts

	root := &cobra.Command{
		Use:   "kprof",
		Short: "Kernel execution profiler",
		Long: `Profile device kernel launches: per-kernel timing statistics and
hardware counter traces, rendered as text tables, JSON or CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&g.device, "device", "", "device backend: sim, cuda (overrides config)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newRunCmd(&g))
	root.AddCommand(newQueryCmd(&g))
	root.AddCommand(newSuitesCmd())
	return root
}

// load reads the config and applies the global flag overrides.
func (g *globalOpts) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if g.device != "" {
		cfg.Profiler.Device = g.device
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func openBackend(p config.Profiler) (backend, error) {
	switch p.Device {
	case "sim", "":
		return device.NewSim(), nil
	case "cuda":
		d, err := device.NewCUDA(p.DeviceOrdinal)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown device %q", p.Device)
	}
}
