// Package config loads the profiler configuration from YAML with KPROF_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

type Config struct {
	Profiler Profiler `yaml:"profiler"`
	Agent    Agent    `yaml:"agent"`
	Log      Log      `yaml:"log"`
}

type Profiler struct {
	Enabled bool `yaml:"enabled"`
	// Metrics is a suite name or a comma-separated list of metric ids.
	Metrics string `yaml:"metrics"`
	// Device is "sim" or "cuda".
	Device        string `yaml:"device"`
	DeviceOrdinal int    `yaml:"device_ordinal"`
}

type Agent struct {
	MetricsAddr string `yaml:"metrics_addr"`
	// Namespace receives the per-node profile ConfigMaps.
	Namespace string `yaml:"namespace"`
	// ReadyWindow is how recently a Ready transition must have occurred for
	// the node to count as just joined or rebooted.
	ReadyWindow time.Duration `yaml:"ready_window"`
	Workload    string        `yaml:"workload"`
	Iterations  int           `yaml:"iterations"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Profiler: Profiler{
			Enabled: true,
			Metrics: "time_only",
			Device:  "sim",
		},
		Agent: Agent{
			MetricsAddr: ":9090",
			Namespace:   "kprof-system",
			ReadyWindow: 5 * time.Minute,
			Workload:    "mixed",
			Iterations:  20,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Profiler.Enabled = envBool("KPROF_ENABLED", c.Profiler.Enabled)
	c.Profiler.Metrics = envString("KPROF_METRICS", c.Profiler.Metrics)
	c.Profiler.Device = envString("KPROF_DEVICE", c.Profiler.Device)
	c.Profiler.DeviceOrdinal = envOrdinal("KPROF_DEVICE_ORDINAL", c.Profiler.DeviceOrdinal)

	c.Agent.MetricsAddr = envString("KPROF_METRICS_ADDR", c.Agent.MetricsAddr)
	c.Agent.Namespace = envString("KPROF_NAMESPACE", c.Agent.Namespace)
	c.Agent.ReadyWindow = time.Duration(envInt("KPROF_READY_WINDOW_SECONDS", int(c.Agent.ReadyWindow/time.Second))) * time.Second
	c.Agent.Workload = envString("KPROF_WORKLOAD", c.Agent.Workload)
	c.Agent.Iterations = envInt("KPROF_ITERATIONS", c.Agent.Iterations)

	c.Log.Level = envString("KPROF_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("KPROF_LOG_FORMAT", c.Log.Format)
}

// Validate checks every field that would otherwise fail late, after the
// device is already initialized.
func (c Config) Validate() error {
	var errs []error
	if _, err := profiler.ResolveSuite(c.Profiler.Metrics); err != nil {
		errs = append(errs, fmt.Errorf("profiler.metrics: %w", err))
	}
	switch c.Profiler.Device {
	case "sim", "cuda":
	default:
		errs = append(errs, fmt.Errorf("profiler.device: %q is not one of sim, cuda", c.Profiler.Device))
	}
	if c.Agent.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.iterations: must be positive, got %d", c.Agent.Iterations))
	}
	if c.Agent.ReadyWindow <= 0 {
		errs = append(errs, fmt.Errorf("agent.ready_window: must be positive, got %s", c.Agent.ReadyWindow))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q is not one of json, text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Suite resolves the configured metrics selector.
func (c Config) Suite() (profiler.MetricSuite, error) {
	return profiler.ResolveSuite(c.Profiler.Metrics)
}

func envString(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// envOrdinal is envInt for zero-based indexes.
func envOrdinal(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
	}
	return def
}
