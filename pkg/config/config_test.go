package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kprof.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	suite, err := c.Suite()
	require.NoError(t, err)
	assert.True(t, suite.Equal(profiler.TimeOnly))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
profiler:
  enabled: false
  metrics: cache_hit_rate
agent:
  namespace: gpu-profiling
  ready_window: 90s
  iterations: 5
log:
  level: debug
  format: text
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Profiler.Enabled)
	assert.Equal(t, "cache_hit_rate", c.Profiler.Metrics)
	assert.Equal(t, "sim", c.Profiler.Device, "unset fields keep defaults")
	assert.Equal(t, "gpu-profiling", c.Agent.Namespace)
	assert.Equal(t, 90*time.Second, c.Agent.ReadyWindow)
	assert.Equal(t, 5, c.Agent.Iterations)
	assert.Equal(t, ":9090", c.Agent.MetricsAddr)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "profiler:\n  metrics: cache_hit_rate\n")
	t.Setenv("KPROF_METRICS", "dram__bytes.sum,lts__t_sector_hit_rate.pct")
	t.Setenv("KPROF_READY_WINDOW_SECONDS", "30")
	t.Setenv("KPROF_ENABLED", "false")
	t.Setenv("KPROF_ITERATIONS", "not-a-number")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dram__bytes.sum,lts__t_sector_hit_rate.pct", c.Profiler.Metrics)
	assert.Equal(t, 30*time.Second, c.Agent.ReadyWindow)
	assert.False(t, c.Profiler.Enabled)
	assert.Equal(t, 20, c.Agent.Iterations, "unparseable values fall back")

	suite, err := c.Suite()
	require.NoError(t, err)
	assert.Equal(t, "custom", suite.Name())
}

func TestEnvDeviceOrdinalAcceptsZero(t *testing.T) {
	path := writeConfig(t, "profiler:\n  device_ordinal: 1\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Profiler.DeviceOrdinal)

	t.Setenv("KPROF_DEVICE_ORDINAL", "0")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Profiler.DeviceOrdinal)

	t.Setenv("KPROF_DEVICE_ORDINAL", "-1")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Profiler.DeviceOrdinal, "negative ordinals fall back")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	path := writeConfig(t, `
profiler:
  metrics: l3_cache
  device: tpu
log:
  level: loud
  format: xml
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, profiler.ErrSuiteNotFound)
	for _, field := range []string{"profiler.metrics", "profiler.device", "log.level", "log.format"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "profiler: [unterminated"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Log{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept", "kernel", "gemm")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"kernel":"gemm"`)

	buf.Reset()
	l, err = NewLogger(Log{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	l.Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, err = NewLogger(Log{Level: "verbose"}, &buf)
	assert.Error(t, err)
}
