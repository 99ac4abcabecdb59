package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

func newTestSim(t *testing.T, opts ...SimOption) *Sim {
	t.Helper()
	d := NewSim(opts...)
	t.Cleanup(d.Close)
	return d
}

func TestSimRecordsAfterSynchronize(t *testing.T) {
	d := newTestSim(t)
	d.Launch("fill", 0.5)
	d.Launch("reduce", 2.0)
	d.Launch("fill", 0.7)

	require.NoError(t, d.Synchronize())
	recs, err := d.FetchRecords()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "fill", recs[0].KernelName)
	assert.Equal(t, "reduce", recs[1].KernelName)
	assert.Equal(t, 0.7, recs[2].KernelTimeMs)
	assert.Empty(t, recs[0].MetricValues)
}

func TestSimRecordShapeFollowsConfiguration(t *testing.T) {
	d := newTestSim(t)
	suite, err := profiler.Suite("cache_hit_rate")
	require.NoError(t, err)
	require.NoError(t, d.ReconfigureCounters(suite.IDs()))

	d.Launch("k", 1)
	require.NoError(t, d.Synchronize())
	recs, err := d.FetchRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].MetricValues, 2)
	for _, v := range recs[0].MetricValues {
		assert.GreaterOrEqual(t, v, 20.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Equal(t, suite.IDs(), d.MetricIDs())
}

func TestSimRejectsUnsupportedCounter(t *testing.T) {
	d := newTestSim(t, WithSupported("dram__bytes.sum"))
	require.NoError(t, d.ReconfigureCounters([]string{"dram__bytes.sum"}))

	err := d.ReconfigureCounters([]string{"dram__bytes.sum", "lts__t_sector_hit_rate.pct"})
	assert.ErrorIs(t, err, profiler.ErrUnsupportedMetric)
	assert.Equal(t, []string{"dram__bytes.sum"}, d.MetricIDs())
}

func TestSimClearBackend(t *testing.T) {
	d := newTestSim(t)
	d.Launch("k", 1)
	require.NoError(t, d.Synchronize())
	require.NoError(t, d.ClearBackend())

	recs, err := d.FetchRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSimCapacityDropsOverflow(t *testing.T) {
	d := newTestSim(t, WithCapacity(2))
	for range 5 {
		d.Launch("k", 1)
	}
	require.NoError(t, d.Synchronize())
	recs, err := d.FetchRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 3, d.Dropped())
}

func TestSimSyncError(t *testing.T) {
	d := newTestSim(t)
	boom := errors.New("launch failure")
	d.SetSyncError(boom)
	assert.ErrorIs(t, d.Synchronize(), boom)

	d.SetSyncError(nil)
	assert.NoError(t, d.Synchronize())
}

func TestSimClosed(t *testing.T) {
	d := NewSim()
	d.Close()
	d.Close()
	d.Launch("ignored", 1)

	err := d.Synchronize()
	assert.ErrorIs(t, err, ErrClosed)
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "sync", f.Op)

	_, err = d.FetchRecords()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimCustomSampler(t *testing.T) {
	d := newTestSim(t, WithArch("TEST"), WithSampler(func(kernel string, timeMs float64, id string) float64 {
		return timeMs * 10
	}))
	require.NoError(t, d.ReconfigureCounters([]string{"dram__bytes.sum"}))
	d.Launch("k", 3)
	require.NoError(t, d.Synchronize())
	recs, err := d.FetchRecords()
	require.NoError(t, err)
	assert.Equal(t, []float64{30}, recs[0].MetricValues)
	assert.Equal(t, "TEST", d.Arch())
}

func TestDefaultSamplerIsStable(t *testing.T) {
	a := DefaultSampler("gemm", 2, "dram__bytes.sum")
	b := DefaultSampler("gemm", 2, "dram__bytes.sum")
	assert.Equal(t, a, b)
	assert.Positive(t, a)

	// bytes scale with kernel time
	assert.InDelta(t, 2*DefaultSampler("gemm", 1, "dram__bytes.sum"), a, 2)
}

func TestSimDrivesSession(t *testing.T) {
	d := newTestSim(t)
	s := profiler.NewSession(d)
	s.SetMode(true)

	d.Launch("a", 1)
	d.Launch("b", 3)
	d.Launch("a", 2)

	q, err := s.QueryByName("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), q.Count)
	assert.Equal(t, 1.5, q.AvgTimeMs)

	total, err := s.TotalElapsedSeconds()
	require.NoError(t, err)
	assert.InDelta(t, 0.006, total, 1e-12)
}

func TestParseSMI(t *testing.T) {
	out := "NVIDIA H100 80GB HBM3, 1980, 1980, 34, 0\nNVIDIA H100 80GB HBM3, 1410, 1980, 41, [N/A]\n"
	stats, err := parseSMI(out)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "NVIDIA H100 80GB HBM3", stats[0].Name)
	assert.Equal(t, 1410, stats[1].SMClockMHz)
	assert.Equal(t, 0, stats[1].ECCErrors)

	_, err = parseSMI("H100, 1980\n")
	assert.Error(t, err)
}
