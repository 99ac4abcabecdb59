package metrics

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

func TestRecorderRefresh(t *testing.T) {
	var r Recorder
	agg := profiler.Aggregate([]profiler.KernelRecord{
		{KernelName: "gemm", KernelTimeMs: 1000},
		{KernelName: "gemm", KernelTimeMs: 3000},
		{KernelName: "fill", KernelTimeMs: 500},
	})
	r.ObserveRefresh(agg, 5*time.Millisecond, nil)

	assert.Equal(t, 4.0, testutil.ToFloat64(KernelTime.WithLabelValues("gemm")))
	assert.Equal(t, 2.0, testutil.ToFloat64(KernelLaunches.WithLabelValues("gemm")))
	assert.Equal(t, 2.0, testutil.ToFloat64(KernelAvgTime.WithLabelValues("gemm")))
	assert.Equal(t, 2, testutil.CollectAndCount(KernelTime))

	// a later refresh after a clear drops stale kernels
	r.ObserveRefresh(profiler.Aggregate(nil), time.Millisecond, nil)
	assert.Equal(t, 0, testutil.CollectAndCount(KernelTime))
}

func TestKernelGaugesHoldLastRefresh(t *testing.T) {
	var r Recorder
	r.ObserveRefresh(profiler.Aggregate([]profiler.KernelRecord{
		{KernelName: "gemm", KernelTimeMs: 2},
		{KernelName: "gemm", KernelTimeMs: 2},
	}), time.Millisecond, nil)

	// a failed refresh leaves the previous values in place
	r.ObserveRefresh(profiler.Aggregation{}, time.Millisecond, profiler.ErrSyncFailed)

	want := `
# HELP kprof_kernel_launches Recorded launches per kernel as of the last refresh.
# TYPE kprof_kernel_launches gauge
kprof_kernel_launches{kernel="gemm"} 2
`
	assert.NoError(t, testutil.CollectAndCompare(KernelLaunches, strings.NewReader(want)))
}

func TestRecorderRefreshError(t *testing.T) {
	var r Recorder
	before := testutil.ToFloat64(RefreshErrors.WithLabelValues("sync_failed"))
	r.ObserveRefresh(profiler.Aggregation{}, time.Millisecond,
		fmt.Errorf("%w: %w", profiler.ErrSyncFailed, errors.New("xid 79")))
	assert.Equal(t, before+1, testutil.ToFloat64(RefreshErrors.WithLabelValues("sync_failed")))
}

func TestRecorderReconfigure(t *testing.T) {
	var r Recorder
	suite, err := profiler.Suite("cache_hit_rate")
	assert.NoError(t, err)

	r.ObserveReconfigure(suite, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveSuite.WithLabelValues("cache_hit_rate")))

	r.ObserveReconfigure(profiler.TimeOnly, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(ActiveSuite))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveSuite.WithLabelValues("time_only")))

	before := testutil.ToFloat64(Reconfigurations.WithLabelValues("cache_hit_rate", "failed"))
	r.ObserveReconfigure(suite, profiler.ErrUnsupportedMetric)
	assert.Equal(t, before+1, testutil.ToFloat64(Reconfigurations.WithLabelValues("cache_hit_rate", "failed")))
}

func TestReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&profiler.ShapeError{Index: 0, Kernel: "k", Got: 1, Want: 0}, "inconsistent_shape"},
		{fmt.Errorf("%w: %w", profiler.ErrSyncFailed, profiler.ErrNoDevice), "no_device"},
		{fmt.Errorf("%w: boom", profiler.ErrSyncFailed), "sync_failed"},
		{errors.New("fetch records: eio"), "other"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Reason(tc.err), tc.err.Error())
	}
}
