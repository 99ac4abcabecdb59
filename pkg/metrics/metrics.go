// Package metrics registers the Prometheus collectors for the kernel
// profiler. Import this package anywhere in the binary to ensure collectors
// are registered with the default registry before promhttp.Handler is called.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

var (
	// KernelTime is the accumulated device time per kernel as of the last
	// refresh. Every refresh replaces the whole vector.
	KernelTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kprof_kernel_time_seconds",
			Help: "Total device time per kernel as of the last refresh.",
		},
		[]string{"kernel"},
	)

	KernelLaunches = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kprof_kernel_launches",
			Help: "Recorded launches per kernel as of the last refresh.",
		},
		[]string{"kernel"},
	)

	KernelAvgTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kprof_kernel_avg_time_seconds",
			Help: "Mean device time per launch per kernel.",
		},
		[]string{"kernel"},
	)

	// RefreshDuration covers sync, fetch and aggregation. Buckets span 100µs
	// to ~6.5s; a long tail here usually means a deep launch queue.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kprof_refresh_duration_seconds",
			Help:    "Wall-clock duration of profiler refreshes.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 17),
		},
	)

	// RefreshErrors counts failed refreshes by reason.
	//
	// Observed reason values:
	//   sync_failed          device barrier failed
	//   inconsistent_shape   records disagree with the active suite
	//   no_device            session not attached to a device
	//   other
	RefreshErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kprof_refresh_errors_total",
			Help: "Failed profiler refreshes, by reason.",
		},
		[]string{"reason"},
	)

	Reconfigurations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kprof_reconfigurations_total",
			Help: "Counter reconfigurations, by suite and result.",
		},
		[]string{"suite", "result"},
	)

	// ActiveSuite is 1 for the suite currently live on the device.
	ActiveSuite = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kprof_active_suite",
			Help: "Metric suite currently configured on the device.",
		},
		[]string{"suite"},
	)

	// ProfilePasses counts agent profiling passes by result ("ok", "failed").
	ProfilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kprof_profile_passes_total",
			Help: "Profiling passes run by the node agent, by result.",
		},
		[]string{"result"},
	)
)

// Recorder exports session activity through the package collectors. The zero
// value is ready to use.
type Recorder struct{}

var _ profiler.Observer = Recorder{}

func (Recorder) ObserveRefresh(agg profiler.Aggregation, took time.Duration, err error) {
	RefreshDuration.Observe(took.Seconds())
	if err != nil {
		RefreshErrors.WithLabelValues(Reason(err)).Inc()
		return
	}

	// kernels that disappeared after a clear must not linger
	KernelTime.Reset()
	KernelLaunches.Reset()
	KernelAvgTime.Reset()
	for _, r := range agg.Results {
		KernelTime.WithLabelValues(r.KernelName).Set(r.TotalTimeMs / 1000)
		KernelLaunches.WithLabelValues(r.KernelName).Set(float64(r.Count))
		KernelAvgTime.WithLabelValues(r.KernelName).Set(r.AvgTimeMs() / 1000)
	}
}

func (Recorder) ObserveReconfigure(suite profiler.MetricSuite, err error) {
	if err != nil {
		Reconfigurations.WithLabelValues(suite.Name(), "failed").Inc()
		return
	}
	Reconfigurations.WithLabelValues(suite.Name(), "ok").Inc()
	ActiveSuite.Reset()
	ActiveSuite.WithLabelValues(suite.Name()).Set(1)
}

// Reason maps a refresh error to its RefreshErrors label.
func Reason(err error) string {
	switch {
	case errors.Is(err, profiler.ErrInconsistentRecordShape):
		return "inconsistent_shape"
	case errors.Is(err, profiler.ErrNoDevice):
		return "no_device"
	case errors.Is(err, profiler.ErrSyncFailed):
		return "sync_failed"
	default:
		return "other"
	}
}
