package profiler

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Device is the runtime that executes kernels and records their timing and
// counter values. Launches are asynchronous: records are only guaranteed to
// be visible after Synchronize returns. Synchronize has no timeout, so a hung
// device queue hangs every read path of the session.
type Device interface {
	// Synchronize blocks until every previously enqueued kernel has completed.
	Synchronize() error
	// FetchRecords returns every record accumulated since the last
	// ClearBackend, in launch order.
	FetchRecords() ([]KernelRecord, error)
	// ClearBackend discards the device-side record buffer.
	ClearBackend() error
	// ReconfigureCounters replaces the device-wide counter configuration.
	// Returns ErrUnsupportedMetric for ids the device cannot sample.
	ReconfigureCounters(metricIDs []string) error
	// Arch names the backend for report headers.
	Arch() string
}

// Observer receives the outcome of every refresh and reconfiguration.
// Callbacks run with the session locked and must not call back into it.
type Observer interface {
	ObserveRefresh(agg Aggregation, elapsed time.Duration, err error)
	ObserveReconfigure(suite MetricSuite, err error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers an observer for refresh and reconfigure events.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithBaseline sets the suite CollectWithMetrics restores on exit. Defaults
// to TimeOnly.
func WithBaseline(suite MetricSuite) Option {
	return func(s *Session) { s.baseline = suite }
}

// Session is the profiling state machine: an enabled flag, the active metric
// suite, and the last snapshot and aggregation pulled from the device.
//
// Hardware counters are a single device-wide resource. lease is held by
// SetMetrics and across the whole of CollectWithMetrics so only one suite is
// live at a time; mu guards the session state and is held for every
// clear/reconfigure/refresh as a group.
type Session struct {
	lease sync.Mutex
	mu    sync.Mutex

	dev      Device
	enabled  bool
	baseline MetricSuite
	active   MetricSuite
	store    RecordStore
	agg      Aggregation

	logger   *slog.Logger
	observer Observer
}

// NewSession returns a disabled session bound to dev with the baseline suite
// active.
func NewSession(dev Device, opts ...Option) *Session {
	s := &Session{dev: dev, baseline: TimeOnly, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.active = s.baseline
	return s
}

// SetMode turns profiling on or off. Collected data is untouched.
func (s *Session) SetMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Enabled reports the profiling mode.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// ActiveSuite returns the suite the device counters are configured for.
func (s *Session) ActiveSuite() MetricSuite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Baseline returns the suite CollectWithMetrics restores.
func (s *Session) Baseline() MetricSuite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// Attach binds the session to dev and drops cached data read from the
// previous device. opts replace the logger, observer or baseline. The
// device's counters are not touched; call SetMetrics to configure them.
func (s *Session) Attach(dev Device, opts ...Option) {
	s.lease.Lock()
	defer s.lease.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = dev
	for _, opt := range opts {
		opt(s)
	}
	s.resetFrontend()
}

// Cached returns the snapshot and aggregation from the last successful
// refresh without touching the device.
func (s *Session) Cached() ([]KernelRecord, Aggregation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot(), Aggregation{Results: slices.Clone(s.agg.Results), TotalTimeMs: s.agg.TotalTimeMs}
}

// Clear waits for the device, discards its record buffer, and empties the
// session's cached records and aggregates. The enabled flag is preserved.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Session) clearLocked() error {
	if err := s.syncLocked(); err != nil {
		return err
	}
	if err := s.dev.ClearBackend(); err != nil {
		return fmt.Errorf("clear device records: %w", err)
	}
	s.resetFrontend()
	return nil
}

func (s *Session) syncLocked() error {
	if err := s.dev.Synchronize(); err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	return nil
}

func (s *Session) resetFrontend() {
	s.store.Replace(nil)
	s.agg = Aggregation{}
}

// SetMetrics clears all collected data and reconfigures the device counters
// to exactly suite. This changes the counters for every observer in the
// process. On failure the active suite is left unchanged.
func (s *Session) SetMetrics(suite MetricSuite) error {
	s.lease.Lock()
	defer s.lease.Unlock()
	return s.setMetrics(suite)
}

func (s *Session) setMetrics(suite MetricSuite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.reconfigureLocked(suite)
	if s.observer != nil {
		s.observer.ObserveReconfigure(suite, err)
	}
	return err
}

func (s *Session) reconfigureLocked(suite MetricSuite) error {
	if err := s.clearLocked(); err != nil {
		return err
	}
	if err := s.dev.ReconfigureCounters(suite.IDs()); err != nil {
		return fmt.Errorf("reconfigure counters for suite %s: %w", suite.Name(), err)
	}
	prev := s.active
	s.active = suite
	s.logger.Debug("metric suite reconfigured", "from", prev.Name(), "to", suite.Name(), "metrics", suite.Len())
	return nil
}

// CollectWithMetrics runs body with suite active and restores the baseline
// suite on every exit path, including a panic in body. body may refresh and
// query the session but must not call SetMetrics or CollectWithMetrics.
func (s *Session) CollectWithMetrics(suite MetricSuite, body func() error) (err error) {
	s.lease.Lock()
	defer s.lease.Unlock()

	defer func() {
		if rerr := s.setMetrics(s.baseline); rerr != nil {
			s.logger.Error("failed to restore baseline metric suite", "suite", s.baseline.Name(), "err", rerr)
			err = multierror.Append(err, fmt.Errorf("restore baseline suite: %w", rerr)).ErrorOrNil()
		}
	}()

	if err := s.setMetrics(suite); err != nil {
		return err
	}
	return body()
}

// Refresh waits for the device, pulls its full record buffer, validates it
// against the active suite, and recomputes the aggregates from scratch.
// A failed refresh leaves the previous snapshot and aggregates in place.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Session) refreshLocked() error {
	start := time.Now()
	err := s.pull()
	if s.observer != nil {
		s.observer.ObserveRefresh(s.agg, time.Since(start), err)
	}
	return err
}

func (s *Session) pull() error {
	if err := s.syncLocked(); err != nil {
		return err
	}
	records, err := s.dev.FetchRecords()
	if err != nil {
		return fmt.Errorf("fetch records: %w", err)
	}
	if err := validateShape(records, s.active.Len()); err != nil {
		s.logger.Warn("record shape does not match active suite", "suite", s.active.Name(), "err", err)
		return err
	}

	agg := Aggregate(records)
	s.store.Replace(records)
	s.agg = agg
	return nil
}

// TotalElapsedSeconds refreshes and returns the summed kernel time in seconds.
func (s *Session) TotalElapsedSeconds() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return 0, err
	}
	return s.agg.TotalTimeMs / 1000, nil
}

// QueryByName refreshes and returns the statistics of one kernel.
func (s *Session) QueryByName(name string) (QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return QueryResult{}, err
	}
	r, ok := s.agg.Lookup(name)
	if !ok {
		return QueryResult{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return QueryResult{
		Count:     r.Count,
		MinTimeMs: r.MinTimeMs,
		MaxTimeMs: r.MaxTimeMs,
		AvgTimeMs: r.AvgTimeMs(),
	}, nil
}

// Report refreshes and returns a *CountReport or *TraceReport.
func (s *Session) Report(mode Mode) (Report, error) {
	if mode != Count && mode != Trace {
		return nil, fmt.Errorf("unsupported report mode %v", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}

	if mode == Trace {
		return &TraceReport{Arch: s.dev.Arch(), Suite: s.active, Records: s.store.Snapshot()}, nil
	}
	return &CountReport{
		Arch:        s.dev.Arch(),
		Results:     slices.Clone(s.agg.Results),
		TotalTimeMs: s.agg.TotalTimeMs,
	}, nil
}
