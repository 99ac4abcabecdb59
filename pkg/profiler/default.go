package profiler

// detached stands in for the device until the runtime attaches one.
type detached struct{}

func (detached) Synchronize() error                    { return ErrNoDevice }
func (detached) FetchRecords() ([]KernelRecord, error) { return nil, ErrNoDevice }
func (detached) ClearBackend() error                   { return ErrNoDevice }
func (detached) ReconfigureCounters([]string) error    { return ErrNoDevice }
func (detached) Arch() string                          { return "none" }

// There is one set of hardware counters per process, so there is one
// process-wide session. It starts disabled, detached, with TimeOnly active.
var defaultSession = NewSession(detached{})

// Default returns the process-wide session.
func Default() *Session { return defaultSession }

// Init is called by the runtime once it has a device. It attaches dev, sets
// the profiling mode, and, when profiling is enabled, configures the device
// counters for suite.
func Init(dev Device, enabled bool, suite MetricSuite, opts ...Option) error {
	s := Default()
	s.Attach(dev, opts...)
	s.SetMode(enabled)
	if !enabled {
		return nil
	}
	return s.SetMetrics(suite)
}
