package device

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// Sampler produces the raw value of one counter for one launch.
type Sampler func(kernel string, timeMs float64, metricID string) float64

// DefaultSampler derives stable counter values from the kernel name and
// metric id, so repeated launches of one kernel report the same profile.
func DefaultSampler(kernel string, timeMs float64, metricID string) float64 {
	frac := float64(xxh3.HashString(kernel+"/"+metricID)%10000) / 10000
	switch {
	case strings.HasSuffix(metricID, ".pct") || strings.Contains(metricID, "pct_of_peak"):
		return 20 + 80*frac
	case strings.HasSuffix(metricID, ".per_second"):
		return (100 + 800*frac) * 1e9
	case strings.HasPrefix(metricID, "dram__bytes"):
		return math.Round((100 + 800*frac) * 1e9 * timeMs / 1000)
	default:
		return math.Round(frac * 1e5 * timeMs)
	}
}

type launch struct {
	name   string
	timeMs float64
}

// Sim is an in-process device with an asynchronous launch queue. A single
// worker goroutine retires launches in order, so kernels are still in
// flight when Launch returns and only Synchronize makes them visible.
type Sim struct {
	queue chan launch

	// lifecycle serializes Close against in-progress Launch sends.
	lifecycle sync.RWMutex
	closed    bool

	mu sync.Mutex
	// idle is signalled when pending drops to zero.
	idle      *sync.Cond
	pending   int
	records   []profiler.KernelRecord
	ids       []string
	supported map[string]struct{}
	sampler   Sampler
	capacity  int
	dropped   int
	latency   time.Duration
	syncErr   error
	arch      string
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithSampler replaces DefaultSampler.
func WithSampler(fn Sampler) SimOption {
	return func(d *Sim) { d.sampler = fn }
}

// WithSupported restricts the counters the device can sample. By default
// every catalog metric is supported.
func WithSupported(ids ...string) SimOption {
	return func(d *Sim) {
		d.supported = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			d.supported[id] = struct{}{}
		}
	}
}

// WithCapacity overrides the record buffer size.
func WithCapacity(n int) SimOption {
	return func(d *Sim) { d.capacity = n }
}

// WithLatency sets the wall-clock time the worker spends per launch.
func WithLatency(l time.Duration) SimOption {
	return func(d *Sim) { d.latency = l }
}

// WithArch sets the name reported in report headers.
func WithArch(name string) SimOption {
	return func(d *Sim) { d.arch = name }
}

// NewSim starts a simulated device. Call Close to stop its worker.
func NewSim(opts ...SimOption) *Sim {
	d := &Sim{
		queue:    make(chan launch, queueDepth),
		sampler:  DefaultSampler,
		capacity: recordCapacity,
		latency:  launchLatency,
		arch:     "SIM",
	}
	d.idle = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

func (d *Sim) run() {
	for l := range d.queue {
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		d.retire(l)
	}
}

func (d *Sim) retire(l launch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		d.pending--
		if d.pending == 0 {
			d.idle.Broadcast()
		}
	}()

	if len(d.records) >= d.capacity {
		d.dropped++
		return
	}
	// counters are sampled under whatever configuration is live when the
	// kernel runs, not when it was enqueued
	values := make([]float64, len(d.ids))
	for i, id := range d.ids {
		values[i] = d.sampler(l.name, l.timeMs, id)
	}
	d.records = append(d.records, profiler.KernelRecord{
		KernelName:   l.name,
		KernelTimeMs: l.timeMs,
		MetricValues: values,
	})
}

// Launch enqueues a kernel that will report timeMs of device time. It
// returns as soon as the launch is queued. Launches on a closed device are
// ignored.
func (d *Sim) Launch(name string, timeMs float64) {
	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()
	if d.closed {
		return
	}
	d.mu.Lock()
	d.pending++
	d.mu.Unlock()
	d.queue <- launch{name: name, timeMs: timeMs}
}

// SetSyncError makes every following Synchronize fail with err. Pass nil to
// recover.
func (d *Sim) SetSyncError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncErr = err
}

// Dropped returns how many launches were not recorded because the buffer
// was full.
func (d *Sim) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// MetricIDs returns the live counter configuration.
func (d *Sim) MetricIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.ids)
}

func (d *Sim) Synchronize() error {
	if d.isClosed() {
		return &Failure{Cause: ErrClosed, Op: "sync"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.syncErr != nil {
		return d.syncErr
	}
	for d.pending > 0 {
		d.idle.Wait()
	}
	return nil
}

func (d *Sim) FetchRecords() ([]profiler.KernelRecord, error) {
	if d.isClosed() {
		return nil, &Failure{Cause: ErrClosed, Op: "fetch"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.records), nil
}

func (d *Sim) ClearBackend() error {
	if d.isClosed() {
		return &Failure{Cause: ErrClosed, Op: "clear"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil
	d.dropped = 0
	return nil
}

// ReconfigureCounters validates every id before applying any, so a failed
// call leaves the previous configuration live.
func (d *Sim) ReconfigureCounters(metricIDs []string) error {
	if d.isClosed() {
		return &Failure{Cause: ErrClosed, Op: "reconfigure"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range metricIDs {
		if !d.canSample(id) {
			return fmt.Errorf("%w: %s", profiler.ErrUnsupportedMetric, id)
		}
	}
	d.ids = slices.Clone(metricIDs)
	return nil
}

func (d *Sim) canSample(id string) bool {
	if d.supported != nil {
		_, ok := d.supported[id]
		return ok
	}
	_, err := profiler.Describe(id)
	return err == nil
}

func (d *Sim) Arch() string { return d.arch }

// Close stops the worker after the queued launches retire.
func (d *Sim) Close() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Sim) isClosed() bool {
	d.lifecycle.RLock()
	defer d.lifecycle.RUnlock()
	return d.closed
}
