// Package workload drives named synthetic kernel mixes through a device so a
// profiling pass has something representative to measure.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// ErrDisabled is returned by Profile when the session is not in profiling
// mode.
var ErrDisabled = errors.New("kernel profiling disabled")

// Launcher enqueues one kernel. Implemented by device.Sim and device.CUDA.
type Launcher interface {
	Launch(name string, timeMs float64)
}

// Kernel is one launch in an iteration.
type Kernel struct {
	Name   string
	MeanMs float64
	// Jitter is the relative spread around MeanMs, 0.1 = ±10%.
	Jitter float64
}

// Workload is a sequence of kernels launched once per iteration, in order.
type Workload struct {
	Name    string
	Kernels []Kernel
}

var workloads = map[string]Workload{
	// mpm99 mirrors the 2D material point method substep: grid reset,
	// particle-to-grid scatter, grid update, grid-to-particle gather.
	"mpm99": {Name: "mpm99", Kernels: []Kernel{
		{Name: "substep_c4_0_kernel_0_range_for", MeanMs: 0.021, Jitter: 0.05},
		{Name: "substep_c4_0_kernel_1_range_for", MeanMs: 0.184, Jitter: 0.15},
		{Name: "substep_c4_0_kernel_2_struct_for", MeanMs: 0.035, Jitter: 0.05},
		{Name: "substep_c4_0_kernel_3_range_for", MeanMs: 0.142, Jitter: 0.10},
	}},
	"memcpy": {Name: "memcpy", Kernels: []Kernel{
		{Name: "fill_c6_0_kernel_0_range_for", MeanMs: 0.350, Jitter: 0.02},
		{Name: "memcpy_c8_0_kernel_0_range_for", MeanMs: 0.700, Jitter: 0.02},
	}},
	"reduction": {Name: "reduction", Kernels: []Kernel{
		{Name: "fill_c6_0_kernel_0_range_for", MeanMs: 0.350, Jitter: 0.02},
		{Name: "reduce_sum_c10_0_kernel_0_range_for", MeanMs: 1.200, Jitter: 0.20},
	}},
	"mixed": {Name: "mixed", Kernels: []Kernel{
		{Name: "fill_c6_0_kernel_0_range_for", MeanMs: 0.350, Jitter: 0.02},
		{Name: "saxpy_c12_0_kernel_0_range_for", MeanMs: 0.520, Jitter: 0.05},
		{Name: "reduce_sum_c10_0_kernel_0_range_for", MeanMs: 1.200, Jitter: 0.20},
		{Name: "saxpy_c12_0_kernel_0_range_for", MeanMs: 0.520, Jitter: 0.05},
	}},
}

// Get returns the named workload.
func Get(name string) (Workload, error) {
	w, ok := workloads[name]
	if !ok {
		return Workload{}, fmt.Errorf("unknown workload %q (valid: %v)", name, Names())
	}
	return w, nil
}

// Names lists the built-in workloads, sorted.
func Names() []string {
	names := lo.Keys(workloads)
	slices.Sort(names)
	return names
}

// Runner launches workloads. Seed makes jitter reproducible.
type Runner struct {
	Launcher Launcher
	Seed     uint64
}

// Run launches every kernel of w iterations times and returns the number of
// launches issued. It stops early, between launches, when ctx is done. Run
// does not wait for the device.
func (r Runner) Run(ctx context.Context, w Workload, iterations int) (int, error) {
	rng := rand.New(rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15))
	launched := 0
	for range iterations {
		for _, k := range w.Kernels {
			if err := ctx.Err(); err != nil {
				return launched, err
			}
			r.Launcher.Launch(k.Name, jitter(rng, k))
			launched++
		}
	}
	return launched, nil
}

func jitter(rng *rand.Rand, k Kernel) float64 {
	if k.Jitter <= 0 {
		return k.MeanMs
	}
	return k.MeanMs * (1 + k.Jitter*(2*rng.Float64()-1))
}

// Result is the outcome of one profiling pass.
type Result struct {
	Workload string
	Suite    profiler.MetricSuite
	Launched int
	Count    *profiler.CountReport
	Trace    *profiler.TraceReport
}

// Profile runs w under suite on s and captures both report modes before the
// session's baseline suite is restored.
func (r Runner) Profile(ctx context.Context, s *profiler.Session, w Workload, iterations int, suite profiler.MetricSuite) (*Result, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	res := &Result{Workload: w.Name, Suite: suite}
	err := s.CollectWithMetrics(suite, func() error {
		n, err := r.Run(ctx, w, iterations)
		res.Launched = n
		if err != nil {
			return err
		}

		count, err := s.Report(profiler.Count)
		if err != nil {
			return err
		}
		trace, err := s.Report(profiler.Trace)
		if err != nil {
			return err
		}
		res.Count = count.(*profiler.CountReport)
		res.Trace = trace.(*profiler.TraceReport)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("profile workload %s: %w", w.Name, err)
	}
	return res, nil
}
