package profiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// MetricDescriptor names one hardware counter and how to display it.
// Values are immutable once constructed.
type MetricDescriptor struct {
	id     string
	label  string
	format string
	scale  float64
}

// NewMetricDescriptor builds a descriptor. format is a fmt verb string that
// includes the unit, e.g. "%9.3f MB ". The raw counter value is multiplied by
// scale before formatting.
func NewMetricDescriptor(id, label, format string, scale float64) MetricDescriptor {
	return MetricDescriptor{id: id, label: label, format: format, scale: scale}
}

func (d MetricDescriptor) ID() string            { return d.id }
func (d MetricDescriptor) Label() string         { return d.label }
func (d MetricDescriptor) DisplayFormat() string { return d.format }
func (d MetricDescriptor) Scale() float64        { return d.scale }

// Render scales v and formats it for a table column.
func (d MetricDescriptor) Render(v float64) string {
	return fmt.Sprintf(d.format, v*d.scale)
}

// MetricSuite is an ordered set of descriptors collected together. The order
// fixes the index of every value in KernelRecord.MetricValues.
type MetricSuite struct {
	name    string
	metrics []MetricDescriptor
}

// NewMetricSuite builds a suite from descriptors in column order.
func NewMetricSuite(name string, metrics ...MetricDescriptor) MetricSuite {
	return MetricSuite{name: name, metrics: slices.Clone(metrics)}
}

func (s MetricSuite) Name() string { return s.name }
func (s MetricSuite) Len() int     { return len(s.metrics) }

// Metrics returns a copy of the descriptors in column order.
func (s MetricSuite) Metrics() []MetricDescriptor { return slices.Clone(s.metrics) }

// IDs returns the counter ids in column order, as handed to the device.
func (s MetricSuite) IDs() []string {
	return lo.Map(s.metrics, func(m MetricDescriptor, _ int) string { return m.id })
}

// Labels returns the column headers in order.
func (s MetricSuite) Labels() []string {
	return lo.Map(s.metrics, func(m MetricDescriptor, _ int) string { return m.label })
}

// Equal reports whether both suites configure the same counters in the same order.
func (s MetricSuite) Equal(o MetricSuite) bool {
	return slices.Equal(s.IDs(), o.IDs())
}

const (
	mib = 1.0 / 1024 / 1024
	gib = 1.0 / 1024 / 1024 / 1024
)

// Counter ids follow the CUPTI range-profiler (Nsight Compute) naming.
var (
	DRAMUtilization = NewMetricDescriptor(
		"dram__throughput.avg.pct_of_peak_sustained_elapsed", " global.uti ", "   %6.2f %% ", 1.0)
	DRAMBytesSum = NewMetricDescriptor(
		"dram__bytes.sum", " global.R&W ", "%9.3f MB ", mib)
	DRAMBytesThroughput = NewMetricDescriptor(
		"dram__bytes.sum.per_second", " global.R&W/s ", "%8.3f GB/s ", gib)
	DRAMBytesRead = NewMetricDescriptor(
		"dram__bytes_read.sum", "  global.R  ", "%8.3f MB ", mib)
	DRAMReadThroughput = NewMetricDescriptor(
		"dram__bytes_read.sum.per_second", "   global.R/s ", "%8.3f GB/s ", gib)
	DRAMBytesWrite = NewMetricDescriptor(
		"dram__bytes_write.sum", "  global.W  ", "%8.3f MB ", mib)
	DRAMWriteThroughput = NewMetricDescriptor(
		"dram__bytes_write.sum.per_second", "   global.W/s ", "%8.3f GB/s ", gib)

	SharedUtilization = NewMetricDescriptor(
		"l1tex__data_pipe_lsu_wavefronts_mem_shared.avg.pct_of_peak_sustained_elapsed", " shared.uti ", "   %6.2f %% ", 1.0)
	SharedLoadTransactions = NewMetricDescriptor(
		"l1tex__data_pipe_lsu_wavefronts_mem_shared_op_ld.sum", " shared.trans.R ", "    %10.0f ", 1.0)
	SharedStoreTransactions = NewMetricDescriptor(
		"l1tex__data_pipe_lsu_wavefronts_mem_shared_op_st.sum", " shared.trans.W ", "    %10.0f ", 1.0)
	SharedLoadBankConflicts = NewMetricDescriptor(
		"l1tex__data_bank_conflicts_pipe_lsu_mem_shared_op_ld.sum", " bank.conflict.R ", "      %10.0f ", 1.0)
	SharedStoreBankConflicts = NewMetricDescriptor(
		"l1tex__data_bank_conflicts_pipe_lsu_mem_shared_op_st.sum", " bank.conflict.W ", "      %10.0f ", 1.0)

	GlobalAtomic = NewMetricDescriptor(
		"l1tex__t_set_accesses_pipe_lsu_mem_global_op_atom.sum", " global.atom ", "  %10.0f ", 1.0)
	GlobalReduction = NewMetricDescriptor(
		"l1tex__t_set_accesses_pipe_lsu_mem_global_op_red.sum", " global.red ", " %10.0f ", 1.0)
	L1HitRateAtomic = NewMetricDescriptor(
		"l1tex__t_sector_pipe_lsu_mem_global_op_atom_hit_rate.pct", " L1.atom.hit ", "    %6.2f %% ", 1.0)
	L2HitRateAtomic = NewMetricDescriptor(
		"lts__t_sector_op_atom_hit_rate.pct", " L2.atom.hit ", "    %6.2f %% ", 1.0)

	L1HitRate = NewMetricDescriptor(
		"l1tex__t_sector_hit_rate.pct", " L1.hit ", " %6.2f %% ", 1.0)
	L2HitRate = NewMetricDescriptor(
		"lts__t_sector_hit_rate.pct", " L2.hit ", " %6.2f %% ", 1.0)

	AchievedOccupancy = NewMetricDescriptor(
		"sm__warps_active.avg.pct_of_peak_sustained_active", " occupancy ", "  %6.2f %% ", 1.0)
	SMThroughput = NewMetricDescriptor(
		"sm__throughput.avg.pct_of_peak_sustained_elapsed", " core.uti ", " %6.2f %% ", 1.0)
	MemoryThroughput = NewMetricDescriptor(
		"gpu__compute_memory_throughput.avg.pct_of_peak_sustained_elapsed", " mem.uti ", " %6.2f %% ", 1.0)
)

// TimeOnly collects no counters; kernel time is always recorded.
var TimeOnly = NewMetricSuite("time_only")

// DefaultSuite is the single-metric suite used when metrics are requested
// without naming a suite.
var DefaultSuite = NewMetricSuite("default", DRAMBytesSum)

var allMetrics = []MetricDescriptor{
	DRAMUtilization, DRAMBytesSum, DRAMBytesThroughput,
	DRAMBytesRead, DRAMReadThroughput, DRAMBytesWrite, DRAMWriteThroughput,
	SharedUtilization, SharedLoadTransactions, SharedStoreTransactions,
	SharedLoadBankConflicts, SharedStoreBankConflicts,
	GlobalAtomic, GlobalReduction, L1HitRateAtomic, L2HitRateAtomic,
	L1HitRate, L2HitRate,
	AchievedOccupancy, SMThroughput, MemoryThroughput,
}

var metricsByID = lo.KeyBy(allMetrics, func(m MetricDescriptor) string { return m.id })

var predefinedSuites = map[string]MetricSuite{
	"default": DefaultSuite,
	"global_access": NewMetricSuite("global_access",
		DRAMUtilization, DRAMBytesSum, DRAMBytesThroughput,
		DRAMBytesRead, DRAMReadThroughput, DRAMBytesWrite, DRAMWriteThroughput),
	"shared_access": NewMetricSuite("shared_access",
		SharedUtilization, SharedLoadTransactions, SharedStoreTransactions,
		SharedLoadBankConflicts, SharedStoreBankConflicts),
	"atomic_access": NewMetricSuite("atomic_access",
		GlobalAtomic, GlobalReduction, L1HitRateAtomic, L2HitRateAtomic),
	"cache_hit_rate": NewMetricSuite("cache_hit_rate",
		L1HitRate, L2HitRate),
	"device_utilization": NewMetricSuite("device_utilization",
		AchievedOccupancy, SMThroughput, MemoryThroughput, DRAMUtilization),
}

// Describe looks up a counter descriptor by id.
func Describe(id string) (MetricDescriptor, error) {
	m, ok := metricsByID[id]
	if !ok {
		return MetricDescriptor{}, &LookupError{Cause: ErrUnknownMetric, Name: id, Valid: MetricIDs()}
	}
	return m, nil
}

// Suite looks up a predefined suite by name. The returned *LookupError lists
// the valid names. TimeOnly is not registered here; use ResolveSuite to accept it.
func Suite(name string) (MetricSuite, error) {
	s, ok := predefinedSuites[name]
	if !ok {
		return MetricSuite{}, &LookupError{Cause: ErrSuiteNotFound, Name: name, Valid: SuiteNames()}
	}
	return s, nil
}

// SuiteNames returns the predefined suite names, sorted.
func SuiteNames() []string {
	names := lo.Keys(predefinedSuites)
	sort.Strings(names)
	return names
}

// MetricIDs returns every catalog counter id, sorted.
func MetricIDs() []string {
	ids := lo.Keys(metricsByID)
	sort.Strings(ids)
	return ids
}

// ResolveSuite accepts either a suite name, "time_only", or a comma-separated
// list of counter ids that forms an ad-hoc suite named "custom". Unlike Suite,
// it accepts "time_only", which is not a catalog suite. A list that names no
// ids is rejected with ErrUnknownMetric.
func ResolveSuite(selector string) (MetricSuite, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == TimeOnly.name {
		return TimeOnly, nil
	}
	if s, ok := predefinedSuites[selector]; ok {
		return s, nil
	}
	// counter ids always contain a dot; anything else was meant as a suite name
	if !strings.ContainsAny(selector, ",.") {
		return Suite(selector)
	}

	var metrics []MetricDescriptor
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		m, err := Describe(id)
		if err != nil {
			return MetricSuite{}, err
		}
		metrics = append(metrics, m)
	}
	if len(metrics) == 0 {
		return MetricSuite{}, &LookupError{Cause: ErrUnknownMetric, Name: selector, Valid: MetricIDs()}
	}
	return NewMetricSuite("custom", metrics...), nil
}
