package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

func countReport() *profiler.CountReport {
	agg := profiler.Aggregate([]profiler.KernelRecord{
		{KernelName: "a", KernelTimeMs: 1},
		{KernelName: "a", KernelTimeMs: 3},
		{KernelName: "b", KernelTimeMs: 2},
	})
	return &profiler.CountReport{Arch: "cuda", Results: agg.Results, TotalTimeMs: agg.TotalTimeMs}
}

func traceReport(t *testing.T) *profiler.TraceReport {
	t.Helper()
	suite, err := profiler.Suite("cache_hit_rate")
	require.NoError(t, err)
	return &profiler.TraceReport{
		Arch:  "cuda",
		Suite: suite,
		Records: []profiler.KernelRecord{
			{KernelName: "k", KernelTimeMs: 1, MetricValues: []float64{50, 75}},
			{KernelName: "k2", KernelTimeMs: 2.5, MetricValues: []float64{100, 12.5}},
		},
	}
}

func render(t *testing.T, format Format, r profiler.Report) string {
	t.Helper()
	f, err := NewFormatter(format)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestTextCount(t *testing.T) {
	out := render(t, FormatText, countReport())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)

	outer := strings.Repeat("=", len(countColumns))
	inner := strings.Repeat("-", len(countColumns))
	assert.Equal(t, []string{
		outer,
		"Kernel Profiler(count) @ CUDA",
		outer,
		countColumns,
		inner,
		"[ 66.67%   0.004 s      2x |    1.000     2.000     3.000 ms] a",
		"[ 33.33%   0.002 s      1x |    2.000     2.000     2.000 ms] b",
		inner,
		"[100.00%] Total execution time:   0.006 s   number of results: 2",
		outer,
	}, lines)
}

func TestTextCountEmpty(t *testing.T) {
	out := render(t, FormatText, &profiler.CountReport{Arch: "sim"})
	assert.Contains(t, out, "Kernel Profiler(count) @ SIM")
	assert.Contains(t, out, "Total execution time:   0.000 s   number of results: 0")
	assert.NotContains(t, out, "NaN")
}

func TestTextTrace(t *testing.T) {
	out := render(t, FormatText, traceReport(t))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)

	assert.Equal(t, "Kernel Profiler(trace) @ CUDA", lines[1])
	assert.Equal(t, "[  start.time | kernel.time | L1.hit | L2.hit ] Kernel name", lines[3])
	assert.Equal(t, strings.Repeat("=", len(lines[3])), lines[0])
	assert.Equal(t, "[    0.000 ms |    1.000 ms |  50.00 % |  75.00 % ] k", lines[5])
	assert.Equal(t, "[    1.000 ms |    2.500 ms | 100.00 % |  12.50 % ] k2", lines[6])
	assert.Equal(t, "Number of records:  2", lines[8])
}

func TestTextTraceTimeOnly(t *testing.T) {
	r := &profiler.TraceReport{
		Arch:    "sim",
		Suite:   profiler.TimeOnly,
		Records: []profiler.KernelRecord{{KernelName: "k", KernelTimeMs: 1}},
	}
	out := render(t, FormatText, r)
	assert.Contains(t, out, "[  start.time | kernel.time ] Kernel name\n")
	assert.Contains(t, out, "[    0.000 ms |    1.000 ms ] k\n")
}

func TestJSONCount(t *testing.T) {
	f := &JSONFormatter{
		NewID: func() string { return "run-1" },
		Now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, countReport()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, "count", doc.Mode)
	assert.Equal(t, 6.0, doc.TotalTimeMs)
	require.Len(t, doc.Kernels, 2)
	assert.Equal(t, "a", doc.Kernels[0].KernelName)
	assert.Equal(t, 2.0, doc.Kernels[0].AvgTimeMs)
	assert.Empty(t, doc.Records)
}

func TestJSONTrace(t *testing.T) {
	f := NewJSONFormatter()
	doc, err := f.Document(traceReport(t))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, "trace", doc.Mode)
	assert.Equal(t, []string{"l1tex__t_sector_hit_rate.pct", "lts__t_sector_hit_rate.pct"}, doc.Metrics)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, 1.0, doc.Records[1].StartMs)
	assert.Equal(t, 3.5, doc.TotalTimeMs)
}

func TestCSV(t *testing.T) {
	rows, err := csv.NewReader(strings.NewReader(render(t, FormatCSV, countReport()))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "kernel", rows[0][0])
	assert.Equal(t, []string{"b", "1", "33.33333333333333", "0.002", "2", "2", "2"}, rows[2])

	rows, err = csv.NewReader(strings.NewReader(render(t, FormatCSV, traceReport(t)))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"kernel", "start_ms", "kernel_ms", "l1tex__t_sector_hit_rate.pct", "lts__t_sector_hit_rate.pct"}, rows[0])
	assert.Equal(t, []string{"k2", "1", "2.5", "100", "12.5"}, rows[2])
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewFormatter("xml")
	assert.Error(t, err)
}
