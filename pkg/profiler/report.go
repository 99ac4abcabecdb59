package profiler

import (
	"fmt"
	"strings"
)

// Mode selects the report shape.
type Mode int

const (
	// Count reports per-kernel statistics.
	Count Mode = iota
	// Trace reports every launch with its counter values.
	Trace
)

func (m Mode) String() string {
	switch m {
	case Count:
		return "count"
	case Trace:
		return "trace"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "count" or "trace" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "":
		return Count, nil
	case "trace":
		return Trace, nil
	default:
		return Count, fmt.Errorf("unknown report mode %q (valid: count, trace)", s)
	}
}

// Report is either a *CountReport or a *TraceReport.
type Report interface {
	Mode() Mode
}

// CountReport holds the sorted per-kernel statistics of one refresh.
type CountReport struct {
	Arch        string              `json:"arch"`
	Results     []StatisticalResult `json:"results"`
	TotalTimeMs float64             `json:"total_time_ms"`
}

func (*CountReport) Mode() Mode { return Count }

// CountRow is one rendered row of a count table.
type CountRow struct {
	Percent    float64 `json:"percent"`
	TotalTimeS float64 `json:"total_time_s"`
	Count      uint64  `json:"count"`
	MinTimeMs  float64 `json:"min_time_ms"`
	AvgTimeMs  float64 `json:"avg_time_ms"`
	MaxTimeMs  float64 `json:"max_time_ms"`
	KernelName string  `json:"kernel_name"`
}

// Rows derives the display rows. Percentages are 0 when nothing was recorded.
func (r *CountReport) Rows() []CountRow {
	rows := make([]CountRow, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, CountRow{
			Percent:    Percent(res.TotalTimeMs, r.TotalTimeMs),
			TotalTimeS: res.TotalTimeMs / 1000.0,
			Count:      res.Count,
			MinTimeMs:  res.MinTimeMs,
			AvgTimeMs:  res.AvgTimeMs(),
			MaxTimeMs:  res.MaxTimeMs,
			KernelName: res.KernelName,
		})
	}
	return rows
}

// TraceReport holds every launch of one refresh plus the suite that labels
// the metric columns.
type TraceReport struct {
	Arch    string         `json:"arch"`
	Suite   MetricSuite    `json:"-"`
	Records []KernelRecord `json:"records"`
}

func (*TraceReport) Mode() Mode { return Trace }

// TraceRow is one rendered launch. StartMs is synthetic: the sum of all prior
// kernel times, since device timestamps are not collected.
type TraceRow struct {
	StartMs    float64   `json:"start_ms"`
	KernelMs   float64   `json:"kernel_ms"`
	Metrics    []float64 `json:"metrics,omitempty"`
	KernelName string    `json:"kernel_name"`
}

// Rows derives display rows with metric values already scaled.
func (r *TraceReport) Rows() []TraceRow {
	descs := r.Suite.Metrics()
	rows := make([]TraceRow, 0, len(r.Records))
	var start float64
	for _, rec := range r.Records {
		row := TraceRow{StartMs: start, KernelMs: rec.KernelTimeMs, KernelName: rec.KernelName}
		for i, v := range rec.MetricValues {
			if i < len(descs) {
				v *= descs[i].Scale()
			}
			row.Metrics = append(row.Metrics, v)
		}
		rows = append(rows, row)
		start += rec.KernelTimeMs
	}
	return rows
}

// QueryResult is the per-kernel answer to QueryByName.
type QueryResult struct {
	Count     uint64  `json:"count"`
	MinTimeMs float64 `json:"min_time_ms"`
	MaxTimeMs float64 `json:"max_time_ms"`
	AvgTimeMs float64 `json:"avg_time_ms"`
}
