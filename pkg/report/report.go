// Package report renders profiler reports as the classic fixed-width text
// table, as JSON documents, or as CSV.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// Format names an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Formatter writes one report to w.
type Formatter interface {
	Format(w io.Writer, r profiler.Report) error
}

// NewFormatter returns the Formatter for format. JSON documents get a fresh
// run id and the current time.
func NewFormatter(format Format) (Formatter, error) {
	switch format {
	case FormatText, "":
		return &TextFormatter{}, nil
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{string(FormatText), string(FormatJSON), string(FormatCSV)}
}

// traceLabels returns the metric column labels for a trace. Columns beyond the
// suite, which a consistent session never produces, fall back to "m<i>".
func traceLabels(r *profiler.TraceReport) []string {
	labels := r.Suite.Labels()
	width := len(labels)
	for _, rec := range r.Records {
		width = max(width, len(rec.MetricValues))
	}
	for i := len(labels); i < width; i++ {
		labels = append(labels, fmt.Sprintf(" m%d ", i))
	}
	return labels
}

func archLabel(arch string) string {
	if arch == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(arch)
}
