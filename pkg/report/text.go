package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

const countColumns = "[      %     total   count |      min       avg       max   ] Kernel name"

// TextFormatter renders fixed-width tables: one row per kernel for count
// reports, one row per launch for trace reports, each framed by a header
// naming the mode and device arch.
type TextFormatter struct{}

func (f *TextFormatter) Format(w io.Writer, r profiler.Report) error {
	bw := bufio.NewWriter(w)
	switch r := r.(type) {
	case *profiler.CountReport:
		writeCount(bw, r)
	case *profiler.TraceReport:
		writeTrace(bw, r)
	default:
		return fmt.Errorf("text: unsupported report %T", r)
	}
	return bw.Flush()
}

func writeCount(w *bufio.Writer, r *profiler.CountReport) {
	outer := strings.Repeat("=", len(countColumns))
	inner := strings.Repeat("-", len(countColumns))

	fmt.Fprintln(w, outer)
	fmt.Fprintf(w, "Kernel Profiler(count) @ %s\n", archLabel(r.Arch))
	fmt.Fprintln(w, outer)
	fmt.Fprintln(w, countColumns)
	fmt.Fprintln(w, inner)
	for _, row := range r.Rows() {
		fmt.Fprintf(w, "[%6.2f%% %7.3f s %6dx |%9.3f %9.3f %9.3f ms] %s\n",
			row.Percent, row.TotalTimeS, row.Count,
			row.MinTimeMs, row.AvgTimeMs, row.MaxTimeMs, row.KernelName)
	}
	fmt.Fprintln(w, inner)
	fmt.Fprintf(w, "[100.00%%] Total execution time: %7.3f s   number of results: %d\n",
		r.TotalTimeMs/1000.0, len(r.Results))
	fmt.Fprintln(w, outer)
}

func writeTrace(w *bufio.Writer, r *profiler.TraceReport) {
	var header strings.Builder
	header.WriteString("[  start.time | kernel.time |")
	for _, label := range traceLabels(r) {
		header.WriteString(label)
		header.WriteByte('|')
	}
	columns := strings.Replace(header.String()+"] Kernel name", "|]", "]", 1)

	outer := strings.Repeat("=", len(columns))
	inner := strings.Repeat("-", len(columns))

	fmt.Fprintln(w, outer)
	fmt.Fprintf(w, "Kernel Profiler(trace) @ %s\n", archLabel(r.Arch))
	fmt.Fprintln(w, outer)
	fmt.Fprintln(w, columns)
	fmt.Fprintln(w, inner)

	descs := r.Suite.Metrics()
	for _, row := range r.Rows() {
		var line strings.Builder
		fmt.Fprintf(&line, "[%9.3f ms |%9.3f ms |", row.StartMs, row.KernelMs)
		for i, v := range row.Metrics {
			format := "%9.3f "
			if i < len(descs) {
				format = descs[i].DisplayFormat()
			}
			fmt.Fprintf(&line, format, v)
			line.WriteByte('|')
		}
		fmt.Fprintln(w, strings.Replace(line.String()+"] "+row.KernelName, "|]", "]", 1))
	}
	fmt.Fprintln(w, inner)
	fmt.Fprintf(w, "Number of records:  %d\n", len(r.Records))
	fmt.Fprintln(w, outer)
}
