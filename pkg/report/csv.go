package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// CSVFormatter writes a header row followed by one row per kernel (count) or
// per launch (trace). Metric columns are named by metric id and hold scaled
// values.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(w io.Writer, r profiler.Report) error {
	cw := csv.NewWriter(w)
	var err error
	switch r := r.(type) {
	case *profiler.CountReport:
		err = writeCountCSV(cw, r)
	case *profiler.TraceReport:
		err = writeTraceCSV(cw, r)
	default:
		return fmt.Errorf("csv: unsupported report %T", r)
	}
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeCountCSV(w *csv.Writer, r *profiler.CountReport) error {
	if err := w.Write([]string{"kernel", "count", "percent", "total_s", "min_ms", "avg_ms", "max_ms"}); err != nil {
		return err
	}
	for _, row := range r.Rows() {
		err := w.Write([]string{
			row.KernelName,
			strconv.FormatUint(row.Count, 10),
			ff(row.Percent),
			ff(row.TotalTimeS),
			ff(row.MinTimeMs),
			ff(row.AvgTimeMs),
			ff(row.MaxTimeMs),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeTraceCSV(w *csv.Writer, r *profiler.TraceReport) error {
	header := []string{"kernel", "start_ms", "kernel_ms"}
	ids := r.Suite.IDs()
	header = append(header, ids...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows() {
		rec := []string{row.KernelName, ff(row.StartMs), ff(row.KernelMs)}
		for _, v := range row.Metrics {
			rec = append(rec, ff(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
