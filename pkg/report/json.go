package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// Document is the JSON shape of a report. Exactly one of Kernels or Records
// is set, depending on Mode.
type Document struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Mode        string    `json:"mode"`
	Arch        string    `json:"arch"`

	TotalTimeMs float64             `json:"total_time_ms"`
	Kernels     []profiler.CountRow `json:"kernels,omitempty"`

	Metrics []string            `json:"metrics,omitempty"`
	Records []profiler.TraceRow `json:"records,omitempty"`
}

// JSONFormatter writes one indented Document per report.
type JSONFormatter struct {
	NewID func() string
	Now   func() time.Time
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{NewID: uuid.NewString, Now: time.Now}
}

// Document builds the document without encoding it, for callers that embed
// reports in larger payloads.
func (f *JSONFormatter) Document(r profiler.Report) (*Document, error) {
	doc := &Document{
		RunID:       f.NewID(),
		GeneratedAt: f.Now().UTC(),
		Mode:        r.Mode().String(),
	}
	switch r := r.(type) {
	case *profiler.CountReport:
		doc.Arch = r.Arch
		doc.TotalTimeMs = r.TotalTimeMs
		doc.Kernels = r.Rows()
	case *profiler.TraceReport:
		doc.Arch = r.Arch
		doc.Metrics = r.Suite.IDs()
		doc.Records = r.Rows()
		for _, rec := range r.Records {
			doc.TotalTimeMs += rec.KernelTimeMs
		}
	default:
		return nil, fmt.Errorf("json: unsupported report %T", r)
	}
	return doc, nil
}

func (f *JSONFormatter) Format(w io.Writer, r profiler.Report) error {
	doc, err := f.Document(r)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
