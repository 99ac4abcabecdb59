package profiler

import (
	"slices"
	"sync"
)

// KernelRecord is one kernel launch as reported by the device. MetricValues
// holds raw counter values in the order of the suite that was active when the
// kernel ran.
type KernelRecord struct {
	KernelName   string    `json:"kernel_name"`
	KernelTimeMs float64   `json:"kernel_time_ms"`
	MetricValues []float64 `json:"metric_values,omitempty"`
}

// RecordStore holds the latest snapshot pulled from the device.
type RecordStore struct {
	mu      sync.RWMutex
	records []KernelRecord
}

// Replace discards the previous snapshot and installs records. The device
// buffer is the single source of truth, so the store never merges.
func (s *RecordStore) Replace(records []KernelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.Clone(records)
}

// Snapshot returns a copy of the current records in launch order.
func (s *RecordStore) Snapshot() []KernelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Len returns the number of records in the current snapshot.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// validateShape checks every record against the active suite width.
func validateShape(records []KernelRecord, want int) error {
	for i, r := range records {
		if len(r.MetricValues) != want {
			return &ShapeError{Index: i, Kernel: r.KernelName, Got: len(r.MetricValues), Want: want}
		}
	}
	return nil
}
