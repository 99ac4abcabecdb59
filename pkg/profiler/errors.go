package profiler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMetric is returned when a metric id is not in the catalog.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrSuiteNotFound is returned when a suite name is not in the catalog.
	ErrSuiteNotFound = errors.New("metric suite not found")

	// ErrInconsistentRecordShape is returned by Refresh when a fetched record
	// carries a different number of metric values than the active suite. It
	// almost always means the device was reconfigured without a Clear.
	ErrInconsistentRecordShape = errors.New("inconsistent record shape")

	// ErrSyncFailed wraps any error returned by Device.Synchronize.
	ErrSyncFailed = errors.New("device synchronization failed")

	// ErrNotFound is returned by QueryByName for a kernel with no samples.
	ErrNotFound = errors.New("kernel not found")

	// ErrUnsupportedMetric is returned by devices that cannot sample a
	// requested counter id.
	ErrUnsupportedMetric = errors.New("unsupported metric")

	// ErrNoDevice is returned by the detached device the default session
	// holds until the runtime attaches a real one.
	ErrNoDevice = errors.New("no device attached")
)

// IsDeviceErr reports whether err came from the device collaborator rather
// than from a bad lookup or a missing kernel.
func IsDeviceErr(err error) bool {
	return errors.Is(err, ErrSyncFailed) ||
		errors.Is(err, ErrUnsupportedMetric) ||
		errors.Is(err, ErrNoDevice)
}

// LookupError carries the names that would have been accepted so the caller
// can print them. errors.Is still matches the wrapped sentinel.
type LookupError struct {
	Cause error
	Name  string
	Valid []string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q (valid: %s)", e.Cause, e.Name, strings.Join(e.Valid, ", "))
}

func (e *LookupError) Unwrap() error { return e.Cause }

// ShapeError describes the first record that failed shape validation.
type ShapeError struct {
	Index  int
	Kernel string
	Got    int
	Want   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: record %d (%s) has %d metric values, active suite has %d",
		ErrInconsistentRecordShape, e.Index, e.Kernel, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrInconsistentRecordShape }
