package device

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed device.
	ErrClosed = errors.New("device closed")

	// ErrBackend is returned when the native profiling library reports a
	// failure that has no more specific meaning.
	ErrBackend = errors.New("device backend error")
)

// Failure wraps a sentinel with the backend call and return code that
// produced it. errors.Is still reaches the sentinel through Unwrap.
type Failure struct {
	Cause error
	Op    string // "sync", "fetch", "clear", "reconfigure", "launch"
	Code  int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v (rc=%d)", f.Op, f.Cause, f.Code)
}

func (f *Failure) Unwrap() error { return f.Cause }
