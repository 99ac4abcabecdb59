//go:build !cuda

package device

import (
	"errors"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// CUDA is a placeholder used when building without the cuda tag.
// Compile with -tags cuda on a GPU host to get the real implementation.
type CUDA struct{}

// NewCUDA always fails in builds without the cuda tag.
func NewCUDA(ordinal int) (*CUDA, error) {
	return nil, errors.New("built without cuda support: recompile with -tags cuda")
}

func (*CUDA) Synchronize() error                             { return ErrClosed }
func (*CUDA) FetchRecords() ([]profiler.KernelRecord, error) { return nil, ErrClosed }
func (*CUDA) ClearBackend() error                            { return ErrClosed }
func (*CUDA) ReconfigureCounters([]string) error             { return ErrClosed }
func (*CUDA) Launch(string, float64)                         {}
func (*CUDA) Failed() int                                    { return 0 }
func (*CUDA) Arch() string                                   { return "none" }
func (*CUDA) Close()                                         {}
