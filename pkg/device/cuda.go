//go:build cuda

package device

/*
#cgo CFLAGS:  -I${SRCDIR}/../../cuda
#cgo LDFLAGS: -L${SRCDIR}/../../cuda -lkprof -lcupti -lcudart -lstdc++ -Wl,-rpath,/usr/local/lib
#include <stdlib.h>
#include "kprof.h"
*/
import "C"
import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/justin-oleary/kernprof/pkg/profiler"
)

// CUDA drives the native profiling library against one GPU. The library
// keeps a single global buffer, so only one CUDA device may be open per
// process.
type CUDA struct {
	mu     sync.Mutex
	closed bool
	ids    int
	failed int
	arch   string
}

// NewCUDA initializes the native profiler on the given device ordinal.
func NewCUDA(ordinal int) (*CUDA, error) {
	if err := check("init", C.kprof_init(C.int(ordinal))); err != nil {
		return nil, err
	}
	buf := make([]byte, C.KPROF_MAX_NAME)
	name := DetectGPUName()
	if rc := C.kprof_device_name((*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf))); rc == C.KPROF_OK {
		name = C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
	}
	return &CUDA{arch: name}, nil
}

func check(op string, rc C.int) error {
	switch rc {
	case C.KPROF_OK:
		return nil
	case C.KPROF_ERR_UNSUPPORTED:
		return &Failure{Cause: profiler.ErrUnsupportedMetric, Op: op, Code: int(rc)}
	default:
		return &Failure{Cause: ErrBackend, Op: op, Code: int(rc)}
	}
}

func (d *CUDA) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Failure{Cause: ErrClosed, Op: "sync"}
	}
	return check("sync", C.kprof_sync())
}

func (d *CUDA) FetchRecords() ([]profiler.KernelRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &Failure{Cause: ErrClosed, Op: "fetch"}
	}

	var n C.int
	if err := check("fetch", C.kprof_record_count(&n)); err != nil {
		return nil, err
	}
	records := make([]profiler.KernelRecord, 0, int(n))
	name := make([]byte, C.KPROF_MAX_NAME)
	for i := 0; i < int(n); i++ {
		var timeMs C.double
		values := make([]float64, d.ids)
		var vp *C.double
		if d.ids > 0 {
			vp = (*C.double)(unsafe.Pointer(&values[0]))
		}
		rc := C.kprof_record(C.int(i), (*C.char)(unsafe.Pointer(&name[0])), C.int(len(name)), &timeMs, vp, C.int(d.ids))
		if err := check("fetch", rc); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, profiler.KernelRecord{
			KernelName:   C.GoString((*C.char)(unsafe.Pointer(&name[0]))),
			KernelTimeMs: float64(timeMs),
			MetricValues: values,
		})
	}
	return records, nil
}

func (d *CUDA) ClearBackend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Failure{Cause: ErrClosed, Op: "clear"}
	}
	return check("clear", C.kprof_clear())
}

func (d *CUDA) ReconfigureCounters(metricIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Failure{Cause: ErrClosed, Op: "reconfigure"}
	}

	var arr **C.char
	if len(metricIDs) > 0 {
		arr = (**C.char)(C.malloc(C.size_t(len(metricIDs)) * C.size_t(unsafe.Sizeof(uintptr(0)))))
		defer C.free(unsafe.Pointer(arr))
		slots := unsafe.Slice(arr, len(metricIDs))
		for i, id := range metricIDs {
			slots[i] = C.CString(id)
			defer C.free(unsafe.Pointer(slots[i]))
		}
	}
	if err := check("reconfigure", C.kprof_set_metrics(arr, C.int(len(metricIDs)))); err != nil {
		return err
	}
	d.ids = len(metricIDs)
	return nil
}

// Launch runs a spin kernel of roughly timeMs device time. Used by the
// workload runner to exercise real hardware.
func (d *CUDA) Launch(name string, timeMs float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if err := check("launch", C.kprof_launch_spin(cname, C.double(timeMs))); err != nil {
		d.failed++
		slog.Warn("kernel launch failed, it will be missing from records", "kernel", name, "err", err)
	}
}

// Failed returns how many launches the native library rejected.
func (d *CUDA) Failed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

func (d *CUDA) Arch() string { return d.arch }

func (d *CUDA) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	C.kprof_shutdown()
}
