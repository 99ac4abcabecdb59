package device

import (
	"os"
	"strconv"
	"time"
)

// recordCapacity is the maximum number of launches a device buffers between
// clears. Further launches still run but are not recorded.
// Override with KPROF_RECORD_CAPACITY.
var recordCapacity = envInt("KPROF_RECORD_CAPACITY", 16384)

// launchLatency is how long the simulated device takes to retire one launch
// in wall-clock time, independent of the kernel time it reports.
// Override with KPROF_SIM_LATENCY_US.
var launchLatency = time.Duration(envInt("KPROF_SIM_LATENCY_US", 0)) * time.Microsecond

// queueDepth bounds the number of launches in flight on the simulated
// device before Launch blocks. Not env-configurable.
const queueDepth = 1024

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}
