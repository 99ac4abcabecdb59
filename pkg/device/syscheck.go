package device

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GPUStats is one row of nvidia-smi telemetry, attached to profile
// summaries so slow kernels can be correlated with clock derating.
type GPUStats struct {
	Name          string `json:"name"`
	SMClockMHz    int    `json:"sm_clock_mhz"`
	MaxSMClockMHz int    `json:"max_sm_clock_mhz"`
	TempC         int    `json:"temp_c"`
	ECCErrors     int    `json:"ecc_errors"`
}

// DetectGPUName returns the name of GPU 0 as reported by nvidia-smi, or
// "unknown" if nvidia-smi is unavailable.
func DetectGPUName() string {
	out, err := exec.Command(
		"nvidia-smi", "--query-gpu=name", "--format=csv,noheader", "--id=0",
	).Output()
	if err != nil {
		return "unknown"
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "unknown"
	}
	return name
}

// QueryGPUs returns telemetry for every visible GPU in device order.
func QueryGPUs() ([]GPUStats, error) {
	out, err := exec.Command(
		"nvidia-smi",
		"--query-gpu=name,clocks.sm,clocks.max.sm,temperature.gpu,ecc.errors.uncorrected.aggregate.total",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseSMI(string(out))
}

func parseSMI(out string) ([]GPUStats, error) {
	parse := func(s string) int {
		s = strings.TrimSpace(s)
		if s == "N/A" || s == "[N/A]" {
			return 0
		}
		v, _ := strconv.Atoi(s)
		return v
	}

	var result []GPUStats
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ", ")
		if len(fields) != 5 {
			return nil, fmt.Errorf("nvidia-smi: unexpected field count in %q", line)
		}
		result = append(result, GPUStats{
			Name:          strings.TrimSpace(fields[0]),
			SMClockMHz:    parse(fields[1]),
			MaxSMClockMHz: parse(fields[2]),
			TempC:         parse(fields[3]),
			ECCErrors:     parse(fields[4]),
		})
	}
	return result, nil
}
