package profiler

import "sort"

// StatisticalResult summarizes every launch of one kernel in a snapshot.
type StatisticalResult struct {
	KernelName  string  `json:"kernel_name"`
	Count       uint64  `json:"count"`
	MinTimeMs   float64 `json:"min_time_ms"`
	MaxTimeMs   float64 `json:"max_time_ms"`
	TotalTimeMs float64 `json:"total_time_ms"`
}

// AvgTimeMs returns the mean launch time, or 0 for an empty result.
func (r StatisticalResult) AvgTimeMs() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.TotalTimeMs / float64(r.Count)
}

func (r *StatisticalResult) insert(ms float64) {
	if r.Count == 0 {
		r.MinTimeMs = ms
		r.MaxTimeMs = ms
	}
	r.Count++
	r.TotalTimeMs += ms
	r.MinTimeMs = min(r.MinTimeMs, ms)
	r.MaxTimeMs = max(r.MaxTimeMs, ms)
}

// Aggregation is the output of one aggregation pass: results sorted by total
// time descending, ties in first-seen order.
type Aggregation struct {
	Results     []StatisticalResult `json:"results"`
	TotalTimeMs float64             `json:"total_time_ms"`
}

// Aggregate reduces records into per-kernel statistics. It keeps no state
// between calls, so the same input always yields the same output.
func Aggregate(records []KernelRecord) Aggregation {
	index := make(map[string]int)
	var results []StatisticalResult
	var total float64

	for _, rec := range records {
		i, ok := index[rec.KernelName]
		if !ok {
			i = len(results)
			index[rec.KernelName] = i
			results = append(results, StatisticalResult{KernelName: rec.KernelName})
		}
		results[i].insert(rec.KernelTimeMs)
		total += rec.KernelTimeMs
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].TotalTimeMs > results[b].TotalTimeMs
	})
	return Aggregation{Results: results, TotalTimeMs: total}
}

// Lookup finds the result for a kernel name.
func (a Aggregation) Lookup(name string) (StatisticalResult, bool) {
	for _, r := range a.Results {
		if r.KernelName == name {
			return r, true
		}
	}
	return StatisticalResult{}, false
}

// Percent returns part as a percentage of total. A zero total yields 0.
func Percent(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100.0
}
