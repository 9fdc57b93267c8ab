package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// recorder collects outcomes from concurrent workers, per operation.
type recorder struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

type opStats struct {
	requests  int
	failures  int
	hits      int
	latencies []time.Duration
	statuses  map[int]int
}

func newRecorder() *recorder {
	return &recorder{ops: make(map[string]*opStats)}
}

// record stores one request. status 0 means the request never completed.
func (r *recorder) record(op string, elapsed time.Duration, status, hits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ops[op]
	if !ok {
		s = &opStats{statuses: make(map[int]int)}
		r.ops[op] = s
	}
	s.requests++
	s.statuses[status]++
	if status < 200 || status >= 300 {
		s.failures++
		return
	}
	s.hits += hits
	s.latencies = append(s.latencies, elapsed)
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.ops {
		n += s.requests
	}
	return n
}

func (r *recorder) report(w io.Writer, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		s := r.ops[name]
		fmt.Fprintf(w, "=== %s ===\n", name)
		fmt.Fprintf(w, "Requests:      %d (%.1f/s)\n", s.requests, float64(s.requests)/elapsed.Seconds())
		fmt.Fprintf(w, "Failures:      %d (%.2f%%)\n", s.failures, 100*float64(s.failures)/float64(max(s.requests, 1)))
		if ok := s.requests - s.failures; ok > 0 && name == opSearch {
			fmt.Fprintf(w, "Avg hits:      %.1f\n", float64(s.hits)/float64(ok))
		}

		lat := slices.Clone(s.latencies)
		slices.Sort(lat)
		if len(lat) > 0 {
			fmt.Fprintf(w, "Latency min/avg/max: %s / %s / %s\n", lat[0], mean(lat), lat[len(lat)-1])
			fmt.Fprintf(w, "Latency p50/p90/p99: %s / %s / %s\n",
				percentile(lat, 50), percentile(lat, 90), percentile(lat, 99))
		}

		codes := make([]int, 0, len(s.statuses))
		for code := range s.statuses {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			label := fmt.Sprint(code)
			if code == 0 {
				label = "error"
			}
			fmt.Fprintf(w, "  %s: %d\n", label, s.statuses[code])
		}
		fmt.Fprintln(w)
	}
}

func mean(d []time.Duration) time.Duration {
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

// percentile uses the nearest-rank method over sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
