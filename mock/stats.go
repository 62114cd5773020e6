// Package mock has test doubles for the etl interfaces.
package mock

import (
	"sync"
	"time"
)

// RecordingStatter is an etl.Statter which remembers counts and timings.
type RecordingStatter struct {
	mu      sync.Mutex
	counts  map[string]int64
	timings map[string][]time.Duration
}

func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[name] += value
}

func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

func (r *RecordingStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

func (r *RecordingStatter) Set(name string, value string, rate float64, tags ...string) {}

func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timings == nil {
		r.timings = make(map[string][]time.Duration)
	}
	r.timings[name] = append(r.timings[name], value)
}

// CountOf returns the total counted under name.
func (r *RecordingStatter) CountOf(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Timings returns the durations recorded under name.
func (r *RecordingStatter) Timings(name string) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.timings[name]...)
}
