// Package metrics aggregates engine-level counters and per-step-kind
// latency histograms for status snapshots.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// Histogram bounds: one millisecond to one hour, three significant digits.
const (
	minDurationMs = 1
	maxDurationMs = int64(time.Hour / time.Millisecond)
	sigFigs       = 3
)

// Recorder accumulates execution metrics. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	durations map[types.StepKind]*hdrhistogram.Histogram

	stepsByStatus      map[types.StepStatus]int64
	executionsByStatus map[types.ExecutionStatus]int64
	cacheHits          int64
	cacheMisses        int64
	securityRejections int64
	retries            int64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		durations:          make(map[types.StepKind]*hdrhistogram.Histogram),
		stepsByStatus:      make(map[types.StepStatus]int64),
		executionsByStatus: make(map[types.ExecutionStatus]int64),
	}
}

// ObserveStep records a finished step's duration and terminal status.
func (r *Recorder) ObserveStep(kind types.StepKind, status types.StepStatus, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stepsByStatus[status]++

	h, ok := r.durations[kind]
	if !ok {
		h = hdrhistogram.New(minDurationMs, maxDurationMs, sigFigs)
		r.durations[kind] = h
	}
	ms := duration.Milliseconds()
	if ms < minDurationMs {
		ms = minDurationMs
	}
	if ms > maxDurationMs {
		ms = maxDurationMs
	}
	_ = h.RecordValue(ms)
}

// ObserveExecution records a workflow-level terminal transition.
func (r *Recorder) ObserveExecution(status types.ExecutionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executionsByStatus[status]++
}

// ObserveCache records a cache lookup outcome.
func (r *Recorder) ObserveCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

// ObserveSecurityRejection counts one validator rejection.
func (r *Recorder) ObserveSecurityRejection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.securityRejections++
}

// ObserveRetry counts one step retry.
func (r *Recorder) ObserveRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

// KindStats summarizes step durations for one kind.
type KindStats struct {
	Count int64   `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs int64   `json:"max_ms"`
}

// Snapshot is a point-in-time view of every aggregate.
type Snapshot struct {
	StepsByStatus      map[types.StepStatus]int64      `json:"steps_by_status"`
	ExecutionsByStatus map[types.ExecutionStatus]int64 `json:"executions_by_status"`
	DurationsByKind    map[types.StepKind]KindStats    `json:"durations_by_kind"`
	CacheHits          int64                           `json:"cache_hits"`
	CacheMisses        int64                           `json:"cache_misses"`
	SecurityRejections int64                           `json:"security_rejections"`
	Retries            int64                           `json:"retries"`
}

// Snapshot returns a copy of the current aggregates.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		StepsByStatus:      make(map[types.StepStatus]int64, len(r.stepsByStatus)),
		ExecutionsByStatus: make(map[types.ExecutionStatus]int64, len(r.executionsByStatus)),
		DurationsByKind:    make(map[types.StepKind]KindStats, len(r.durations)),
		CacheHits:          r.cacheHits,
		CacheMisses:        r.cacheMisses,
		SecurityRejections: r.securityRejections,
		Retries:            r.retries,
	}
	for status, count := range r.stepsByStatus {
		snap.StepsByStatus[status] = count
	}
	for status, count := range r.executionsByStatus {
		snap.ExecutionsByStatus[status] = count
	}
	for kind, h := range r.durations {
		snap.DurationsByKind[kind] = KindStats{
			Count: h.TotalCount(),
			P50Ms: float64(h.ValueAtQuantile(50)),
			P95Ms: float64(h.ValueAtQuantile(95)),
			P99Ms: float64(h.ValueAtQuantile(99)),
			MaxMs: h.Max(),
		}
	}
	return snap
}
