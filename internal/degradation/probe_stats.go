package degradation

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats is a bounded rolling window of probe round-trip latencies,
// for diagnostics only and never consulted by breaker or gate logic. It is a
// standalone helper: the probes do not record into it and the ops status
// endpoint does not read it. Mirrors the way risk
// statistics are computed elsewhere in this codebase with gonum/stat,
// applied here to resilience-core observability instead of portfolio risk.
type LatencyStats struct {
	mu      sync.Mutex
	samples []float64
	maxLen  int
}

// NewLatencyStats constructs a rolling window holding at most maxLen
// samples (oldest evicted first).
func NewLatencyStats(maxLen int) *LatencyStats {
	if maxLen <= 0 {
		maxLen = 200
	}
	return &LatencyStats{maxLen: maxLen}
}

// Record appends a latency sample in milliseconds.
func (s *LatencyStats) Record(latencyMS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, latencyMS)
	if len(s.samples) > s.maxLen {
		s.samples = s.samples[len(s.samples)-s.maxLen:]
	}
}

// LatencySnapshot is the read-only diagnostic view of a LatencyStats window.
type LatencySnapshot struct {
	Count  int
	MeanMS float64
	StdDev float64
}

// Snapshot computes mean and standard deviation over the current window.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return LatencySnapshot{}
	}
	mean, std := stat.MeanStdDev(s.samples, nil)
	return LatencySnapshot{Count: len(s.samples), MeanMS: mean, StdDev: std}
}
