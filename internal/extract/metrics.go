package extract

import (
	"sort"
	"sync"
	"time"
)

// Per-iteration outcomes recorded in IterationMetrics.Outcome.
const (
	IterTransportError = "transport_error"
	IterParseError     = "parse_error"
	IterProcessing     = "processing"
	IterLowConfidence  = "low_confidence"
	IterCandidate      = "candidate"
	IterAccepted       = "accepted"
)

// MetricsCollector receives instrumentation from the extractor. Optional;
// pass nil to disable. Implementations must be safe for concurrent use
// because several agents may be extracted at once.
type MetricsCollector interface {
	// RecordIteration is called after every completion call.
	RecordIteration(agentID string, m *IterationMetrics)

	// RecordExtraction is called once when Extract returns.
	RecordExtraction(agentID string, m *ExtractionMetrics)
}

// IterationMetrics captures one completion call.
type IterationMetrics struct {
	Iteration   int // 1-based
	WindowLines int
	PromptBytes int
	Duration    time.Duration
	Outcome     string
	Confidence  float64
	Err         string
}

// ExtractionMetrics captures a whole Extract call.
type ExtractionMetrics struct {
	Outcome       Outcome
	Iterations    int
	TotalDuration time.Duration
	Confidence    float64
}

// AggregateMetrics rolls up everything an InMemoryMetricsCollector has seen.
type AggregateMetrics struct {
	TotalExtractions int
	ByOutcome        map[string]int

	TotalIterations int
	MeanIterations  float64
	P50Iterations   int
	P95Iterations   int

	TransportErrors int
	ParseErrors     int
	TotalDuration   time.Duration
}

// InMemoryMetricsCollector keeps all metrics in memory, for tests and the CLI.
type InMemoryMetricsCollector struct {
	mu          sync.Mutex
	iterations  map[string][]*IterationMetrics
	extractions []*ExtractionMetrics
}

// NewInMemoryMetricsCollector creates an empty collector.
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{iterations: make(map[string][]*IterationMetrics)}
}

// RecordIteration implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIteration(agentID string, it *IterationMetrics) {
	if it == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations[agentID] = append(m.iterations[agentID], it)
}

// RecordExtraction implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordExtraction(agentID string, ex *ExtractionMetrics) {
	if ex == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractions = append(m.extractions, ex)
}

// Iterations returns the recorded iterations for agentID.
func (m *InMemoryMetricsCollector) Iterations(agentID string) []*IterationMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*IterationMetrics, len(m.iterations[agentID]))
	copy(out, m.iterations[agentID])
	return out
}

// Aggregate computes rolled-up statistics.
func (m *InMemoryMetricsCollector) Aggregate() *AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &AggregateMetrics{ByOutcome: make(map[string]int)}

	counts := make([]int, 0, len(m.extractions))
	for _, ex := range m.extractions {
		agg.TotalExtractions++
		agg.ByOutcome[ex.Outcome.String()]++
		agg.TotalIterations += ex.Iterations
		agg.TotalDuration += ex.TotalDuration
		counts = append(counts, ex.Iterations)
	}
	for _, its := range m.iterations {
		for _, it := range its {
			switch it.Outcome {
			case IterTransportError:
				agg.TransportErrors++
			case IterParseError:
				agg.ParseErrors++
			}
		}
	}

	if agg.TotalExtractions > 0 {
		agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalExtractions)
		sort.Ints(counts)
		agg.P50Iterations = percentile(counts, 50)
		agg.P95Iterations = percentile(counts, 95)
	}
	return agg
}

// percentile returns the pth percentile of a sorted slice.
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
