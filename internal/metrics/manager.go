package metrics

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxSamples = 1000 // Keep last 1000 samples for percentile calculations
)

// MetricsManager is the global metrics manager
type MetricsManager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	hitMiss     map[string]*HitMissMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	costs       map[string]*CostMetric
	active      map[string]time.Time // For tracking active timings
	keyCounter  uint64               // For generating unique timer keys

	db       *sql.DB
	stopSave chan struct{}
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			timings:     make(map[string]*TimingMetric),
			hitMiss:     make(map[string]*HitMissMetric),
			counters:    make(map[string]*CounterMetric),
			successFail: make(map[string]*SuccessFailMetric),
			costs:       make(map[string]*CostMetric),
			active:      make(map[string]time.Time),
		}
	})
	return instance
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// StartTiming begins timing an operation
func (m *MetricsManager) StartTiming(topic, function string) string {
	path := buildPath(topic, function)

	// Unique key so overlapping timings of the same path don't collide
	counter := atomic.AddUint64(&m.keyCounter, 1)
	key := fmt.Sprintf("%s#%d", path, counter)

	m.mu.Lock()
	m.active[key] = time.Now()
	m.mu.Unlock()

	return key
}

// EndTiming completes timing an operation
func (m *MetricsManager) EndTiming(key string) {
	m.mu.Lock()
	startTime, exists := m.active[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	m.mu.Unlock()

	path := key
	if idx := strings.LastIndex(key, "#"); idx >= 0 {
		path = key[:idx]
	}

	m.RecordDuration(path, "", time.Since(startTime))
}

// RecordDuration records a duration directly
func (m *MetricsManager) RecordDuration(topic, function string, duration time.Duration) {
	path := topic
	if function != "" {
		path = buildPath(topic, function)
	}

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, maxSamples),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration

	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// RecordHit records a cache hit
func (m *MetricsManager) RecordHit(topic, function string) {
	metric := m.hitMissMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Hits++
	metric.LastHit = time.Now()
}

// RecordMiss records a cache miss
func (m *MetricsManager) RecordMiss(topic, function string) {
	metric := m.hitMissMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Misses++
}

func (m *MetricsManager) hitMissMetric(path string) *HitMissMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.hitMiss[path]
	if !exists {
		metric = &HitMissMetric{}
		m.hitMiss[path] = metric
	}
	return metric
}

// IncrementCounter increments a counter
func (m *MetricsManager) IncrementCounter(topic, function string) {
	m.AddCounter(topic, function, 1)
}

// AddCounter adds to a counter
func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

// RecordSuccess records a successful operation
func (m *MetricsManager) RecordSuccess(topic, function string) {
	metric := m.successFailMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
	metric.LastSuccess = time.Now()
}

// RecordFailure records a failed operation
func (m *MetricsManager) RecordFailure(topic, function, reason string) {
	metric := m.successFailMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
}

func (m *MetricsManager) successFailMetric(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{
			FailureReasons: make(map[string]int64),
		}
		m.successFail[path] = metric
	}
	return metric
}

// RecordCost accumulates a spend amount in microdollars
func (m *MetricsManager) RecordCost(topic, function string, microUSD int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.costs[path]
	if !exists {
		metric = &CostMetric{
			Min: microUSD,
			Max: microUSD,
		}
		m.costs[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Total += microUSD
	metric.Last = microUSD
	metric.Count++
	if microUSD < metric.Min {
		metric.Min = microUSD
	}
	if microUSD > metric.Max {
		metric.Max = microUSD
	}
}

// GetSnapshot returns a snapshot of all metrics
func (m *MetricsManager) GetSnapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make(map[string]*MetricSnapshot)

	for path, metric := range m.timings {
		metric.mu.RLock()
		avg := float64(0)
		if metric.Count > 0 {
			avg = float64(metric.Total) / float64(metric.Count) / float64(time.Millisecond)
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeTiming,
			Data: TimingSnapshot{
				Count:  metric.Count,
				AvgMs:  avg,
				MinMs:  float64(metric.Min) / float64(time.Millisecond),
				MaxMs:  float64(metric.Max) / float64(time.Millisecond),
				LastMs: float64(metric.Last) / float64(time.Millisecond),
				P95Ms:  calculatePercentile(metric.samples, 95),
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.hitMiss {
		metric.mu.RLock()
		total := metric.Hits + metric.Misses
		hitRate := float64(0)
		if total > 0 {
			hitRate = float64(metric.Hits) / float64(total) * 100
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeHitMiss,
			Data: HitMissSnapshot{
				Hits:    metric.Hits,
				Misses:  metric.Misses,
				HitRate: hitRate,
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.counters {
		metric.mu.RLock()
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeCounter,
			Data: CounterSnapshot{Value: metric.Value},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.successFail {
		metric.mu.RLock()
		total := metric.Success + metric.Failures
		successRate := float64(0)
		if total > 0 {
			successRate = float64(metric.Success) / float64(total) * 100
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeSuccessFail,
			Data: SuccessFailSnapshot{
				Success:        metric.Success,
				Failures:       metric.Failures,
				SuccessRate:    successRate,
				FailureReasons: metric.FailureReasons,
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.costs {
		metric.mu.RLock()
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeCost,
			Data: CostSnapshot{
				TotalMicroUSD: metric.Total,
				TotalUSD:      float64(metric.Total) / 1_000_000,
				LastMicroUSD:  metric.Last,
				Count:         metric.Count,
			},
		}
		metric.mu.RUnlock()
	}

	return snapshots
}

// calculatePercentile calculates the Nth percentile from samples
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return float64(sorted[idx]) / float64(time.Millisecond)
}
