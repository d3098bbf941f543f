// Package metrics keeps in-process counters, timers and gauges for the
// /metrics endpoint.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"decryptrecovery/internal/clock"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

// maxTimerSamples bounds the window percentiles are computed over.
const maxTimerSamples = 1000

// minPercentileSamples is the sample count below which P95/P99 are omitted.
const minPercentileSamples = 10

// Metric is a counter or gauge value with its metadata.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric summarises recorded durations in milliseconds.
type TimerMetric struct {
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
	Count   int64             `json:"count"`
	Sum     float64           `json:"sum_ms"`
	Min     float64           `json:"min_ms"`
	Max     float64           `json:"max_ms"`
	Average float64           `json:"avg_ms"`
	P95     float64           `json:"p95_ms,omitempty"`
	P99     float64           `json:"p99_ms,omitempty"`
}

// timer holds the running totals plus a ring of recent samples.
type timer struct {
	summary TimerMetric
	ring    []float64
	next    int
}

func (t *timer) observe(ms float64) {
	s := &t.summary
	if s.Count == 0 || ms < s.Min {
		s.Min = ms
	}
	if ms > s.Max {
		s.Max = ms
	}
	s.Count++
	s.Sum += ms
	s.Average = s.Sum / float64(s.Count)

	if len(t.ring) < maxTimerSamples {
		t.ring = append(t.ring, ms)
		return
	}
	t.ring[t.next] = ms
	t.next = (t.next + 1) % maxTimerSamples
}

func (t *timer) snapshot() TimerMetric {
	s := t.summary
	s.Labels = copyLabels(s.Labels)
	if len(t.ring) >= minPercentileSamples {
		sorted := append([]float64(nil), t.ring...)
		sort.Float64s(sorted)
		s.P95 = percentile(sorted, 0.95)
		s.P99 = percentile(sorted, 0.99)
	}
	return s
}

// Registry stores metrics keyed by name and labels.
type Registry struct {
	mu        sync.RWMutex
	clock     clock.Clock
	counters  map[string]*Metric
	timers    map[string]*timer
	gauges    map[string]*Metric
	startTime time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for update stamps and uptime.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock:    clock.Real{},
		counters: make(map[string]*Metric),
		timers:   make(map[string]*timer),
		gauges:   make(map[string]*Metric),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startTime = r.clock.Now()
	return r
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter adds one to a counter.
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds value to a counter, creating it on first use.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	key := metricKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &Metric{Name: name, Type: Counter, Labels: copyLabels(labels), Description: description}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = now
}

// RecordTimer records one duration.
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	t, ok := r.timers[key]
	if !ok {
		t = &timer{summary: TimerMetric{Name: name, Labels: copyLabels(labels)}}
		r.timers[key] = t
	}
	t.observe(float64(duration.Nanoseconds()) / 1e6)
}

// SetGauge replaces a gauge value.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  r.clock.Now(),
	}
}

// Snapshot is a point-in-time copy of every metric in a registry
type Snapshot struct {
	Counters  map[string]*Metric      `json:"counters"`
	Timers    map[string]*TimerMetric `json:"timers"`
	Gauges    map[string]*Metric      `json:"gauges"`
	UptimeMs  int64                   `json:"uptime_ms"`
	Timestamp int64                   `json:"timestamp"`
}

// GetAllMetrics copies the registry so callers can encode it without
// holding the lock.
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	result := Snapshot{
		Counters:  make(map[string]*Metric, len(r.counters)),
		Timers:    make(map[string]*TimerMetric, len(r.timers)),
		Gauges:    make(map[string]*Metric, len(r.gauges)),
		UptimeMs:  now.Sub(r.startTime).Milliseconds(),
		Timestamp: now.Unix(),
	}
	for key, m := range r.counters {
		c := *m
		c.Labels = copyLabels(m.Labels)
		result.Counters[key] = &c
	}
	for key, t := range r.timers {
		s := t.snapshot()
		result.Timers[key] = &s
	}
	for key, m := range r.gauges {
		g := *m
		g.Labels = copyLabels(m.Labels)
		result.Gauges[key] = &g
	}
	return result
}

// CounterValue returns the current value of a counter, or 0 if unset
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if counter, ok := r.counters[metricKey(name, labels)]; ok {
		return counter.Value
	}
	return 0
}

// GaugeValue returns the current value of a gauge and whether it was set
func (r *Registry) GaugeValue(name string, labels map[string]string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if gauge, ok := r.gauges[metricKey(name, labels)]; ok {
		return gauge.Value, true
	}
	return 0, false
}

// metricKey renders name plus labels sorted by label name.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		fmt.Fprintf(&b, "_%s:%s", k, labels[k])
	}
	return b.String()
}

// percentile expects sorted, non-empty samples.
func percentile(sorted []float64, p float64) float64 {
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// IncrementCounter increments a counter in the global registry
func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

// AddToCounter adds to a counter in the global registry
func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

// RecordTimer records timing in the global registry
func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

// SetGauge sets a gauge in the global registry
func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

// GetAllMetrics returns all metrics from the global registry
func GetAllMetrics() Snapshot {
	return globalRegistry.GetAllMetrics()
}
