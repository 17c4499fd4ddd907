package rpc

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

const maxLatencySamples = 1000

// opStats tracks per-operation counters (count, errors, a bounded latency
// sample ring) keyed by arbitrary "module.function" strings rather than a
// fixed verb set.
type opStats struct {
	count    int64
	errors   int64
	latency  []time.Duration // bounded ring, most recent maxLatencySamples
}

// Metrics is the in-memory, always-available source of truth for the health
// RPC; it must work with zero external collectors, since the legacy hosts
// this daemon serves are often locked-down targets.
type Metrics struct {
	mu         sync.RWMutex
	startedAt  time.Time
	perOp      map[string]*opStats
	active     int
	peakActive int

	slowThreshold time.Duration
	slowCallback  func(op string, d time.Duration)
}

// NewMetrics returns a Metrics tracker with the process start time fixed at
// creation.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now(),
		perOp:     make(map[string]*opStats),
	}
}

// SetSlowOperationCallback registers a callback invoked outside any lock
// whenever a dispatched operation exceeds threshold.
func (m *Metrics) SetSlowOperationCallback(threshold time.Duration, cb func(op string, d time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowThreshold = threshold
	m.slowCallback = cb
}

// Record registers one completed dispatch for op ("module.function"),
// updating its sample count, error count, and bounded latency window.
func (m *Metrics) Record(op string, d time.Duration, errKind string) {
	m.mu.Lock()
	stats, ok := m.perOp[op]
	if !ok {
		stats = &opStats{}
		m.perOp[op] = stats
	}
	stats.count++
	if errKind != "" {
		stats.errors++
	}
	stats.latency = append(stats.latency, d)
	if len(stats.latency) > maxLatencySamples {
		stats.latency = stats.latency[len(stats.latency)-maxLatencySamples:]
	}
	threshold := m.slowThreshold
	cb := m.slowCallback
	m.mu.Unlock()

	if threshold > 0 && d > threshold && cb != nil {
		cb(op, d)
	}
}

// ConnectionOpened records one more active client connection, tracking the
// high-water mark for the health surface's active_connections.peak field.
func (m *Metrics) ConnectionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active++
	if m.active > m.peakActive {
		m.peakActive = m.active
	}
}

// ConnectionClosed records that a client connection finished.
func (m *Metrics) ConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active > 0 {
		m.active--
	}
}

// Snapshot is a point-in-time copy of the metrics used to build the health
// response; deep-copied under RLock and then computed outside the lock.
type Snapshot struct {
	UptimeSeconds    int64
	RequestsTotal    int64
	RequestsFailed   int64
	ActiveCurrent    int
	ActivePeak       int
	PerOperation     map[string]OperationStat
}

// OperationStat is one operation's aggregate counters in a Snapshot.
type OperationStat struct {
	Count  int64
	Errors int64
}

// Snapshot returns the current aggregate counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	perOp := make(map[string]OperationStat, len(m.perOp))
	var total, failed int64
	for op, stats := range m.perOp {
		perOp[op] = OperationStat{Count: stats.count, Errors: stats.errors}
		total += stats.count
		failed += stats.errors
	}
	active, peak := m.active, m.peakActive
	startedAt := m.startedAt
	m.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  int64(time.Since(startedAt).Seconds()),
		RequestsTotal:  total,
		RequestsFailed: failed,
		ActiveCurrent:  active,
		ActivePeak:     peak,
		PerOperation:   perOp,
	}
}

// LogPeriodicSummary writes a one-line operational summary to stderr and
// emits an active-connection warning/info line above the configured
// thresholds.
func (m *Metrics) LogPeriodicSummary(warnThreshold, infoThreshold int, resourceCounts map[string]int) {
	snap := m.Snapshot()

	kinds := make([]string, 0, len(resourceCounts))
	for k := range resourceCounts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	var resourceSummary string
	for _, k := range kinds {
		resourceSummary += fmt.Sprintf(" %s=%d", k, resourceCounts[k])
	}

	fmt.Fprintf(os.Stderr, "[%s] health: uptime=%ds requests=%d failed=%d active=%d peak=%d resources:%s\n",
		stamp(), snap.UptimeSeconds, snap.RequestsTotal, snap.RequestsFailed, snap.ActiveCurrent, snap.ActivePeak, resourceSummary)

	switch {
	case snap.ActiveCurrent > warnThreshold:
		fmt.Fprintf(os.Stderr, "[%s] WARN: active_connections.current=%d exceeds warn threshold %d\n", stamp(), snap.ActiveCurrent, warnThreshold)
	case snap.ActiveCurrent > infoThreshold:
		fmt.Fprintf(os.Stderr, "[%s] INFO: active_connections.current=%d exceeds info threshold %d\n", stamp(), snap.ActiveCurrent, infoThreshold)
	}
}
