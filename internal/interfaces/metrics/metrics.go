package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chainreport/internal/domain"
)

// Metrics collects counters for one report run. It observes pipeline
// queries and rows as well as query cache lookups.
type Metrics struct {
	mu             sync.RWMutex
	startTime      time.Time
	queries        map[string]uint64
	queryFailures  map[string]uint64
	queryTimeouts  map[string]uint64
	queryDurations map[string]time.Duration
	maxQuery       map[string]time.Duration
	cacheHits      uint64
	cacheMisses    uint64
	rows           uint64
	unresolvedRows uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		queries:        make(map[string]uint64),
		queryFailures:  make(map[string]uint64),
		queryTimeouts:  make(map[string]uint64),
		queryDurations: make(map[string]time.Duration),
		maxQuery:       make(map[string]time.Duration),
	}
}

func (m *Metrics) ObserveQuery(module string, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[module]++
	m.queryDurations[module] += elapsed
	if elapsed > m.maxQuery[module] {
		m.maxQuery[module] = elapsed
	}
	if err != nil {
		m.queryFailures[module]++
		if errors.Is(err, context.DeadlineExceeded) {
			m.queryTimeouts[module]++
		}
	}
}

func (m *Metrics) OnRow(row domain.ReportRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows++
	if row.Unresolved() {
		m.unresolvedRows++
	}
}

func (m *Metrics) OnCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

type ModuleStats struct {
	Module   string
	Queries  uint64
	Failures uint64
	Timeouts uint64
	Average  time.Duration
	Max      time.Duration
}

type Snapshot struct {
	StartTime      time.Time
	Elapsed        time.Duration
	Modules        []ModuleStats
	CacheHits      uint64
	CacheMisses    uint64
	Rows           uint64
	UnresolvedRows uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	modules := make([]ModuleStats, 0, len(m.queries))
	for module, count := range m.queries {
		stats := ModuleStats{
			Module:   module,
			Queries:  count,
			Failures: m.queryFailures[module],
			Timeouts: m.queryTimeouts[module],
			Max:      m.maxQuery[module],
		}
		if count > 0 {
			stats.Average = m.queryDurations[module] / time.Duration(count)
		}
		modules = append(modules, stats)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Module < modules[j].Module })

	return Snapshot{
		StartTime:      m.startTime,
		Elapsed:        time.Since(m.startTime),
		Modules:        modules,
		CacheHits:      m.cacheHits,
		CacheMisses:    m.cacheMisses,
		Rows:           m.rows,
		UnresolvedRows: m.unresolvedRows,
	}
}

func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("elapsed", s.Elapsed),
		slog.Uint64("rows", s.Rows),
		slog.Uint64("unresolved_rows", s.UnresolvedRows),
		slog.Uint64("cache_hits", s.CacheHits),
		slog.Uint64("cache_misses", s.CacheMisses),
	}
	for _, module := range s.Modules {
		attrs = append(attrs, slog.Group(module.Module,
			slog.Uint64("queries", module.Queries),
			slog.Uint64("failures", module.Failures),
			slog.Uint64("timeouts", module.Timeouts),
			slog.Duration("avg", module.Average),
			slog.Duration("max", module.Max),
		))
	}
	return slog.GroupValue(attrs...)
}
