package usecase

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"StratTune/internal/domain/models"
	"StratTune/internal/services/normalizer"
	applogger "StratTune/pkg/logger"
)

// memStore is an in-memory Store for controller tests.
type memStore struct {
	mu            sync.Mutex
	samples       []*models.DiagnosticSample
	trades        []*models.Trade
	blocks        []*models.EntryBlock
	segments      []*models.TrendSegment
	barClasses    []*models.BarClass
	cancellations []*models.Cancellation
	autoApplies   []*models.AutoApplyEvent
	overrides     map[string]*models.Override
	footprints    []*models.Footprint
	snapshots     []*models.Snapshot
	failReads     bool
}

func newMemStore() *memStore {
	return &memStore{overrides: make(map[string]*models.Override)}
}

func (m *memStore) Init(ctx context.Context) error { return nil }

func (m *memStore) SaveSample(ctx context.Context, s *models.DiagnosticSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *memStore) SamplesSince(ctx context.Context, since time.Time, limit int) ([]*models.DiagnosticSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DiagnosticSample
	for _, s := range m.samples {
		if s.ReceivedAt.After(since) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) RecentTrades(ctx context.Context, n int) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.trades) <= n {
		return append([]*models.Trade(nil), m.trades...), nil
	}
	return append([]*models.Trade(nil), m.trades[len(m.trades)-n:]...), nil
}

func (m *memStore) SaveEntryBlock(ctx context.Context, b *models.EntryBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, b)
	return nil
}

func (m *memStore) SaveSegment(ctx context.Context, seg *models.TrendSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, seg)
	return nil
}

func (m *memStore) SaveBarClass(ctx context.Context, bc *models.BarClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barClasses = append(m.barClasses, bc)
	return nil
}

func (m *memStore) SaveCancellation(ctx context.Context, c *models.Cancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancellations = append(m.cancellations, c)
	return nil
}

func (m *memStore) SaveAutoApply(ctx context.Context, ev *models.AutoApplyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoApplies = append(m.autoApplies, ev)
	return nil
}

func (m *memStore) RecentAutoApplies(ctx context.Context, n int) ([]*models.AutoApplyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AutoApplyEvent(nil), m.autoApplies...), nil
}

func (m *memStore) UpsertOverride(ctx context.Context, o *models.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.overrides[o.Name] = &cp
	return nil
}

func (m *memStore) DeleteOverride(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[name]; !ok {
		return sql.ErrNoRows
	}
	delete(m.overrides, name)
	return nil
}

func (m *memStore) Overrides(ctx context.Context) ([]*models.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, sql.ErrConnDone
	}
	out := make([]*models.Override, 0, len(m.overrides))
	for _, o := range m.overrides {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) SaveFootprint(ctx context.Context, f *models.Footprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.footprints = append(m.footprints, f)
	return nil
}

func (m *memStore) Footprints(ctx context.Context, kind string, limit int) ([]*models.Footprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Footprint
	for i := len(m.footprints) - 1; i >= 0 && len(out) < limit; i-- {
		if kind == "" || m.footprints[i].Kind == kind {
			out = append(out, m.footprints[i])
		}
	}
	return out, nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *memStore) Prune(ctx context.Context, before time.Time) error { return nil }
func (m *memStore) Health(ctx context.Context) error                  { return nil }
func (m *memStore) Close() error                                      { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordSample()                        {}
func (nopMetrics) RecordStreak(param string, length int) {}
func (nopMetrics) RecordAutoApply(param string)         {}
func (nopMetrics) RecordTrendSide(side string)          {}
func (nopMetrics) RecordSkip(kind string)               {}
func (nopMetrics) RecordError(kind string)              {}
func (nopMetrics) RecordLatency(op string, s float64)   {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testConfig() Config {
	return Config{
		HysteresisBars:    2,
		BufferCapacity:    64,
		WeakGradient:      0.05,
		DecelThreshold:    0.02,
		AutoApplyEnabled:  true,
		PerformanceWindow: 50,
	}
}

func newTestController(t *testing.T, store *memStore, opts ...Option) *Controller {
	t.Helper()
	ctl, err := New(testConfig(), normalizer.New(), store, nopMetrics{}, testLogger(t), opts...)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctl
}

// sampleAt builds a healthy sample on the given bar.
func sampleAt(bar int64, gradient float64) map[string]interface{} {
	return map[string]interface{}{
		"gradient":       gradient,
		"trend_strength": 30.0,
		"pull_strength":  25.0,
		"volatility":     1.5,
		"volume":         2000.0,
		"close":          100.0,
		"moving_avg":     99.0,
		"bar":            float64(bar),
	}
}
