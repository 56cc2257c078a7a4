package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
)

// stubArchiver records archived items and can be made to fail.
type stubArchiver struct {
	mu      sync.Mutex
	samples []*models.DiagnosticSample
	trades  []*models.Trade
	err     error
}

func (a *stubArchiver) Init(ctx context.Context) error { return nil }

func (a *stubArchiver) ArchiveSample(ctx context.Context, s *models.DiagnosticSample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.samples = append(a.samples, s)
	return nil
}

func (a *stubArchiver) ArchiveTrade(ctx context.Context, t *models.Trade) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.trades = append(a.trades, t)
	return nil
}

func (a *stubArchiver) Close() error { return nil }

func (a *stubArchiver) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples), len(a.trades)
}

func (a *stubArchiver) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

type countMetrics struct {
	mu    sync.Mutex
	skips map[string]int
	errs  map[string]int
}

func newCountMetrics() *countMetrics {
	return &countMetrics{skips: make(map[string]int), errs: make(map[string]int)}
}

func (m *countMetrics) RecordSample()                         {}
func (m *countMetrics) RecordStreak(param string, length int) {}
func (m *countMetrics) RecordAutoApply(param string)          {}
func (m *countMetrics) RecordTrendSide(side string)           {}
func (m *countMetrics) RecordLatency(op string, s float64)    {}

func (m *countMetrics) RecordSkip(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips[kind]++
}

func (m *countMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind]++
}

func (m *countMetrics) skip(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skips[kind]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPipelineFlushesSamplesAndTrades(t *testing.T) {
	arch := &stubArchiver{}
	p := NewArchivePipeline(arch, newCountMetrics())
	p.Start(context.Background())
	defer p.Stop()

	p.OnSample(&models.DiagnosticSample{Bar: 1})
	p.OnSample(&models.DiagnosticSample{Bar: 2})
	p.OnTrade(&models.Trade{Direction: "long"})

	waitFor(t, func() bool {
		s, tr := arch.counts()
		return s == 2 && tr == 1
	})
}

func TestPipelineRetriesAfterArchiveError(t *testing.T) {
	arch := &stubArchiver{}
	arch.setErr(errors.New("archive down"))
	m := newCountMetrics()
	p := NewArchivePipeline(arch, m)
	p.Start(context.Background())
	defer p.Stop()

	p.OnSample(&models.DiagnosticSample{Bar: 1})
	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.errs["archive_flush"] > 0
	})

	arch.setErr(nil)
	waitFor(t, func() bool {
		s, _ := arch.counts()
		return s == 1
	})
}

func TestPipelineDropsWhenBufferFull(t *testing.T) {
	arch := &stubArchiver{}
	m := newCountMetrics()
	// unstarted pipeline: nothing drains the buffer
	p := NewArchivePipeline(arch, m, WithBufferSize(2))

	for i := 0; i < 5; i++ {
		p.OnSample(&models.DiagnosticSample{Bar: int64(i)})
	}
	assert.Equal(t, 3, m.skip("archive_buffer_full"))

	s, _ := arch.counts()
	assert.Zero(t, s)
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	p := NewArchivePipeline(&stubArchiver{}, newCountMetrics())
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	require.NotPanics(t, func() { p.Stop() })
}
