package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
)

func TestIngestRawPersistsAndBuffers(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)

	s := ctl.IngestRaw(context.Background(), sampleAt(1, 0.4))

	require.NotNil(t, s)
	assert.Equal(t, int64(1), s.Bar)
	assert.Len(t, store.samples, 1)
	assert.Len(t, ctl.RecentSamples(), 1)
	assert.Equal(t, models.SideUp, ctl.TrendState().Side)
}

func TestIngestBatchKeepsOrder(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)

	n := ctl.Ingest(context.Background(), []map[string]interface{}{
		sampleAt(1, 0.4),
		nil,
		sampleAt(2, 0.3),
	})

	assert.Equal(t, 2, n)
	recent := ctl.RecentSamples()
	require.Len(t, recent, 2)
	assert.Equal(t, int64(1), recent[0].Bar)
	assert.Equal(t, int64(2), recent[1].Bar)
}

func TestSampleStreakAdvancesAndResets(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	weak := sampleAt(1, 0.4)
	weak["trend_strength"] = 20.0 // below min_trend_strength 25 - tolerance 1
	ctl.IngestRaw(ctx, weak)
	weak["bar"] = 2.0
	ctl.IngestRaw(ctx, weak)

	assert.Equal(t, 2, ctl.Streaks()["min_trend_strength"])
	assert.Len(t, store.cancellations, 2)

	ctl.IngestRaw(ctx, sampleAt(3, 0.4)) // healthy sample resets
	assert.Equal(t, 0, ctl.Streaks()["min_trend_strength"])
}

func TestToleranceBandSuppressesBorderlineViolations(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)

	s := sampleAt(1, 0.4)
	s["trend_strength"] = 24.5 // within tolerance 1 of threshold 25
	ctl.IngestRaw(context.Background(), s)

	assert.Equal(t, 0, ctl.Streaks()["min_trend_strength"])
}

func TestAutoApplyAtStreakLimit(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	// min_gradient limit is 3 violations
	for i := int64(1); i <= 3; i++ {
		s := sampleAt(i, 0.05) // |gradient| below 0.30 - 0.02
		ctl.IngestRaw(ctx, s)
	}

	require.Len(t, store.autoApplies, 1)
	ev := store.autoApplies[0]
	assert.Equal(t, "min_gradient", ev.Param)
	assert.InDelta(t, 0.30, ev.OldValue, 1e-9)
	assert.InDelta(t, 0.25, ev.NewValue, 1e-9)
	assert.Equal(t, 3, ev.Streak)

	// streak resets after an application
	assert.Equal(t, 0, ctl.Streaks()["min_gradient"])
	// override is live
	assert.InDelta(t, 0.25, ctl.Effective()["min_gradient"], 1e-9)
	// and durably stored
	assert.NotNil(t, store.overrides["min_gradient"])
}

func TestAutoApplyRespectsCooldown(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctl := newTestController(t, store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}
	require.Len(t, store.autoApplies, 1)

	// second streak inside the 30m cooldown: no new application
	now = now.Add(5 * time.Minute)
	for i := int64(4); i <= 6; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}
	assert.Len(t, store.autoApplies, 1)

	sg := findSuggestion(t, ctl, "min_gradient")
	assert.Equal(t, "cooldown", sg.Blocked)

	// past the cooldown the pending streak applies
	now = now.Add(31 * time.Minute)
	ctl.IngestRaw(ctx, sampleAt(7, 0.05))
	assert.Len(t, store.autoApplies, 2)
}

func TestAutoApplyDailyCapAndRollover(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ctl := newTestController(t, store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	bar := int64(0)
	// max_volatility trips after 4 chaotic bars; its cap is 5 per day and
	// the 2.5 -> 5.0 range leaves plenty of step headroom.
	streak := func() {
		for i := 0; i < 4; i++ {
			bar++
			s := sampleAt(bar, 0.4)
			s["volatility"] = 10.0
			ctl.IngestRaw(ctx, s)
		}
	}

	for i := 0; i < 5; i++ {
		streak()
		now = now.Add(31 * time.Minute)
	}
	require.Len(t, store.autoApplies, 5)
	assert.InDelta(t, 3.75, ctl.Effective()["max_volatility"], 1e-9)

	streak()
	assert.Len(t, store.autoApplies, 5, "daily cap must hold")
	sg := findSuggestion(t, ctl, "max_volatility")
	assert.Equal(t, "daily_cap", sg.Blocked)

	// counters reset on the next calendar day
	now = now.Add(24 * time.Hour)
	streak()
	assert.Len(t, store.autoApplies, 6)
}

func TestAutoApplyClampsAtBound(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ctl := newTestController(t, store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	// pin min_gradient to its low bound; further streaks must not move it
	_, err := ctl.Apply(ctx, "min_gradient", 0.10, models.SourceManual)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}

	assert.Empty(t, store.autoApplies)
	assert.InDelta(t, 0.10, ctl.Effective()["min_gradient"], 1e-9)
	sg := findSuggestion(t, ctl, "min_gradient")
	assert.Equal(t, "at_bound", sg.Blocked)
}

func TestAutoApplyDisabledEngineOnlyObserves(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	ctl.ToggleAutoApply(ctx, boolPtr(false))
	for i := int64(1); i <= 4; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}

	assert.Empty(t, store.autoApplies)
	assert.Equal(t, 4, ctl.Streaks()["min_gradient"], "streaks keep counting while disabled")
}

func TestToggleAutoApplyPersistsFlag(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	assert.False(t, ctl.ToggleAutoApply(ctx, boolPtr(false)))
	assert.True(t, ctl.ToggleAutoApply(ctx, nil)) // flip back

	// flag survives a restart through the store row
	ctl2 := newTestController(t, store)
	assert.True(t, ctl2.AutoApplyEnabled())

	ctl2.ToggleAutoApply(ctx, boolPtr(false))
	ctl3 := newTestController(t, store)
	assert.False(t, ctl3.AutoApplyEnabled())
}

func TestTradeOutcomeStreak(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	poor := func() *models.Trade {
		return &models.Trade{
			Direction:    "long",
			Profit:       0.3,
			MaxFavorable: 1.5, // capture 0.2 < 0.4
			ExitBar:      10,
		}
	}
	for i := 0; i < 2; i++ {
		ctl.TradeCompleted(ctx, poor())
	}
	assert.Equal(t, 2, ctl.Streaks()["profit_capture"])

	// a well-captured trade resets the run
	ctl.TradeCompleted(ctx, &models.Trade{Direction: "long", Profit: 1.2, MaxFavorable: 1.5})
	assert.Equal(t, 0, ctl.Streaks()["profit_capture"])

	// three poor captures in a row step profit_target up
	for i := 0; i < 3; i++ {
		ctl.TradeCompleted(ctx, poor())
	}
	require.Len(t, store.autoApplies, 1)
	assert.Equal(t, "profit_target", store.autoApplies[0].Param)
	assert.InDelta(t, 2.25, store.autoApplies[0].NewValue, 1e-9)
}

func TestEntryBlockStreakStepsMinGradient(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	missed := func() *models.EntryBlock {
		return &models.EntryBlock{Bar: 5, Side: "long", FavorableMove: 0.8}
	}
	ctl.EntryBlocked(ctx, missed())
	assert.Equal(t, 1, ctl.Streaks()["missed_entry"])

	ctl.EntryBlocked(ctx, missed())
	require.Len(t, store.autoApplies, 1)
	assert.Equal(t, "min_gradient", store.autoApplies[0].Param)
	assert.InDelta(t, 0.25, store.autoApplies[0].NewValue, 1e-9)
}

func TestListenerReceivesEvents(t *testing.T) {
	store := newMemStore()
	var got struct {
		samples int
		applies int
		trades  int
	}
	ctl := newTestController(t, store, WithListener(listenerFunc{
		onSample: func(*models.DiagnosticSample) { got.samples++ },
		onApply:  func(*models.AutoApplyEvent) { got.applies++ },
		onTrade:  func(*models.Trade) { got.trades++ },
	}))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}
	ctl.TradeCompleted(ctx, &models.Trade{Direction: "long", Profit: 1, MaxFavorable: 1})

	assert.Equal(t, 3, got.samples)
	assert.Equal(t, 1, got.applies)
	assert.Equal(t, 1, got.trades)
}

// reentrantAudit reads controller state from its publish callbacks, the way a
// broker delivery path can overlap with API reads.
type reentrantAudit struct {
	ctl    *Controller
	foots  []*models.Footprint
	events []*models.AutoApplyEvent
}

func (a *reentrantAudit) PublishEvent(ctx context.Context, ev *models.AutoApplyEvent) error {
	a.ctl.Streaks()
	a.events = append(a.events, ev)
	return nil
}

func (a *reentrantAudit) PublishFootprint(ctx context.Context, f *models.Footprint) error {
	a.ctl.Streaks()
	a.foots = append(a.foots, f)
	return nil
}

func (a *reentrantAudit) Close() error { return nil }

func TestAuditPublishesOutsideControllerLock(t *testing.T) {
	store := newMemStore()
	audit := &reentrantAudit{}
	ctl := newTestController(t, store, WithAuditPublisher(audit))
	audit.ctl = ctl
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ctl.IngestRaw(ctx, sampleAt(i, 0.05))
	}

	// The auto-apply event and its footprint reach the publisher even though
	// the publisher locks the controller itself; publishing while the ingest
	// mutation still held the mutex would deadlock here.
	require.Len(t, audit.events, 1)
	assert.Equal(t, "min_gradient", audit.events[0].Param)
	require.NotEmpty(t, audit.foots)
	assert.Equal(t, models.FootprintAutoApply, audit.foots[len(audit.foots)-1].Kind)
}

type listenerFunc struct {
	onSample func(*models.DiagnosticSample)
	onApply  func(*models.AutoApplyEvent)
	onTrade  func(*models.Trade)
}

func (l listenerFunc) OnSample(s *models.DiagnosticSample) { l.onSample(s) }
func (l listenerFunc) OnAutoApply(ev *models.AutoApplyEvent) { l.onApply(ev) }
func (l listenerFunc) OnTrade(t *models.Trade)             { l.onTrade(t) }

func findSuggestion(t *testing.T, ctl *Controller, param string) models.Suggestion {
	t.Helper()
	for _, sg := range ctl.Suggestions() {
		if sg.Param == param {
			return sg
		}
	}
	t.Fatalf("no suggestion for %s", param)
	return models.Suggestion{}
}

func boolPtr(b bool) *bool { return &b }
