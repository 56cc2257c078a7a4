package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
	"StratTune/internal/services/normalizer"
)

func TestSnapshotEphemeralIsNotStored(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)

	snap, err := ctl.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, snap.Ephemeral)
	assert.Empty(t, store.snapshots)
	assert.Empty(t, store.footprints)
}

func TestSnapshotPersistStoresAndFootprints(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)

	snap, err := ctl.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, snap.Ephemeral)
	require.Len(t, store.snapshots, 1)
	require.Len(t, store.footprints, 1)
	assert.Equal(t, models.FootprintSnapshot, store.footprints[0].Kind)
}

func TestSnapshotCarriesState(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	_, err := ctl.Apply(ctx, "min_gradient", 0.22, models.SourceManual)
	require.NoError(t, err)
	ctl.IngestRaw(ctx, sampleAt(1, 0.05)) // violates even the lowered floor
	ctl.ToggleAutoApply(ctx, boolPtr(false))

	snap, err := ctl.Snapshot(ctx, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.22, snap.Overrides["min_gradient"], 1e-9)
	assert.Equal(t, 1, snap.Streaks["min_gradient"])
	assert.Equal(t, models.SideUp, snap.Trend.Side)
	assert.False(t, snap.AutoApplyEnabled)
}

func TestSnapshotSummarizesRecentTrades(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	ctl.TradeCompleted(ctx, &models.Trade{Direction: "long", Profit: 1.0, MaxFavorable: 2.0})
	ctl.TradeCompleted(ctx, &models.Trade{Direction: "short", Profit: -0.5})
	ctl.TradeCompleted(ctx, &models.Trade{Direction: "long", Profit: 2.0, MaxFavorable: 2.0})

	snap, err := ctl.Snapshot(ctx, false)
	require.NoError(t, err)
	p := snap.Performance
	assert.Equal(t, 3, p.Trades)
	assert.Equal(t, 2, p.Wins)
	assert.InDelta(t, 2.0/3.0, p.WinRate, 1e-9)
	assert.InDelta(t, 2.5/3.0, p.AvgProfit, 1e-9)
	assert.InDelta(t, 0.75, p.AvgCapture, 1e-9) // (0.5 + 1.0) / 2
}

func TestLatestSnapshotFallsBackToEphemeral(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	snap, err := ctl.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Ephemeral)

	_, err = ctl.Snapshot(ctx, true)
	require.NoError(t, err)
	snap, err = ctl.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Ephemeral)
}

func TestRestoreSnapshot(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	ctl.RestoreSnapshot(ctx, &models.Snapshot{
		Overrides:        map[string]float64{"min_volume": 600},
		Streaks:          map[string]int{"min_gradient": 2, "stale": 0},
		AutoApplyEnabled: false,
	})

	assert.InDelta(t, 600, ctl.Effective()["min_volume"], 1e-9)
	assert.Equal(t, 2, ctl.Streaks()["min_gradient"])
	assert.NotContains(t, ctl.Streaks(), "stale")
	assert.False(t, ctl.AutoApplyEnabled())
}

func TestSnapshotHashesArtifacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategy.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	cfg := testConfig()
	cfg.ArtifactPaths = []string{path, filepath.Join(dir, "absent.txt")}
	ctl, err := New(cfg, normalizer.New(), newMemStore(), nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	snap, err := ctl.Snapshot(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.ArtifactHashes, 1)
	assert.Len(t, snap.ArtifactHashes[path], 64)
}
