package usecase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
	"StratTune/internal/services/normalizer"
)

func TestEffectiveReturnsDefaults(t *testing.T) {
	ctl := newTestController(t, newMemStore())

	eff := ctl.Effective()
	assert.InDelta(t, 0.30, eff["min_gradient"], 1e-9)
	assert.InDelta(t, 2.0, eff["profit_target"], 1e-9)
	assert.Empty(t, ctl.Overrides())
}

func TestApplyAndDelete(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	eff, err := ctl.Apply(ctx, "min_gradient", 0.20, models.SourceManual)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, eff["min_gradient"], 1e-9)

	ovs := ctl.Overrides()
	require.Len(t, ovs, 1)
	assert.Equal(t, models.SourceManual, ovs[0].Source)
	require.NotNil(t, store.overrides["min_gradient"])

	eff, err = ctl.Delete(ctx, "min_gradient")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, eff["min_gradient"], 1e-9)
	assert.Empty(t, ctl.Overrides())
	assert.Nil(t, store.overrides["min_gradient"])
}

func TestApplyUnknownParam(t *testing.T) {
	ctl := newTestController(t, newMemStore())

	_, err := ctl.Apply(context.Background(), "nope", 1, models.SourceManual)
	assert.ErrorIs(t, err, ErrUnknownParam)

	_, err = ctl.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestDeleteWithoutOverride(t *testing.T) {
	ctl := newTestController(t, newMemStore())

	_, err := ctl.Delete(context.Background(), "min_gradient")
	assert.ErrorIs(t, err, ErrNoOverride)
}

func TestReapplySameValueNotesUnchanged(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	_, err := ctl.Apply(ctx, "min_volume", 800, models.SourceManual)
	require.NoError(t, err)
	_, err = ctl.Apply(ctx, "min_volume", 800, models.SourceManual)
	require.NoError(t, err)

	require.Len(t, store.footprints, 2)
	assert.NotContains(t, store.footprints[0].Note, "(unchanged)")
	assert.Contains(t, store.footprints[1].Note, "(unchanged)")
}

func TestOverridesRestoredFromStore(t *testing.T) {
	store := newMemStore()
	ctl := newTestController(t, store)
	ctx := context.Background()

	_, err := ctl.Apply(ctx, "max_volatility", 3.5, models.SourceManual)
	require.NoError(t, err)

	ctl2 := newTestController(t, store)
	assert.InDelta(t, 3.5, ctl2.Effective()["max_volatility"], 1e-9)
}

func TestOverridesRestoredFromRecoveryFile(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	cfg.RecoveryFile = filepath.Join(t.TempDir(), "overrides.json")
	ctx := context.Background()

	ctl, err := New(cfg, normalizer.New(), store, nopMetrics{}, testLogger(t))
	require.NoError(t, err)
	_, err = ctl.Apply(ctx, "min_gradient", 0.15, models.SourceManual)
	require.NoError(t, err)
	ctl.ToggleAutoApply(ctx, boolPtr(false))

	// the store is now unreadable; the recovery file carries the set
	store.failReads = true
	ctl2, err := New(cfg, normalizer.New(), store, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	assert.InDelta(t, 0.15, ctl2.Effective()["min_gradient"], 1e-9)
	assert.False(t, ctl2.AutoApplyEnabled())

	ovs := ctl2.Overrides()
	require.Len(t, ovs, 1)
	assert.Equal(t, models.SourceManual, ovs[0].Source)
}

func TestRecoveryFileAbsentIsFreshStart(t *testing.T) {
	store := newMemStore()
	store.failReads = true
	cfg := testConfig()
	cfg.RecoveryFile = filepath.Join(t.TempDir(), "missing.json")

	ctl, err := New(cfg, normalizer.New(), store, nopMetrics{}, testLogger(t))
	require.NoError(t, err)
	assert.Empty(t, ctl.Overrides())
	assert.True(t, ctl.AutoApplyEnabled())
}
