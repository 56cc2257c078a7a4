package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"StratTune/internal/domain/models"
	applogger "StratTune/pkg/logger"
)

// Snapshot captures the full tunable state. With persist=false the snapshot
// is ephemeral (computed, returned, not stored).
func (c *Controller) Snapshot(ctx context.Context, persist bool) (*models.Snapshot, error) {
	trades, err := c.store.RecentTrades(ctx, c.cfg.PerformanceWindow)
	if err != nil {
		c.metrics.RecordError("store_snapshot")
		c.log.Warn("recent trades unavailable for snapshot", applogger.Error(err))
	}

	c.mu.Lock()
	snap := &models.Snapshot{
		At:               c.now(),
		Overrides:        make(map[string]float64, len(c.overrides)),
		Streaks:          make(map[string]int, len(c.streaks)),
		Trend:            c.trend.state(),
		Performance:      summarize(trades),
		AutoApplyEnabled: c.enabled,
		Ephemeral:        !persist,
	}
	for name, o := range c.overrides {
		if name == enabledKey {
			continue
		}
		snap.Overrides[name] = o.Value
	}
	for k, v := range c.streaks {
		snap.Streaks[k] = v
	}
	c.mu.Unlock()

	if hashes := hashArtifacts(c.cfg.ArtifactPaths); len(hashes) > 0 {
		snap.ArtifactHashes = hashes
	}

	if persist {
		if err := c.store.SaveSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
		c.RecordFootprint(ctx, models.FootprintSnapshot,
			fmt.Sprintf("snapshot captured (%d overrides, %d trades summarized)",
				len(snap.Overrides), snap.Performance.Trades), "")
	}
	return snap, nil
}

// LatestSnapshot returns the most recent persisted snapshot, or a freshly
// computed ephemeral one when none exists yet.
func (c *Controller) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snap, err := c.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return c.Snapshot(ctx, false)
	}
	return snap, nil
}

// RestoreSnapshot re-applies a snapshot's overrides and streak counters.
// Used for session resumption.
func (c *Controller) RestoreSnapshot(ctx context.Context, snap *models.Snapshot) {
	now := c.now()

	c.mu.Lock()
	for name, v := range snap.Overrides {
		c.setOverrideLocked(ctx, name, v, models.SourceManual, now)
	}
	c.streaks = make(map[string]int, len(snap.Streaks))
	for k, v := range snap.Streaks {
		if v > 0 {
			c.streaks[k] = v
		}
	}
	c.enabled = snap.AutoApplyEnabled
	c.mu.Unlock()

	c.RecordFootprint(ctx, models.FootprintSnapshot, "state restored from snapshot", "")
}

func summarize(trades []*models.Trade) models.PerformanceSummary {
	var sum models.PerformanceSummary
	if len(trades) == 0 {
		return sum
	}
	captures := 0
	for _, t := range trades {
		sum.Trades++
		sum.Profit += t.Profit
		if t.Profit > 0 {
			sum.Wins++
		}
		if t.MaxFavorable > 0 {
			sum.AvgCapture += t.CaptureRatio()
			captures++
		}
	}
	sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
	sum.AvgProfit = sum.Profit / float64(sum.Trades)
	if captures > 0 {
		sum.AvgCapture /= float64(captures)
	}
	return sum
}

// hashArtifacts returns sha256 content hashes of the collaborating strategy's
// source artifacts, for drift detection. Unreadable paths are skipped.
func hashArtifacts(paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		h := sha256.Sum256(b)
		out[p] = hex.EncodeToString(h[:])
	}
	return out
}
