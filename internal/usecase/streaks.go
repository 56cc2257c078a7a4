package usecase

import (
	"context"
	"encoding/json"
	"time"

	"StratTune/internal/domain/models"
	drepo "StratTune/internal/domain/repository"
)

// applySampleRules advances or resets threshold streaks for one sample.
// Caller holds the mutex.
func (c *Controller) applySampleRules(ctx context.Context, s *models.DiagnosticSample) {
	for i := range drepo.Rules() {
		rule := &drepo.Rules()[i]
		if rule.Kind != drepo.RuleSample {
			continue
		}
		param, ok := drepo.ParamByName(rule.Param)
		if !ok {
			continue
		}
		eff := c.effectiveLocked(param.Name)
		if rule.Violated(s, eff, param.Tolerance) {
			c.bumpStreak(ctx, rule.Key, rule.Metric(s), eff, s)
		} else if c.streaks[rule.Key] > 0 {
			c.streaks[rule.Key] = 0
			c.metrics.RecordStreak(rule.Key, 0)
		}
	}
}

// applyTradeRules advances or resets trade-outcome streaks. Caller holds the
// mutex.
func (c *Controller) applyTradeRules(ctx context.Context, t *models.Trade, now time.Time) {
	for i := range drepo.Rules() {
		rule := &drepo.Rules()[i]
		if rule.Kind != drepo.RuleTrade || rule.TradeTrips == nil {
			continue
		}
		if rule.TradeTrips(t) {
			eff := c.effectiveLocked(rule.Param)
			c.bumpOutcomeStreak(ctx, rule.Key, t.CaptureRatio(), eff, t.ExitBar, t, now)
		} else if c.streaks[rule.Key] > 0 {
			c.streaks[rule.Key] = 0
			c.metrics.RecordStreak(rule.Key, 0)
		}
	}
}

// applyBlockRules advances or resets blocked-entry streaks. Caller holds the
// mutex.
func (c *Controller) applyBlockRules(ctx context.Context, b *models.EntryBlock, now time.Time) {
	for i := range drepo.Rules() {
		rule := &drepo.Rules()[i]
		if rule.Kind != drepo.RuleBlock || rule.BlockTrips == nil {
			continue
		}
		if rule.BlockTrips(b) {
			eff := c.effectiveLocked(rule.Param)
			c.bumpOutcomeStreak(ctx, rule.Key, b.FavorableMove, eff, b.Bar, b, now)
		} else if c.streaks[rule.Key] > 0 {
			c.streaks[rule.Key] = 0
			c.metrics.RecordStreak(rule.Key, 0)
		}
	}
}

// bumpStreak increments a threshold streak and persists the cancellation row
// with its full sample context.
func (c *Controller) bumpStreak(ctx context.Context, key string, metric, effective float64, s *models.DiagnosticSample) {
	c.streaks[key]++
	c.metrics.RecordStreak(key, c.streaks[key])

	row := &models.Cancellation{
		At:     s.ReceivedAt,
		Param:  key,
		Streak: c.streaks[key],
		Metric: metric,
		Limit:  effective,
		Bar:    s.Bar,
	}
	if b, err := json.Marshal(s); err == nil {
		row.Sample = string(b)
	}
	c.persist(ctx, "cancellation", func(pctx context.Context) error {
		return c.store.SaveCancellation(pctx, row)
	})
}

// bumpOutcomeStreak increments an outcome streak from a trade or entry-block
// report.
func (c *Controller) bumpOutcomeStreak(ctx context.Context, key string, metric, effective float64, bar int64, src interface{}, now time.Time) {
	c.streaks[key]++
	c.metrics.RecordStreak(key, c.streaks[key])

	row := &models.Cancellation{
		At:     now,
		Param:  key,
		Streak: c.streaks[key],
		Metric: metric,
		Limit:  effective,
		Bar:    bar,
	}
	if b, err := json.Marshal(src); err == nil {
		row.Sample = string(b)
	}
	c.persist(ctx, "cancellation", func(pctx context.Context) error {
		return c.store.SaveCancellation(pctx, row)
	})
}
