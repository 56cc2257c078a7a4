package usecase

import (
	"context"
	"fmt"
	"time"

	"StratTune/internal/domain/models"
	drepo "StratTune/internal/domain/repository"
	applogger "StratTune/pkg/logger"
)

// evaluate runs the auto-apply decision engine over the rule table in
// declaration order and returns the events it applied. Caller holds the
// mutex. Guardrail skips are not errors; they surface via Suggestions.
func (c *Controller) evaluate(ctx context.Context, now time.Time) []*models.AutoApplyEvent {
	if !c.enabled {
		return nil
	}
	c.rollDay(now)

	var applied []*models.AutoApplyEvent
	for i := range drepo.Rules() {
		rule := &drepo.Rules()[i]
		param, ok := drepo.ParamByName(rule.Param)
		if !ok {
			continue
		}
		streak := c.streaks[rule.Key]
		if streak < rule.Limit {
			continue
		}
		if last, ok := c.lastApplied[param.Name]; ok && now.Sub(last) < param.Cooldown {
			continue
		}
		if c.appliedToday[param.Name] >= param.DailyCap {
			continue
		}

		old := c.effectiveLocked(param.Name)
		candidate := clamp(old+param.Step, param.Low, param.High)
		if candidate == old {
			continue // already at its bound
		}

		reason := fmt.Sprintf(rule.Reason, c.lastMetric(rule), old, streak)
		ev := &models.AutoApplyEvent{
			At:       now,
			Param:    param.Name,
			OldValue: old,
			NewValue: candidate,
			Streak:   streak,
			Reason:   reason,
		}

		c.setOverrideLocked(ctx, param.Name, candidate, models.SourceAuto, now)
		c.persist(ctx, "auto_apply", func(pctx context.Context) error {
			return c.store.SaveAutoApply(pctx, ev)
		})
		c.footprint(ctx, models.FootprintAutoApply, reason, ev)

		c.lastApplied[param.Name] = now
		c.appliedToday[param.Name]++
		c.streaks[rule.Key] = 0
		c.metrics.RecordStreak(rule.Key, 0)
		c.metrics.RecordAutoApply(param.Name)
		c.log.Info("auto-applied override",
			applogger.String("param", param.Name),
			applogger.Float64("old", old),
			applogger.Float64("new", candidate),
			applogger.Int("streak", streak),
		)
		applied = append(applied, ev)
	}
	return applied
}

// lastMetric returns the most recent metric value for a sample rule, for
// reason strings. Outcome rules fall back to the streak-triggering threshold
// context captured in their cancellation rows.
func (c *Controller) lastMetric(rule *drepo.Rule) float64 {
	if rule.Metric != nil {
		if s, ok := c.samples.last(); ok {
			return rule.Metric(s)
		}
	}
	return 0
}

// rollDay resets the per-day application counters on calendar date change.
func (c *Controller) rollDay(now time.Time) {
	day := now.Format("2006-01-02")
	if day != c.day {
		c.day = day
		c.appliedToday = make(map[string]int)
	}
}

// Suggestions reports per-rule tuning state, including guardrail-blocked
// evaluations that were silently skipped.
func (c *Controller) Suggestions() []models.Suggestion {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDay(now)

	out := make([]models.Suggestion, 0, len(drepo.Rules()))
	for i := range drepo.Rules() {
		rule := &drepo.Rules()[i]
		param, ok := drepo.ParamByName(rule.Param)
		if !ok {
			continue
		}
		eff := c.effectiveLocked(param.Name)
		sg := models.Suggestion{
			Param:     param.Name,
			Streak:    c.streaks[rule.Key],
			Limit:     rule.Limit,
			Effective: eff,
			Candidate: clamp(eff+param.Step, param.Low, param.High),
		}
		if last, ok := c.lastApplied[param.Name]; ok {
			t := last
			sg.LastApplied = &t
		}

		if sg.Streak >= rule.Limit {
			switch {
			case sg.LastApplied != nil && now.Sub(*sg.LastApplied) < param.Cooldown:
				sg.Blocked = "cooldown"
			case c.appliedToday[param.Name] >= param.DailyCap:
				sg.Blocked = "daily_cap"
			case sg.Candidate == eff:
				sg.Blocked = "at_bound"
			default:
				sg.Ready = true
				sg.Reason = fmt.Sprintf(rule.Reason, c.lastMetric(rule), eff, sg.Streak)
			}
		}
		out = append(out, sg)
	}
	return out
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
