package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"StratTune/internal/domain/models"
	drepo "StratTune/internal/domain/repository"
	applogger "StratTune/pkg/logger"
)

var (
	// ErrUnknownParam is returned for apply/delete on a name outside the
	// tunable parameter table.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrNoOverride is returned when deleting a parameter with no active
	// override.
	ErrNoOverride = errors.New("no active override")
)

// recoveryState is the JSON document mirrored to the recovery file on every
// override mutation so a restart can rebuild the set without the store.
type recoveryState struct {
	Overrides        map[string]float64 `json:"overrides"`
	Sources          map[string]string  `json:"sources"`
	AutoApplyEnabled bool               `json:"auto_apply_enabled"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// effectiveLocked returns override-over-default for one parameter. Caller
// holds the mutex.
func (c *Controller) effectiveLocked(name string) float64 {
	if o, ok := c.overrides[name]; ok {
		return o.Value
	}
	if p, ok := drepo.ParamByName(name); ok {
		return p.Default
	}
	return 0
}

// Effective returns the full effective-parameters mapping: defaults merged
// with active overrides.
func (c *Controller) Effective() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveLockedMap()
}

func (c *Controller) effectiveLockedMap() map[string]float64 {
	out := drepo.Defaults()
	for name, o := range c.overrides {
		if name == enabledKey {
			continue
		}
		out[name] = o.Value
	}
	return out
}

// Overrides returns a copy of the active override set.
func (c *Controller) Overrides() []*models.Override {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Override, 0, len(c.overrides))
	for name, o := range c.overrides {
		if name == enabledKey {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out
}

// Apply sets one override (manual path) and returns the resulting effective
// mapping. Re-applying an identical value is a no-op apart from the audit
// entry.
func (c *Controller) Apply(ctx context.Context, name string, value float64, source string) (map[string]float64, error) {
	if _, ok := drepo.ParamByName(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	now := c.now()

	c.mu.Lock()
	prev, had := c.overrides[name]
	changed := !had || prev.Value != value
	c.setOverrideLocked(ctx, name, value, source, now)
	eff := c.effectiveLockedMap()
	c.mu.Unlock()

	note := fmt.Sprintf("manual override %s=%v", name, value)
	if !changed {
		note += " (unchanged)"
	}
	c.RecordFootprint(ctx, models.FootprintManualChange, note, "")
	return eff, nil
}

// Delete removes one override and returns the resulting effective mapping.
func (c *Controller) Delete(ctx context.Context, name string) (map[string]float64, error) {
	if _, ok := drepo.ParamByName(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}

	c.mu.Lock()
	if _, ok := c.overrides[name]; !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoOverride, name)
	}
	delete(c.overrides, name)
	c.persist(ctx, "override", func(pctx context.Context) error {
		return c.store.DeleteOverride(pctx, name)
	})
	c.writeRecoveryFileLocked()
	eff := c.effectiveLockedMap()
	c.mu.Unlock()

	c.RecordFootprint(ctx, models.FootprintManualChange, "override removed: "+name, "")
	return eff, nil
}

// setOverrideLocked writes one override through memory, store and recovery
// file. Caller holds the mutex.
func (c *Controller) setOverrideLocked(ctx context.Context, name string, value float64, source string, now time.Time) {
	o := &models.Override{Name: name, Value: value, Source: source, UpdatedAt: now}
	c.overrides[name] = o
	c.persist(ctx, "override", func(pctx context.Context) error {
		return c.store.UpsertOverride(pctx, o)
	})
	c.writeRecoveryFileLocked()
}

// restoreOverrides rebuilds the override set from the store, falling back to
// the recovery file when the store cannot be read.
func (c *Controller) restoreOverrides(ctx context.Context) error {
	rows, err := c.store.Overrides(ctx)
	if err != nil {
		c.log.Warn("override load from store failed, trying recovery file", applogger.Error(err))
		return c.restoreFromRecoveryFile()
	}
	for _, o := range rows {
		if o.Name == enabledKey {
			c.enabled = o.Value != 0
			continue
		}
		cp := *o
		c.overrides[o.Name] = &cp
	}
	c.log.Info("override set restored",
		applogger.Int("overrides", len(c.overrides)),
		applogger.Bool("auto_apply", c.enabled),
	)
	return nil
}

func (c *Controller) restoreFromRecoveryFile() error {
	if c.cfg.RecoveryFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.cfg.RecoveryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh start
		}
		return fmt.Errorf("read recovery file: %w", err)
	}
	var st recoveryState
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("parse recovery file: %w", err)
	}
	now := c.now()
	for name, v := range st.Overrides {
		src := st.Sources[name]
		if src == "" {
			src = models.SourceManual
		}
		c.overrides[name] = &models.Override{Name: name, Value: v, Source: src, UpdatedAt: now}
	}
	c.enabled = st.AutoApplyEnabled
	c.log.Info("override set restored from recovery file",
		applogger.Int("overrides", len(c.overrides)),
	)
	return nil
}

// writeRecoveryFileLocked rewrites the recovery JSON atomically (temp file +
// rename). Caller holds the mutex. Failures are logged, not fatal.
func (c *Controller) writeRecoveryFileLocked() {
	if c.cfg.RecoveryFile == "" {
		return
	}
	st := recoveryState{
		Overrides:        make(map[string]float64, len(c.overrides)),
		Sources:          make(map[string]string, len(c.overrides)),
		AutoApplyEnabled: c.enabled,
		UpdatedAt:        c.now(),
	}
	for name, o := range c.overrides {
		if name == enabledKey {
			continue
		}
		st.Overrides[name] = o.Value
		st.Sources[name] = o.Source
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		c.log.Warn("recovery file marshal failed", applogger.Error(err))
		return
	}
	tmp := c.cfg.RecoveryFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		c.log.Warn("recovery file write failed", applogger.Error(err))
		return
	}
	if err := os.Rename(tmp, c.cfg.RecoveryFile); err != nil {
		c.log.Warn("recovery file rename failed", applogger.Error(err))
	}
}
