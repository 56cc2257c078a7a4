package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"StratTune/internal/domain/models"
	drepo "StratTune/internal/domain/repository"
	applogger "StratTune/pkg/logger"
)

// enabledKey is the override-table row persisting the auto-apply flag across
// restarts. Hidden from override listings and effective parameters.
const enabledKey = "_auto_apply_enabled"

// Config holds the controller tunables that come from configuration rather
// than the parameter rule table.
type Config struct {
	HysteresisBars    int
	BufferCapacity    int
	WeakGradient      float64
	DecelThreshold    float64
	AutoApplyEnabled  bool
	RecoveryFile      string
	ArtifactPaths     []string
	PerformanceWindow int
	SnapshotInterval  time.Duration
	RetentionDays     int
	PruneInterval     time.Duration
}

// Listener receives controller events after the owning mutation completes.
// Implementations must not block.
type Listener interface {
	OnSample(s *models.DiagnosticSample)
	OnAutoApply(ev *models.AutoApplyEvent)
	OnTrade(t *models.Trade)
}

// Controller owns all mutable derivation state: trend machine, streak
// counters, override mapping and history buffers. Every mutation path passes
// through its mutex so samples observe a strict total order.
type Controller struct {
	mu sync.Mutex

	cfg     Config
	log     *applogger.Logger
	store   drepo.Store
	metrics drepo.Metrics
	audit   drepo.AuditPublisher // optional
	listen  []Listener

	norm    sampleNormalizer
	rawBuf  *ring[map[string]interface{}]
	samples *ring[*models.DiagnosticSample]
	trend   *trendMachine

	streaks      map[string]int
	lastApplied  map[string]time.Time
	appliedToday map[string]int
	day          string // calendar date of appliedToday counters

	overrides map[string]*models.Override
	enabled   bool

	pendingAudit []*models.Footprint // queued under the mutex, published after unlock

	lastBar int64 // duplicate/ordering observation only

	now func() time.Time // test hook
}

// sampleNormalizer is the minimal interface the controller needs from the
// sample normalizer.
type sampleNormalizer interface {
	Normalize(raw map[string]interface{}, now time.Time) *models.DiagnosticSample
}

type Option func(*Controller)

// WithAuditPublisher exports auto-apply events and footprints to a topic.
func WithAuditPublisher(p drepo.AuditPublisher) Option {
	return func(c *Controller) { c.audit = p }
}

// WithListener attaches an event listener (stream hub, archive pipeline).
func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.listen = append(c.listen, l)
		}
	}
}

// WithClock overrides the controller clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds the controller and restores the override set from the store,
// falling back to the recovery file when the store cannot be read.
func New(cfg Config, norm sampleNormalizer, store drepo.Store, metrics drepo.Metrics, log *applogger.Logger, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:          cfg,
		log:          log,
		store:        store,
		metrics:      metrics,
		norm:         norm,
		rawBuf:       newRing[map[string]interface{}](cfg.BufferCapacity),
		samples:      newRing[*models.DiagnosticSample](cfg.BufferCapacity),
		trend:        newTrendMachine(cfg.HysteresisBars, cfg.WeakGradient, cfg.DecelThreshold),
		streaks:      make(map[string]int),
		lastApplied:  make(map[string]time.Time),
		appliedToday: make(map[string]int),
		overrides:    make(map[string]*models.Override),
		enabled:      cfg.AutoApplyEnabled,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.day = c.now().Format("2006-01-02")

	if err := c.restoreOverrides(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// IngestRaw normalizes and processes one raw record. It never fails; a
// malformed record degrades to defaulted fields.
func (c *Controller) IngestRaw(ctx context.Context, raw map[string]interface{}) *models.DiagnosticSample {
	now := c.now()
	s := c.norm.Normalize(raw, now)

	c.mu.Lock()
	c.rawBuf.add(raw)
	c.samples.add(s)

	if c.lastBar != 0 && s.Bar <= c.lastBar {
		c.metrics.RecordSkip("out_of_order_bar")
		c.log.Warn("bar sequence not increasing",
			applogger.Int64("bar", s.Bar),
			applogger.Int64("last_bar", c.lastBar),
		)
	}
	if s.Bar > c.lastBar {
		c.lastBar = s.Bar
	}

	res := c.trend.observe(s)
	c.recordTrendResult(ctx, s, res)
	c.applySampleRules(ctx, s)
	c.persist(ctx, "sample", func(pctx context.Context) error {
		return c.store.SaveSample(pctx, s)
	})
	applied := c.evaluate(ctx, now)
	foots := c.takePendingAuditLocked()
	c.mu.Unlock()

	c.publishAudit(ctx, foots, applied)
	c.metrics.RecordSample()
	c.metrics.RecordTrendSide(c.TrendState().Side)
	for _, l := range c.listen {
		l.OnSample(s)
		for _, ev := range applied {
			l.OnAutoApply(ev)
		}
	}
	return s
}

// Ingest processes a batch in order and returns the accepted count.
func (c *Controller) Ingest(ctx context.Context, raws []map[string]interface{}) int {
	n := 0
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		c.IngestRaw(ctx, raw)
		n++
	}
	return n
}

// TradeCompleted persists the trade and advances outcome streaks.
func (c *Controller) TradeCompleted(ctx context.Context, t *models.Trade) {
	if t.At.IsZero() {
		t.At = c.now()
	}

	c.mu.Lock()
	c.persist(ctx, "trade", func(pctx context.Context) error {
		return c.store.SaveTrade(pctx, t)
	})
	c.applyTradeRules(ctx, t, t.At)
	applied := c.evaluate(ctx, t.At)
	foots := c.takePendingAuditLocked()
	c.mu.Unlock()

	c.publishAudit(ctx, foots, applied)
	for _, l := range c.listen {
		l.OnTrade(t)
		for _, ev := range applied {
			l.OnAutoApply(ev)
		}
	}
}

// EntryBlocked persists the blocked entry and advances outcome streaks.
func (c *Controller) EntryBlocked(ctx context.Context, b *models.EntryBlock) {
	if b.At.IsZero() {
		b.At = c.now()
	}

	c.mu.Lock()
	c.persist(ctx, "entry_block", func(pctx context.Context) error {
		return c.store.SaveEntryBlock(pctx, b)
	})
	c.applyBlockRules(ctx, b, b.At)
	applied := c.evaluate(ctx, b.At)
	foots := c.takePendingAuditLocked()
	c.mu.Unlock()

	c.publishAudit(ctx, foots, applied)
	for _, l := range c.listen {
		for _, ev := range applied {
			l.OnAutoApply(ev)
		}
	}
}

// recordTrendResult persists flip segments and bad-bar classifications.
// Caller holds the mutex.
func (c *Controller) recordTrendResult(ctx context.Context, s *models.DiagnosticSample, res trendResult) {
	if res.skipped {
		c.metrics.RecordSkip("classification_missing_inputs")
	}
	if res.closed != nil {
		seg := res.closed
		c.persist(ctx, "segment", func(pctx context.Context) error {
			return c.store.SaveSegment(pctx, seg)
		})
		c.footprint(ctx, models.FootprintTrendFlip,
			"trend flipped "+seg.Side+" -> "+c.trend.state().Side, seg)
		c.log.Info("trend flip confirmed",
			applogger.String("from", seg.Side),
			applogger.String("to", c.trend.state().Side),
			applogger.Int64("bar", s.Bar),
			applogger.Int("bars", seg.Bars),
		)
	}
	if res.class != nil {
		bc := res.class
		c.persist(ctx, "bar_class", func(pctx context.Context) error {
			return c.store.SaveBarClass(pctx, bc)
		})
	}
}

// persist runs a store write, logging and continuing on failure so in-memory
// state stays authoritative for this process lifetime. Caller may hold the
// mutex; the store serializes its own writes.
func (c *Controller) persist(ctx context.Context, what string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		c.metrics.RecordError("store_" + what)
		c.log.Error("store write failed, continuing with in-memory state",
			applogger.String("what", what),
			applogger.Error(err),
		)
	}
}

// footprint writes an audit footprint to the store and queues it for topic
// publication once the caller releases the mutex, so a slow broker never
// stalls ingest. Caller holds the mutex.
func (c *Controller) footprint(ctx context.Context, kind, note string, data interface{}) {
	f := &models.Footprint{At: c.now(), Kind: kind, Note: note}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			f.Data = string(b)
		}
	}
	c.persist(ctx, "footprint", func(pctx context.Context) error {
		return c.store.SaveFootprint(pctx, f)
	})
	if c.audit != nil {
		c.pendingAudit = append(c.pendingAudit, f)
	}
}

// takePendingAuditLocked drains the footprint publication queue. Caller holds
// the mutex and publishes the result after unlocking.
func (c *Controller) takePendingAuditLocked() []*models.Footprint {
	pending := c.pendingAudit
	c.pendingAudit = nil
	return pending
}

// publishAudit exports footprints and auto-apply events collected during a
// locked mutation. Must run without the mutex.
func (c *Controller) publishAudit(ctx context.Context, foots []*models.Footprint, events []*models.AutoApplyEvent) {
	if c.audit == nil {
		return
	}
	for _, f := range foots {
		if err := c.audit.PublishFootprint(ctx, f); err != nil {
			c.metrics.RecordError("audit_publish")
		}
	}
	for _, ev := range events {
		if err := c.audit.PublishEvent(ctx, ev); err != nil {
			c.metrics.RecordError("audit_publish")
		}
	}
}

// RecordFootprint appends a caller-supplied footprint.
func (c *Controller) RecordFootprint(ctx context.Context, kind, note, data string) *models.Footprint {
	f := &models.Footprint{At: c.now(), Kind: kind, Note: note, Data: data}
	c.mu.Lock()
	c.persist(ctx, "footprint", func(pctx context.Context) error {
		return c.store.SaveFootprint(pctx, f)
	})
	c.mu.Unlock()
	if c.audit != nil {
		if err := c.audit.PublishFootprint(ctx, f); err != nil {
			c.metrics.RecordError("audit_publish")
		}
	}
	return f
}

// Footprints returns recent audit footprints.
func (c *Controller) Footprints(ctx context.Context, kind string, limit int) ([]*models.Footprint, error) {
	return c.store.Footprints(ctx, kind, limit)
}

// SamplesSince returns normalized samples received after since.
func (c *Controller) SamplesSince(ctx context.Context, since time.Time, limit int) ([]*models.DiagnosticSample, error) {
	return c.store.SamplesSince(ctx, since, limit)
}

// RecentSamples returns a snapshot of the in-memory sample buffer.
func (c *Controller) RecentSamples() []*models.DiagnosticSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples.snapshot()
}

// TrendState returns a copy of the current trend state.
func (c *Controller) TrendState() models.TrendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trend.state()
}

// Streaks returns a copy of the current streak counters.
func (c *Controller) Streaks() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.streaks))
	for k, v := range c.streaks {
		out[k] = v
	}
	return out
}

// AutoApplyEnabled reports the engine enable flag.
func (c *Controller) AutoApplyEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// ToggleAutoApply flips (or explicitly sets) the process-wide engine flag and
// persists it so restarts keep it.
func (c *Controller) ToggleAutoApply(ctx context.Context, explicit *bool) bool {
	c.mu.Lock()
	if explicit != nil {
		c.enabled = *explicit
	} else {
		c.enabled = !c.enabled
	}
	v := 0.0
	if c.enabled {
		v = 1.0
	}
	o := &models.Override{Name: enabledKey, Value: v, Source: "system", UpdatedAt: c.now()}
	c.persist(ctx, "override", func(pctx context.Context) error {
		return c.store.UpsertOverride(pctx, o)
	})
	c.writeRecoveryFileLocked()
	enabled := c.enabled
	c.mu.Unlock()

	c.RecordFootprint(ctx, "auto_apply_toggle", map[bool]string{true: "auto-apply enabled", false: "auto-apply disabled"}[enabled], "")
	return enabled
}

// StartJobs launches the periodic snapshot and retention pruning loops. Both
// are idempotent and stop when ctx is cancelled.
func (c *Controller) StartJobs(ctx context.Context) {
	if c.cfg.SnapshotInterval > 0 {
		go c.runEvery(ctx, c.cfg.SnapshotInterval, func() {
			if _, err := c.Snapshot(ctx, true); err != nil {
				c.log.Warn("periodic snapshot failed", applogger.Error(err))
			}
		})
	}
	if c.cfg.RetentionDays > 0 && c.cfg.PruneInterval > 0 {
		go c.runEvery(ctx, c.cfg.PruneInterval, func() {
			before := c.now().AddDate(0, 0, -c.cfg.RetentionDays)
			if err := c.store.Prune(ctx, before); err != nil {
				c.log.Warn("retention prune failed", applogger.Error(err))
			}
		})
	}
}

func (c *Controller) runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
