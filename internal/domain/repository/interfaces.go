package repository

import (
	"context"
	"time"

	"StratTune/internal/domain/models"
)

// Store is the embedded durable store behind the controller. Every table is
// append-only except the live override mapping.
type Store interface {
	Init(ctx context.Context) error // ensure tables exist
	SaveSample(ctx context.Context, s *models.DiagnosticSample) error
	SamplesSince(ctx context.Context, since time.Time, limit int) ([]*models.DiagnosticSample, error)
	SaveTrade(ctx context.Context, t *models.Trade) error
	RecentTrades(ctx context.Context, n int) ([]*models.Trade, error)
	SaveEntryBlock(ctx context.Context, b *models.EntryBlock) error
	SaveSegment(ctx context.Context, seg *models.TrendSegment) error
	SaveBarClass(ctx context.Context, bc *models.BarClass) error
	SaveCancellation(ctx context.Context, c *models.Cancellation) error
	SaveAutoApply(ctx context.Context, ev *models.AutoApplyEvent) error
	RecentAutoApplies(ctx context.Context, n int) ([]*models.AutoApplyEvent, error)
	UpsertOverride(ctx context.Context, o *models.Override) error
	DeleteOverride(ctx context.Context, name string) error
	Overrides(ctx context.Context) ([]*models.Override, error)
	SaveFootprint(ctx context.Context, f *models.Footprint) error
	Footprints(ctx context.Context, kind string, limit int) ([]*models.Footprint, error)
	SaveSnapshot(ctx context.Context, s *models.Snapshot) error
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
	Prune(ctx context.Context, before time.Time) error
	Health(ctx context.Context) error
	Close() error
}

// Archiver mirrors append-only history into a long-horizon columnar store.
// Optional; a nil Archiver disables mirroring.
type Archiver interface {
	ArchiveSample(ctx context.Context, s *models.DiagnosticSample) error
	ArchiveTrade(ctx context.Context, t *models.Trade) error
	Close() error
}

// AuditPublisher exports applied changes and footprints to an event topic for
// downstream consumers. Optional.
type AuditPublisher interface {
	PublishEvent(ctx context.Context, ev *models.AutoApplyEvent) error
	PublishFootprint(ctx context.Context, f *models.Footprint) error
	Close() error
}

type Metrics interface {
	RecordSample()
	RecordStreak(param string, length int)
	RecordAutoApply(param string)
	RecordTrendSide(side string)
	RecordSkip(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
