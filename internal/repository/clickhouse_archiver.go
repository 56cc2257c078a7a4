package repository

import (
	"context"
	"fmt"

	"StratTune/internal/domain/models"
	"StratTune/pkg/clickhouse"
	applogger "StratTune/pkg/logger"
)

var archiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS tuning_samples (
		received_at DateTime64(9),
		bar Int64,
		gradient Float64,
		secondary_gradient Float64,
		acceleration Float64,
		trend_strength Float64,
		pull_strength Float64,
		volatility Float64,
		stability Float64,
		volume Float64,
		close Float64,
		moving_avg Float64,
		side LowCardinality(String)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received_at)
	ORDER BY (received_at, bar)`,
	`CREATE TABLE IF NOT EXISTS tuning_trades (
		at DateTime64(9),
		entry_bar Int64,
		exit_bar Int64,
		direction LowCardinality(String),
		entry_price Float64,
		exit_price Float64,
		bars_held Int32,
		profit Float64,
		max_favorable Float64,
		max_adverse Float64,
		exit_reason LowCardinality(String)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(at)
	ORDER BY (at)`,
}

// ClickHouseArchiver mirrors samples and trades into ClickHouse for
// long-horizon analysis. The embedded store stays authoritative; archive
// failures are reported to the caller and never block ingest.
type ClickHouseArchiver struct {
	client *clickhouse.Client
	l      *applogger.Logger
}

func NewClickHouseArchiver(client *clickhouse.Client) *ClickHouseArchiver {
	return &ClickHouseArchiver{client: client}
}

func (a *ClickHouseArchiver) SetLogger(l *applogger.Logger) { a.l = l }

// Init ensures the archive tables exist.
func (a *ClickHouseArchiver) Init(ctx context.Context) error {
	return a.client.InitSchema(ctx, archiveSchema)
}

func (a *ClickHouseArchiver) ArchiveSample(ctx context.Context, s *models.DiagnosticSample) error {
	_, err := a.client.DB().ExecContext(ctx, `INSERT INTO tuning_samples
		(received_at, bar, gradient, secondary_gradient, acceleration,
		trend_strength, pull_strength, volatility, stability, volume,
		close, moving_avg, side)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ReceivedAt, s.Bar, s.Gradient, s.SecondaryGradient, s.Acceleration,
		s.TrendStrength, s.PullStrength, s.Volatility, s.Stability, s.Volume,
		s.Close, s.MovingAvg, s.Side,
	)
	if err != nil {
		return fmt.Errorf("archive sample: %w", err)
	}
	return nil
}

func (a *ClickHouseArchiver) ArchiveTrade(ctx context.Context, t *models.Trade) error {
	_, err := a.client.DB().ExecContext(ctx, `INSERT INTO tuning_trades
		(at, entry_bar, exit_bar, direction, entry_price, exit_price,
		bars_held, profit, max_favorable, max_adverse, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.At, t.EntryBar, t.ExitBar, t.Direction, t.EntryPrice, t.ExitPrice,
		t.BarsHeld, t.Profit, t.MaxFavorable, t.MaxAdverse, t.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("archive trade: %w", err)
	}
	return nil
}

func (a *ClickHouseArchiver) Close() error {
	return a.client.Close()
}
