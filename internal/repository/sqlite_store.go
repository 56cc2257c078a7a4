package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StratTune/internal/domain/models"
	applogger "StratTune/pkg/logger"
	pkgsqlite "StratTune/pkg/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at INTEGER NOT NULL,
		bar INTEGER NOT NULL,
		gradient REAL, secondary_gradient REAL, acceleration REAL,
		trend_strength REAL, pull_strength REAL,
		volatility REAL, stability REAL, volume REAL,
		close REAL, moving_avg REAL,
		blocked_long TEXT, blocked_short TEXT, side TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_received ON samples(received_at)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		entry_bar INTEGER, exit_bar INTEGER, direction TEXT,
		entry_price REAL, exit_price REAL, bars_held INTEGER,
		profit REAL, max_favorable REAL, max_adverse REAL, exit_reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS entry_blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		bar INTEGER, side TEXT, gradient REAL, trend_strength REAL,
		volatility REAL, reasons TEXT, favorable_move REAL
	)`,
	`CREATE TABLE IF NOT EXISTS trend_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		side TEXT NOT NULL,
		started_at INTEGER, ended_at INTEGER,
		start_bar INTEGER, end_bar INTEGER,
		bars INTEGER, good_bars INTEGER, bad_bars INTEGER, score REAL
	)`,
	`CREATE TABLE IF NOT EXISTS bar_classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		bar INTEGER, side TEXT, reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cancellations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		param TEXT NOT NULL, streak INTEGER,
		metric REAL, threshold REAL, bar INTEGER, sample TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS auto_applies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		param TEXT NOT NULL,
		old_value REAL, new_value REAL, streak INTEGER, reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS overrides (
		name TEXT PRIMARY KEY,
		value REAL NOT NULL,
		source TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS override_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		name TEXT NOT NULL, value REAL, source TEXT, action TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS footprints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		kind TEXT NOT NULL, note TEXT, data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		doc TEXT NOT NULL
	)`,
}

// SQLiteStore implements the durable Store on the embedded database. Writes
// retry briefly on lock contention before surfacing the error; callers treat
// surfaced errors as log-and-continue.
type SQLiteStore struct {
	db      *sql.DB
	l       *applogger.Logger
	retries int
	backoff time.Duration
}

func NewSQLiteStore(client *pkgsqlite.Client, retries int, backoff time.Duration) *SQLiteStore {
	if retries < 1 {
		retries = 1
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &SQLiteStore{db: client.DB(), retries: retries, backoff: backoff}
}

// SetLogger injects a structured logger.
func (s *SQLiteStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *SQLiteStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// exec runs a write with bounded retry on lock contention.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...interface{}) error {
	backoff := s.backoff
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if _, err = s.db.ExecContext(ctx, query, args...); err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		if s.l != nil {
			s.l.Warn("store busy, retrying",
				applogger.Int("attempt", attempt+1),
				applogger.Duration("backoff", backoff),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (s *SQLiteStore) SaveSample(ctx context.Context, m *models.DiagnosticSample) error {
	return s.exec(ctx, `INSERT INTO samples
		(received_at, bar, gradient, secondary_gradient, acceleration,
		trend_strength, pull_strength, volatility, stability, volume,
		close, moving_avg, blocked_long, blocked_short, side)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ReceivedAt.UnixNano(), m.Bar, m.Gradient, m.SecondaryGradient, m.Acceleration,
		m.TrendStrength, m.PullStrength, m.Volatility, m.Stability, m.Volume,
		m.Close, m.MovingAvg, joinTags(m.BlockedLong), joinTags(m.BlockedShort), m.Side,
	)
}

func (s *SQLiteStore) SamplesSince(ctx context.Context, since time.Time, limit int) ([]*models.DiagnosticSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT received_at, bar, gradient,
		secondary_gradient, acceleration, trend_strength, pull_strength,
		volatility, stability, volume, close, moving_avg,
		blocked_long, blocked_short, side
		FROM samples WHERE received_at > ? ORDER BY received_at ASC LIMIT ?`,
		since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("samples since: %w", err)
	}
	defer rows.Close()

	var out []*models.DiagnosticSample
	for rows.Next() {
		var m models.DiagnosticSample
		var at int64
		var bl, bs string
		if err := rows.Scan(&at, &m.Bar, &m.Gradient, &m.SecondaryGradient,
			&m.Acceleration, &m.TrendStrength, &m.PullStrength, &m.Volatility,
			&m.Stability, &m.Volume, &m.Close, &m.MovingAvg, &bl, &bs, &m.Side); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		m.ReceivedAt = time.Unix(0, at)
		m.BlockedLong = splitTags(bl)
		m.BlockedShort = splitTags(bs)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	return s.exec(ctx, `INSERT INTO trades
		(at, entry_bar, exit_bar, direction, entry_price, exit_price,
		bars_held, profit, max_favorable, max_adverse, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.At.UnixNano(), t.EntryBar, t.ExitBar, t.Direction, t.EntryPrice,
		t.ExitPrice, t.BarsHeld, t.Profit, t.MaxFavorable, t.MaxAdverse, t.ExitReason,
	)
}

func (s *SQLiteStore) RecentTrades(ctx context.Context, n int) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, at, entry_bar, exit_bar,
		direction, entry_price, exit_price, bars_held, profit, max_favorable,
		max_adverse, exit_reason
		FROM trades ORDER BY at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		var at int64
		if err := rows.Scan(&t.ID, &at, &t.EntryBar, &t.ExitBar, &t.Direction,
			&t.EntryPrice, &t.ExitPrice, &t.BarsHeld, &t.Profit, &t.MaxFavorable,
			&t.MaxAdverse, &t.ExitReason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.At = time.Unix(0, at)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveEntryBlock(ctx context.Context, b *models.EntryBlock) error {
	return s.exec(ctx, `INSERT INTO entry_blocks
		(at, bar, side, gradient, trend_strength, volatility, reasons, favorable_move)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.At.UnixNano(), b.Bar, b.Side, b.Gradient, b.TrendStrength,
		b.Volatility, joinTags(b.Reasons), b.FavorableMove,
	)
}

func (s *SQLiteStore) SaveSegment(ctx context.Context, seg *models.TrendSegment) error {
	return s.exec(ctx, `INSERT INTO trend_segments
		(side, started_at, ended_at, start_bar, end_bar, bars, good_bars, bad_bars, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.Side, seg.StartedAt.UnixNano(), seg.EndedAt.UnixNano(),
		seg.StartBar, seg.EndBar, seg.Bars, seg.GoodBars, seg.BadBars, seg.Score,
	)
}

func (s *SQLiteStore) SaveBarClass(ctx context.Context, bc *models.BarClass) error {
	return s.exec(ctx, `INSERT INTO bar_classes (at, bar, side, reason) VALUES (?, ?, ?, ?)`,
		bc.At.UnixNano(), bc.Bar, bc.Side, bc.Reason,
	)
}

func (s *SQLiteStore) SaveCancellation(ctx context.Context, c *models.Cancellation) error {
	return s.exec(ctx, `INSERT INTO cancellations
		(at, param, streak, metric, threshold, bar, sample)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.At.UnixNano(), c.Param, c.Streak, c.Metric, c.Limit, c.Bar, c.Sample,
	)
}

func (s *SQLiteStore) SaveAutoApply(ctx context.Context, ev *models.AutoApplyEvent) error {
	return s.exec(ctx, `INSERT INTO auto_applies
		(at, param, old_value, new_value, streak, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.At.UnixNano(), ev.Param, ev.OldValue, ev.NewValue, ev.Streak, ev.Reason,
	)
}

func (s *SQLiteStore) RecentAutoApplies(ctx context.Context, n int) ([]*models.AutoApplyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, at, param, old_value,
		new_value, streak, reason
		FROM auto_applies ORDER BY at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent auto applies: %w", err)
	}
	defer rows.Close()

	var out []*models.AutoApplyEvent
	for rows.Next() {
		var ev models.AutoApplyEvent
		var at int64
		if err := rows.Scan(&ev.ID, &at, &ev.Param, &ev.OldValue, &ev.NewValue,
			&ev.Streak, &ev.Reason); err != nil {
			return nil, fmt.Errorf("scan auto apply: %w", err)
		}
		ev.At = time.Unix(0, at)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// UpsertOverride writes the live row and the history append in one
// transaction so override changes are all-or-nothing.
func (s *SQLiteStore) UpsertOverride(ctx context.Context, o *models.Override) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO overrides (name, value, source, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value=excluded.value,
			source=excluded.source, updated_at=excluded.updated_at`,
			o.Name, o.Value, o.Source, o.UpdatedAt.UnixNano()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO override_history (at, name, value, source, action)
			VALUES (?, ?, ?, ?, 'set')`,
			o.UpdatedAt.UnixNano(), o.Name, o.Value, o.Source)
		return err
	})
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM overrides WHERE name = ?`, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO override_history (at, name, value, source, action)
			VALUES (?, ?, 0, '', 'delete')`,
			time.Now().UnixNano(), name)
		return err
	})
}

func (s *SQLiteStore) Overrides(ctx context.Context) ([]*models.Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value, source, updated_at FROM overrides`)
	if err != nil {
		return nil, fmt.Errorf("overrides: %w", err)
	}
	defer rows.Close()

	var out []*models.Override
	for rows.Next() {
		var o models.Override
		var at int64
		if err := rows.Scan(&o.Name, &o.Value, &o.Source, &at); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.UpdatedAt = time.Unix(0, at)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFootprint(ctx context.Context, f *models.Footprint) error {
	return s.exec(ctx, `INSERT INTO footprints (at, kind, note, data) VALUES (?, ?, ?, ?)`,
		f.At.UnixNano(), f.Kind, f.Note, f.Data,
	)
}

func (s *SQLiteStore) Footprints(ctx context.Context, kind string, limit int) ([]*models.Footprint, error) {
	q := `SELECT id, at, kind, note, data FROM footprints`
	args := []interface{}{}
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("footprints: %w", err)
	}
	defer rows.Close()

	var out []*models.Footprint
	for rows.Next() {
		var f models.Footprint
		var at int64
		if err := rows.Scan(&f.ID, &at, &f.Kind, &f.Note, &f.Data); err != nil {
			return nil, fmt.Errorf("scan footprint: %w", err)
		}
		f.At = time.Unix(0, at)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.exec(ctx, `INSERT INTO snapshots (at, doc) VALUES (?, ?)`,
		snap.At.UnixNano(), string(doc))
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var id, at int64
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, at, doc FROM snapshots ORDER BY at DESC LIMIT 1`).Scan(&id, &at, &doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	snap.ID = id
	return &snap, nil
}

// Prune removes append-only history rows older than the cutoff. Overrides,
// auto-apply events and snapshots are kept: they are small and are the state
// that matters for reproducibility.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) error {
	cutoff := before.UnixNano()
	for _, table := range []string{"samples", "cancellations", "bar_classes", "trend_segments", "entry_blocks", "trades", "footprints"} {
		col := "at"
		if table == "samples" {
			col = "received_at"
		}
		if table == "trend_segments" {
			col = "ended_at"
		}
		if err := s.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table, col), cutoff); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return nil // connection owned by pkg/sqlite client
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	backoff := s.backoff
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
