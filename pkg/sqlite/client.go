package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// Client manages the embedded store connection. The pool is pinned to a
// single connection because SQLite allows only one writer at a time; all
// access serializes behind it.
type Client struct {
	db *sql.DB
}

// NewClient opens (and creates if needed) the database file.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	dsn := buildDSN(*cfg)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Health performs a health check.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema ensures tables exist (idempotent).
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func buildDSN(cfg ClientConfig) string {
	q := url.Values{}
	q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", cfg.JournalMode))
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + cfg.Path + "?" + q.Encode()
}
