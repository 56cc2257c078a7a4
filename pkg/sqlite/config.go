package sqlite

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds embedded-store configuration.
type ClientConfig struct {
	Path        string
	BusyTimeout time.Duration
	JournalMode string
}

// WithPath sets the database file path.
func WithPath(path string) ClientOption {
	return func(c *ClientConfig) {
		c.Path = path
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database
// before returning SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.BusyTimeout = d
		}
	}
}

// WithJournalMode sets the journal mode (WAL by default).
func WithJournalMode(mode string) ClientOption {
	return func(c *ClientConfig) {
		if mode != "" {
			c.JournalMode = mode
		}
	}
}
