// Package db manages the CityPulse database connection.
//
// The connection lifecycle follows a fixed contract: connect (with one
// retry), verify the database is readable and writable, recover from
// read-only mode by reconnecting once, and disconnect on shutdown. Whether
// a database that stays read-only is fatal is decided by configuration, not
// by this package.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// defaultRetryDelay is the pause before the single connect retry.
	defaultRetryDelay = 2 * time.Second

	// probeTable is used by the read/write verification probe.
	probeTable = "citypulse_health_check"
)

// Config configures the database connection.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	// RequireWritable makes a database that remains read-only after a
	// reconnect a fatal error. When false the connection continues in
	// read-only mode with a warning.
	RequireWritable bool

	// RetryDelay is the pause before the connect retry. Defaults to 2s.
	RetryDelay time.Duration

	// Logger receives connection lifecycle events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// DB wraps the SQL connection with the verification and recovery behavior
// described in the package comment.
type DB struct {
	mu       sync.Mutex
	sql      *sql.DB
	path     string
	readonly bool
	require  bool
	logger   *slog.Logger
}

// Connect opens the database and verifies it is usable. A failed open or
// ping is retried once after Config.RetryDelay; a second failure is
// returned to the caller.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("db: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "db")

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("db: create directory: %w", err)
	}

	conn, err := open(ctx, cfg.Path)
	if err != nil {
		logger.Warn("database connection failed, retrying once", "error", err, "delay", retryDelay)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		conn, err = open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("db: connect after retry: %w", err)
		}
	}

	d := &DB{
		sql:     conn,
		path:    cfg.Path,
		require: cfg.RequireWritable,
		logger:  logger,
	}

	if err := d.VerifyReadWrite(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("database connected", "path", cfg.Path, "readonly", d.ReadOnly())
	return d, nil
}

// open dials SQLite and confirms the connection with a ping.
func open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	_, _ = conn.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000")

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// VerifyReadWrite probes the database with a real write. If the probe fails
// with a read-only error the connection is rebuilt once and the probe runs
// again. A database that stays read-only is fatal only when the connection
// was configured with RequireWritable.
func (d *DB) VerifyReadWrite(ctx context.Context) error {
	err := d.probe(ctx)
	if err == nil {
		d.setReadOnly(false)
		return nil
	}
	if !isReadOnly(err) {
		return fmt.Errorf("db: read/write verification: %w", err)
	}

	d.logger.Warn("database is read-only, reconnecting", "error", err)
	if rerr := d.reconnect(ctx); rerr != nil {
		d.logger.Warn("reconnect failed", "error", rerr)
	} else if err = d.probe(ctx); err == nil {
		d.logger.Info("database recovered from read-only mode")
		d.setReadOnly(false)
		return nil
	}

	if !isReadOnly(err) {
		return fmt.Errorf("db: read/write verification after reconnect: %w", err)
	}

	d.setReadOnly(true)
	if d.require {
		return fmt.Errorf("db: database remains read-only after reconnect: %w", err)
	}
	d.logger.Warn("continuing with read-only database")
	return nil
}

// probe exercises a write round-trip against a throwaway row.
func (d *DB) probe(ctx context.Context) error {
	conn := d.conn()
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, checked_at TEXT NOT NULL)", probeTable)); err != nil {
		return err
	}
	res, err := conn.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (checked_at) VALUES (?)", probeTable), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", probeTable), id)
	return err
}

// reconnect rebuilds the underlying connection against the same path.
func (d *DB) reconnect(ctx context.Context) error {
	conn, err := open(ctx, d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	old := d.sql
	d.sql = conn
	d.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// isReadOnly reports whether err looks like SQLite's read-only failure
// mode. Driver messages vary ("attempt to write a readonly database",
// SQLITE_READONLY codes), so this matches on substrings.
func isReadOnly(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "readonly") ||
		strings.Contains(msg, "read-only") ||
		strings.Contains(msg, "read only")
}

// Health pings the database. Used by the HTTP health endpoint.
func (d *DB) Health(ctx context.Context) error {
	return d.conn().PingContext(ctx)
}

// ReadOnly reports whether the connection is operating in read-only mode.
func (d *DB) ReadOnly() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readonly
}

func (d *DB) setReadOnly(v bool) {
	d.mu.Lock()
	d.readonly = v
	d.mu.Unlock()
}

func (d *DB) conn() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sql
}

// ExecContext runs a statement on the current connection.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn().ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the current connection.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn().QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the current connection.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn().QueryRowContext(ctx, query, args...)
}

// Close releases the connection. Called on shutdown.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sql == nil {
		return nil
	}
	err := d.sql.Close()
	d.sql = nil
	return err
}
