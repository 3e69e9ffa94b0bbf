// Package notify persists notification records and announces them through
// the toast store.
//
// A record is the durable side of a notification (what the citizen portal
// lists under "your notifications"); the toast is its transient on-screen
// announcement. Creating a record raises a toast, and dismissing either
// side settles both: closing the toast marks the record dismissed, and
// dismissing the record closes the toast.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cochin-smart-city/citypulse/internal/db"
	"github.com/cochin-smart-city/citypulse/pkg/toast"
)

// Record is a stored notification.
type Record struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Level       string     `json:"level"`
	CreatedAt   time.Time  `json:"createdAt"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty"`
}

// Service persists notifications and fans them out through a toast store.
type Service struct {
	db     *db.DB
	toasts *toast.Store
	logger *slog.Logger

	mu     sync.Mutex
	active map[int64]toast.Handle // record id -> live toast
}

// NewService creates the notifications table if needed and returns a
// service bound to the given database and toast store.
func NewService(ctx context.Context, database *db.DB, toasts *toast.Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:     database,
		toasts: toasts,
		logger: logger.With("component", "notify"),
		active: make(map[int64]toast.Handle),
	}
	_, err := database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			level TEXT NOT NULL,
			created_at TEXT NOT NULL,
			dismissed_at TEXT
		)`)
	if err != nil {
		return nil, fmt.Errorf("notify: create table: %w", err)
	}
	return s, nil
}

// Create stores a notification and raises a toast for it. Closing the toast
// from the UI marks the record dismissed.
func (s *Service) Create(ctx context.Context, title, body string, level toast.Level) (Record, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notifications (title, body, level, created_at) VALUES (?, ?, ?, ?)",
		title, body, string(level), now.Format(time.RFC3339))
	if err != nil {
		return Record{}, fmt.Errorf("notify: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("notify: insert id: %w", err)
	}

	rec := Record{ID: id, Title: title, Body: body, Level: string(level), CreatedAt: now}

	handle := s.toasts.Toast(toast.Props{
		Title:       title,
		Description: body,
		Level:       level,
		Data:        map[string]any{"notificationID": id},
		OnOpenChange: func(open bool) {
			if !open {
				// UI-driven close; the record outlives the toast but
				// is flagged as seen.
				if err := s.markDismissed(context.Background(), id); err != nil {
					s.logger.Warn("mark dismissed failed", "id", id, "error", err)
				}
			}
		},
	})

	s.mu.Lock()
	s.active[id] = handle
	s.mu.Unlock()

	return rec, nil
}

// Dismiss marks the record dismissed and closes its toast if one is still
// visible. Unknown ids are a no-op, matching the store's contract.
func (s *Service) Dismiss(ctx context.Context, id int64) error {
	if err := s.markDismissed(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	handle, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()
	if ok {
		handle.Dismiss()
	}
	return nil
}

func (s *Service) markDismissed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET dismissed_at = ? WHERE id = ? AND dismissed_at IS NULL",
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("notify: mark dismissed: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, body, level, created_at, dismissed_at FROM notifications ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("notify: query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			createdAt   string
			dismissedAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Body, &rec.Level, &createdAt, &dismissedAt); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = t
		}
		if dismissedAt.Valid {
			if t, err := time.Parse(time.RFC3339, dismissedAt.String); err == nil {
				rec.DismissedAt = &t
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	var (
		rec         Record
		createdAt   string
		dismissedAt sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, body, level, created_at, dismissed_at FROM notifications WHERE id = ?", id)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Body, &rec.Level, &createdAt, &dismissedAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("notify: get: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if dismissedAt.Valid {
		if t, err := time.Parse(time.RFC3339, dismissedAt.String); err == nil {
			rec.DismissedAt = &t
		}
	}
	return rec, nil
}
