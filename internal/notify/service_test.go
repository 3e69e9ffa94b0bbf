package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cochin-smart-city/citypulse/internal/db"
	"github.com/cochin-smart-city/citypulse/pkg/toast"
)

func newTestService(t *testing.T) (*Service, *toast.Store) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(ctx, db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("db.Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := toast.New(toast.WithLimit(5))
	t.Cleanup(store.Close)

	svc, err := NewService(ctx, database, store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestCreateRaisesToast(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "Complaint updated", "Your complaint CSC-104 was assigned.", toast.LevelInfo)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected a non-zero record id")
	}

	state := store.State()
	if len(state.Toasts) != 1 {
		t.Fatalf("expected 1 toast, got %d", len(state.Toasts))
	}
	got := state.Toasts[0]
	if got.Title != "Complaint updated" || !got.Open {
		t.Errorf("unexpected toast %+v", got)
	}
	if got.Data["notificationID"] != rec.ID {
		t.Errorf("toast should carry the record id, got %v", got.Data["notificationID"])
	}
}

func TestDismissSettlesBothSides(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "Saved", "", toast.LevelSuccess)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Dismiss(ctx, rec.ID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	// Toast is closed but still in state until the removal delay.
	got, ok := store.State().Find(store.State().Toasts[0].ID)
	if !ok || got.Open {
		t.Errorf("expected closed toast, present=%v open=%v", ok, got.Open)
	}

	stored, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.DismissedAt == nil {
		t.Error("record should be marked dismissed")
	}
}

func TestUICloseMarksRecordDismissed(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "Saved", "", toast.LevelSuccess)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Simulate the rendering layer's close gesture.
	state := store.State()
	state.Toasts[0].OnOpenChange(false)

	stored, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.DismissedAt == nil {
		t.Error("UI close should mark the record dismissed")
	}
}

func TestDismissUnknownRecord(t *testing.T) {
	svc, _ := newTestService(t)
	// Matches the store contract: unknown ids are not errors.
	if err := svc.Dismiss(context.Background(), 9999); err != nil {
		t.Errorf("Dismiss unknown id: %v", err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := svc.Create(ctx, title, "", toast.LevelInfo); err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
	}

	records, err := svc.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Title != "third" || records[1].Title != "second" {
		t.Errorf("expected newest first, got %q then %q", records[0].Title, records[1].Title)
	}
}

func TestGetMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
