package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDiskSaveOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	att, err := store.Save(ctx, "pothole.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if att.ID == "" {
		t.Fatal("expected an id")
	}
	if att.Size != int64(len("jpeg-bytes")) {
		t.Errorf("size = %d", att.Size)
	}

	rc, got, err := store.Open(ctx, att.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "jpeg-bytes" {
		t.Errorf("content = %q", content)
	}
	if got.Filename != "pothole.jpg" || got.ContentType != "image/jpeg" {
		t.Errorf("metadata round-trip failed: %+v", got)
	}
}

func TestDiskSizeLimit(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	_, err = store.Save(ctx, "big.bin", "application/octet-stream", strings.NewReader("too large"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	// Nothing left behind.
	entries, _ := os.ReadDir(store.dir)
	if len(entries) != 0 {
		t.Errorf("oversized save left %d files behind", len(entries))
	}
}

func TestDiskOpenMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	_, _, err = store.Open(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	att, err := store.Save(ctx, "a.txt", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, att.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, att.ID); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, _, err := store.Open(ctx, att.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDiskCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	old, err := store.Save(ctx, "old.txt", "text/plain", strings.NewReader("old"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	fresh, err := store.Save(ctx, "fresh.txt", "text/plain", strings.NewReader("fresh"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Age the first blob past the cutoff.
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, old.ID), past, past); err != nil {
		t.Fatal(err)
	}

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if _, _, err := store.Open(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old attachment should be gone, got %v", err)
	}
	rc, _, err := store.Open(ctx, fresh.ID)
	if err != nil {
		t.Errorf("fresh attachment should survive: %v", err)
	} else {
		rc.Close()
	}
}
