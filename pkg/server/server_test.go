package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cochin-smart-city/citypulse/internal/db"
	"github.com/cochin-smart-city/citypulse/internal/notify"
	"github.com/cochin-smart-city/citypulse/pkg/toast"
	"github.com/cochin-smart-city/citypulse/pkg/upload"
)

// newTestServer builds a fully wired server on a temp database.
func newTestServer(t *testing.T) (*Server, *toast.Store) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(ctx, db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("db.Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := toast.New(toast.WithLimit(3))
	t.Cleanup(store.Close)

	svc, err := notify.NewService(ctx, database, store, nil)
	if err != nil {
		t.Fatalf("notify.NewService: %v", err)
	}

	uploads, err := upload.NewDiskStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("upload.NewDiskStore: %v", err)
	}

	srv := New(nil, store,
		WithDatabase(database),
		WithNotifyService(svc),
		WithUploads(uploads),
	)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, store
}

func TestHealthz(t *testing.T) {
	srv, store := newTestServer(t)

	store.Info("hello")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Database == nil || resp.Database.Status != "ok" {
		t.Errorf("database health = %+v", resp.Database)
	}
	if resp.Toasts.Visible != 1 {
		t.Errorf("visible = %d", resp.Toasts.Visible)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected Prometheus exposition output")
	}
}

func TestCreateListDismissNotification(t *testing.T) {
	srv, store := newTestServer(t)

	body := `{"title":"Water supply","body":"Maintenance tonight","level":"warning"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/notifications", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created notify.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 || created.Title != "Water supply" {
		t.Errorf("created = %+v", created)
	}

	// The toast is live.
	if len(store.State().Toasts) != 1 {
		t.Fatalf("expected 1 toast, got %d", len(store.State().Toasts))
	}

	// List shows it.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/notifications?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var records []notify.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 1 || records[0].ID != created.ID {
		t.Errorf("records = %+v", records)
	}

	// Dismiss settles the toast.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/notifications/1/dismiss", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d", rec.Code)
	}
	got := store.State().Toasts[0]
	if got.Open {
		t.Error("toast should be closed after dismiss")
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{nope", http.StatusBadRequest},
		{"missing title", `{"body":"x"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/notifications", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestShutdownConcurrent(t *testing.T) {
	srv, store := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown: %v", err)
			}
		}()
	}
	wg.Wait()

	// The subscription is gone; further dispatches must not reach the
	// server.
	store.Info("after shutdown")
	if n := srv.ClientCount(); n != 0 {
		t.Errorf("clients after shutdown = %d", n)
	}
}

func TestGetNotification(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"title":"Streetlight fixed"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/notifications", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/notifications/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got notify.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Streetlight fixed" || got.Level != "info" {
		t.Errorf("record = %+v", got)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/notifications/42", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d", rec.Code)
	}
}

func TestDismissInvalidID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/notifications/abc/dismiss", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "streetlight.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake-jpeg"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var att upload.Attachment
	if err := json.Unmarshal(rec.Body.Bytes(), &att); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/attachments/"+att.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if rec.Body.String() != "fake-jpeg" {
		t.Errorf("content = %q", rec.Body.String())
	}
}

func TestAttachmentNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/attachments/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
