package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialFeed(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) wireSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap wireSnapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}

func TestWebSocketInitialSnapshot(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	store.Success("garbage pickup rescheduled")

	conn := dialFeed(t, ts)
	snap := readSnapshot(t, conn)
	if len(snap.Toasts) != 1 {
		t.Fatalf("toasts = %d", len(snap.Toasts))
	}
	got := snap.Toasts[0]
	if got.Description != "garbage pickup rescheduled" || got.Level != "success" || !got.Open {
		t.Errorf("toast = %+v", got)
	}
}

func TestWebSocketBroadcastOnChange(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialFeed(t, ts)
	if snap := readSnapshot(t, conn); len(snap.Toasts) != 0 {
		t.Fatalf("initial toasts = %d", len(snap.Toasts))
	}

	store.Warning("road closure on MG Road")

	snap := readSnapshot(t, conn)
	if len(snap.Toasts) != 1 || snap.Toasts[0].Level != "warning" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestWebSocketDismissCommand(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	h := store.Info("power outage update")

	conn := dialFeed(t, ts)
	snap := readSnapshot(t, conn)
	if len(snap.Toasts) != 1 || !snap.Toasts[0].Open {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	if err := conn.WriteJSON(clientCommand{Action: "dismiss", ID: h.ID}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	// The dismiss transition is pushed back out on the same feed.
	snap = readSnapshot(t, conn)
	if len(snap.Toasts) != 1 || snap.Toasts[0].Open {
		t.Errorf("post-dismiss snapshot = %+v", snap)
	}
}

func TestWebSocketDismissAllCommand(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	store.Info("first")
	store.Info("second")

	conn := dialFeed(t, ts)
	readSnapshot(t, conn)

	if err := conn.WriteJSON(clientCommand{Action: "dismiss"}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	snap := readSnapshot(t, conn)
	for _, wt := range snap.Toasts {
		if wt.Open {
			t.Errorf("toast %s still open after dismiss-all", wt.ID)
		}
	}
}

func TestWebSocketUnknownCommandIgnored(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialFeed(t, ts)
	readSnapshot(t, conn)

	if err := conn.WriteJSON(clientCommand{Action: "reticulate"}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	// The connection stays up and keeps streaming.
	store.Info("still here")
	snap := readSnapshot(t, conn)
	if len(snap.Toasts) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestClientCount(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialFeed(t, ts)
	readSnapshot(t, conn)
	if n := srv.ClientCount(); n != 1 {
		t.Fatalf("clients = %d", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
