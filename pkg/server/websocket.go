package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cochin-smart-city/citypulse/pkg/toast"
)

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// wireToast is the JSON shape of a toast on the feed. Callback fields do
// not cross the wire; the client sends a dismiss command instead.
type wireToast struct {
	ID          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Level       string         `json:"level,omitempty"`
	Open        bool           `json:"open"`
	Data        map[string]any `json:"data,omitempty"`
}

// wireSnapshot is a full state snapshot pushed after every transition.
type wireSnapshot struct {
	Toasts []wireToast `json:"toasts"`
}

// clientCommand is what the UI sends back over the feed. A close gesture
// maps to {"action":"dismiss","id":"..."}; omitting the id dismisses all.
type clientCommand struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

func toWire(state toast.State) wireSnapshot {
	snap := wireSnapshot{Toasts: make([]wireToast, len(state.Toasts))}
	for i, t := range state.Toasts {
		snap.Toasts[i] = wireToast{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Level:       string(t.Level),
			Open:        t.Open,
			Data:        t.Data,
		}
	}
	return snap
}

// client is one connected WebSocket consumer.
type client struct {
	conn *websocket.Conn
	send chan wireSnapshot
	done chan struct{}
	once sync.Once
}

// close marks the client finished. Safe to call from any goroutine, any
// number of times.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue hands a snapshot to the write loop without ever blocking the
// dispatch path. A client whose queue is full is cut loose.
func (c *client) enqueue(snap wireSnapshot) bool {
	select {
	case c.send <- snap:
		return true
	default:
		c.close()
		return false
	}
}

// writeLoop drains the send queue onto the connection.
func (c *client) writeLoop(logger *slog.Logger) {
	defer c.conn.Close()
	for {
		select {
		case snap := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(snap); err != nil {
				logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleWebSocket upgrades the connection and streams store snapshots to
// it until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan wireSnapshot, s.config.ClientQueueSize),
		done: make(chan struct{}),
	}
	s.addClient(c)
	defer s.removeClient(c)

	// Seed the feed with the current state so late joiners render
	// whatever is already visible.
	c.enqueue(toWire(s.toasts.State()))

	go c.writeLoop(s.logger)
	s.readLoop(c)
}

// readLoop consumes client commands until the connection drops.
func (s *Server) readLoop(c *client) {
	defer c.close()
	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "dismiss":
			if cmd.ID == "" {
				s.toasts.DismissAll()
			} else {
				s.toasts.Dismiss(cmd.ID)
			}
		default:
			// Unknown commands are ignored; the feed contract is
			// additive.
		}
	}
}

// broadcast is the store subscription callback: fan the new state out to
// every connected client.
func (s *Server) broadcast(state toast.State) {
	snap := toWire(state)
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for c := range s.clients {
		c.enqueue(snap)
	}
}

func (s *Server) addClient(c *client) {
	s.clientMu.Lock()
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.clientMu.Unlock()
	s.logger.Debug("websocket client connected", "clients", count)
}

func (s *Server) removeClient(c *client) {
	c.close()
	s.clientMu.Lock()
	delete(s.clients, c)
	count := len(s.clients)
	s.clientMu.Unlock()
	s.logger.Debug("websocket client disconnected", "clients", count)
}

// closeClients disconnects every WebSocket consumer. Called on shutdown.
func (s *Server) closeClients() {
	s.clientMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientMu.Unlock()
	for _, c := range clients {
		c.close()
		c.conn.Close()
	}
}

// ClientCount reports connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return len(s.clients)
}
