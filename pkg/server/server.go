// Package server exposes the CityPulse notification core over HTTP.
//
// The server pushes toast-store snapshots to browser clients over a
// WebSocket feed, serves the notification and attachment APIs, and reports
// health and Prometheus metrics. It owns its WebSocket clients and the
// HTTP listener; the database, toast store and services are constructed by
// the caller and injected.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cochin-smart-city/citypulse/internal/db"
	"github.com/cochin-smart-city/citypulse/internal/notify"
	"github.com/cochin-smart-city/citypulse/pkg/toast"
	"github.com/cochin-smart-city/citypulse/pkg/upload"
)

// Server is the HTTP/WebSocket server for CityPulse notifications.
type Server struct {
	config *Config
	toasts *toast.Store

	database *db.DB
	notify   *notify.Service
	uploads  upload.Store

	middleware []func(http.Handler) http.Handler

	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	clientMu sync.Mutex
	clients  map[*client]struct{}

	unsubOnce   sync.Once
	unsubscribe func()
}

// Option configures a Server.
type Option func(*Server)

// WithDatabase attaches the database for health reporting.
func WithDatabase(database *db.DB) Option {
	return func(s *Server) {
		s.database = database
	}
}

// WithNotifyService mounts the notification API.
func WithNotifyService(svc *notify.Service) Option {
	return func(s *Server) {
		s.notify = svc
	}
}

// WithUploads mounts the attachment API on the given store.
func WithUploads(store upload.Store) Option {
	return func(s *Server) {
		s.uploads = store
	}
}

// WithMiddleware adds HTTP middleware, applied in order to every route.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server bound to the given toast store. The server
// subscribes to the store immediately; snapshots flow to WebSocket clients
// as soon as they connect.
func New(config *Config, toasts *toast.Store, opts ...Option) *Server {
	s := &Server{
		config:  config.withDefaults(),
		toasts:  toasts,
		clients: make(map[*client]struct{}),
		logger:  slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	s.router = s.buildRouter()
	s.unsubscribe = toasts.Subscribe(s.broadcast)
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	for _, mw := range s.middleware {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws/notifications", s.handleWebSocket)

	if s.notify != nil {
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/", s.handleCreateNotification)
			r.Get("/{id}", s.handleGetNotification)
			r.Post("/{id}/dismiss", s.handleDismissNotification)
		})
	}
	if s.uploads != nil {
		r.Post("/api/attachments", s.handleSaveAttachment)
		r.Get("/api/attachments/{id}", s.handleGetAttachment)
	}
	return r
}

// ServeHTTP implements http.Handler, so the server can also be mounted
// inside a larger router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listener
// error.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server: the store subscription is dropped,
// WebSocket clients are closed, and the HTTP listener drains within the
// configured timeout. The toast store and database belong to the caller
// and are closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Shutdown may be called from a signal handler and from the caller's
	// cleanup path at once; the subscription is dropped exactly once.
	s.unsubOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
	s.closeClients()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status   string          `json:"status"`
	Database *databaseHealth `json:"database,omitempty"`
	Toasts   toastHealth     `json:"toasts"`
}

type databaseHealth struct {
	Status   string `json:"status"`
	ReadOnly bool   `json:"readOnly"`
}

type toastHealth struct {
	Visible         int `json:"visible"`
	PendingRemovals int `json:"pendingRemovals"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Toasts: toastHealth{
			Visible:         len(s.toasts.State().Toasts),
			PendingRemovals: s.toasts.PendingRemovals(),
		},
	}
	status := http.StatusOK

	if s.database != nil {
		dh := &databaseHealth{Status: "ok", ReadOnly: s.database.ReadOnly()}
		if err := s.database.Health(r.Context()); err != nil {
			dh.Status = "unreachable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		resp.Database = dh
	}

	writeJSON(w, status, resp)
}

type createNotificationRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Level string `json:"level"`
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	level := toast.Level(req.Level)
	if level == "" {
		level = toast.LevelInfo
	}

	rec, err := s.notify.Create(r.Context(), req.Title, req.Body, level)
	if err != nil {
		s.logger.Error("create notification", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	records, err := s.notify.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list notifications", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []notify.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	rec, err := s.notify.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get notification", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.notify.Dismiss(r.Context(), id); err != nil {
		s.logger.Error("dismiss notification", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveAttachment(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	att, err := s.uploads.Save(r.Context(), header.Filename, contentType, file)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Error("save attachment", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rc, att, err := s.uploads.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("open attachment", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	if att.ContentType != "" {
		w.Header().Set("Content-Type", att.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("stream attachment", "id", id, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
