package server

import (
	"net/http"
	"time"
)

// Config holds server configuration.
type Config struct {
	// Address is the listen address (default ":4005").
	Address string

	// ReadHeaderTimeout bounds how long reading request headers may take.
	ReadHeaderTimeout time.Duration

	// ReadTimeout bounds reading the full request.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. WebSocket connections are
	// hijacked and not subject to it.
	WriteTimeout time.Duration

	// IdleTimeout bounds keep-alive idle time.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int

	// ClientQueueSize is the per-connection snapshot buffer. A client
	// that falls this far behind is disconnected rather than allowed to
	// block dispatch.
	ClientQueueSize int

	// CheckOrigin validates the WebSocket origin header.
	// Default: same-origin only.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":4005",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		ClientQueueSize:   16,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.ClientQueueSize == 0 {
		c.ClientQueueSize = d.ClientQueueSize
	}
	return c
}
