// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/reactor"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr    string // TCP bind address, e.g. ":8080"
	Workers       int    // worker goroutines
	QueueCapacity int    // task queue bound, 0 = unbounded

	Linger      bool // SO_LINGER{on, 1s} on accepted sockets
	ReusePort   bool
	DeferAccept bool
	Backlog     int // 0 = system default

	MaxHeaderBytes int   // header block limit, 431 beyond
	MaxBodyBytes   int64 // Content-Length limit, 413 beyond

	IdleTimeout time.Duration // 0 disables the idle janitor
	ReactorCPU  int           // pin the reactor thread, -1 = no pinning
	EventBatch  int           // events fetched per Poll

	Logger api.Logger
	Debug  bool // verbose per-connection logging
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		Workers:        4,
		QueueCapacity:  0,
		Linger:         true,
		MaxHeaderBytes: 64 << 10,
		MaxBodyBytes:   8 << 20,
		IdleTimeout:    0,
		ReactorCPU:     -1,
		EventBatch:     reactor.DefaultBatch,
		Logger:         log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: empty listen address", api.ErrInvalidArgument)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", api.ErrInvalidArgument, c.Workers)
	case c.QueueCapacity < 0:
		return fmt.Errorf("%w: negative queue capacity", api.ErrInvalidArgument)
	case c.MaxHeaderBytes <= 0:
		return fmt.Errorf("%w: max header bytes must be positive", api.ErrInvalidArgument)
	case c.MaxBodyBytes < 0:
		return fmt.Errorf("%w: negative max body bytes", api.ErrInvalidArgument)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: negative idle timeout", api.ErrInvalidArgument)
	case c.EventBatch <= 0:
		return fmt.Errorf("%w: event batch must be positive", api.ErrInvalidArgument)
	case c.Logger == nil:
		return fmt.Errorf("%w: nil logger", api.ErrInvalidArgument)
	}
	return nil
}

// asMap flattens the config for control.ConfigStore.
func (c *Config) asMap() map[string]any {
	return map[string]any{
		"listen_addr":      c.ListenAddr,
		"workers":          c.Workers,
		"queue_capacity":   c.QueueCapacity,
		"linger":           c.Linger,
		"reuse_port":       c.ReusePort,
		"defer_accept":     c.DeferAccept,
		"max_header_bytes": c.MaxHeaderBytes,
		"max_body_bytes":   c.MaxBodyBytes,
		"idle_timeout_ms":  c.IdleTimeout.Milliseconds(),
		"reactor_cpu":      c.ReactorCPU,
		"log.debug":        c.Debug,
	}
}
