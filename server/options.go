// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-httpd/api"
)

// Option customizes server initialization.
type Option func(*Config)

// WithLogger replaces the default stderr logger.
func WithLogger(l api.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithIdleTimeout enables the idle janitor.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

// WithDebug turns on per-connection logging.
func WithDebug(on bool) Option {
	return func(c *Config) {
		c.Debug = on
	}
}
