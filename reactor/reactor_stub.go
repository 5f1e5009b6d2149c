//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-httpd/api"
)

// newPlatformReactor returns an error for unsupported platforms.
func newPlatformReactor() (api.Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
