// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across hioload-httpd packages.

package api

import "errors"

// ErrInvalidArgument is wrapped by configuration and registration errors.
var ErrInvalidArgument = errors.New("invalid argument")
