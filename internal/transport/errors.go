//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by I/O on a released descriptor.
var ErrClosed = errors.New("transport: descriptor closed")

// IsWouldBlock reports a transient "no data / no room now" condition.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsPeerGone reports a peer-initiated termination.
func IsPeerGone(err error) bool {
	return errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE)
}

// isRetryableAccept reports accept errors that only concern one pending
// connection and must not stop the accept loop.
func isRetryableAccept(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EPROTO)
}
