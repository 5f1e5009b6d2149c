//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FD is the single owner of a socket descriptor. Close releases and closes
// the descriptor exactly once, however many goroutines race to call it.
// FD values must not be copied; pass *FD.
type FD struct {
	sysfd   int
	closed  atomic.Bool
	release func(fd int)
}

// NewFD takes ownership of fd. release, when non-nil, runs once right before
// the descriptor is closed (reactor deregistration goes here).
func NewFD(fd int, release func(fd int)) *FD {
	return &FD{sysfd: fd, release: release}
}

// Sysfd returns the raw descriptor number.
func (f *FD) Sysfd() int { return f.sysfd }

// Closed reports whether Close has been called.
func (f *FD) Closed() bool { return f.closed.Load() }

// Read performs one non-blocking read. A would-block condition is returned
// as unix.EAGAIN; (0, nil) means the peer closed its side.
func (f *FD) Read(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(f.sysfd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Write performs one non-blocking write and may write fewer bytes than len(p).
func (f *FD) Write(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(f.sysfd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Close runs the release hook and closes the descriptor on the first call.
// It reports whether this call was the one that closed it.
func (f *FD) Close() (bool, error) {
	if !f.closed.CompareAndSwap(false, true) {
		return false, nil
	}
	if f.release != nil {
		f.release(f.sysfd)
	}
	return true, unix.Close(f.sysfd)
}
