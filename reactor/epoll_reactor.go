//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/api"
)

// epollReactor implements api.Reactor using Linux epoll.
type epollReactor struct {
	epfd   int         // epoll file descriptor
	wakefd int         // eventfd used by Wake
	closed atomic.Bool // set once by Close

	mu  sync.Mutex // guards raw; Poll is normally single-caller
	raw []unix.EpollEvent
}

// newPlatformReactor creates the epoll instance and its wakeup eventfd.
func newPlatformReactor() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return &epollReactor{epfd: epfd, wakefd: wakefd}, nil
}

// epollMask translates an interest mask into epoll flags.
func epollMask(interest api.Interest) uint32 {
	var events uint32
	if interest&api.Readable != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&api.Writable != 0 {
		events |= unix.EPOLLOUT
	}
	if interest&api.OneShot != 0 {
		events |= unix.EPOLLONESHOT | unix.EPOLLET
	}
	return events
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, interest api.Interest) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Modify changes the interest mask; for one-shot descriptors it re-arms them.
func (r *epollReactor) Modify(fd int, interest api.Interest) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Deregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Deregister(fd int) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Poll blocks until events are available and translates them into events.
func (r *epollReactor) Poll(events []api.Event) (int, error) {
	if len(events) == 0 {
		return 0, api.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	for {
		if r.closed.Load() {
			return 0, ErrClosed
		}
		n, err := unix.EpollWait(r.epfd, raw, -1)
		if err == unix.EINTR {
			continue // interrupted by signal, keep waiting
		}
		if err != nil {
			return 0, fmt.Errorf("epoll wait: %w", err)
		}

		out := 0
		for i := 0; i < n; i++ {
			ev := raw[i]
			fd := int(ev.Fd)
			if fd == r.wakefd {
				r.drainWake()
				continue
			}
			events[out] = api.Event{
				Fd:       fd,
				Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
				Writable: ev.Events&unix.EPOLLOUT != 0,
				Hangup:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			}
			out++
		}
		return out, nil
	}
}

// Wake makes a concurrent Poll return.
func (r *epollReactor) Wake() error {
	if r.closed.Load() {
		return ErrClosed
	}
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, err := unix.Write(r.wakefd, one[:])
	if err == unix.EAGAIN {
		return nil // counter saturated, a wakeup is already pending
	}
	return err
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the epoll and eventfd descriptors.
func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Wake a blocked Poll before the descriptors go away.
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(r.wakefd, one[:])
	err := unix.Close(r.epfd)
	unix.Close(r.wakefd)
	return err
}
