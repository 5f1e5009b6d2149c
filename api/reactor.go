// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Defines the abstract interface for the readiness reactor that multiplexes
// the listening socket and every accepted connection.

package api

// Interest is a readiness interest mask passed to Register and Modify.
type Interest uint32

const (
	// Readable asks for read readiness (data, connection arrival, peer hangup).
	Readable Interest = 1 << iota
	// Writable asks for write readiness.
	Writable
	// OneShot disarms the descriptor after it fires once; it stays silent
	// until re-armed with Modify. Implies edge-triggered delivery.
	OneShot
)

// Event encapsulates the result of an OS-level readiness notification.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Hangup   bool // peer hangup or socket error; the next read/write surfaces it
}

// Reactor is the only component that talks to the kernel polling primitive.
//
// Register, Modify and Deregister are safe to call from any goroutine while
// another goroutine is blocked in Poll.
type Reactor interface {
	// Register adds fd to the interest set.
	Register(fd int, interest Interest) error

	// Modify replaces the interest mask of an already registered fd. For
	// one-shot registrations this is the re-arm operation.
	Modify(fd int, interest Interest) error

	// Deregister removes fd from the interest set.
	Deregister(fd int) error

	// Poll blocks until at least one descriptor is ready or Wake is called,
	// and fills events. Signal interruptions are retried internally.
	// A wakeup with nothing ready returns (0, nil).
	Poll(events []Event) (int, error)

	// Wake unblocks a concurrent Poll.
	Wake() error

	// Close releases the polling backend.
	Close() error
}
