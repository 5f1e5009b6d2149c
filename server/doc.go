// File: server/doc.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP/1.1 engine: one reactor goroutine multiplexing every socket, a fixed
// worker pool running connection steps, and a per-connection state machine
// that parses requests incrementally over non-blocking reads.
//
// A connection is never processed by two workers at once. Each connection
// carries a scheduling tag (idle, queued, processing, pending, closed); the
// reactor only submits idle connections, and a worker re-arms the one-shot
// registration before handing the connection back to idle.

package server
