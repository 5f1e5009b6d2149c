// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/transport"
	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/protocol"
)

// readChunk is the size of the stack buffer used per read call.
const readChunk = 4096

// Phase is the protocol state of a connection.
type Phase int32

const (
	AwaitingHeaders Phase = iota
	AwaitingBody
	RequestComplete
	ResponsePending
	Closed
)

func (p Phase) String() string {
	switch p {
	case AwaitingHeaders:
		return "awaiting-headers"
	case AwaitingBody:
		return "awaiting-body"
	case RequestComplete:
		return "request-complete"
	case ResponsePending:
		return "response-pending"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Scheduling tags. Only the reactor moves idle->queued, only a worker moves
// queued->processing and processing->idle, and janitor or shutdown paths
// take ownership with idle->processing.
const (
	schedIdle int32 = iota
	schedQueued
	schedProcessing
	schedPending // processing, and readiness fired again meanwhile
	schedClosed
)

// connEnv is what a connection needs from its server.
type connEnv struct {
	reactor  api.Reactor
	handler  Handler
	control  api.Control
	logger   api.Logger
	debug    *atomic.Bool
	requests *pool.SyncPool[*protocol.Request]

	maxHeaderBytes int
	maxBodyBytes   int64
}

func (e *connEnv) logf(format string, args ...any) {
	e.logger.Printf(format, args...)
}

// Connection is the per-socket state machine. Its buffers and parser are
// touched only by the goroutine that owns the connection through the
// scheduling tag, so they need no lock.
type Connection struct {
	fd   *transport.FD
	peer net.Addr
	env  *connEnv
	tag  string

	rbuf *pool.ByteBuffer
	wbuf *pool.ByteBuffer
	wpos int
	req  *protocol.Request

	phase      atomic.Int32
	sched      atomic.Int32
	busy       atomic.Int32
	lastActive atomic.Int64
	released   atomic.Bool

	onClose func(*Connection)
}

func newConnection(fd int, peer net.Addr, env *connEnv, onClose func(*Connection)) *Connection {
	c := &Connection{
		peer:    peer,
		env:     env,
		rbuf:    pool.GetBuffer(),
		wbuf:    pool.GetBuffer(),
		req:     env.requests.Get(),
		onClose: onClose,
	}
	c.fd = transport.NewFD(fd, func(fd int) {
		// ENOENT when never registered; nothing else to do with it.
		_ = env.reactor.Deregister(fd)
	})
	if peer != nil {
		c.tag = fmt.Sprintf("[conn fd=%d %s]", fd, peer)
	} else {
		c.tag = fmt.Sprintf("[conn fd=%d]", fd)
	}
	c.touch()
	return c
}

// Fd returns the socket descriptor.
func (c *Connection) Fd() int { return c.fd.Sysfd() }

// Peer returns the remote address, if known.
func (c *Connection) Peer() net.Addr { return c.peer }

// Phase returns the current protocol state.
func (c *Connection) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Connection) setPhase(p Phase) { c.phase.Store(int32(p)) }

func (c *Connection) touch() { c.lastActive.Store(time.Now().UnixNano()) }

func (c *Connection) debugf(format string, args ...any) {
	if c.env.debug.Load() {
		c.env.logf(c.tag+" "+format, args...)
	}
}

// enter and leave bracket a readiness step. Overlap means two goroutines
// handled the connection at once and is counted, never expected.
func (c *Connection) enter() {
	if c.busy.Add(1) != 1 {
		c.env.control.Add("conn.reentry", 1)
		c.env.logf("%s concurrent step detected", c.tag)
	}
}

func (c *Connection) leave() { c.busy.Add(-1) }

// tryQueue is called by the reactor when the descriptor fires. It reports
// whether the caller must submit a task for this connection.
func (c *Connection) tryQueue() bool {
	for {
		switch s := c.sched.Load(); s {
		case schedIdle:
			if c.sched.CompareAndSwap(s, schedQueued) {
				return true
			}
		case schedProcessing:
			if c.sched.CompareAndSwap(s, schedPending) {
				return false
			}
		default:
			return false
		}
	}
}

// acquireIdle takes ownership of an idle connection for janitor and
// shutdown paths.
func (c *Connection) acquireIdle() bool {
	return c.sched.CompareAndSwap(schedIdle, schedProcessing)
}

// run is the worker side of one queued task. It steps the connection, re-arms
// it while still owning it, and loops if readiness fired in between. A panic
// outside the handler closes the connection instead of stranding it in the
// processing state.
func (c *Connection) run(ev api.Event) {
	if !c.sched.CompareAndSwap(schedQueued, schedProcessing) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.env.logf("%s step panic: %v\n%s", c.tag, r, debug.Stack())
			c.Close()
			c.release()
		}
	}()
	c.debugf("ready r=%t w=%t hup=%t phase=%s", ev.Readable, ev.Writable, ev.Hangup, c.Phase())
	for {
		c.step()
		if c.Phase() == Closed {
			c.release()
			return
		}
		if err := c.rearm(); err != nil {
			c.env.logf("%s re-arm: %v", c.tag, err)
			c.Close()
			c.release()
			return
		}
		if c.sched.CompareAndSwap(schedProcessing, schedIdle) {
			return
		}
		c.sched.Store(schedProcessing)
	}
}

func (c *Connection) step() {
	switch c.Phase() {
	case ResponsePending:
		c.OnWritable()
	case Closed:
	default:
		c.OnReadable()
	}
}

// rearm restores the one-shot registration for the readiness the current
// phase waits on.
func (c *Connection) rearm() error {
	interest := api.Readable | api.OneShot
	if c.Phase() == ResponsePending {
		interest = api.Writable | api.OneShot
	}
	return c.env.reactor.Modify(c.fd.Sysfd(), interest)
}

// OnReadable drains the socket into the read buffer until it would block,
// then tries to complete the request. EOF or a hard error closes the
// connection, except that a complete request still gets its response.
func (c *Connection) OnReadable() {
	c.enter()
	defer c.leave()

	var chunk [readChunk]byte
	eof := false
	for !c.enough() {
		n, err := c.fd.Read(chunk[:])
		if n > 0 {
			c.rbuf.B = append(c.rbuf.B, chunk[:n]...)
			c.touch()
		}
		if err != nil {
			if transport.IsWouldBlock(err) {
				break
			}
			if transport.IsPeerGone(err) {
				c.debugf("peer reset: %v", err)
			} else {
				c.env.logf("%s read: %v", c.tag, err)
			}
			c.Close()
			return
		}
		if n == 0 {
			eof = true
			break
		}
	}

	c.tryParseAndHandle()
	if eof && c.Phase() < ResponsePending {
		c.debugf("peer closed")
		c.Close()
	}
}

// enough reports whether reading further cannot change the outcome: the
// request is complete or the header block is already over its limit.
func (c *Connection) enough() bool {
	if !c.req.HeadersParsed() {
		return len(c.rbuf.B) > c.env.maxHeaderBytes
	}
	return int64(len(c.rbuf.B)) >= c.req.TotalExpectedLength()
}

// tryParseAndHandle advances the parser over the buffered bytes and, once
// the whole message is present, runs the handler and starts the write.
func (c *Connection) tryParseAndHandle() {
	if c.Phase() >= RequestComplete {
		return
	}
	if !c.req.HeadersParsed() {
		ok, err := c.req.ParseHeader(c.rbuf.B)
		if err != nil {
			c.fail(err)
			return
		}
		if !ok {
			if len(c.rbuf.B) > c.env.maxHeaderBytes {
				c.fail(&protocol.StatusError{Code: fasthttp.StatusRequestHeaderFieldsTooLarge, Reason: "header block too large"})
			}
			return
		}
		if c.req.HeaderLen() > c.env.maxHeaderBytes {
			c.fail(&protocol.StatusError{Code: fasthttp.StatusRequestHeaderFieldsTooLarge, Reason: "header block too large"})
			return
		}
		if c.req.ContentLength() > c.env.maxBodyBytes {
			c.fail(&protocol.StatusError{Code: fasthttp.StatusRequestEntityTooLarge, Reason: "body too large"})
			return
		}
		c.setPhase(AwaitingBody)
	}
	if int64(len(c.rbuf.B)) < c.req.TotalExpectedLength() {
		return
	}
	if err := c.req.ParseBody(c.rbuf.B); err != nil {
		c.fail(err)
		return
	}
	c.setPhase(RequestComplete)
	c.debugf("%s %s body=%d", c.req.Method(), c.req.Path(), len(c.req.Body()))

	resp := c.invoke()
	c.env.control.Add("req.handled", 1)
	c.queueResponse(resp)
	c.flush()
}

// invoke runs the handler, converting a panic, a nil response or an empty
// body into 500.
func (c *Connection) invoke() (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.env.logf("%s handler panic: %v\n%s", c.tag, r, debug.Stack())
			resp = protocol.ErrorResponse(fasthttp.StatusInternalServerError, "")
		}
	}()
	resp = c.env.handler.Handle(c.req)
	if resp == nil || len(resp.Body()) == 0 {
		c.env.logf("%s handler returned an empty response for %s %s", c.tag, c.req.Method(), c.req.Path())
		resp = protocol.ErrorResponse(fasthttp.StatusInternalServerError, "")
	}
	return resp
}

// fail answers a parse or limit error with its status page.
func (c *Connection) fail(err error) {
	code := protocol.StatusCode(err)
	c.debugf("rejecting request: %v", err)
	c.queueResponse(protocol.ErrorResponse(code, ""))
	c.flush()
}

func (c *Connection) queueResponse(resp *protocol.Response) {
	c.wbuf.B = resp.AppendTo(c.wbuf.B[:0], c.req.Method() == fasthttp.MethodHead)
	c.wpos = 0
	c.setPhase(ResponsePending)
	c.env.control.Add(statusClass(resp.StatusCode()), 1)
}

// OnWritable continues a response that did not fit the socket buffer.
func (c *Connection) OnWritable() {
	c.enter()
	defer c.leave()
	c.flush()
}

// flush issues one write for the pending output. A short write keeps the
// remainder for the next writable event; a complete write closes the
// connection.
func (c *Connection) flush() {
	if c.Phase() != ResponsePending {
		return
	}
	n, err := c.fd.Write(c.wbuf.B[c.wpos:])
	c.wpos += n
	if n > 0 {
		c.touch()
	}
	if err != nil && !transport.IsWouldBlock(err) {
		if transport.IsPeerGone(err) {
			c.debugf("peer gone during write: %v", err)
		} else {
			c.env.logf("%s write: %v", c.tag, err)
		}
		c.Close()
		return
	}
	if c.wpos < len(c.wbuf.B) {
		return
	}
	c.debugf("response flushed, %d bytes", c.wpos)
	c.Close()
}

// Close deregisters and closes the socket and fires the close callback.
// Only the first call has any effect.
func (c *Connection) Close() {
	closed, err := c.fd.Close()
	if !closed {
		return
	}
	if err != nil {
		c.env.logf("%s close: %v", c.tag, err)
	}
	c.setPhase(Closed)
	c.sched.Store(schedClosed)
	if c.onClose != nil {
		c.onClose(c)
	}
}

// release returns buffers and parser to their pools. The caller must own
// the connection and it must be closed.
func (c *Connection) release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	pool.PutBuffer(c.rbuf)
	pool.PutBuffer(c.wbuf)
	c.env.requests.Put(c.req)
	c.rbuf, c.wbuf, c.req = nil, nil, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "resp.5xx"
	case code >= 400:
		return "resp.4xx"
	case code >= 300:
		return "resp.3xx"
	default:
		return "resp.2xx"
	}
}
