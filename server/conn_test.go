// File: server/conn_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/adapters"
	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/core/concurrency"
	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/protocol"
)

// fakeReactor records registration calls instead of talking to epoll.
type fakeReactor struct {
	mu           sync.Mutex
	modified     []api.Interest
	deregistered []int
}

func (r *fakeReactor) Register(int, api.Interest) error { return nil }
func (r *fakeReactor) Modify(_ int, in api.Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modified = append(r.modified, in)
	return nil
}
func (r *fakeReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregistered = append(r.deregistered, fd)
	return nil
}
func (r *fakeReactor) Poll([]api.Event) (int, error) { return 0, nil }
func (r *fakeReactor) Wake() error                   { return nil }
func (r *fakeReactor) Close() error                  { return nil }

func (r *fakeReactor) lastInterest() api.Interest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.modified) == 0 {
		return 0
	}
	return r.modified[len(r.modified)-1]
}

type harness struct {
	conn    *Connection
	client  *os.File
	reactor *fakeReactor
	control *adapters.ControlAdapter
	closes  atomic.Int32
}

func newHarness(t *testing.T, h Handler, tune func(*connEnv)) *harness {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatal(err)
	}
	hs := &harness{
		client:  os.NewFile(uintptr(fds[1]), "client"),
		reactor: &fakeReactor{},
		control: adapters.NewControlAdapter(),
	}
	env := &connEnv{
		reactor:        hs.reactor,
		handler:        h,
		control:        hs.control,
		logger:         log.New(io.Discard, "", 0),
		debug:          new(atomic.Bool),
		requests:       pool.NewSyncPool(protocol.NewRequest, func(r *protocol.Request) { r.Reset() }),
		maxHeaderBytes: 64 << 10,
		maxBodyBytes:   1 << 20,
	}
	if tune != nil {
		tune(env)
	}
	hs.conn = newConnection(fds[0], nil, env, func(*Connection) { hs.closes.Add(1) })
	t.Cleanup(func() {
		hs.conn.Close()
		hs.client.Close()
	})
	return hs
}

// drive simulates the reactor firing for the connection.
func (hs *harness) drive() {
	if hs.conn.tryQueue() {
		hs.conn.run(api.Event{Fd: hs.conn.Fd(), Readable: true})
	}
}

func (hs *harness) send(t *testing.T, s string) {
	t.Helper()
	if _, err := hs.client.Write([]byte(s)); err != nil {
		t.Fatalf("client write: %v", err)
	}
}

func (hs *harness) response(t *testing.T) string {
	t.Helper()
	b, err := io.ReadAll(hs.client)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	return string(b)
}

func TestSplitBodyInvokesHandlerOnce(t *testing.T) {
	var calls atomic.Int32
	var body []byte
	hs := newHarness(t, HandlerFunc(func(req *protocol.Request) *protocol.Response {
		calls.Add(1)
		body = append([]byte(nil), req.Body()...)
		return protocol.NewResponse(200).SetBodyString("ok")
	}), nil)

	hs.send(t, "POST /data HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello ")
	hs.drive()
	if calls.Load() != 0 {
		t.Fatal("handler invoked before the body was complete")
	}
	if p := hs.conn.Phase(); p != AwaitingBody {
		t.Fatalf("phase %s, want awaiting-body", p)
	}
	if in := hs.reactor.lastInterest(); in != api.Readable|api.OneShot {
		t.Fatalf("re-armed with %v", in)
	}
	if hs.conn.sched.Load() != schedIdle {
		t.Fatalf("connection not idle after step")
	}

	hs.send(t, "world")
	hs.drive()
	if calls.Load() != 1 || string(body) != "hello world" {
		t.Fatalf("calls=%d body=%q", calls.Load(), body)
	}
	if hs.conn.Phase() != Closed {
		t.Fatalf("phase %s after response", hs.conn.Phase())
	}
	resp := hs.response(t)
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") || !strings.HasSuffix(resp, "\r\n\r\nok") {
		t.Fatalf("response %q", resp)
	}
	if hs.control.Counter("req.handled") != 1 || hs.control.Counter("resp.2xx") != 1 {
		t.Fatalf("metrics %v", hs.control.Stats())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response { return nil }), nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hs.conn.Close()
		}()
	}
	wg.Wait()
	if n := hs.closes.Load(); n != 1 {
		t.Fatalf("close callback ran %d times", n)
	}
	if len(hs.reactor.deregistered) != 1 {
		t.Fatalf("deregistered %d times", len(hs.reactor.deregistered))
	}
	if hs.conn.tryQueue() {
		t.Fatal("closed connection was queued")
	}
}

func TestErrorResponses(t *testing.T) {
	cases := []struct {
		name    string
		handler HandlerFunc
		tune    func(*connEnv)
		request string
		status  string
	}{
		{
			name:    "malformed request line",
			request: "BROKEN\r\n\r\n",
			status:  "HTTP/1.1 400 ",
		},
		{
			name:    "handler panic",
			handler: func(*protocol.Request) *protocol.Response { panic("boom") },
			request: "GET / HTTP/1.1\r\n\r\n",
			status:  "HTTP/1.1 500 ",
		},
		{
			name:    "empty body",
			handler: func(*protocol.Request) *protocol.Response { return protocol.NewResponse(200) },
			request: "GET / HTTP/1.1\r\n\r\n",
			status:  "HTTP/1.1 500 ",
		},
		{
			name:    "nil response",
			handler: func(*protocol.Request) *protocol.Response { return nil },
			request: "GET / HTTP/1.1\r\n\r\n",
			status:  "HTTP/1.1 500 ",
		},
		{
			name:    "header block too large",
			tune:    func(e *connEnv) { e.maxHeaderBytes = 64 },
			request: "GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 200),
			status:  "HTTP/1.1 431 ",
		},
		{
			name:    "body too large",
			tune:    func(e *connEnv) { e.maxBodyBytes = 10 },
			request: "POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n",
			status:  "HTTP/1.1 413 ",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := tc.handler
			if h == nil {
				h = func(*protocol.Request) *protocol.Response {
					t.Error("handler must not run")
					return nil
				}
			}
			hs := newHarness(t, h, tc.tune)
			hs.send(t, tc.request)
			hs.drive()
			resp := hs.response(t)
			if !strings.HasPrefix(resp, tc.status) {
				t.Fatalf("response %q, want status %q", resp, tc.status)
			}
			if !strings.Contains(resp, "Connection: close\r\n") {
				t.Fatal("missing Connection: close")
			}
			if hs.closes.Load() != 1 {
				t.Fatal("connection not closed after error response")
			}
		})
	}
}

func TestHeadOmitsBody(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response {
		return protocol.NewResponse(200).SetBodyString("0123456789")
	}), nil)
	hs.send(t, "HEAD / HTTP/1.1\r\n\r\n")
	hs.drive()
	resp := hs.response(t)
	if !strings.Contains(resp, "Content-Length: 10\r\n") || !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Fatalf("HEAD response %q", resp)
	}
}

func TestHalfClosedClientStillAnswered(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response {
		return protocol.NewResponse(200).SetBodyString("bye")
	}), nil)
	hs.send(t, "GET / HTTP/1.1\r\n\r\n")
	if err := unix.Shutdown(int(hs.client.Fd()), unix.SHUT_WR); err != nil {
		t.Fatal(err)
	}
	hs.drive()
	if resp := hs.response(t); !strings.HasSuffix(resp, "bye") {
		t.Fatalf("response %q", resp)
	}
}

func TestEOFBeforeRequestCloses(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response {
		t.Error("handler must not run")
		return nil
	}), nil)
	hs.send(t, "GET / HT")
	hs.client.Close()
	hs.drive()
	if hs.conn.Phase() != Closed || hs.closes.Load() != 1 {
		t.Fatalf("phase %s closes %d", hs.conn.Phase(), hs.closes.Load())
	}
}

func TestShortWriteRearmsForWritable(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 4<<20)
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response {
		return protocol.NewResponse(200).SetBody(big)
	}), nil)
	hs.send(t, "GET /big HTTP/1.1\r\n\r\n")
	hs.drive()
	if hs.conn.Phase() != ResponsePending {
		t.Fatalf("phase %s, expected a pending write", hs.conn.Phase())
	}
	if in := hs.reactor.lastInterest(); in != api.Writable|api.OneShot {
		t.Fatalf("re-armed with %v", in)
	}

	got := make(chan int, 1)
	go func() {
		b, _ := io.ReadAll(hs.client)
		got <- len(b)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for hs.conn.Phase() != Closed {
		if time.Now().After(deadline) {
			t.Fatal("response never completed")
		}
		hs.drive()
		time.Sleep(time.Millisecond)
	}
	if n := <-got; n <= len(big) {
		t.Fatalf("client read %d bytes", n)
	}
	if hs.control.Counter("conn.reentry") != 0 {
		t.Fatal("re-entrant step observed")
	}
}

func TestSchedulingTransitions(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response { return nil }), nil)
	c := hs.conn
	if !c.tryQueue() {
		t.Fatal("idle connection not queued")
	}
	if c.tryQueue() || c.acquireIdle() {
		t.Fatal("queued connection queued or acquired twice")
	}
	c.sched.Store(schedProcessing)
	if c.tryQueue() || c.sched.Load() != schedPending {
		t.Fatal("event during processing must mark pending")
	}
	c.sched.Store(schedIdle)
	if !c.acquireIdle() || c.tryQueue() {
		t.Fatal("acquired connection must not be queued")
	}
}

// failingControl panics when one counter is bumped, which happens inside a
// step but outside the handler call.
type failingControl struct {
	api.Control
	key string
}

func (f failingControl) Add(key string, delta int64) {
	if key == f.key {
		panic("counter store unavailable")
	}
	f.Control.Add(key, delta)
}

func TestStepPanicClosesConnection(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response {
		return protocol.NewResponse(200).SetBodyString("ok")
	}), func(env *connEnv) {
		env.control = failingControl{Control: env.control, key: "req.handled"}
	})
	fd := hs.conn.Fd()
	hs.send(t, "GET / HTTP/1.1\r\n\r\n")
	hs.drive()

	if hs.conn.Phase() != Closed || hs.closes.Load() != 1 {
		t.Fatalf("phase %s closes %d", hs.conn.Phase(), hs.closes.Load())
	}
	if hs.conn.sched.Load() != schedClosed {
		t.Fatalf("sched tag %d, want closed", hs.conn.sched.Load())
	}
	if !hs.conn.released.Load() {
		t.Fatal("buffers not returned after panic")
	}
	hs.reactor.mu.Lock()
	dereg := append([]int(nil), hs.reactor.deregistered...)
	hs.reactor.mu.Unlock()
	if len(dereg) != 1 || dereg[0] != fd {
		t.Fatalf("deregistered %v, want [%d]", dereg, fd)
	}
}

func TestDispatchAfterPoolCloseReleases(t *testing.T) {
	hs := newHarness(t, HandlerFunc(func(*protocol.Request) *protocol.Response { return nil }), nil)
	wp := concurrency.NewWorkerPool(1, 0, nil)
	wp.Close()
	s := &Server{
		cfg:     Config{Logger: log.New(io.Discard, "", 0)},
		conns:   xsync.NewMapOf[int, *Connection](),
		control: hs.control,
		workers: wp,
	}
	s.conns.Store(hs.conn.Fd(), hs.conn)

	s.dispatch(api.Event{Fd: hs.conn.Fd(), Readable: true})
	if hs.conn.Phase() != Closed {
		t.Fatalf("phase %s after failed submit", hs.conn.Phase())
	}
	if !hs.conn.released.Load() {
		t.Fatal("buffers not returned after failed submit")
	}
}
