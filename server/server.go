// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/momentics/hioload-httpd/adapters"
	"github.com/momentics/hioload-httpd/affinity"
	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/core/concurrency"
	"github.com/momentics/hioload-httpd/internal/transport"
	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrServerClosed   = errors.New("server closed")
)

// lingerSeconds is the SO_LINGER timeout applied when Config.Linger is set.
const lingerSeconds = 1

// Server owns the listening socket, the reactor, the worker pool and the
// table of live connections.
type Server struct {
	cfg      Config
	reactor  api.Reactor
	listener *transport.Listener
	conns    *xsync.MapOf[int, *Connection]
	control  *adapters.ControlAdapter
	env      *connEnv
	debug    atomic.Bool

	workers *concurrency.WorkerPool

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopped   bool
	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New binds the listening socket and creates the reactor. Any error here is
// a setup failure and should end the process.
func New(cfg Config, handler Handler, opts ...Option) (*Server, error) {
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", api.ErrInvalidArgument)
	}

	r, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("reactor init: %w", err)
	}
	ln, err := transport.Listen(cfg.ListenAddr, transport.ListenConfig{
		ReusePort:   cfg.ReusePort,
		DeferAccept: cfg.DeferAccept,
		Backlog:     cfg.Backlog,
	})
	if err != nil {
		r.Close()
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		reactor:  r,
		listener: ln,
		conns:    xsync.NewMapOf[int, *Connection](xsync.WithPresize(1024)),
		control:  adapters.NewControlAdapter(),
		done:     make(chan struct{}),
	}
	s.debug.Store(cfg.Debug)
	s.env = &connEnv{
		reactor: r,
		handler: handler,
		control: s.control,
		logger:  cfg.Logger,
		debug:   &s.debug,
		requests: pool.NewSyncPool(protocol.NewRequest, func(r *protocol.Request) {
			r.Reset()
		}),
		maxHeaderBytes: cfg.MaxHeaderBytes,
		maxBodyBytes:   cfg.MaxBodyBytes,
	}

	s.control.SetConfig(cfg.asMap())
	s.control.OnReload(func() {
		if v, ok := s.control.GetConfig()["log.debug"].(bool); ok {
			s.debug.Store(v)
		}
	})
	s.control.RegisterDebugProbe("conn.table", func() any { return s.conns.Size() })
	return s, nil
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Control exposes config, metrics and debug probes.
func (s *Server) Control() api.Control { return s.control }

func (s *Server) logf(format string, args ...any) {
	s.cfg.Logger.Printf(format, args...)
}

// Run serves until ctx is cancelled or Shutdown is called, then drains the
// worker pool and closes every remaining connection. Only setup failures of
// the loop itself are returned.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.closeOnce.Do(s.closeResources)
		close(s.done)
		return ErrServerClosed
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	lfd := s.listener.Fd()
	if err := s.reactor.Register(lfd, api.Readable); err != nil {
		s.closeOnce.Do(s.closeResources)
		return fmt.Errorf("register listener: %w", err)
	}

	s.workers = concurrency.NewWorkerPool(s.cfg.Workers, s.cfg.QueueCapacity, s.cfg.Logger)
	s.control.RegisterDebugProbe("pool", func() any { return s.workers.String() })
	stopJanitor := s.startJanitor()

	go func() {
		<-ctx.Done()
		_ = s.reactor.Wake()
	}()

	s.logf("[server] listening on %s, %d workers", s.listener.Addr(), s.cfg.Workers)
	err := s.loop(ctx, lfd)

	s.workers.Close()
	stopJanitor()
	s.closeIdle()
	s.closeOnce.Do(s.closeResources)
	s.logf("[server] stopped")
	return err
}

// Shutdown stops Run and waits for it to finish draining. Calling it on a
// server that never ran just releases the socket and reactor.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		s.closeOnce.Do(s.closeResources)
		return
	}
	cancel()
	<-s.done
}

func (s *Server) closeResources() {
	_ = s.reactor.Deregister(s.listener.Fd())
	if err := s.listener.Close(); err != nil {
		s.logf("[server] close listener: %v", err)
	}
	if err := s.reactor.Close(); err != nil {
		s.logf("[server] close reactor: %v", err)
	}
}

// loop is the reactor goroutine: it blocks in Poll, accepts on the listening
// socket and hands connection readiness to the worker pool.
func (s *Server) loop(ctx context.Context, lfd int) error {
	if s.cfg.ReactorCPU >= 0 {
		release, err := affinity.PinCurrentThread(s.cfg.ReactorCPU)
		if err != nil {
			s.logf("[server] reactor pinning to cpu %d failed: %v", s.cfg.ReactorCPU, err)
		} else {
			defer release()
		}
	}

	events := make([]api.Event, s.cfg.EventBatch)
	for ctx.Err() == nil {
		n, err := s.reactor.Poll(events)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reactor poll: %w", err)
		}
		for _, ev := range events[:n] {
			if ev.Fd == lfd {
				s.acceptAll()
				continue
			}
			s.dispatch(ev)
		}
		s.control.SetMetric("pool.pending", s.workers.Pending())
	}
	return nil
}

// acceptAll drains the accept backlog.
func (s *Server) acceptAll() {
	for {
		nfd, peer, err := s.listener.Accept()
		if err != nil {
			if !transport.IsWouldBlock(err) {
				s.logf("[server] accept: %v", err)
				s.control.Add("conn.rejected", 1)
			}
			return
		}
		s.addConn(nfd, peer)
	}
}

func (s *Server) addConn(nfd int, peer net.Addr) {
	s.control.Add("conn.accepted", 1)
	if s.cfg.Linger {
		if err := transport.SetLinger(nfd, lingerSeconds); err != nil && s.debug.Load() {
			s.logf("[server] fd=%d set linger: %v", nfd, err)
		}
	}
	c := newConnection(nfd, peer, s.env, s.onConnClosed)
	s.conns.Store(nfd, c)
	s.control.SetMetric("conn.active", s.conns.Size())

	if err := s.reactor.Register(nfd, api.Readable|api.OneShot); err != nil {
		s.logf("[server] register fd=%d: %v", nfd, err)
		s.control.Add("conn.rejected", 1)
		c.Close()
		c.release()
		return
	}
	c.debugf("accepted")
}

// dispatch queues a ready connection unless a worker already owns it.
func (s *Server) dispatch(ev api.Event) {
	c, ok := s.conns.Load(ev.Fd)
	if !ok || !c.tryQueue() {
		return
	}
	if err := s.workers.Submit(connTask{conn: c, ev: ev}); err != nil {
		s.logf("[server] submit fd=%d: %v", ev.Fd, err)
		c.Close()
		c.release()
	}
}

// onConnClosed drops the table entry unless the descriptor number has
// already been reused by a newer connection.
func (s *Server) onConnClosed(c *Connection) {
	s.conns.Compute(c.Fd(), func(old *Connection, loaded bool) (*Connection, bool) {
		return old, !loaded || old == c
	})
	s.control.Add("conn.closed", 1)
	s.control.SetMetric("conn.active", s.conns.Size())
}

// closeIdle closes every connection at shutdown. The pool is drained by
// then, so each one is idle.
func (s *Server) closeIdle() {
	s.conns.Range(func(_ int, c *Connection) bool {
		if c.acquireIdle() {
			c.Close()
			c.release()
		}
		return true
	})
}

// startJanitor launches the idle reaper when IdleTimeout is set.
func (s *Server) startJanitor() (stop func()) {
	if s.cfg.IdleTimeout <= 0 {
		return func() {}
	}
	interval := s.cfg.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case now := <-t.C:
				s.reapIdle(now)
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

func (s *Server) reapIdle(now time.Time) {
	cutoff := now.Add(-s.cfg.IdleTimeout).UnixNano()
	s.conns.Range(func(_ int, c *Connection) bool {
		if c.lastActive.Load() < cutoff && c.acquireIdle() {
			c.debugf("idle for more than %s, closing", s.cfg.IdleTimeout)
			s.control.Add("conn.idle_timeout", 1)
			c.Close()
			c.release()
		}
		return true
	})
}

// connTask is one readiness event for one connection.
type connTask struct {
	conn *Connection
	ev   api.Event
}

func (t connTask) Run() { t.conn.run(t.ev) }
