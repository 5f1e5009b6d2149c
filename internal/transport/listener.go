//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net"

	"github.com/valyala/tcplisten"
	"golang.org/x/sys/unix"
)

// ListenConfig carries listening socket options.
type ListenConfig struct {
	ReusePort   bool // SO_REUSEPORT
	DeferAccept bool // TCP_DEFER_ACCEPT
	FastOpen    bool // TCP_FASTOPEN
	Backlog     int  // 0 = system somaxconn
}

// Listener is a bound, non-blocking listening socket owned outside the Go
// runtime poller so it can be registered with the reactor.
type Listener struct {
	fd   *FD
	addr net.Addr
}

// Listen binds addr with the given options and returns a non-blocking
// listening descriptor. Failures here are fatal to server startup.
func Listen(addr string, cfg ListenConfig) (*Listener, error) {
	network := "tcp4"
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
			network = "tcp6"
		}
	}
	tl := &tcplisten.Config{
		ReusePort:   cfg.ReusePort,
		DeferAccept: cfg.DeferAccept,
		FastOpen:    cfg.FastOpen,
		Backlog:     cfg.Backlog,
	}
	ln, err := tl.NewListener(network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("listen %s: unexpected listener type %T", addr, ln)
	}
	rc, err := tcpLn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	nfd := -1
	var dupErr error
	if err := rc.Control(func(fd uintptr) {
		nfd, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("listen %s: dup: %w", addr, dupErr)
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, fmt.Errorf("listen %s: set nonblock: %w", addr, err)
	}
	return &Listener{fd: NewFD(nfd, nil), addr: tcpLn.Addr()}, nil
}

// Fd returns the listening descriptor for reactor registration.
func (l *Listener) Fd() int { return l.fd.Sysfd() }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.addr }

// Accept returns one pending connection as a non-blocking, close-on-exec
// descriptor. It returns unix.EAGAIN when the backlog is empty.
func (l *Listener) Accept() (int, net.Addr, error) {
	if l.fd.Closed() {
		return -1, nil, ErrClosed
	}
	for {
		nfd, sa, err := accept(l.fd.Sysfd())
		if err != nil {
			if isRetryableAccept(err) {
				continue
			}
			return -1, nil, err
		}
		return nfd, sockaddrToTCPAddr(sa), nil
	}
}

// Close closes the listening descriptor.
func (l *Listener) Close() error {
	_, err := l.fd.Close()
	return err
}

// SetLinger enables SO_LINGER with the given timeout in seconds so close
// waits briefly for unsent data instead of discarding it.
func SetLinger(fd, sec int) error {
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: int32(sec)})
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	}
	return nil
}
