// File: transport/tcp/acceptor.go
// Package tcp implements the passive (Acceptor) and active (Dial)
// socket-establishment Watchables, handing off established sockets to
// conn.Connection. Sockets are created with raw syscalls rather than
// net.Listen/net.Dial because the fds go straight to the Reactor's
// epoll set.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/reactor"
)

const handshakeTTL = 5 * time.Second

// NewConnFunc builds the per-accept Connection, already carrying its
// protocol Driver.
type NewConnFunc func(fd int, peer string) *conn.Connection

// Acceptor is a Connection-like Watchable whose sole job is to call
// accept() on a listening socket.
type Acceptor struct {
	fd      int
	wheel   *timer.Wheel
	re      *reactor.Reactor
	newConn NewConnFunc
	onErr   func(err error)

	mu       sync.Mutex
	captured bool
	postponed reactor.EventMask
	events    reactor.EventMask
	closed   bool
}

// Listen binds and listens on addr (host:port, IPv4 or IPv6), setting
// the listening socket non-blocking, and returns an Acceptor ready for
// Reactor registration.
func Listen(addr string, backlog int, wheel *timer.Wheel, newConn NewConnFunc) (*Acceptor, error) {
	sa, domain, err := resolveBindAddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tcp: socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("tcp: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("tcp: bind %s: %w", addr, err)
	}
	if backlog <= 0 {
		backlog = 1024
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("tcp: listen %s: %w", addr, err)
	}

	return &Acceptor{fd: fd, wheel: wheel, newConn: newConn}, nil
}

// SetErrorFunc registers a callback invoked when the acceptor
// terminates due to an unrecoverable accept error.
func (a *Acceptor) SetErrorFunc(fn func(err error)) { a.onErr = fn }

// RawFD implements reactor.Watchable.
func (a *Acceptor) RawFD() uintptr { return uintptr(a.fd) }

// Interest implements reactor.Watchable: an acceptor only ever wants
// to know about new connections.
func (a *Acceptor) Interest() reactor.EventMask {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0
	}
	return reactor.Readable
}

// Deliver implements reactor.Watchable.
func (a *Acceptor) Deliver(mask reactor.EventMask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captured {
		a.postponed |= mask
	} else {
		a.events |= mask
	}
}

// TryCapture implements reactor.Watchable.
func (a *Acceptor) TryCapture() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.captured {
		return false
	}
	a.captured = true
	return true
}

// Release implements reactor.Watchable.
func (a *Acceptor) Release() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captured = false
	a.events = a.postponed
	a.postponed = 0
	return a.events != 0
}

// Closed implements reactor.Watchable.
func (a *Acceptor) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Register installs the Acceptor on a Reactor.
func (a *Acceptor) Register(re *reactor.Reactor) error {
	a.re = re
	return re.Register(a)
}

// Process implements reactor.Watchable: loop accept4() until EAGAIN,
// constructing and registering a new Connection for each accepted
// socket.
func (a *Acceptor) Process() {
	for {
		nfd, rsa, err := syscall.Accept4(a.fd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case syscall.EAGAIN:
				return
			case syscall.EINTR:
				continue
			default:
				a.mu.Lock()
				a.closed = true
				a.mu.Unlock()
				if a.onErr != nil {
					a.onErr(fmt.Errorf("tcp: accept4: %w", err))
				}
				return
			}
		}

		peer := peerString(rsa)
		c := a.newConn(nfd, peer)
		c.SetReactor(a.re)
		c.SetTTL(handshakeTTL)
		if err := a.re.Register(c); err != nil {
			syscall.Close(nfd)
			continue
		}
	}
}

func peerString(sa syscall.Sockaddr) string {
	switch v := sa.(type) {
	case *syscall.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], v.Port)
	case *syscall.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", v.Addr, v.Port)
	default:
		return "unknown"
	}
}
