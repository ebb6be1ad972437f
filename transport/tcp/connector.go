// File: transport/tcp/connector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Active connection establishment: resolve, iterate addresses,
// non-blocking connect, graduate to a Connection on success. Every
// blocking wait goes through workerpool.Suspend so the caller's
// worker slot is free while the connect is in flight.

package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/core/workerpool"
	"github.com/momentics/reactorhost/reactor"
	"github.com/momentics/reactorhost/resolver"
)

// connectorWatcher is a short-lived Watchable used only to learn when
// a connect(2) in flight becomes writable or errors; it never reaches
// conn.Connection's richer state machine.
type connectorWatcher struct {
	fd     int
	notify chan reactor.EventMask

	mu        sync.Mutex
	captured  bool
	events    reactor.EventMask
	postponed reactor.EventMask
}

func newConnectorWatcher(fd int) *connectorWatcher {
	return &connectorWatcher{fd: fd, notify: make(chan reactor.EventMask, 1)}
}

func (w *connectorWatcher) RawFD() uintptr          { return uintptr(w.fd) }
func (w *connectorWatcher) Interest() reactor.EventMask { return reactor.Writable }
func (w *connectorWatcher) Closed() bool            { return false }

func (w *connectorWatcher) Deliver(mask reactor.EventMask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.captured {
		w.postponed |= mask
	} else {
		w.events |= mask
	}
}

func (w *connectorWatcher) TryCapture() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.captured {
		return false
	}
	w.captured = true
	return true
}

func (w *connectorWatcher) Release() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.captured = false
	w.events = w.postponed
	w.postponed = 0
	return w.events != 0
}

func (w *connectorWatcher) Process() {
	w.mu.Lock()
	ev := w.events
	w.events = 0
	w.mu.Unlock()
	select {
	case w.notify <- ev:
	default:
	}
}

// Dial resolves host, attempts each resulting address in turn with a
// non-blocking connect, and returns a registered Connection on the
// first address that completes without error. It must run on a
// worker-pool task: every blocking wait inside goes through
// workerpool.Suspend so the pool's slot is freed while waiting.
func Dial(ctx context.Context, re *reactor.Reactor, res *resolver.Resolver, wheel *timer.Wheel, host string, port int, newConn NewConnFunc) (*conn.Connection, error) {
	result, err := workerpool.Suspend(ctx, res.Future(ctx, host))
	if err != nil {
		return nil, err
	}
	addrs := result.Addrs()
	if result.Err() != nil {
		return nil, fmt.Errorf("tcp: resolve %s: %w", host, result.Err())
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("tcp: resolve %s: no addresses", host)
	}

	var lastErr error
	for _, addr := range addrs {
		fd, sa, err := dialSocket(addr.IP, port)
		if err != nil {
			lastErr = err
			continue
		}

		connErr := syscall.Connect(fd, sa)
		if connErr == nil {
			c := newConn(fd, addr.String())
			c.SetReactor(re)
			if err := re.Register(c); err != nil {
				syscall.Close(fd)
				return nil, err
			}
			return c, nil
		}
		if connErr != syscall.EINPROGRESS {
			syscall.Close(fd)
			lastErr = connErr
			continue
		}

		c, retry, err := waitForConnect(ctx, re, wheel, fd, addr.String(), newConn)
		if retry {
			// EADDRNOTAVAIL: brief yield, retry the same address once.
			if _, err := workerpool.Suspend(ctx, after(50*time.Millisecond)); err != nil {
				return nil, err
			}
			c, _, err = waitForConnect(ctx, re, wheel, fd, addr.String(), newConn)
			if err != nil {
				syscall.Close(fd)
				lastErr = err
				continue
			}
			return c, nil
		}
		if err != nil {
			syscall.Close(fd)
			lastErr = err
			continue
		}
		return c, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("tcp: dial %s: all addresses exhausted", host)
	}
	return nil, lastErr
}

func after(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func dialSocket(ip net.IP, port int) (int, syscall.Sockaddr, error) {
	v4 := ip.To4()
	if v4 == nil {
		fd, err := syscall.Socket(syscall.AF_INET6, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
		if err != nil {
			return 0, nil, fmt.Errorf("tcp: socket: %w", err)
		}
		sa := &syscall.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip.To16())
		return fd, sa, nil
	}
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("tcp: socket: %w", err)
	}
	sa := &syscall.SockaddrInet4{Port: port}
	copy(sa.Addr[:], v4)
	return fd, sa, nil
}

// waitForConnect registers fd for writability and waits once;
// retry=true signals the caller should yield and try the same fd
// again (the EADDRNOTAVAIL case).
func waitForConnect(ctx context.Context, re *reactor.Reactor, wheel *timer.Wheel, fd int, peer string, newConn NewConnFunc) (*conn.Connection, bool, error) {
	w := newConnectorWatcher(fd)
	if err := re.Register(w); err != nil {
		return nil, false, err
	}

	// The watcher is unregistered before the fd is registered again as
	// a Connection, so the fd never sits in the reactor twice.
	_, err := workerpool.Suspend(ctx, w.notify)
	re.Unregister(w)
	if err != nil {
		return nil, false, err
	}

	errno, err := syscall.GetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
	if err != nil {
		return nil, false, err
	}
	switch syscall.Errno(errno) {
	case 0:
		c := newConn(fd, peer)
		c.SetReactor(re)
		if err := re.Register(c); err != nil {
			return nil, false, err
		}
		return c, false, nil
	case syscall.EADDRNOTAVAIL:
		return nil, true, nil
	default:
		return nil, false, syscall.Errno(errno)
	}
}
