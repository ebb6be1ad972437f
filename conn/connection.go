// File: conn/connection.go
// Package conn implements the per-socket Connection state machine that
// sits between the Reactor and the protocol framers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package conn

import (
	"sync"
	"syscall"
	"time"

	"github.com/momentics/reactorhost/core/buffer"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/reactor"
)

// Kind is the Connection variant tag.
type Kind int

const (
	KindAcceptor Kind = iota
	KindTCPClient
	KindTCPServer
	KindTLSClient
	KindTLSServer
)

// Driver is the protocol framer contract a Connection drives through
// its inbound/outbound Buffers. Exactly one Driver is active at a
// time; an HTTP Driver may install a WebSocket Driver on the same
// Connection after a successful upgrade.
type Driver interface {
	// Drive consumes as much of c.In as forms complete protocol units,
	// producing output into c.Out and/or invoking application handlers.
	// It must not block; non-blocking drains I/O-readiness driven by
	// the Reactor.
	Drive(c *Connection) error
	// WantRead/WantWrite report whether this Driver still wants reactor
	// interest on either direction.
	WantRead() bool
	WantWrite() bool
}

// ErrorFunc is invoked once when a Connection terminates due to error
// or timeout.
type ErrorFunc func(c *Connection, err error)

// Connection is one socket's full I/O state, shared data, and protocol
// Context.
type Connection struct {
	fd   int
	kind Kind
	peer string

	In  *buffer.Buffer
	Out *buffer.Buffer

	// Ctx is the protocol-specific Context, a tagged union realized in
	// Go as `any`; framers type-assert to their own *Context type.
	Ctx any

	Driver Driver
	onErr  ErrorFunc

	re    *reactor.Reactor
	wheel *timer.Wheel
	ttl   *timer.Entry

	mu        sync.Mutex
	captured  bool
	events    reactor.EventMask
	postponed reactor.EventMask

	tls *tlsState // nil for plain TCP

	timedOut bool
	errored  bool
	closed   bool
	noRead   bool // shutdown-write issued, reading disabled
}

// New constructs a plain TCP Connection around fd.
func New(fd int, kind Kind, peer string, wheel *timer.Wheel, inCap, outCap int) *Connection {
	return &Connection{
		fd:    fd,
		kind:  kind,
		peer:  peer,
		In:    buffer.New(inCap),
		Out:   buffer.New(outCap),
		wheel: wheel,
	}
}

// RawFD implements reactor.Watchable.
func (c *Connection) RawFD() uintptr { return uintptr(c.fd) }

// Peer returns the remote address string captured at accept/connect time.
func (c *Connection) Peer() string { return c.peer }

// Kind returns the Connection variant tag.
func (c *Connection) Kind() Kind { return c.kind }

// SetErrorFunc registers the owning Transport's error callback.
func (c *Connection) SetErrorFunc(fn ErrorFunc) { c.onErr = fn }

// SetReactor stores the owning Reactor so process() can request a
// Watch() re-arm mid-pass if needed. Called once at registration.
func (c *Connection) SetReactor(r *reactor.Reactor) { c.re = r }

// SetTTL arms (or replaces) the Connection's deadline; firing sets
// the synthetic Timeout bit.
func (c *Connection) SetTTL(d time.Duration) {
	if c.ttl != nil {
		c.wheel.Cancel(c.ttl)
	}
	c.ttl = c.wheel.After(d, func() {
		c.mu.Lock()
		c.events |= reactor.Timeout
		already := c.captured
		c.mu.Unlock()
		if !already && c.re != nil {
			// Nudge the reactor to treat this like any other ready event.
			c.re.Watch(c)
		}
	})
}

// Interest implements reactor.Watchable: want-read iff input is open
// and the Driver can accept more; want-write iff outbound is
// non-empty or the Driver still wants to write (e.g. TLS handshake).
func (c *Connection) Interest() reactor.EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	var m reactor.EventMask
	if !c.noRead && !c.closed && (c.Driver == nil || c.Driver.WantRead()) {
		m |= reactor.Readable
	}
	if c.Out.Len() > 0 || (c.Driver != nil && c.Driver.WantWrite()) || (c.tls != nil && !c.tls.established) {
		m |= reactor.Writable
	}
	return m
}

// Deliver implements reactor.Watchable: merge a freshly observed event
// mask into postponed if captured, else directly into events.
func (c *Connection) Deliver(mask reactor.EventMask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured {
		c.postponed |= mask
	} else {
		c.events |= mask
	}
}

// TryCapture implements reactor.Watchable.
func (c *Connection) TryCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured {
		return false
	}
	c.captured = true
	return true
}

// Release implements reactor.Watchable: rotate postponed into events
// and report whether any bits remain live.
func (c *Connection) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = false
	c.events = c.postponed
	c.postponed = 0
	return c.events != 0
}

// Closed implements reactor.Watchable.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// snapshot copies the live event bitmask under lock without clearing
// it (Process clears handled bits through clearBits), for use by
// Process, which runs single-threaded per Connection by capture
// exclusivity, so the copy is safe to read without the lock held.
func (c *Connection) snapshot() reactor.EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := c.events
	return ev
}

func (c *Connection) clearBits(bits reactor.EventMask) {
	c.mu.Lock()
	c.events &^= bits
	c.mu.Unlock()
}

// rawRead performs one non-blocking read into In's writable region.
// Returns (n, wouldBlock, err).
func (c *Connection) rawRead() (int, bool, error) {
	c.In.Reserve(4096)
	buf := c.In.WritableSlice()
	for {
		n, err := syscall.Read(c.fd, buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return 0, true, nil
			}
			if err == syscall.EINTR {
				continue
			}
			return 0, false, err
		}
		c.In.AdvancePut(n)
		return n, false, nil
	}
}

// rawWrite drains as much of Out as the socket accepts.
func (c *Connection) rawWrite() (bool, error) {
	for c.Out.Len() > 0 {
		chunk := c.Out.Peek(c.Out.Len())
		n, err := syscall.Write(c.fd, chunk)
		c.Out.ReleasePeek()
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return true, nil
			}
			if err == syscall.EINTR {
				continue
			}
			return false, err
		}
		c.Out.Skip(n)
		if n == 0 {
			break
		}
	}
	return false, nil
}
