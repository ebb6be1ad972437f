// File: conn/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TLS layering on top of the plain TCP state machine. crypto/tls
// requires a net.Conn, so rawNetConn below adapts the Connection's
// raw fd into one, blocking the handshake's own goroutine (never a
// worker-pool slot, never a reactor mutex) on a readiness channel that
// tlsState.step signals.

package conn

import (
	"crypto/tls"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/momentics/reactorhost/reactor"
)

type tlsState struct {
	conn        *tls.Conn
	raw         *rawNetConn
	established bool
	started     bool
	done        chan error
}

func newTLSState(c *Connection, cfg *tls.Config, server bool) *tlsState {
	raw := &rawNetConn{c: c}
	var tc *tls.Conn
	if server {
		tc = tls.Server(raw, cfg)
	} else {
		tc = tls.Client(raw, cfg)
	}
	return &tlsState{conn: tc, raw: raw, done: make(chan error, 1)}
}

// AttachTLS wires a TLS handshake onto an already-constructed plain
// Connection, flipping its Kind to the TLS variant. Call before
// Register.
func (c *Connection) AttachTLS(cfg *tls.Config, server bool) {
	if server {
		c.kind = KindTLSServer
	} else {
		c.kind = KindTLSClient
	}
	c.tls = newTLSState(c, cfg, server)
}

// step drives one pass of the TLS handshake gate from Process: start
// the handshake goroutine once, wake it if the latest event delivery
// satisfies a pending read/write, and check for completion.
func (ts *tlsState) step(c *Connection) {
	ev := c.snapshot()

	if !ts.started {
		ts.started = true
		go func() {
			ts.done <- ts.conn.Handshake()
		}()
	}

	if ev&reactor.Readable != 0 {
		ts.raw.wake(true)
		c.clearBits(reactor.Readable)
	}
	if ev&reactor.Writable != 0 {
		ts.raw.wake(false)
		c.clearBits(reactor.Writable)
	}

	select {
	case err := <-ts.done:
		if err != nil {
			c.errored = true
			return
		}
		ts.established = true
		if c.re != nil {
			_ = c.re.Watch(c)
		}
	default:
	}
}

// rawNetConn adapts a Connection's raw fd to net.Conn for crypto/tls.
// Read/Write perform non-blocking syscalls and park the calling
// goroutine on a one-shot channel when the kernel returns EAGAIN,
// woken by tlsState.step when the Reactor next delivers the
// corresponding readiness bit.
type rawNetConn struct {
	c *Connection

	mu         sync.Mutex
	readWake   chan struct{}
	writeWake  chan struct{}
}

func (r *rawNetConn) waitChan(forRead bool) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if forRead {
		if r.readWake == nil {
			r.readWake = make(chan struct{}, 1)
		}
		return r.readWake
	}
	if r.writeWake == nil {
		r.writeWake = make(chan struct{}, 1)
	}
	return r.writeWake
}

func (r *rawNetConn) wake(forRead bool) {
	ch := r.waitChan(forRead)
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (r *rawNetConn) Read(p []byte) (int, error) {
	for {
		n, err := syscall.Read(r.c.fd, p)
		if err == nil {
			return n, nil
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			<-r.waitChan(true)
			continue
		}
		if err == syscall.EINTR {
			continue
		}
		return 0, err
	}
}

func (r *rawNetConn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := syscall.Write(r.c.fd, p[total:])
		if err == nil {
			total += n
			continue
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			<-r.waitChan(false)
			continue
		}
		if err == syscall.EINTR {
			continue
		}
		return total, err
	}
	return total, nil
}

func (r *rawNetConn) Close() error                       { return syscall.Close(r.c.fd) }
func (r *rawNetConn) LocalAddr() net.Addr                { return nil }
func (r *rawNetConn) RemoteAddr() net.Addr                { return nil }
func (r *rawNetConn) SetDeadline(t time.Time) error       { return nil }
func (r *rawNetConn) SetReadDeadline(t time.Time) error   { return nil }
func (r *rawNetConn) SetWriteDeadline(t time.Time) error  { return nil }
