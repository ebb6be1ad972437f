// File: conn/process.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process implements the per-connection processing pass: drain
// outbound, read inbound until EAGAIN, drive the protocol framer, and
// decide whether to close, half-close, or just re-arm the watch. TLS
// connections route through tls.go's handshake gate before reaching
// this common loop.

package conn

import (
	"errors"
	"syscall"
	"time"

	"github.com/momentics/reactorhost/reactor"
)

// Process implements reactor.Watchable. The Reactor guarantees
// capture exclusivity before calling this, so no internal locking is
// needed around the state transitions below.
func (c *Connection) Process() {
	if c.tls != nil && !c.tls.established {
		c.tls.step(c)
		return
	}

	for {
		ev := c.snapshot()

		if ev&reactor.Timeout != 0 {
			c.timedOut = true
			c.clearBits(reactor.Timeout)
			break
		}
		if ev&reactor.Error != 0 {
			c.errored = true
			break
		}

		progressed := false

		if ev&reactor.Writable != 0 && c.Out.Len() > 0 {
			wouldBlock, err := c.rawWrite()
			if err != nil {
				c.errored = true
				break
			}
			if !wouldBlock {
				progressed = true
			}
			c.clearBits(reactor.Writable)
		}

		if ev&reactor.Readable != 0 && !c.noRead {
			n, wouldBlock, err := c.rawRead()
			if err != nil {
				c.errored = true
				break
			}
			if n == 0 && !wouldBlock {
				// Peer closed its write side.
				c.clearBits(reactor.Readable)
				if c.Driver != nil {
					_ = c.Driver.Drive(c)
				}
				break
			}
			if n > 0 {
				progressed = true
				if c.Driver != nil {
					if err := c.Driver.Drive(c); err != nil {
						c.errored = true
						break
					}
				}
			}
			if !wouldBlock {
				progressed = true
			}
		}

		if c.errored {
			break
		}

		// Step 5: outbound produced during the Drive above may now be
		// writable immediately.
		if c.Out.Len() > 0 {
			wouldBlock, err := c.rawWrite()
			if err != nil {
				c.errored = true
				break
			}
			if !wouldBlock {
				progressed = true
			}
		}

		next := c.snapshot()
		if next == 0 || !progressed {
			break
		}
	}

	switch {
	case c.timedOut || c.errored:
		c.closed = true
		if c.onErr != nil {
			var err error
			if c.timedOut {
				err = errTimeout
			} else {
				err = errConnection
			}
			c.onErr(c, err)
		}
		_ = syscall.Close(c.fd)
	case c.noRead && c.Out.Len() == 0:
		_ = syscall.Shutdown(c.fd, syscall.SHUT_WR)
		c.SetTTL(50 * time.Millisecond)
	}
}

// Shutdown begins a half-close: stop accepting reads, let the
// remaining outbound buffer drain, then shutdown-write and close
// after a short linger.
func (c *Connection) Shutdown() {
	c.noRead = true
}

// CloseNow marks the Connection closed without lingering (used by
// protocol framers that hit an unrecoverable parse error).
func (c *Connection) CloseNow() {
	c.closed = true
	_ = syscall.Close(c.fd)
}

var (
	errTimeout    = errors.New("connection: ttl expired")
	errConnection = errors.New("connection: socket error")
)
