// File: protocol/ws/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ws

import (
	"time"

	"github.com/momentics/reactorhost/conn"
)

const closeLinger = 50 * time.Millisecond

// Framer is the conn.Driver installed on a Connection after a
// successful WebSocket upgrade.
type Framer struct {
	ctx     *Context
	handler AppHandler
	conn    *conn.Connection // set lazily on first Drive, for FrameSender
}

func NewFramer(ctx *Context, handler AppHandler) *Framer {
	return &Framer{ctx: ctx, handler: handler}
}

func (f *Framer) WantRead() bool  { return true }
func (f *Framer) WantWrite() bool { return false }

// Drive implements conn.Driver: decode every complete frame currently
// buffered, dispatching control frames internally and application
// frames (text/binary) to the AppHandler.
func (f *Framer) Drive(c *conn.Connection) error {
	f.conn = c

	for {
		data := c.In.Peek(c.In.Len())
		frame, n, err := decodeFrame(data)
		c.In.ReleasePeek()
		if err == errIncomplete {
			return nil
		}
		if err == errTooBig {
			f.sendClose(closeMessageTooBig, "message too big")
			c.Shutdown()
			return nil
		}

		c.In.Skip(n)

		switch frame.opcode {
		case opText, opBinary:
			if f.handler != nil {
				f.handler(f, frame.opcode, frame.payload)
			}
		case opPing:
			f.sendRaw(opPong, frame.payload)
		case opPong:
			// no-op: keepalive acknowledgment
		case opClose:
			if !f.ctx.closeSent {
				f.sendClose(closeNormal, "Bye!")
			}
			c.Shutdown()
			return nil
		case opContinuation:
			f.sendClose(closeProtocolError, "fragmented frames are not supported")
			c.Shutdown()
			return nil
		default:
			f.sendClose(closeProtocolError, "unknown opcode")
			c.Shutdown()
			return nil
		}
	}
}

func (f *Framer) SendText(payload []byte)   { f.sendRaw(opText, payload) }
func (f *Framer) SendBinary(payload []byte) { f.sendRaw(opBinary, payload) }

func (f *Framer) sendRaw(opcode byte, payload []byte) {
	if f.conn == nil {
		return
	}
	buf := encodeFrame(nil, opcode, payload, false)
	f.conn.Out.Write(buf)
}

func (f *Framer) sendClose(code uint16, reason string) {
	f.ctx.closeSent = true
	body := make([]byte, 2+len(reason))
	body[0] = byte(code >> 8)
	body[1] = byte(code)
	copy(body[2:], reason)
	f.sendRaw(opClose, body)
	if f.conn != nil {
		f.conn.SetTTL(closeLinger)
	}
}
