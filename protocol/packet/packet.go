// File: protocol/packet/packet.go
// Package packet implements the length-prefixed message framer: each
// message is a big-endian uint16 length followed by that many payload
// bytes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packet

import (
	"encoding/binary"

	"github.com/momentics/reactorhost/conn"
)

const headerSize = 2

// Handler receives one complete message payload.
type Handler func(c *conn.Connection, payload []byte)

// Framer is the conn.Driver for the packet protocol.
type Framer struct {
	handler Handler
}

func New(handler Handler) *Framer {
	return &Framer{handler: handler}
}

func (f *Framer) WantRead() bool  { return true }
func (f *Framer) WantWrite() bool { return false }

// Drive implements conn.Driver: emit whole messages only; a partial
// message in the inbound buffer simply yields.
func (f *Framer) Drive(c *conn.Connection) error {
	for {
		if c.In.Len() < headerSize {
			return nil
		}
		hdr := c.In.Peek(headerSize)
		length := int(binary.BigEndian.Uint16(hdr))
		c.In.ReleasePeek()

		if c.In.Len() < headerSize+length {
			return nil
		}

		c.In.Skip(headerSize)
		payload := append([]byte(nil), c.In.Read(length)...)

		if f.handler != nil {
			f.handler(c, payload)
		}
	}
}

// Send writes one length-prefixed message to c.Out.
func Send(c *conn.Connection, payload []byte) {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	c.Out.Write(hdr[:])
	c.Out.Write(payload)
}
