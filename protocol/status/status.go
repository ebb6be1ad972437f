// File: protocol/status/status.go
// Package status implements the custom status protocol: a bare,
// line-oriented query/response protocol for health and introspection
// probes that don't warrant a full HTTP round-trip (e.g. a load
// balancer's TCP health check, or an internal supervisor polling
// liveness). Each inbound line is one command; each command gets
// exactly one response line.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package status

import (
	"bytes"

	"github.com/momentics/reactorhost/conn"
)

// Context is the per-Connection state for the status protocol. The
// protocol keeps nothing beyond the buffers, so it carries no fields —
// its presence as c.Ctx only distinguishes this Driver from others
// when a handler inspects c.Ctx's type.
type Context struct{}

// Handler answers one command line (without its trailing newline),
// writing a response line (without trailing newline; Framer appends it).
type Handler func(c *conn.Connection, command []byte) []byte

// Framer is the conn.Driver for the status protocol.
type Framer struct {
	handler Handler
}

func New(handler Handler) *Framer {
	return &Framer{handler: handler}
}

func (f *Framer) WantRead() bool  { return true }
func (f *Framer) WantWrite() bool { return false }

// Drive implements conn.Driver: split on '\n', dispatch each complete
// line, and leave any partial trailing line buffered for the next read.
func (f *Framer) Drive(c *conn.Connection) error {
	if _, ok := c.Ctx.(*Context); !ok {
		c.Ctx = &Context{}
	}

	for {
		data := c.In.Peek(c.In.Len())
		idx := bytes.IndexByte(data, '\n')
		c.In.ReleasePeek()
		if idx < 0 {
			return nil
		}

		line := c.In.Read(idx + 1)
		cmd := bytes.TrimRight(line, "\r\n")

		var resp []byte
		if f.handler != nil {
			resp = f.handler(c, cmd)
		}
		c.Out.Write(resp)
		c.Out.Write([]byte("\n"))
	}
}
