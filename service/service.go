// File: service/service.go
// Package service wraps the four protocol-specific Drivers (httpf,
// ws, packet, status) behind one Context a handler author writes
// against, regardless of which transport the request arrived over.
// lps.Session is the long-poll half of the same glue layer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package service

import (
	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/protocol/httpf"
	"github.com/momentics/reactorhost/protocol/packet"
	"github.com/momentics/reactorhost/protocol/status"
	"github.com/momentics/reactorhost/protocol/ws"
)

// Kind discriminates which wire protocol produced a Context.
type Kind int

const (
	KindHTTP Kind = iota
	KindWebSocket
	KindPacket
	KindStatus
)

// Service is the trait user handler code implements; Serve receives a
// Context already discriminated by Kind so one Service can, if it
// chooses, handle more than one protocol (e.g. a status endpoint that
// also answers a WebSocket ping).
type Service interface {
	Serve(ctx *Context)
}

// ServiceFunc adapts a plain function to Service, the same ergonomic
// shortcut net/http.HandlerFunc offers over http.Handler.
type ServiceFunc func(ctx *Context)

func (f ServiceFunc) Serve(ctx *Context) { f(ctx) }

// Context is the protocol-agnostic request/response/event primitive
// passed to a Service. Exactly one of the per-kind fields is non-nil,
// selected by Kind.
type Context struct {
	Kind Kind
	Conn *conn.Connection

	HTTP   *HTTPContext
	WS     *WSContext
	Packet *PacketContext
	Status *StatusContext
}

// HTTPContext wraps one parsed request/response pair.
type HTTPContext struct {
	Request  *httpf.Request
	Response *httpf.ResponseWriter
}

// WSContext wraps one decoded application frame plus a sender for
// pushing frames back.
type WSContext struct {
	Opcode  byte
	Payload []byte
	Sender  ws.FrameSender
}

// PacketContext wraps one decoded packet payload.
type PacketContext struct {
	Payload []byte
}

// StatusContext wraps one status-protocol command line and its
// response slot. The status protocol keeps no state beyond the
// buffers, so this Context only carries the one exchange being
// served.
type StatusContext struct {
	Command  []byte
	Response []byte
}

// HTTPHandler adapts a Service to an httpf.Handler for registry
// dispatch.
func HTTPHandler(svc Service) httpf.Handler {
	return func(c *conn.Connection, w *httpf.ResponseWriter, r *httpf.Request) {
		svc.Serve(&Context{
			Kind: KindHTTP,
			Conn: c,
			HTTP: &HTTPContext{Request: r, Response: w},
		})
	}
}

// WSHandler adapts a Service to a ws.AppHandler.
func WSHandler(svc Service) ws.AppHandler {
	return func(sender ws.FrameSender, opcode byte, payload []byte) {
		svc.Serve(&Context{
			Kind: KindWebSocket,
			WS:   &WSContext{Opcode: opcode, Payload: payload, Sender: sender},
		})
	}
}

// PacketHandler adapts a Service to a packet.Handler.
func PacketHandler(svc Service) packet.Handler {
	return func(c *conn.Connection, payload []byte) {
		svc.Serve(&Context{
			Kind:   KindPacket,
			Conn:   c,
			Packet: &PacketContext{Payload: payload},
		})
	}
}

// StatusHandler adapts a Service to a status.Handler.
func StatusHandler(svc Service) status.Handler {
	return func(c *conn.Connection, command []byte) []byte {
		sc := &StatusContext{Command: command}
		svc.Serve(&Context{
			Kind:   KindStatus,
			Conn:   c,
			Status: sc,
		})
		return sc.Response
	}
}

// Reply is a convenience for a StatusContext-backed Service: set the
// one response line this exchange will send.
func (sc *StatusContext) Reply(p []byte) { sc.Response = p }
