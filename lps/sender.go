// File: lps/sender.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concrete Sender adapters bridging lps.Session to its two
// transports: push-over-WebSocket and poll-over-HTTP.

package lps

import "github.com/momentics/reactorhost/protocol/ws"

// WSSender delivers a flushed payload as one binary WebSocket frame.
type WSSender struct {
	fs ws.FrameSender
}

// NewWSSender wraps an established WebSocket connection's frame
// sender as an lps.Sender.
func NewWSSender(fs ws.FrameSender) WSSender {
	return WSSender{fs: fs}
}

func (w WSSender) SendPayload(p []byte) { w.fs.SendBinary(p) }

// HTTPWaiter is a one-shot Sender for a single long-poll HTTP request:
// the handler attaches a HTTPWaiter to the Session, then suspends
// (via core/workerpool.Suspend) on Chan() until a flush delivers a
// payload or the request's own TTL fires.
type HTTPWaiter struct {
	ch chan []byte
}

// NewHTTPWaiter constructs a HTTPWaiter ready to Attach to a Session.
func NewHTTPWaiter() *HTTPWaiter {
	return &HTTPWaiter{ch: make(chan []byte, 1)}
}

func (h *HTTPWaiter) SendPayload(p []byte) {
	select {
	case h.ch <- p:
	default:
	}
}

// Chan returns the channel a long-poll handler suspends on.
func (h *HTTPWaiter) Chan() <-chan []byte { return h.ch }
