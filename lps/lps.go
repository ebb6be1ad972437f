// File: lps/lps.go
// Package lps implements the long-poll session aggregator: a logical
// session that may be served over either WebSocket (push) or HTTP
// (long-poll), bridging the two behind one outbound queue, flush
// timer, and event-acknowledgment scheme.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lps

import (
	"sort"
	"sync"
	"time"

	"github.com/momentics/reactorhost/codec"
	"github.com/momentics/reactorhost/core/timer"
)

// Transport identifies which half of the bridge is currently attached.
type Transport int

const (
	TransportHTTP Transport = iota
	TransportWS
)

const (
	httpFlushDelay = 500 * time.Millisecond
	wsFlushDelay   = 50 * time.Millisecond
)

// Sender delivers one already-aggregated payload to whichever
// transport is currently attached to a Session.
type Sender interface {
	SendPayload(p []byte)
}

// Event carries a monotonic id alongside its value so Ack can retire
// exactly the events a client confirms receiving.
type Event struct {
	ID    uint64
	Value any
}

// Session is one logical push/poll bridge.
type Session struct {
	mu sync.Mutex

	id        string
	transport Transport
	sender    Sender
	closed    bool

	wheel      *timer.Wheel
	flushTimer *timer.Entry

	queue   []Event
	unacked map[uint64]Event
	nextID  uint64

	serializer  codec.Serializer
	compressor  codec.Compressor
	useGzip     bool
	aggregation bool
}

// New constructs a Session with the given id, using wheel to schedule
// aggregation flushes. serializer defaults to codec.JSON if nil.
// Aggregation starts off: a WebSocket-attached session flushes every
// Out immediately until EnableAggregation turns the window on.
func New(id string, wheel *timer.Wheel, serializer codec.Serializer) *Session {
	if serializer == nil {
		serializer = codec.JSON{}
	}
	return &Session{
		id:         id,
		wheel:      wheel,
		unacked:    make(map[uint64]Event),
		serializer: serializer,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// EnableAggregation toggles the aggregation window for WebSocket
// delivery. HTTP long-poll always aggregates regardless: the poll
// response is its only delivery vehicle.
func (s *Session) EnableAggregation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregation = on
}

// EnableGzip turns on gzip deflation of aggregated payloads, flagged
// by the one-byte leading indicator.
func (s *Session) EnableGzip(c codec.Compressor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressor = c
	s.useGzip = c != nil
}

// Closed reports whether the session has been marked closed by a
// prior Out(value, true) call.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Attach binds sender as the transport a flush should deliver to,
// replacing whichever transport (if any) was previously attached —
// e.g. a client reconnecting over WebSocket after a long-poll HTTP
// session. Unacknowledged events are re-queued for immediate resend.
func (s *Session) Attach(sender Sender, transport Transport) {
	s.mu.Lock()
	s.sender = sender
	s.transport = transport
	if len(s.unacked) > 0 {
		s.queue = mergeUnacked(s.queue, s.unacked)
	}
	s.mu.Unlock()
	s.flush()
}

func mergeUnacked(queue []Event, unacked map[uint64]Event) []Event {
	seen := make(map[uint64]bool, len(queue))
	for _, e := range queue {
		seen[e.ID] = true
	}
	for id, e := range unacked {
		if !seen[id] {
			queue = append(queue, e)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].ID < queue[j].ID })
	return queue
}

// Out pushes value onto the outbound queue. A WebSocket-attached
// session without aggregation flushes immediately; otherwise the
// transport's aggregation window is armed. If close is true the
// session is marked closed at once, before the value is flushed.
func (s *Session) Out(value any, close bool) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ev := Event{ID: id, Value: value}
	s.queue = append(s.queue, ev)
	s.unacked[id] = ev
	if close {
		s.closed = true
	}
	flushNow := !s.aggregation && s.transport == TransportWS && s.sender != nil
	if !flushNow && s.flushTimer == nil {
		delay := s.flushDelayLocked()
		s.flushTimer = s.wheel.After(delay, s.flush)
	}
	s.mu.Unlock()

	if flushNow {
		s.flush()
	}
}

func (s *Session) flushDelayLocked() time.Duration {
	if s.transport == TransportWS {
		return wsFlushDelay
	}
	return httpFlushDelay
}

// Ack retires events up to and including the given id from the
// unacknowledged map, so a future reattach does not resend them.
func (s *Session) Ack(uptoID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.unacked {
		if id <= uptoID {
			delete(s.unacked, id)
		}
	}
}

// flush drains the queue into one transport payload: a single event's
// value is sent as-is, multiple values are wrapped in an array.
func (s *Session) flush() {
	s.mu.Lock()
	s.flushTimer = nil
	if len(s.queue) == 0 || s.sender == nil {
		s.mu.Unlock()
		return
	}
	events := s.queue
	s.queue = nil
	sender := s.sender
	serializer := s.serializer
	compressor := s.compressor
	useGzip := s.useGzip
	s.mu.Unlock()

	var payloadValue any
	if len(events) == 1 {
		payloadValue = events[0].Value
	} else {
		vals := make([]any, len(events))
		for i, e := range events {
			vals[i] = e.Value
		}
		payloadValue = vals
	}

	encoded, err := serializer.Encode(payloadValue)
	if err != nil {
		return
	}

	if useGzip && compressor != nil {
		if compressed, err := compressor.Deflate(encoded); err == nil {
			out := make([]byte, 0, len(compressed)+1)
			out = append(out, 0x01)
			out = append(out, compressed...)
			sender.SendPayload(out)
			return
		}
	}

	out := make([]byte, 0, len(encoded)+1)
	out = append(out, 0x00)
	out = append(out, encoded...)
	sender.SendPayload(out)
}

// Flush forces an immediate drain, bypassing the aggregation timer —
// used by an explicit client "flush now" request.
func (s *Session) Flush() {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.wheel.Cancel(s.flushTimer)
		s.flushTimer = nil
	}
	s.mu.Unlock()
	s.flush()
}
