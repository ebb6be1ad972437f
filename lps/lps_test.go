// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhost/codec"
	"github.com/momentics/reactorhost/core/timer"
)

type recordingSender struct {
	payloads [][]byte
}

func (r *recordingSender) SendPayload(p []byte) {
	r.payloads = append(r.payloads, append([]byte(nil), p...))
}

func TestOutSingleValueFlushesUnwrapped(t *testing.T) {
	fixed := time.Unix(1000, 0)
	w := timer.New(func() time.Time { return fixed })
	s := New("s1", w, codec.JSON{})

	rs := &recordingSender{}
	s.Attach(rs, TransportWS)

	// No aggregation by default: a WebSocket session delivers on Out.
	s.Out("hello", false)

	require.Len(t, rs.payloads, 1)
	require.Equal(t, byte(0x00), rs.payloads[0][0])
	require.JSONEq(t, `"hello"`, string(rs.payloads[0][1:]))
}

func TestOutMultipleValuesWrapInArray(t *testing.T) {
	w := timer.New(nil)
	s := New("s2", w, codec.JSON{})
	s.EnableAggregation(true)
	rs := &recordingSender{}
	s.Attach(rs, TransportWS)

	s.Out("a", false)
	s.Out("b", false)
	s.Flush()

	require.Len(t, rs.payloads, 1)
	require.JSONEq(t, `["a","b"]`, string(rs.payloads[0][1:]))
}

func TestGzipIndicatorByte(t *testing.T) {
	w := timer.New(nil)
	s := New("s3", w, codec.JSON{})
	s.EnableGzip(codec.Gzip{})
	rs := &recordingSender{}
	s.Attach(rs, TransportWS)

	s.Out("z", false)

	require.Len(t, rs.payloads, 1)
	require.Equal(t, byte(0x01), rs.payloads[0][0])
	inflated, err := codec.Gzip{}.Inflate(rs.payloads[0][1:])
	require.NoError(t, err)
	require.JSONEq(t, `"z"`, string(inflated))
}

func TestAggregationDefersWSDelivery(t *testing.T) {
	w := timer.New(nil)
	s := New("s7", w, codec.JSON{})
	s.EnableAggregation(true)
	rs := &recordingSender{}
	s.Attach(rs, TransportWS)

	s.Out("later", false)
	require.Empty(t, rs.payloads, "aggregated output must wait for the window")
	require.Equal(t, 1, w.Len(), "the aggregation timer must be armed")

	s.Flush()
	require.Len(t, rs.payloads, 1)
}

func TestCloseMarksClosed(t *testing.T) {
	w := timer.New(nil)
	s := New("s4", w, codec.JSON{})
	require.False(t, s.Closed())
	s.Out("bye", true)
	require.True(t, s.Closed())
}

func TestReattachResendsUnacked(t *testing.T) {
	w := timer.New(nil)
	s := New("s5", w, codec.JSON{})
	rs1 := &recordingSender{}
	s.Attach(rs1, TransportWS)
	s.Out("one", false)
	require.Len(t, rs1.payloads, 1)

	// Reattach without acking: the unacked event resends.
	rs2 := &recordingSender{}
	s.Attach(rs2, TransportHTTP)
	require.Len(t, rs2.payloads, 1)
	require.JSONEq(t, `"one"`, string(rs2.payloads[0][1:]))
}

func TestAckRetiresEvents(t *testing.T) {
	w := timer.New(nil)
	s := New("s6", w, codec.JSON{})
	rs := &recordingSender{}
	s.Attach(rs, TransportWS)
	s.Out("one", false)
	s.Ack(0)

	rs2 := &recordingSender{}
	s.Attach(rs2, TransportWS)
	require.Empty(t, rs2.payloads)
}

func TestManagerCreateGetDelete(t *testing.T) {
	w := timer.New(nil)
	m := NewManager(4, w, codec.JSON{})
	s := m.Create()
	require.NotEmpty(t, s.ID())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	require.Same(t, s, got)

	m.Delete(s.ID())
	_, ok = m.Get(s.ID())
	require.False(t, ok)
}

func TestManagerRangeVisitsAll(t *testing.T) {
	w := timer.New(nil)
	m := NewManager(4, w, codec.JSON{})
	m.Create()
	m.Create()
	count := 0
	m.Range(func(*Session) { count++ })
	require.Equal(t, 2, count)
}
