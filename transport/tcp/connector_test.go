// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/core/queue"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/core/workerpool"
	"github.com/momentics/reactorhost/reactor"
	"github.com/momentics/reactorhost/resolver"
)

func TestConnectorWatcherCoalescesWhileCaptured(t *testing.T) {
	w := newConnectorWatcher(0)

	require.True(t, w.TryCapture())
	require.False(t, w.TryCapture())

	w.Deliver(reactor.Writable)
	w.Deliver(reactor.Error)
	require.Equal(t, reactor.EventMask(0), w.events)
	require.Equal(t, reactor.Writable|reactor.Error, w.postponed)

	require.True(t, w.Release())
	require.Equal(t, reactor.Writable|reactor.Error, w.events)
}

// TestDialConnectsOverLoopback drives the full active-establishment
// path: resolve, non-blocking connect, reactor-reported writability,
// SO_ERROR check, Connection registration.
func TestDialConnectsOverLoopback(t *testing.T) {
	wheel := timer.New(nil)
	tasks := queue.New(nil)
	pool := workerpool.New(2, tasks, wheel)
	defer pool.Close()

	re, err := reactor.New(pool)
	require.NoError(t, err)
	defer re.Shutdown()
	go re.Run()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	res := resolver.New(16)
	newConn := func(fd int, peer string) *conn.Connection {
		return conn.New(fd, conn.KindTCPClient, peer, wheel, 4096, 4096)
	}

	type dialResult struct {
		c   *conn.Connection
		err error
	}
	done := make(chan dialResult, 1)
	ctx := workerpool.WithPool(context.Background(), pool)
	pool.Submit(func() {
		c, err := Dial(ctx, re, res, wheel, "localhost", port, newConn)
		done <- dialResult{c: c, err: err}
	})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.NotNil(t, r.c)
		require.Equal(t, conn.KindTCPClient, r.c.Kind())
	case <-time.After(5 * time.Second):
		t.Fatal("Dial never completed")
	}
}

func TestDialFailsWhenNothingListens(t *testing.T) {
	wheel := timer.New(nil)
	tasks := queue.New(nil)
	pool := workerpool.New(2, tasks, wheel)
	defer pool.Close()

	re, err := reactor.New(pool)
	require.NoError(t, err)
	defer re.Shutdown()
	go re.Run()

	// Bind then close a listener so the port is known-dead.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	res := resolver.New(16)
	newConn := func(fd int, peer string) *conn.Connection {
		return conn.New(fd, conn.KindTCPClient, peer, wheel, 4096, 4096)
	}

	done := make(chan error, 1)
	ctx := workerpool.WithPool(context.Background(), pool)
	pool.Submit(func() {
		_, err := Dial(ctx, re, res, wheel, "127.0.0.1", port, newConn)
		done <- err
	})

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Dial never completed")
	}
}
