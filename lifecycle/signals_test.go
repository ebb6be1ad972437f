// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package lifecycle

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func newTestSignals(h Handler) *Signals {
	return New(hclog.NewNullLogger(), h)
}

func TestShutdownSignalsInvokeShutdown(t *testing.T) {
	var calls int32
	s := newTestSignals(Handler{Shutdown: func() { atomic.AddInt32(&calls, 1) }})
	go s.Run()
	defer s.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
}

func TestUSR1RotatesLogs(t *testing.T) {
	var calls int32
	s := newTestSignals(Handler{RotateLogs: func() { atomic.AddInt32(&calls, 1) }})
	go s.Run()
	defer s.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
}

func TestUSR2DumpsBacktraces(t *testing.T) {
	var calls int32
	s := newTestSignals(Handler{DumpBacktraces: func(trace []byte) {
		require.NotEmpty(t, trace)
		atomic.AddInt32(&calls, 1)
	}})
	go s.Run()
	defer s.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSignals(Handler{})
	go s.Run()
	s.Close()
	require.NotPanics(t, func() { s.Close() })
}

func TestPipeIsIgnored(t *testing.T) {
	called := false
	s := newTestSignals(Handler{Shutdown: func() { called = true }})
	go s.Run()
	defer s.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGPIPE))
	time.Sleep(50 * time.Millisecond)
	require.False(t, called)
}
