package reactor

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/momentics/reactorhost/core/queue"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/core/workerpool"
	"github.com/stretchr/testify/require"
)

// fakeWatchable is a minimal Watchable over a real fd (epoll_ctl
// requires one) used to exercise capture/coalescing without a full
// conn.Connection.
type fakeWatchable struct {
	fd int

	mu        sync.Mutex
	captured  bool
	events    EventMask
	postponed EventMask
	processed int
	closed    bool

	processHook func()
}

func (w *fakeWatchable) RawFD() uintptr     { return uintptr(w.fd) }
func (w *fakeWatchable) Interest() EventMask { return Readable }

func (w *fakeWatchable) Deliver(mask EventMask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.captured {
		w.postponed |= mask
	} else {
		w.events |= mask
	}
}

func (w *fakeWatchable) TryCapture() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.captured {
		return false
	}
	w.captured = true
	return true
}

func (w *fakeWatchable) Release() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.captured = false
	w.events = w.postponed
	w.postponed = 0
	return w.events != 0
}

func (w *fakeWatchable) Process() {
	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
	if w.processHook != nil {
		w.processHook()
	}
}

func (w *fakeWatchable) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func newPool(t *testing.T) *workerpool.Pool {
	wheel := timer.New(time.Now)
	tq := queue.New(time.Now)
	p := workerpool.New(2, tq, wheel)
	t.Cleanup(p.Close)
	return p
}

func TestCaptureExclusivity(t *testing.T) {
	r, pipeW, pipeR := newReactorWithPipe(t)
	defer pipeW.Close()
	defer pipeR.Close()

	w := &fakeWatchable{fd: int(pipeR.Fd())}
	require.NoError(t, r.Register(w))

	require.True(t, w.TryCapture())
	require.False(t, w.TryCapture(), "a captured Watchable must refuse a second capture")
	require.False(t, w.Release(), "no postponed events means nothing pending after release")
}

func TestEventCoalescingWhileCaptured(t *testing.T) {
	w := &fakeWatchable{fd: 0}
	require.True(t, w.TryCapture())

	w.Deliver(Readable)
	w.Deliver(Writable)
	require.Equal(t, EventMask(0), w.events, "events delivered while captured must land in postponed")
	require.Equal(t, Readable|Writable, w.postponed)

	require.True(t, w.Release())
	require.Equal(t, Readable|Writable, w.events)
	require.Equal(t, EventMask(0), w.postponed)
}

func TestDispatchCapturesAndReleases(t *testing.T) {
	r, pipeW, pipeR := newReactorWithPipe(t)
	defer pipeW.Close()
	defer pipeR.Close()

	done := make(chan struct{})
	w := &fakeWatchable{fd: int(pipeR.Fd())}
	w.processHook = func() { close(done) }

	require.NoError(t, r.Register(w))

	go r.Run()
	defer r.Shutdown()

	_, err := pipeW.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process was never invoked for a readable fd")
	}
}

func newReactorWithPipe(t *testing.T) (*Reactor, *os.File, *os.File) {
	r, err := New(newPool(t))
	require.NoError(t, err)
	t.Cleanup(func() { r.Shutdown() })

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	return r, pw, pr
}
