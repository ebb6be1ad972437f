// File: reactor/reactor.go
// Package reactor implements the Reactor / ConnectionManager: a single
// epoll descriptor, event coalescing, and the capture/release
// concurrency discipline that lets exactly one worker process a given
// Connection at a time.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The set mutex is a plain non-recursive sync.Mutex: every
// set-mutating method below is a leaf call, nothing re-enters while
// already holding it.

package reactor

import (
	"sync"

	"github.com/momentics/reactorhost/core/workerpool"
)

// EventMask carries the OR-folded readiness bits a backend delivers.
type EventMask uint32

const (
	Readable EventMask = 1 << iota
	Writable
	HangUp
	HalfHangUp
	Error
	Timeout // synthesized by the TimerWheel, not by epoll
)

// Watchable is anything the Reactor can capture, watch, and dispatch a
// processing task for. conn.Connection implements this; the Reactor
// package never imports conn, only this contract, to avoid a cycle.
type Watchable interface {
	// RawFD returns the OS file descriptor to register with epoll.
	RawFD() uintptr
	// Interest returns the epoll interest the Connection currently
	// wants, recomputed by the owner before every Watch call.
	Interest() EventMask
	// Deliver merges a freshly observed event mask into the
	// Connection's pending or postponed bitmask depending on capture
	// state.
	Deliver(mask EventMask)
	// TryCapture attempts to take exclusive ownership; false if
	// already captured by another worker.
	TryCapture() bool
	// Release hands capture back, rotating postponed events into
	// live ones, and reports whether any event bits remain live.
	Release() (morePending bool)
	// Process runs one process() pass to completion; invoked from a
	// workerpool task with the Connection already captured.
	Process()
	// Closed reports whether the Connection has torn itself down and
	// should be dropped from the Reactor's sets.
	Closed() bool
}

// backend abstracts the OS polling primitive (epoll on Linux).
type backend interface {
	Add(fd uintptr, mask EventMask) error
	Modify(fd uintptr, mask EventMask) error
	Del(fd uintptr) error
	Wait(timeoutMs int) ([]readyEvent, error)
	Close() error
}

type readyEvent struct {
	fd   uintptr
	mask EventMask
}

// Reactor owns one epoll set and the all/ready/captured Connection
// sets.
type Reactor struct {
	be backend

	bigMu    sync.Mutex // guards all/ready/captured
	epollMu  sync.Mutex // serializes the Wait() call only
	all      map[uintptr]Watchable
	ready    []uintptr // FIFO queue of fds with pending events, not yet dispatched
	captured map[uintptr]struct{}

	pool *workerpool.Pool

	quit chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Reactor backed by the platform poller and bound to
// pool for dispatching per-Connection processing tasks.
func New(pool *workerpool.Pool) (*Reactor, error) {
	be, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		be:       be,
		all:      make(map[uintptr]Watchable),
		captured: make(map[uintptr]struct{}),
		pool:     pool,
		quit:     make(chan struct{}),
	}, nil
}

// Register adds a Watchable to the Reactor's all-set and arms its
// initial epoll interest.
func (r *Reactor) Register(w Watchable) error {
	r.bigMu.Lock()
	r.all[w.RawFD()] = w
	r.bigMu.Unlock()
	return r.be.Add(w.RawFD(), w.Interest())
}

// Watch recomputes and re-arms epoll interest from w's current state.
func (r *Reactor) Watch(w Watchable) error {
	return r.be.Modify(w.RawFD(), w.Interest())
}

// Unregister removes w from every set and the epoll instance.
func (r *Reactor) Unregister(w Watchable) {
	fd := w.RawFD()
	r.bigMu.Lock()
	delete(r.all, fd)
	delete(r.captured, fd)
	r.bigMu.Unlock()
	_ = r.be.Del(fd)
}

// Run drives the dispatch loop: while not shutting down, if ready is
// empty, release the set mutex and poll; for each event move the
// target into ready (if not already captured); pop one, capture it,
// and hand a processing task to the worker pool. Run blocks until
// Shutdown; callers invoke it from a dedicated goroutine.
func (r *Reactor) Run() {
	r.wg.Add(1)
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		default:
		}

		r.bigMu.Lock()
		if len(r.ready) == 0 {
			r.bigMu.Unlock()
			r.epollMu.Lock()
			events, err := r.be.Wait(50)
			r.epollMu.Unlock()
			if err == nil {
				r.bigMu.Lock()
				for _, ev := range events {
					w, ok := r.all[ev.fd]
					if !ok {
						continue
					}
					w.Deliver(ev.mask)
					if _, inCaptured := r.captured[ev.fd]; !inCaptured {
						r.ready = append(r.ready, ev.fd)
					}
				}
				r.bigMu.Unlock()
			}
			continue
		}

		fd := r.ready[0]
		r.ready = r.ready[1:]
		w, ok := r.all[fd]
		if !ok {
			r.bigMu.Unlock()
			continue
		}
		if !w.TryCapture() {
			// Already captured by a concurrent dispatch pass; drop —
			// its own release path will re-add it to ready if needed.
			r.bigMu.Unlock()
			continue
		}
		r.captured[fd] = struct{}{}
		r.bigMu.Unlock()

		r.pool.Submit(func() { r.processOne(w) })
	}
}

// processOne runs one Connection's process() pass, then releases:
// rotate postponed events into live, re-arm watch, or drop the
// Connection if it closed.
func (r *Reactor) processOne(w Watchable) {
	w.Process()

	fd := w.RawFD()
	morePending := w.Release()

	r.bigMu.Lock()
	delete(r.captured, fd)
	if w.Closed() {
		delete(r.all, fd)
		r.bigMu.Unlock()
		_ = r.be.Del(fd)
		return
	}
	if morePending {
		r.ready = append(r.ready, fd)
	}
	r.bigMu.Unlock()

	if !morePending {
		_ = r.Watch(w)
	}
}

// Shutdown stops Run and waits for it to return. Idempotent.
func (r *Reactor) Shutdown() {
	select {
	case <-r.quit:
		return
	default:
		close(r.quit)
	}
	r.wg.Wait()
	_ = r.be.Close()
}

// Len reports the number of registered Connections, for debug probes.
func (r *Reactor) Len() int {
	r.bigMu.Lock()
	defer r.bigMu.Unlock()
	return len(r.all)
}
