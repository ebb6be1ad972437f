// File: core/timer/wheel.go
// Package timer implements the timer wheel: a single priority queue
// of timer entries shared by every Connection TTL and ad-hoc timeout
// in the engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Entry wraps a scheduled callback with restart semantics. A restart
// may shorten (schedule earlier) or prolong (push later) the next
// fire; either way the entry is moved to its new place in the heap.
type Entry struct {
	due     time.Time
	seq     uint64
	fn      func()
	canceled bool
	index   int // heap index, maintained by container/heap
}

// Canceled reports whether Cancel has been called. Cancellation is
// lazy: the entry is simply dropped when it would otherwise pop.
func (e *Entry) Canceled() bool { return e.canceled }

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq // FIFO tie-break
	}
	return h[i].due.Before(h[j].due)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is the shared priority queue of timer entries. It is driven
// externally (by the WorkerPool idle loop) through Tick, which pops
// and executes all due entries and returns the duration to sleep
// until the next one (capped at maxSleep).
type Wheel struct {
	mu   sync.Mutex
	h    entryHeap
	seq  uint64
	now  func() time.Time
}

const maxSleep = time.Second

// New creates an empty Wheel. nowFn defaults to time.Now; tests may
// override it for deterministic fire-order checks.
func New(nowFn func() time.Time) *Wheel {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Wheel{now: nowFn}
}

// Schedule enqueues fn to run at due. Returns the Entry so callers can
// Cancel or Restart it.
func (w *Wheel) Schedule(due time.Time, fn func()) *Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	e := &Entry{due: due, seq: w.seq, fn: fn}
	heap.Push(&w.h, e)
	return e
}

// After is a convenience wrapper scheduling fn after d elapses.
func (w *Wheel) After(d time.Duration, fn func()) *Entry {
	return w.Schedule(w.now().Add(d), fn)
}

// Cancel marks e as canceled; it is dropped, not removed, at the next
// pop — cheap and safe even if e already popped.
func (w *Wheel) Cancel(e *Entry) {
	w.mu.Lock()
	e.canceled = true
	w.mu.Unlock()
}

// Restart updates e's due time and clears any cancellation. While e is
// still in the heap it is reordered in place with container/heap.Fix;
// if it has already popped (`e.index` is -1) it is pushed again as a
// new entry with a fresh FIFO sequence number.
func (w *Wheel) Restart(e *Entry, due time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e.due = due
	e.canceled = false
	if e.index >= 0 {
		heap.Fix(&w.h, e.index)
		return
	}
	w.seq++
	e.seq = w.seq
	heap.Push(&w.h, e)
}

// Tick pops and runs every entry whose due time has passed (skipping
// canceled ones) and returns how long the caller should sleep before
// calling Tick again, bounded by maxSleep.
func (w *Wheel) Tick() time.Duration {
	now := w.now()
	for {
		w.mu.Lock()
		if w.h.Len() == 0 {
			w.mu.Unlock()
			return maxSleep
		}
		next := w.h[0]
		if next.due.After(now) {
			sleep := next.due.Sub(now)
			w.mu.Unlock()
			if sleep > maxSleep {
				sleep = maxSleep
			}
			return sleep
		}
		heap.Pop(&w.h)
		w.mu.Unlock()
		if !next.canceled {
			next.fn()
		}
	}
}

// Len reports the number of live (including not-yet-dropped canceled)
// entries — primarily for tests and debug probes.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.h.Len()
}
