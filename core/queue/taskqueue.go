// File: core/queue/taskqueue.go
// Package queue implements the TaskQueue: a priority queue of
// deferred closures keyed by due time, ties broken FIFO.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The eapache/queue ring is pure FIFO with no due-time ordering; here
// it backs only the zero-delay fast path (Submit), while a small
// time-ordered heap backs delayed tasks. Both merge into one
// due-time-ascending stream via Pop, which is what WorkerPool
// consumes.

package queue

import (
	"container/heap"
	"sync"
	"time"

	eq "github.com/eapache/queue"
)

// Task is a unit of deferred work: a callable, a due time, and a
// sequence number used to break due-time ties in FIFO order.
type Task struct {
	Due time.Time
	Fn  func()
	seq uint64
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].Due.Before(h[j].Due)
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// TaskQueue merges a zero-delay FIFO ring with a due-time heap for
// tasks scheduled into the future. Pop always returns whichever is due
// soonest; ties between the FIFO ring and the heap favor the ring,
// since its tasks were due at enqueue time and the heap task cannot be
// due earlier than "now".
type TaskQueue struct {
	mu   sync.Mutex
	fifo *eq.Queue
	h    taskHeap
	seq  uint64
	now  func() time.Time
}

// New creates an empty TaskQueue. nowFn defaults to time.Now.
func New(nowFn func() time.Time) *TaskQueue {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TaskQueue{fifo: eq.New(), now: nowFn}
}

// Submit enqueues fn to run as soon as possible, FIFO among other
// zero-delay submissions.
func (q *TaskQueue) Submit(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.fifo.Add(&Task{Due: q.now(), Fn: fn, seq: q.seq})
}

// Schedule enqueues fn to run at due, ordered among other delayed
// tasks by due time then FIFO.
func (q *TaskQueue) Schedule(due time.Time, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.h, &Task{Due: due, Fn: fn, seq: q.seq})
}

// Pop removes and returns the next due task, or (nil, false) if the
// queue is empty or nothing is due yet.
func (q *TaskQueue) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var fromHeap *Task
	if q.h.Len() > 0 && !q.h[0].Due.After(now) {
		fromHeap = q.h[0]
	}

	if q.fifo.Length() == 0 {
		if fromHeap == nil {
			return nil, false
		}
		heap.Pop(&q.h)
		return fromHeap, true
	}
	fromFifo := q.fifo.Peek().(*Task)
	if fromHeap == nil || !fromHeap.Due.Before(fromFifo.Due) {
		q.fifo.Remove()
		return fromFifo, true
	}
	heap.Pop(&q.h)
	return fromHeap, true
}

// Len reports the total number of pending tasks across both queues.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fifo.Length() + q.h.Len()
}
