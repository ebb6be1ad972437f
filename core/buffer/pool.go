// File: core/buffer/pool.go
// Package buffer — pooling for per-Connection Buffer instances.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A thin sync.Pool wrapper specialized to *Buffer, the only pooled
// type the reactor core needs.

package buffer

import "sync"

// Pool recycles Buffer instances sized for one Connection side
// (inbound or outbound). Buffers are reset, not zeroed, before reuse —
// stale bytes beyond put are never readable.
type Pool struct {
	sync sync.Pool
}

// NewPool creates a Pool producing buffers of the given default
// capacity when empty.
func NewPool(defaultCap int) *Pool {
	return &Pool{
		sync: sync.Pool{
			New: func() any { return New(defaultCap) },
		},
	}
}

// Get obtains a Buffer, freshly reset.
func (p *Pool) Get() *Buffer {
	b := p.sync.Get().(*Buffer)
	b.Reset()
	return b
}

// Put returns a Buffer for reuse. Buffers with outstanding borrows must
// not be returned.
func (p *Pool) Put(b *Buffer) {
	if b == nil || b.borrowed != 0 {
		return
	}
	p.sync.Put(b)
}
