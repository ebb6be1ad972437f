// File: core/buffer/buffer.go
// Package buffer implements the contiguous get/put-cursor byte buffer
// shared by every Connection's inbound and outbound side.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

// blockSize is the compaction/grow quantum: capacity always grows in
// 4 KiB blocks.
const blockSize = 4096

// Buffer owns a growable byte array with two cursors, get <= put <= cap.
// The readable span is [get, put); the writable span is [put, cap).
// Buffer is not safe for concurrent use: access is serialized by the
// worker currently holding the owning Connection.
type Buffer struct {
	data []byte
	get  int
	put  int

	// borrowed counts outstanding Peek/Read slices; compact refuses to
	// run while borrowed > 0.
	borrowed int
}

// New allocates a Buffer with the given initial capacity, rounded up to
// the nearest block.
func New(initialCap int) *Buffer {
	if initialCap <= 0 {
		initialCap = blockSize
	}
	return &Buffer{data: make([]byte, roundUp(initialCap))}
}

func roundUp(n int) int {
	if n%blockSize == 0 {
		return n
	}
	return (n/blockSize + 1) * blockSize
}

// Len returns the number of readable bytes currently buffered.
func (b *Buffer) Len() int { return b.put - b.get }

// Writable returns the number of bytes that can be written before a
// Reserve or Compact is needed.
func (b *Buffer) Writable() int { return len(b.data) - b.put }

// Cap returns the total underlying capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Peek returns up to n readable bytes without advancing get. The slice
// aliases the buffer's storage and is valid only until the next Skip,
// Compact, or Reserve call — callers must not retain it across those.
func (b *Buffer) Peek(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	if n <= 0 {
		return nil
	}
	b.borrowed++
	return b.data[b.get : b.get+n]
}

// ReleasePeek marks a previously returned Peek/Read slice as no longer
// borrowed, permitting compaction. Call exactly once per Peek/Read.
func (b *Buffer) ReleasePeek() {
	if b.borrowed > 0 {
		b.borrowed--
	}
}

// Skip advances get by n, discarding n bytes from the readable span.
// n is clamped to Len().
func (b *Buffer) Skip(n int) {
	if n > b.Len() {
		n = b.Len()
	}
	b.get += n
	if b.get == b.put {
		b.get, b.put = 0, 0
	}
}

// Read returns up to n readable bytes and advances get past them in one
// step; equivalent to Peek(n) followed by Skip(n) but only a single
// borrow is taken (released immediately since get already moved).
func (b *Buffer) Read(n int) []byte {
	s := b.Peek(n)
	b.ReleasePeek()
	b.Skip(len(s))
	return s
}

// Reserve ensures at least n bytes of writable space, growing or
// compacting the backing array as needed. It never reduces Len().
func (b *Buffer) Reserve(n int) {
	if b.Writable() >= n {
		return
	}
	if b.get > 0 && b.borrowed == 0 {
		b.compact()
		if b.Writable() >= n {
			return
		}
	}
	need := b.put + n
	newCap := roundUp(need)
	grown := make([]byte, newCap)
	copy(grown, b.data[b.get:b.put])
	b.put -= b.get
	b.get = 0
	b.data = grown
}

// compact slides the readable span down to offset 0, reclaiming the
// discarded prefix [0, get). Only legal when get > 0 and nothing holds
// a borrowed slice, per the Buffer invariant.
func (b *Buffer) compact() {
	if b.get == 0 || b.borrowed != 0 {
		return
	}
	n := copy(b.data, b.data[b.get:b.put])
	b.put = n
	b.get = 0
}

// AdvancePut marks n freshly written bytes (e.g. from a socket read) as
// readable. Caller must have written into the slice returned by
// WritableSlice first.
func (b *Buffer) AdvancePut(n int) {
	b.put += n
	if b.put > len(b.data) {
		b.put = len(b.data)
	}
}

// WritableSlice returns the raw writable region [put, cap) for direct
// socket reads; call AdvancePut afterward with the number of bytes
// actually filled.
func (b *Buffer) WritableSlice() []byte {
	return b.data[b.put:]
}

// Write appends bytes to the buffer, growing as needed. It never
// copies more than necessary and never retains the input slice.
func (b *Buffer) Write(p []byte) {
	b.Reserve(len(p))
	n := copy(b.data[b.put:], p)
	b.put += n
}

// Reset discards all buffered content without releasing capacity.
func (b *Buffer) Reset() {
	b.get, b.put, b.borrowed = 0, 0, 0
}
