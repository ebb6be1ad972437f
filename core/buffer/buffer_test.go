// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferRoundTrip(t *testing.T) {
	b := New(16)
	var want bytes.Buffer
	var got bytes.Buffer

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := r.Intn(37)
		chunk := make([]byte, n)
		r.Read(chunk)
		b.Write(chunk)
		want.Write(chunk)

		if r.Intn(2) == 0 && b.Len() > 0 {
			readN := r.Intn(b.Len() + 1)
			got.Write(b.Read(readN))
		} else if b.Len() > 0 {
			skipN := r.Intn(b.Len() + 1)
			skipped := b.Peek(skipN)
			got.Write(skipped)
			b.ReleasePeek()
			b.Skip(skipN)
		}
	}
	// Drain remainder.
	got.Write(b.Read(b.Len()))

	require.Equal(t, want.Len(), got.Len())
	require.True(t, bytes.Equal(want.Bytes(), got.Bytes()))
}

func TestBufferCompactionRequiresNoBorrow(t *testing.T) {
	b := New(8)
	b.Write([]byte("hello world"))
	s := b.Peek(5)
	require.Equal(t, "hello", string(s))
	b.Skip(5)
	// Borrow still outstanding: Reserve must not corrupt s.
	b.Reserve(4096)
	require.Equal(t, "hello", string(s))
	b.ReleasePeek()
}

func TestPoolReset(t *testing.T) {
	p := NewPool(16)
	b := p.Get()
	b.Write([]byte("abc"))
	p.Put(b)
	b2 := p.Get()
	require.Equal(t, 0, b2.Len())
}
