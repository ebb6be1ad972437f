// File: lps/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sharded Session storage: fnv32 hash, power-of-two shard count,
// per-shard RWMutex.

package lps

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/momentics/reactorhost/codec"
	"github.com/momentics/reactorhost/core/timer"
)

// Manager is a sharded registry of Sessions keyed by session id.
type Manager struct {
	shards []*shard
	mask   uint32
	wheel  *timer.Wheel
	ser    codec.Serializer
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager with shardCount shards (rounded up
// to a power of two; 16 when shardCount <= 0), using wheel for every Session's
// flush timers and serializer (defaulting to codec.JSON) for encoding.
func NewManager(shardCount int, wheel *timer.Wheel, serializer codec.Serializer) *Manager {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	if serializer == nil {
		serializer = codec.JSON{}
	}
	return &Manager{shards: shards, mask: m - 1, wheel: wheel, ser: serializer}
}

func (m *Manager) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return m.shards[h.Sum32()&m.mask]
}

// Create mints a fresh uuid-keyed Session.
func (m *Manager) Create() *Session {
	id := uuid.New().String()
	s := New(id, m.wheel, m.ser)
	sh := m.shardFor(id)
	sh.mu.Lock()
	sh.sessions[id] = s
	sh.mu.Unlock()
	return s
}

// Get returns the Session for id, if present — used on WebSocket
// reattach or a long-poll request carrying a prior session id.
func (m *Manager) Get(id string) (*Session, bool) {
	sh := m.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Delete removes a session, e.g. once Closed() and fully drained.
func (m *Manager) Delete(id string) {
	sh := m.shardFor(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// Range calls fn for every session currently stored, across all
// shards. fn must not call back into the Manager.
func (m *Manager) Range(fn func(*Session)) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			fn(s)
		}
		sh.mu.RUnlock()
	}
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
