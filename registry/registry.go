// File: registry/registry.go
// Package registry implements the Transport handler registry: a
// handler map resolved by longest-prefix match against the request
// path. The match is a bare string prefix, deliberately without a /
// boundary requirement, which rules out net/http.ServeMux and
// gorilla/mux semantics alike.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package registry

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps request paths to opaque handlers via longest-prefix
// match. The handler type is left as `any` so both httpf.Handler and
// a WebSocket/packet dispatch function can share one registry.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	prefix  string
	handler any
}

func New() *Registry {
	return &Registry{}
}

// Register binds prefix to handler. Re-registering the same prefix
// replaces its handler.
func (r *Registry) Register(prefix string, handler any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.prefix == prefix {
			r.entries[i].handler = handler
			return
		}
	}
	r.entries = append(r.entries, entry{prefix: prefix, handler: handler})
	sort.Slice(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})
}

// Lookup returns the handler whose prefix is the longest match for
// path, scanning longest-first so the first hit is the winner.
func (r *Registry) Lookup(path string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.prefix == path || strings.HasPrefix(path, e.prefix) {
			return e.handler, true
		}
	}
	return nil, false
}

// Typed adapts Lookup to a concrete handler type, for use as e.g. an
// httpf.Lookup without that package needing to know about Registry.
func Typed[T any](r *Registry) func(path string) (T, bool) {
	return func(path string) (T, bool) {
		var zero T
		h, ok := r.Lookup(path)
		if !ok {
			return zero, false
		}
		t, ok := h.(T)
		return t, ok
	}
}
