// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package threadmap provides a sharded map keyed by OS thread id.
//
// It records which value (typically a rendering context) is current on
// each thread. Threads only ever touch their own key, so entries are spread
// over shards to keep unrelated threads off a shared lock.
package threadmap

import "sync"

const (
	// shardCount must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16
	shardMask  = shardCount - 1
)

// Map is a thread-safe map from thread id to V.
// The zero value is not usable; create maps with New.
type Map[V comparable] struct {
	shards [shardCount]*shard[V]
}

type shard[V comparable] struct {
	mu      sync.Mutex
	entries map[uint64]V
}

// New creates an empty map.
func New[V comparable]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{entries: make(map[uint64]V)}
	}
	return m
}

// shardFor mixes the id so sequential thread ids spread across shards.
func (m *Map[V]) shardFor(tid uint64) *shard[V] {
	h := tid * 0x9E3779B97F4A7C15
	return m.shards[(h>>32)&shardMask]
}

// Load returns the value stored for tid.
func (m *Map[V]) Load(tid uint64) (V, bool) {
	s := m.shardFor(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[tid]
	return v, ok
}

// Swap stores v for tid and returns the previous value, if any.
func (m *Map[V]) Swap(tid uint64, v V) (prev V, loaded bool) {
	s := m.shardFor(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, loaded = s.entries[tid]
	s.entries[tid] = v
	return prev, loaded
}

// CompareAndDelete removes the entry for tid only if it still holds old.
func (m *Map[V]) CompareAndDelete(tid uint64, old V) bool {
	s := m.shardFor(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[tid]; ok && cur == old {
		delete(s.entries, tid)
		return true
	}
	return false
}
