// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena implements generational slot storage.
//
// A Handle names a slot plus the generation it was issued for. Removing an
// entry bumps the slot generation, so stale handles never resolve to a
// later occupant of the same slot.
package arena

// Handle identifies an entry in an Arena. The zero Handle is never issued.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

type slot[T any] struct {
	value T
	gen   uint32
	used  bool
}

// Arena stores values addressed by Handle.
// Arena is not safe for concurrent use; callers provide locking.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.value = v
	s.used = true
	a.live++
	return Handle{index: idx, gen: s.gen}
}

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.used || s.gen != h.gen {
		return nil
	}
	return s
}

// Get returns the value for h.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.lookup(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Replace overwrites the value for a live handle.
func (a *Arena[T]) Replace(h Handle, v T) bool {
	s := a.lookup(h)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Remove deletes the entry for h and returns its value.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	s := a.lookup(h)
	if s == nil {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.used = false
	a.free = append(a.free, h.index)
	a.live--
	return v, true
}

// Len returns the number of live entries.
func (a *Arena[T]) Len() int { return a.live }
