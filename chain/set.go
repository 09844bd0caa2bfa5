// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package chain

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"sync"

	"github.com/gogpu/gpusurf"
)

var (
	// ErrExists is returned by Set.Create for a key already in use.
	ErrExists = errors.New("chain: key already in use")
	// ErrNotFound is returned for a key with no chain.
	ErrNotFound = errors.New("chain: no chain for key")
)

// Set is a keyed collection of chains sharing one device, typically one
// chain per window or per producing context.
type Set[K comparable] struct {
	dev *gpusurf.Device

	mu     sync.Mutex
	chains map[K]*Chain
}

// NewSet returns an empty set creating its chains on dev.
func NewSet[K comparable](dev *gpusurf.Device) *Set[K] {
	return &Set[K]{dev: dev, chains: make(map[K]*Chain)}
}

// Create creates a chain for key.
func (s *Set[K]) Create(key K, producer *gpusurf.Context, cfg Config) (*Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chains[key]; ok {
		return nil, fmt.Errorf("%w: %v", ErrExists, key)
	}
	c, err := New(s.dev, producer, cfg)
	if err != nil {
		return nil, err
	}
	s.chains[key] = c
	return c, nil
}

// Get returns the chain for key.
func (s *Set[K]) Get(key K) (*Chain, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[key]
	return c, ok
}

// Len returns the number of chains.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

// All iterates over a snapshot of the chains. Chains created or destroyed
// during iteration are not reflected.
func (s *Set[K]) All() iter.Seq2[K, *Chain] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.All(maps.Clone(s.chains))
}

// Destroy destroys the chain for key and forgets it. On failure the chain
// stays in the set.
func (s *Set[K]) Destroy(key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[key]
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	if err := c.Destroy(); err != nil {
		return err
	}
	delete(s.chains, key)
	return nil
}

// DestroyAll destroys every chain it can and returns the joined errors of
// the rest, which stay in the set.
func (s *Set[K]) DestroyAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for key, c := range s.chains {
		if err := c.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("chain %v: %w", key, err))
			continue
		}
		delete(s.chains, key)
	}
	return errors.Join(errs...)
}
