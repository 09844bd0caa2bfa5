// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Registered backend names.
const (
	Vulkan   = "vulkan"
	Metal    = "metal"
	DX12     = "dx12"
	GL       = "gl"
	Software = "software"
	Noop     = "noop"
)

// Factory creates a backend.
type Factory func() Backend

// registry holds registered backends.
// Priority order for selection (first available wins): platform-native
// GPU APIs first, GL next, the software rasterizer as fallback.
var registry = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(Vulkan, Metal, DX12, GL, Software, Noop),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registry.Register(name, factory)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a backend by name, or nil if it is not registered.
func Get(name string) Backend {
	return registry.Get(name)
}

// DefaultName returns the name of the highest-priority registered backend,
// or "" if none is registered.
func DefaultName() string {
	return registry.BestName()
}

// Default returns the highest-priority registered backend, or nil.
func Default() Backend {
	return registry.Best()
}

// Process-wide instances. A backend is initialized at most once per
// process and stays alive until Shutdown. Some native stacks (ANGLE, EGL
// displays) may only be initialized once, so connections share instances.
var (
	instancesMu sync.Mutex
	instances   = make(map[string]Instance)
)

// Open returns the process-wide instance for the named backend,
// initializing it on first use.
func Open(name string) (Instance, error) {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	if inst, ok := instances[name]; ok {
		return inst, nil
	}
	b := Get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	inst, err := b.Open()
	if err != nil {
		return nil, err
	}
	instances[name] = inst
	return inst, nil
}

// IsOpen reports whether the named backend has a live process-wide instance.
func IsOpen(name string) bool {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	_, ok := instances[name]
	return ok
}

// Shutdown closes every process-wide instance. It is meant to run once at
// process exit, after every device has been destroyed.
func Shutdown() {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	for name, inst := range instances {
		inst.Close()
		delete(instances, name)
	}
}
