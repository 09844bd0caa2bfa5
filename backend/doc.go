// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the capability interface platform backends
// implement for gpusurf, and the process-wide backend registry.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected by name or by
// priority. The HAL-backed software and noop backends register on import:
//
//	import _ "github.com/gogpu/gpusurf/backend/wgpu"
//
// The platform GPU APIs (Vulkan, Metal, DX12, GL) register through:
//
//	import _ "github.com/gogpu/gpusurf/backend/native"
//
// # Backend Selection
//
// Use Default to get the best available backend, or Get to request a
// specific one:
//
//	b := backend.Default()
//	b := backend.Get("software")
//
// # Instances
//
// Open initializes a backend at most once per process and caches the
// instance; Shutdown closes every cached instance at process exit.
package backend
