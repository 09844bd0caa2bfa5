// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native registers the platform GPU backends compiled into the
// HAL for this OS: Vulkan and GL on Linux, Metal and Vulkan on macOS,
// DX12, Vulkan and GL on Windows.
//
//	import _ "github.com/gogpu/gpusurf/backend/native"
//
// The HAL software backend also registers itself with the HAL on import;
// it is exposed as "software" by backend/wgpu and skipped here.
package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/gpusurf/backend"
	"github.com/gogpu/gpusurf/backend/wgpu"
)

// names maps HAL variants to registry names.
var names = map[gputypes.Backend]string{
	gputypes.BackendVulkan: backend.Vulkan,
	gputypes.BackendMetal:  backend.Metal,
	gputypes.BackendDX12:   backend.DX12,
	gputypes.BackendGL:     backend.GL,
}

func init() {
	for _, variant := range hal.AvailableBackends() {
		if name, ok := Name(variant); ok {
			register(name, variant)
		}
	}
}

// Name returns the registry name for a HAL variant.
func Name(variant gputypes.Backend) (string, bool) {
	name, ok := names[variant]
	return name, ok
}

func register(name string, variant gputypes.Backend) {
	backend.Register(name, func() backend.Backend {
		api, ok := hal.GetBackend(variant)
		if !ok {
			return nil
		}
		return wgpu.New(name, api)
	})
}
