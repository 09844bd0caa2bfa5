// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

func TestName(t *testing.T) {
	tests := []struct {
		variant gputypes.Backend
		want    string
		ok      bool
	}{
		{gputypes.BackendVulkan, backend.Vulkan, true},
		{gputypes.BackendMetal, backend.Metal, true},
		{gputypes.BackendDX12, backend.DX12, true},
		{gputypes.BackendGL, backend.GL, true},
		{gputypes.BackendEmpty, "", false},
	}
	for _, tt := range tests {
		got, ok := Name(tt.variant)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Name(%v) = (%q, %v), want (%q, %v)", tt.variant, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRegisteredMatchHAL(t *testing.T) {
	for _, variant := range hal.AvailableBackends() {
		name, ok := Name(variant)
		if !ok {
			continue
		}
		if !backend.IsRegistered(name) {
			t.Errorf("HAL backend %v available but %q not registered", variant, name)
		}
	}
}
