// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"

	"github.com/gogpu/gpusurf/backend"
)

// Software and noop share the HAL variant BackendEmpty, so they are wrapped
// directly rather than looked up through the HAL registry.
func init() {
	backend.Register(backend.Software, func() backend.Backend {
		return New(backend.Software, software.API{}, WithTightCopies())
	})
	backend.Register(backend.Noop, func() backend.Backend {
		return New(backend.Noop, noop.API{}, WithTightCopies())
	})
}
