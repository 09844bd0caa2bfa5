// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

// The software and noop backends need no platform support.
import _ "github.com/gogpu/gpusurf/backend/wgpu"
