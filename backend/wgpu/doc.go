// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the gpusurf backend capability interface on top
// of the gogpu/wgpu hardware abstraction layer (HAL).
//
// Importing the package registers two backends:
//
//   - "software": the HAL CPU rasterizer. Surfaces hold real pixels, so
//     clears and readbacks are observable. Always available.
//   - "noop": the HAL no-op backend. Lifecycle only, pixels read as zero.
//
// Platform GPU APIs are registered by backend/native, which wraps each
// HAL backend compiled into the binary with New.
//
// # Mapping
//
// A context owns a HAL command encoder; its commands are recorded without
// any device-wide lock and only the queue submission is serialized. An
// off-screen surface is a HAL texture plus a render view; a window surface
// is a configured HAL surface holding its acquired frame. A surface texture
// is a second view of the surface's texture created for the consuming
// context.
//
// Sync points are HAL queue submission indices. Waiting polls
// Queue.PollCompleted and falls back to Device.WaitIdle once the timeout
// elapses, so backends without asynchronous completion still block
// correctly.
package wgpu
