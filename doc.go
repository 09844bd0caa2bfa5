// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpusurf manages GPU rendering contexts and the surfaces they draw
// into, across platform backends.
//
// # Overview
//
// A Connection opens a backend and enumerates its adapters. A Device is
// opened on one adapter and creates Contexts and Surfaces. A Context is
// made current on one OS thread at a time; a Surface is bound to at most
// one Context as its drawable. Once unbound, a surface can be lent to
// another context, typically on another thread, as a read-only
// SurfaceTexture. The chain sub-package rotates a ring of surfaces between
// a producing and a consuming context.
//
// # Quick Start
//
//	conn, err := gpusurf.Connect(gpusurf.WithBackend("software"))
//	adapter, err := conn.CreateAdapter(gpusurf.PreferDefault)
//	dev, err := gpusurf.NewDevice(conn, adapter)
//
//	runtime.LockOSThread()
//	ctx, err := dev.CreateContext(gpusurf.DefaultContextAttributes())
//	s, err := dev.CreateSurface(ctx, gpusurf.AccessGPUCPU, gpusurf.GenericSurface(image.Pt(64, 64)))
//	_, err = ctx.BindSurface(s)
//	err = ctx.MakeCurrent()
//	err = ctx.Clear(gputypes.Color{R: 1, A: 1})
//	s, err = ctx.UnbindSurface()
//
// # Threads
//
// Current-ness is tracked per OS thread. Lock the calling goroutine to its
// thread with runtime.LockOSThread for as long as a context is current on
// it. MakeCurrent on a context current elsewhere fails with ErrContextInUse,
// or waits when the device uses the Block policy.
//
// # Backends
//
// The software and noop backends are always registered. Import
// github.com/gogpu/gpusurf/backend/native to register the platform GPU
// backends (Vulkan, Metal, DX12, GL) available on the build target.
//
// # Errors
//
// Every failure is an *Error whose Kind is one of the package Err* values;
// test it with errors.Is. ErrContextLost is terminal for the device: tear
// down its contexts and surfaces and open a new device.
package gpusurf

// Version information.
const (
	Version      = "0.1.0"
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)
