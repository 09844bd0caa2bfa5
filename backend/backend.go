// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrDeviceLost is wrapped by any error that invalidates the whole device
	// (driver reset, device removal).
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("backend: operation not supported")
)

// API identifies the graphics API family a backend drives.
type API uint8

const (
	// APINative is a platform-native GPU API (Vulkan, Metal, DX12) or the
	// software rasterizer.
	APINative API = iota
	// APIGL is desktop OpenGL.
	APIGL
	// APIGLES is OpenGL ES.
	APIGLES
)

// String returns the API name.
func (a API) String() string {
	switch a {
	case APINative:
		return "native"
	case APIGL:
		return "gl"
	case APIGLES:
		return "gles"
	default:
		return fmt.Sprintf("API(%d)", a)
	}
}

// Code is a native windowing or driver error code.
type Code int

// Native error codes.
const (
	CodeNone Code = iota
	CodeFailed
	CodeBadAttribute
	CodeBadContext
	CodeBadDrawable
	CodeBadMatch
	CodeBadAlloc
	CodeBadAccess
	CodeBadNativeWindow
	CodeContextLost
	CodeTimeout
	CodeUnsupported
)

var codeNames = [...]string{
	CodeNone:            "none",
	CodeFailed:          "failed",
	CodeBadAttribute:    "bad attribute",
	CodeBadContext:      "bad context",
	CodeBadDrawable:     "bad drawable",
	CodeBadMatch:        "bad match",
	CodeBadAlloc:        "bad alloc",
	CodeBadAccess:       "bad access",
	CodeBadNativeWindow: "bad native window",
	CodeContextLost:     "context lost",
	CodeTimeout:         "timeout",
	CodeUnsupported:     "unsupported",
}

// String returns the code name.
func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a failed native call.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("backend: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the native code carried by err.
// Errors without a code report CodeFailed; nil reports CodeNone.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeFailed
}

// ContextDescriptor describes a rendering context to create.
type ContextDescriptor struct {
	Label         string
	Major, Minor  uint8
	Alpha         bool
	Depth         bool
	Stencil       bool
	Compatibility bool
}

// SurfaceDescriptor describes a surface to create. Widget surfaces are
// backed by the native window handle pair; a zero Window on a widget
// surface means a headless window.
type SurfaceDescriptor struct {
	Label     string
	Width     int
	Height    int
	CPUAccess bool
	Widget    bool
	Display   uintptr
	Window    uintptr
}

// SyncPoint marks a position in a device's submission stream. Reads that
// wait for a sync point observe every write submitted before it.
type SyncPoint uint64

// Backend is a registered platform backend.
type Backend interface {
	// Name returns the registry name (e.g. "vulkan", "software").
	Name() string

	// API returns the API family contexts on this backend use.
	API() API

	// Open initializes the backend. It is called at most once per process
	// through the registry; see Open.
	Open() (Instance, error)
}

// Instance is an initialized backend.
type Instance interface {
	// Adapters enumerates the adapters the backend exposes.
	Adapters() []gputypes.AdapterInfo

	// OpenDevice opens the adapter at index.
	OpenDevice(index int) (Device, error)

	// Close releases the instance.
	Close()
}

// Context is a backend rendering context.
type Context interface {
	NativeHandle() uintptr
}

// Surface is a backend drawable.
type Surface interface {
	NativeHandle() uintptr
	Size() (width, height int)
	Format() gputypes.TextureFormat
}

// SurfaceTexture is a read-only view of a surface owned by a consuming context.
type SurfaceTexture interface {
	NativeHandle() uintptr
}

// Device creates and drives contexts and surfaces for one adapter.
//
// Creation and destruction calls are serialized by the caller. Calls
// taking a Context are issued only from the thread the context is current
// on, so a backend may keep per-context state unguarded.
type Device interface {
	// MaxVersion is the highest context version the device can create.
	MaxVersion() (major, minor uint8)

	// SurfaceFormat is the pixel format of off-screen surfaces.
	SurfaceFormat() gputypes.TextureFormat

	// Native returns the underlying device and queue objects.
	Native() (device, queue any)

	CreateContext(desc *ContextDescriptor) (Context, error)
	DestroyContext(ctx Context)

	// MakeCurrent attaches ctx to the calling thread with target as its
	// drawable; target may be nil.
	MakeCurrent(ctx Context, target Surface) error
	ReleaseCurrent(ctx Context) error

	CreateSurface(desc *SurfaceDescriptor) (Surface, error)
	DestroySurface(s Surface)

	// Clear fills target with color.
	Clear(ctx Context, target Surface, color gputypes.Color) (SyncPoint, error)

	// Copy copies src into dst; both must have the same size. ctx may be
	// nil for copies outside any context.
	Copy(ctx Context, src, dst Surface) (SyncPoint, error)

	// Write uploads tightly packed RGBA pixels into target.
	Write(target Surface, pix []byte) (SyncPoint, error)

	// ReadPixels returns target's contents as tightly packed RGBA.
	// ctx may be nil for reads outside any context.
	ReadPixels(ctx Context, target Surface) ([]byte, error)

	// Wait blocks until every submission up to sp has completed.
	Wait(sp SyncPoint, timeout time.Duration) error

	// Present shows target and returns the surface to render the next
	// frame into. target must not be used afterwards except for
	// DestroySurface, also when Present fails.
	Present(ctx Context, target Surface) (Surface, error)

	CreateSurfaceTexture(ctx Context, s Surface) (SurfaceTexture, error)
	DestroySurfaceTexture(st SurfaceTexture)

	// ReadTexture returns the contents visible through st as tightly packed RGBA.
	ReadTexture(ctx Context, st SurfaceTexture) ([]byte, error)

	Destroy()
}
