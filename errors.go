// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpusurf/backend"
)

// Error kinds. Every failing operation returns an *Error whose Kind is one
// of these, so callers can test with errors.Is.
var (
	ErrUnknownBackend     = errors.New("gpusurf: unknown backend")
	ErrNoAdapterFound     = errors.New("gpusurf: no adapter found")
	ErrAdapterUnavailable = errors.New("gpusurf: adapter unavailable")
	ErrDeviceInUse        = errors.New("gpusurf: device still has live contexts or surfaces")
	ErrContextLost        = errors.New("gpusurf: context lost")
	ErrFailed             = errors.New("gpusurf: native call failed")
	ErrDestroyed          = errors.New("gpusurf: object destroyed")

	ErrContextCreationFailed = errors.New("gpusurf: context creation failed")
	ErrContextInUse          = errors.New("gpusurf: context in use")
	ErrIncompatibleContext   = errors.New("gpusurf: context belongs to another device")
	ErrNotCurrent            = errors.New("gpusurf: context not current on this thread")

	ErrSurfaceCreationFailed   = errors.New("gpusurf: surface creation failed")
	ErrIncompatibleSurface     = errors.New("gpusurf: incompatible surface")
	ErrSurfaceInUse            = errors.New("gpusurf: surface in use")
	ErrBindFailed              = errors.New("gpusurf: bind failed")
	ErrNothingBound            = errors.New("gpusurf: no surface bound")
	ErrPresentFailed           = errors.New("gpusurf: present failed")
	ErrNoWidgetAttached        = errors.New("gpusurf: no widget attached")
	ErrWidgetAttached          = errors.New("gpusurf: widget attached")
	ErrSurfaceDataInaccessible = errors.New("gpusurf: surface data inaccessible")
	ErrInvalidSize             = errors.New("gpusurf: invalid size")

	ErrSurfaceTextureCreationFailed = errors.New("gpusurf: surface texture creation failed")
	ErrIncompatibleSurfaceTexture   = errors.New("gpusurf: surface texture belongs to another context")
	ErrInvalidated                  = errors.New("gpusurf: surface texture invalidated")
)

// NativeCode is the windowing-system error code attached to failures of
// native calls.
type NativeCode = backend.Code

// Native codes.
const (
	CodeNone            = backend.CodeNone
	CodeFailed          = backend.CodeFailed
	CodeBadAttribute    = backend.CodeBadAttribute
	CodeBadContext      = backend.CodeBadContext
	CodeBadDrawable     = backend.CodeBadDrawable
	CodeBadMatch        = backend.CodeBadMatch
	CodeBadAlloc        = backend.CodeBadAlloc
	CodeBadAccess       = backend.CodeBadAccess
	CodeBadNativeWindow = backend.CodeBadNativeWindow
	CodeContextLost     = backend.CodeContextLost
	CodeTimeout         = backend.CodeTimeout
	CodeUnsupported     = backend.CodeUnsupported
)

// Error describes a failed operation.
//
// Kind is one of the package's Err* values. Code is the native code when
// the failure came from a backend call, CodeNone otherwise. Err is the
// underlying cause, if any.
type Error struct {
	Op   string
	Kind error
	Code NativeCode
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteByte(')')
	}
	if e.Code != CodeNone {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

func wrapError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Code: backend.CodeOf(err), Err: err}
}

// CodeOf returns the native code carried by err, or CodeNone.
func CodeOf(err error) NativeCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return CodeNone
	}
	return backend.CodeOf(err)
}
