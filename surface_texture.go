// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"image"
	"sync/atomic"

	"github.com/gogpu/gpusurf/backend"
)

// SurfaceTexture is a read-only borrow of a Free surface by a consumer
// context, usually on another thread than the one that rendered it. While
// any texture borrows a surface, the surface cannot be bound or destroyed.
//
// SurfaceTexture implements gpucontext.Texture.
type SurfaceTexture struct {
	surface  *Surface
	consumer *Context
	native   backend.SurfaceTexture
	live     atomic.Bool
}

// Width returns the texture width in pixels.
func (t *SurfaceTexture) Width() int { return t.surface.size.X }

// Height returns the texture height in pixels.
func (t *SurfaceTexture) Height() int { return t.surface.size.Y }

// Object returns the native texture handle.
func (t *SurfaceTexture) Object() uintptr { return t.native.NativeHandle() }

// Surface describes the borrowed surface.
func (t *SurfaceTexture) Surface() SurfaceInfo { return t.surface.Info() }

// Context returns the id of the consuming context.
func (t *SurfaceTexture) Context() ContextID { return t.consumer.id }

// Valid reports whether the texture is alive and its surface contents are
// not stale.
func (t *SurfaceTexture) Valid() bool {
	return t.check("") == nil
}

func (t *SurfaceTexture) check(op string) error {
	if !t.live.Load() {
		return newError(op, ErrDestroyed)
	}
	t.surface.mu.Lock()
	defer t.surface.mu.Unlock()
	if t.surface.stale {
		return newError(op, ErrInvalidated)
	}
	return t.surface.usable(op)
}

// ReadPixels reads the borrowed contents through the consumer context,
// which must be current on the calling thread.
func (t *SurfaceTexture) ReadPixels() (*image.RGBA, error) {
	const op = "read surface texture"
	d := t.consumer.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	if !t.consumer.IsCurrent() {
		return nil, newError(op, ErrNotCurrent)
	}
	if err := t.check(op); err != nil {
		return nil, err
	}
	pix, err := d.native.ReadTexture(t.consumer.native, t.native)
	if err != nil {
		return nil, d.fail(op, ErrFailed, err)
	}
	return newRGBA(t.surface.size, pix), nil
}
