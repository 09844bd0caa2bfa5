// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpusurf/backend"
	"github.com/gogpu/gpusurf/internal/arena"
	"github.com/gogpu/gpusurf/internal/thread"
	"github.com/gogpu/gpusurf/internal/threadmap"
)

// ContextID identifies a context within the process.
type ContextID uint64

var nextContextID atomic.Uint64

// ownerDestroyed in Context.owner marks a destroyed context.
const ownerDestroyed = ^uint64(0)

// current maps each OS thread to the context current on it.
var current = threadmap.New[*Context]()

// CurrentContext returns the context current on the calling OS thread, or
// nil.
func CurrentContext() *Context {
	c, _ := current.Load(thread.ID())
	return c
}

// Context is a rendering context. It is current on at most one OS thread
// at a time, and at most one surface is bound to it as its drawable.
//
// Goroutines move between OS threads; call runtime.LockOSThread before
// MakeCurrent and keep the thread locked until MakeNotCurrent.
type Context struct {
	id     ContextID
	dev    *Device
	handle arena.Handle
	attrs  ContextAttributes
	native backend.Context
	policy CurrentPolicy

	// owner is the id of the thread the context is current on, zero when
	// it is not current.
	owner atomic.Uint64

	mu       sync.Mutex
	released *sync.Cond // signalled when owner returns to zero
	bound    *Surface
	textures int
}

func newContext(d *Device, id ContextID, attrs ContextAttributes, native backend.Context) *Context {
	c := &Context{
		id:     id,
		dev:    d,
		attrs:  attrs,
		native: native,
		policy: d.opts.policy,
	}
	c.released = sync.NewCond(&c.mu)
	return c
}

// ID returns the process-unique context id.
func (c *Context) ID() ContextID { return c.id }

// Attributes returns the attributes the context was created with.
func (c *Context) Attributes() ContextAttributes { return c.attrs }

// Device returns the device that created the context.
func (c *Context) Device() *Device { return c.dev }

// NativeHandle returns the backend context handle.
func (c *Context) NativeHandle() uintptr { return c.native.NativeHandle() }

// IsCurrent reports whether the context is current on the calling thread.
func (c *Context) IsCurrent() bool { return c.owner.Load() == thread.ID() }

// BoundSurface returns the surface bound to the context, or nil.
func (c *Context) BoundSurface() *Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// MakeCurrent makes the context current on the calling OS thread. If
// another context was current on this thread it is released first. If the
// context is current on another thread, MakeCurrent fails with
// ErrContextInUse under the FailFast policy and waits for the owner to
// call MakeNotCurrent under Block.
func (c *Context) MakeCurrent() error {
	const op = "make current"
	d := c.dev
	if err := d.check(op); err != nil {
		return err
	}
	tid := thread.ID()
	switch c.owner.Load() {
	case tid:
		return nil
	case ownerDestroyed:
		return newError(op, ErrDestroyed)
	}
	if err := c.acquire(op, tid); err != nil {
		return err
	}

	if prev, loaded := current.Swap(tid, c); loaded && prev != c {
		prev.detach(tid)
	}

	c.mu.Lock()
	err := d.native.MakeCurrent(c.native, c.boundNative())
	c.mu.Unlock()
	if err != nil {
		current.CompareAndDelete(tid, c)
		c.release(tid)
		return d.fail(op, ErrFailed, err)
	}
	d.log().Debug("gpusurf: context current", "context", c.id, "thread", tid)
	return nil
}

// acquire claims the owner field for tid according to the policy.
func (c *Context) acquire(op string, tid uint64) error {
	if c.owner.CompareAndSwap(0, tid) {
		return nil
	}
	if c.policy != Block {
		return newError(op, ErrContextInUse)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.owner.CompareAndSwap(0, tid) {
		if c.owner.Load() == ownerDestroyed {
			return newError(op, ErrDestroyed)
		}
		c.released.Wait()
	}
	return nil
}

// release clears the owner field if tid holds it and wakes waiters.
func (c *Context) release(tid uint64) {
	if !c.owner.CompareAndSwap(tid, 0) {
		return
	}
	c.mu.Lock()
	c.released.Broadcast()
	c.mu.Unlock()
}

// detach releases c from tid after another context took its place.
func (c *Context) detach(tid uint64) {
	if c.owner.Load() != tid {
		return
	}
	if err := c.dev.native.ReleaseCurrent(c.native); err != nil {
		c.dev.log().Warn("gpusurf: release replaced context", "context", c.id, "err", err)
	}
	c.release(tid)
}

// MakeNotCurrent releases the context from the calling thread. It is a
// no-op when the context is not current, and fails with ErrContextInUse
// when it is current on another thread.
func (c *Context) MakeNotCurrent() error {
	const op = "make not current"
	tid := thread.ID()
	switch c.owner.Load() {
	case 0, ownerDestroyed:
		return nil
	case tid:
	default:
		return newError(op, ErrContextInUse)
	}

	var err error
	if !c.dev.lost.Load() {
		if nerr := c.dev.native.ReleaseCurrent(c.native); nerr != nil {
			err = c.dev.fail(op, ErrFailed, nerr)
		}
	}
	current.CompareAndDelete(tid, c)
	c.release(tid)
	c.dev.log().Debug("gpusurf: context released", "context", c.id, "thread", tid)
	return err
}

// boundNative returns the bound surface's native object. Caller holds c.mu.
func (c *Context) boundNative() backend.Surface {
	if c.bound == nil {
		return nil
	}
	return c.bound.native
}

// lockOwned locks c.mu after checking that c is not current on another
// thread. It reports whether c is current on the calling thread.
func (c *Context) lockOwned(op string) (owned bool, err error) {
	tid := thread.ID()
	c.mu.Lock()
	switch owner := c.owner.Load(); owner {
	case ownerDestroyed:
		c.mu.Unlock()
		return false, newError(op, ErrDestroyed)
	case 0, tid:
		return owner == tid, nil
	default:
		c.mu.Unlock()
		return false, newError(op, ErrContextInUse)
	}
}

// BindSurface makes s the context's drawable and returns the surface that
// was bound before, or nil. The returned surface is Free and belongs to the
// caller again. On failure the previous binding is kept.
//
// s must be a Free surface of the same device. The context must not be
// current on another thread.
func (c *Context) BindSurface(s *Surface) (*Surface, error) {
	const op = "bind surface"
	d := c.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	if s == nil || s.dev != d {
		return nil, newError(op, ErrIncompatibleSurface)
	}

	owned, err := c.lockOwned(op)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if c.bound == s {
		return nil, nil
	}

	// The displaced surface is locked together with s, in the same order
	// CopySurface uses.
	prev := c.bound
	unlock := lockSurfaces(s, prev)
	defer unlock()
	if err := s.usable(op); err != nil {
		return nil, err
	}
	if s.boundTo != nil || s.textures > 0 {
		return nil, newError(op, ErrSurfaceInUse)
	}
	if owned {
		if err := d.native.MakeCurrent(c.native, s.native); err != nil {
			return nil, d.fail(op, ErrBindFailed, err)
		}
	}

	if prev != nil {
		prev.unbindLocked()
	}
	s.boundTo = c
	c.bound = s
	d.log().Debug("gpusurf: surface bound", "context", c.id, "surface", s.id)
	return prev, nil
}

// UnbindSurface detaches the bound surface and returns it, Free. Unbinding
// publishes everything rendered into the surface: surface textures created
// from it afterwards observe those writes.
func (c *Context) UnbindSurface() (*Surface, error) {
	const op = "unbind surface"
	d := c.dev
	owned, err := c.lockOwned(op)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	s := c.bound
	if s == nil {
		return nil, newError(op, ErrNothingBound)
	}
	if owned && !d.lost.Load() {
		if err := d.native.MakeCurrent(c.native, nil); err != nil {
			return nil, d.fail(op, ErrFailed, err)
		}
	}
	s.mu.Lock()
	s.unbindLocked()
	s.mu.Unlock()
	c.bound = nil
	d.log().Debug("gpusurf: surface unbound", "context", c.id, "surface", s.id)
	return s, nil
}

// currentBound locks c.mu and returns the bound surface, requiring c to be
// current on the calling thread.
func (c *Context) currentBound(op string) (*Surface, error) {
	if err := c.dev.check(op); err != nil {
		return nil, err
	}
	if !c.IsCurrent() {
		return nil, newError(op, ErrNotCurrent)
	}
	c.mu.Lock()
	if c.bound == nil {
		c.mu.Unlock()
		return nil, newError(op, ErrNothingBound)
	}
	return c.bound, nil
}

// Flush publishes the writes made so far to the bound surface without
// unbinding it.
func (c *Context) Flush() error {
	s, err := c.currentBound("flush")
	if err != nil {
		return err
	}
	defer c.mu.Unlock()
	s.mu.Lock()
	s.published = s.written
	s.mu.Unlock()
	return nil
}

// Clear fills the bound surface with color. Contexts without an alpha
// channel clear to opaque.
func (c *Context) Clear(color gputypes.Color) error {
	const op = "clear"
	s, err := c.currentBound(op)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()
	if !c.attrs.Flags.Has(AttrAlpha) {
		color.A = 1
	}
	sp, err := c.dev.native.Clear(c.native, s.native, color)
	if err != nil {
		return c.dev.fail(op, ErrFailed, err)
	}
	s.mu.Lock()
	s.written = sp
	s.mu.Unlock()
	return nil
}

// ReadPixels reads the bound surface back into an image.
func (c *Context) ReadPixels() (*image.RGBA, error) {
	const op = "read pixels"
	s, err := c.currentBound(op)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if s.kind == SurfaceWidget {
		return nil, &Error{Op: op, Kind: ErrSurfaceDataInaccessible, Err: ErrWidgetAttached}
	}
	pix, err := c.dev.native.ReadPixels(c.native, s.native)
	if err != nil {
		return nil, c.dev.fail(op, ErrFailed, err)
	}
	return newRGBA(s.size, pix), nil
}

// Destroy destroys the context through its device.
func (c *Context) Destroy() error { return c.dev.DestroyContext(c) }
