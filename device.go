// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpusurf/backend"
	"github.com/gogpu/gpusurf/internal/arena"
)

var nextDeviceID atomic.Uint64

// Device is an opened adapter. It creates contexts and surfaces and
// rejects objects that belong to other devices.
//
// Creation and destruction of contexts, surfaces and surface textures run
// in a per-device critical section, because native object creation is not
// reentrant on every backend. Rendering through a current context does not
// take it.
//
// A Device is safe for concurrent use.
type Device struct {
	id      uint64
	adapter Adapter
	api     API
	backend string
	native  backend.Device
	opts    options

	mu       sync.Mutex
	contexts arena.Arena[*Context]
	surfaces arena.Arena[*Surface]

	destroyed atomic.Bool
	lost      atomic.Bool
}

// NewDevice opens adapter, which must come from conn. Options override the
// ones conn was opened with.
func NewDevice(conn *Connection, adapter Adapter, opts ...Option) (*Device, error) {
	const op = "new device"
	if conn == nil || conn.closed.Load() {
		return nil, newError(op, ErrAdapterUnavailable)
	}
	if adapter.conn != conn.id || adapter.Index < 0 || adapter.Index >= len(conn.adapters) {
		return nil, &Error{Op: op, Kind: ErrAdapterUnavailable, Err: fmt.Errorf("adapter %q not from this connection", adapter.Name)}
	}

	o := conn.opts
	o.apply(opts)

	native, err := conn.inst.OpenDevice(adapter.Index)
	if err != nil {
		return nil, wrapError(op, ErrAdapterUnavailable, err)
	}
	d := &Device{
		id:      nextDeviceID.Add(1),
		adapter: adapter,
		api:     conn.api,
		backend: conn.name,
		native:  native,
		opts:    o,
	}
	d.log().Info("gpusurf: device opened",
		"device", d.id,
		"adapter", adapter.String(),
		"backend", conn.name,
		"policy", o.policy)
	return d, nil
}

func (d *Device) log() *slog.Logger { return d.opts.log() }

// Adapter returns the adapter the device was opened on.
func (d *Device) Adapter() Adapter { return d.adapter }

// API returns the API family of the device's contexts.
func (d *Device) API() API { return d.api }

// Backend returns the backend name.
func (d *Device) Backend() string { return d.backend }

// SurfaceFormat returns the pixel format of off-screen surfaces.
func (d *Device) SurfaceFormat() gputypes.TextureFormat { return d.native.SurfaceFormat() }

// IsLost reports whether the device was lost. A lost device fails every
// operation except destruction with ErrContextLost; tear everything down
// and open a new device.
func (d *Device) IsLost() bool { return d.lost.Load() }

// check rejects operations on destroyed or lost devices.
func (d *Device) check(op string) error {
	if d.destroyed.Load() {
		return newError(op, ErrDestroyed)
	}
	if d.lost.Load() {
		return &Error{Op: op, Kind: ErrContextLost, Code: CodeContextLost}
	}
	return nil
}

// fail wraps a native error. Device loss overrides kind and marks the
// device lost.
func (d *Device) fail(op string, kind, err error) error {
	if errors.Is(err, backend.ErrDeviceLost) {
		if d.lost.CompareAndSwap(false, true) {
			d.log().Warn("gpusurf: device lost", "device", d.id, "op", op, "err", err)
		}
		kind = ErrContextLost
	}
	return wrapError(op, kind, err)
}

// checkContext verifies that c is a live context of d. Caller holds d.mu.
func (d *Device) checkContext(op string, c *Context) error {
	if c == nil || c.dev != d {
		return newError(op, ErrIncompatibleContext)
	}
	if live, ok := d.contexts.Get(c.handle); !ok || live != c {
		return newError(op, ErrDestroyed)
	}
	return nil
}

// checkSurface verifies that s is a live surface of d. Caller holds d.mu.
func (d *Device) checkSurface(op string, s *Surface) error {
	if s == nil || s.dev != d {
		return newError(op, ErrIncompatibleSurface)
	}
	// A presented surface's handle names its replacement.
	if live, ok := d.surfaces.Get(s.handle); !ok || live != s {
		return newError(op, ErrDestroyed)
	}
	return nil
}

// ContextDescriptor validates attrs against the device.
func (d *Device) ContextDescriptor(attrs ContextAttributes) (ContextDescriptor, error) {
	const op = "create context"
	major, minor := d.native.MaxVersion()
	if limit := (GLVersion{major, minor}); limit.Less(attrs.Version) {
		return ContextDescriptor{}, &Error{
			Op:   op,
			Kind: ErrContextCreationFailed,
			Code: CodeBadAttribute,
			Err:  fmt.Errorf("version %s above device maximum %s", attrs.Version, limit),
		}
	}
	if attrs.Flags.Has(AttrCompatibilityProfile) && d.api != APIGL {
		return ContextDescriptor{}, &Error{
			Op:   op,
			Kind: ErrContextCreationFailed,
			Code: CodeBadAttribute,
			Err:  fmt.Errorf("compatibility profile unavailable on %s", d.api),
		}
	}
	return ContextDescriptor{attrs: attrs, deviceID: d.id}, nil
}

// CreateContext creates a context that is not current on any thread.
func (d *Device) CreateContext(attrs ContextAttributes) (*Context, error) {
	desc, err := d.ContextDescriptor(attrs)
	if err != nil {
		return nil, err
	}
	return d.CreateContextFromDescriptor(desc)
}

// CreateContextFromDescriptor creates a context from a descriptor obtained
// from this device.
func (d *Device) CreateContextFromDescriptor(desc ContextDescriptor) (*Context, error) {
	const op = "create context"
	if desc.deviceID != d.id {
		return nil, &Error{Op: op, Kind: ErrContextCreationFailed, Code: CodeBadMatch, Err: ErrIncompatibleContext}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(op); err != nil {
		return nil, err
	}

	id := ContextID(nextContextID.Add(1))
	attrs := desc.attrs
	nc, err := d.native.CreateContext(&backend.ContextDescriptor{
		Label:         fmt.Sprintf("gpusurf.context.%d", id),
		Major:         attrs.Version.Major,
		Minor:         attrs.Version.Minor,
		Alpha:         attrs.Flags.Has(AttrAlpha),
		Depth:         attrs.Flags.Has(AttrDepth),
		Stencil:       attrs.Flags.Has(AttrStencil),
		Compatibility: attrs.Flags.Has(AttrCompatibilityProfile),
	})
	if err != nil {
		return nil, d.fail(op, ErrContextCreationFailed, err)
	}

	c := newContext(d, id, attrs, nc)
	c.handle = d.contexts.Insert(c)
	d.log().Debug("gpusurf: context created", "device", d.id, "context", id, "version", attrs.Version.String())
	return c, nil
}

// DestroyContext destroys c. It fails with ErrContextInUse while c is
// current on any thread, and with ErrSurfaceInUse while a surface is bound
// to it or it still holds surface textures. Failures leave c unchanged.
func (d *Device) DestroyContext(c *Context) error {
	const op = "destroy context"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkContext(op, c); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner.Load() != 0 {
		return newError(op, ErrContextInUse)
	}
	if c.bound != nil || c.textures > 0 {
		return newError(op, ErrSurfaceInUse)
	}
	if !c.owner.CompareAndSwap(0, ownerDestroyed) {
		return newError(op, ErrContextInUse)
	}
	c.released.Broadcast()

	d.contexts.Remove(c.handle)
	d.native.DestroyContext(c.native)
	d.log().Debug("gpusurf: context destroyed", "device", d.id, "context", c.id)
	return nil
}

// CreateSurface creates a Free surface. ctx is the creating context and
// must belong to d.
func (d *Device) CreateSurface(ctx *Context, access SurfaceAccess, typ SurfaceType) (*Surface, error) {
	const op = "create surface"
	size, err := typ.size()
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrSurfaceCreationFailed, Code: CodeBadAttribute, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(op); err != nil {
		return nil, err
	}
	if err := d.checkContext(op, ctx); err != nil {
		return nil, err
	}

	id := SurfaceID(nextSurfaceID.Add(1))
	ns, err := d.native.CreateSurface(&backend.SurfaceDescriptor{
		Label:     fmt.Sprintf("gpusurf.surface.%d", id),
		Width:     size.X,
		Height:    size.Y,
		CPUAccess: access.CPUAccessAllowed(),
		Widget:    typ.kind == SurfaceWidget,
		Display:   typ.widget.Display,
		Window:    typ.widget.Window,
	})
	if err != nil {
		return nil, d.fail(op, ErrSurfaceCreationFailed, err)
	}

	s := newSurface(d, id, ctx.id, access, typ.kind, ns)
	s.handle = d.surfaces.Insert(s)
	d.log().Debug("gpusurf: surface created",
		"device", d.id,
		"surface", id,
		"kind", typ.kind,
		"size", s.size)
	return s, nil
}

// DestroySurface destroys s. It fails with ErrSurfaceInUse while s is
// bound to a context or borrowed by a surface texture.
func (d *Device) DestroySurface(ctx *Context, s *Surface) error {
	const op = "destroy surface"
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx != nil {
		if err := d.checkContext(op, ctx); err != nil {
			return err
		}
	}
	if err := d.checkSurface(op, s); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundTo != nil || s.textures > 0 {
		return newError(op, ErrSurfaceInUse)
	}
	s.state = surfaceDestroyed
	d.surfaces.Remove(s.handle)
	d.native.DestroySurface(s.native)
	d.log().Debug("gpusurf: surface destroyed", "device", d.id, "surface", s.id)
	return nil
}

// CreateSurfaceTexture lends s to consumer for reading. s must be a Free
// off-screen surface of d. Creation waits until every write published to
// s (by UnbindSurface or Flush) has completed, so reads through the
// texture observe them.
func (d *Device) CreateSurfaceTexture(consumer *Context, s *Surface) (*SurfaceTexture, error) {
	const op = "create surface texture"
	sp, err := d.reserveTexture(op, consumer, s)
	if err != nil {
		return nil, err
	}
	st, err := d.newSurfaceTexture(op, consumer, s, sp)
	if err != nil {
		d.mu.Lock()
		d.releaseTexture(consumer, s)
		d.mu.Unlock()
		return nil, err
	}
	d.log().Debug("gpusurf: surface texture created", "surface", s.id, "consumer", consumer.id)
	return st, nil
}

// reserveTexture pins s and consumer so neither can be bound or destroyed
// while the producer's writes are awaited.
func (d *Device) reserveTexture(op string, consumer *Context, s *Surface) (backend.SyncPoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(op); err != nil {
		return 0, err
	}
	if err := d.checkContext(op, consumer); err != nil {
		return 0, err
	}
	if err := d.checkSurface(op, s); err != nil {
		return 0, err
	}

	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == SurfaceWidget {
		return 0, &Error{Op: op, Kind: ErrSurfaceTextureCreationFailed, Err: ErrWidgetAttached}
	}
	if s.boundTo != nil {
		return 0, newError(op, ErrSurfaceInUse)
	}
	s.textures++
	consumer.textures++
	return s.published, nil
}

func (d *Device) newSurfaceTexture(op string, consumer *Context, s *Surface, sp backend.SyncPoint) (*SurfaceTexture, error) {
	if err := d.native.Wait(sp, d.opts.syncTimeout); err != nil {
		return nil, d.fail(op, ErrSurfaceTextureCreationFailed, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(op); err != nil {
		return nil, err
	}
	nst, err := d.native.CreateSurfaceTexture(consumer.native, s.native)
	if err != nil {
		return nil, d.fail(op, ErrSurfaceTextureCreationFailed, err)
	}
	st := &SurfaceTexture{surface: s, consumer: consumer, native: nst}
	st.live.Store(true)
	return st, nil
}

// releaseTexture undoes reserveTexture. Caller holds d.mu.
func (d *Device) releaseTexture(consumer *Context, s *Surface) {
	consumer.mu.Lock()
	consumer.textures--
	consumer.mu.Unlock()
	s.mu.Lock()
	s.textures--
	s.mu.Unlock()
}

// DestroySurfaceTexture ends consumer's borrow and returns the surface it
// was created from.
func (d *Device) DestroySurfaceTexture(consumer *Context, st *SurfaceTexture) (*Surface, error) {
	const op = "destroy surface texture"
	d.mu.Lock()
	defer d.mu.Unlock()
	if st == nil || st.surface.dev != d || st.consumer != consumer {
		return nil, newError(op, ErrIncompatibleSurfaceTexture)
	}
	if !st.live.CompareAndSwap(true, false) {
		return nil, newError(op, ErrDestroyed)
	}
	d.native.DestroySurfaceTexture(st.native)
	d.releaseTexture(consumer, st.surface)
	d.log().Debug("gpusurf: surface texture destroyed", "surface", st.surface.id, "consumer", consumer.id)
	return st.surface, nil
}

// CopySurface copies src into dst outside any context. Both surfaces must
// be Free and of equal size; dst must not be borrowed.
func (d *Device) CopySurface(src, dst *Surface) error {
	const op = "copy surface"
	if err := d.check(op); err != nil {
		return err
	}
	if src == nil || dst == nil || src.dev != d || dst.dev != d {
		return newError(op, ErrIncompatibleSurface)
	}
	if src == dst {
		return nil
	}

	unlock := lockSurfaces(src, dst)
	defer unlock()
	if err := src.usable(op); err != nil {
		return err
	}
	if err := dst.usable(op); err != nil {
		return err
	}
	if src.boundTo != nil || dst.boundTo != nil || dst.textures > 0 {
		return newError(op, ErrSurfaceInUse)
	}
	if src.size != dst.size {
		return &Error{Op: op, Kind: ErrIncompatibleSurface, Code: CodeBadMatch,
			Err: fmt.Errorf("size %v does not match %v", src.size, dst.size)}
	}
	sp, err := d.native.Copy(nil, src.native, dst.native)
	if err != nil {
		return d.fail(op, ErrFailed, err)
	}
	dst.written, dst.published = sp, sp
	return nil
}

// WriteSurface uploads img into a Free, unborrowed surface of the same size.
func (d *Device) WriteSurface(s *Surface, img *image.RGBA) error {
	const op = "write surface"
	if err := d.check(op); err != nil {
		return err
	}
	if s == nil || s.dev != d {
		return newError(op, ErrIncompatibleSurface)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(op); err != nil {
		return err
	}
	if s.boundTo != nil || s.textures > 0 {
		return newError(op, ErrSurfaceInUse)
	}
	if img.Rect.Size() != s.size {
		return &Error{Op: op, Kind: ErrInvalidSize, Code: CodeBadMatch,
			Err: fmt.Errorf("image %v, surface %v", img.Rect.Size(), s.size)}
	}
	sp, err := d.native.Write(s.native, packRGBA(img))
	if err != nil {
		return d.fail(op, ErrFailed, err)
	}
	s.written, s.published = sp, sp
	return nil
}

// Destroy releases the device. It fails with ErrDeviceInUse while any
// context or surface created on it is alive.
func (d *Device) Destroy() error {
	const op = "destroy device"
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed.Load() {
		return newError(op, ErrDestroyed)
	}
	if n, m := d.contexts.Len(), d.surfaces.Len(); n > 0 || m > 0 {
		return &Error{Op: op, Kind: ErrDeviceInUse, Err: fmt.Errorf("%d contexts, %d surfaces alive", n, m)}
	}
	d.destroyed.Store(true)
	d.native.Destroy()
	d.log().Info("gpusurf: device destroyed", "device", d.id)
	return nil
}

// wait blocks until sp completes on d.
func (d *Device) wait(sp backend.SyncPoint, timeout time.Duration) error {
	return d.native.Wait(sp, timeout)
}

// Provider exposes the native device and queue to gogpu-ecosystem
// libraries.
func (d *Device) Provider() gpucontext.DeviceProvider { return deviceProvider{d} }

type deviceProvider struct{ d *Device }

func (p deviceProvider) Device() gpucontext.Device {
	dev, _ := p.d.native.Native()
	return dev
}

func (p deviceProvider) Queue() gpucontext.Queue {
	_, queue := p.d.native.Native()
	return queue
}

func (p deviceProvider) SurfaceFormat() gputypes.TextureFormat { return p.d.native.SurfaceFormat() }

func (p deviceProvider) Adapter() gpucontext.Adapter { return p.d.adapter }

func (p deviceProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: p.d.adapter.Name, Type: p.d.adapter.Type()}
}
