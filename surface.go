// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpusurf/backend"
	"github.com/gogpu/gpusurf/internal/arena"
)

// SurfaceID identifies a surface within the process. A presented surface
// and the one replacing it share an id.
type SurfaceID uint64

var nextSurfaceID atomic.Uint64

// nextLockRank orders Surface.mu acquisitions. Unlike the id it is unique
// per object, so a presented surface and its replacement never tie.
var nextLockRank atomic.Uint64

// SurfaceAccess declares who may touch a surface's memory.
type SurfaceAccess uint8

const (
	// AccessGPUOnly surfaces are never read by the CPU.
	AccessGPUOnly SurfaceAccess = iota
	// AccessGPUCPU surfaces may be read back with Surface.Data.
	AccessGPUCPU
	// AccessGPUCPUWriteCombined is AccessGPUCPU for memory that is cheap
	// to write from the CPU and slow to read.
	AccessGPUCPUWriteCombined
)

// CPUAccessAllowed reports whether Surface.Data may be used.
func (a SurfaceAccess) CPUAccessAllowed() bool { return a != AccessGPUOnly }

func (a SurfaceAccess) String() string {
	switch a {
	case AccessGPUOnly:
		return "gpu-only"
	case AccessGPUCPU:
		return "gpu-cpu"
	case AccessGPUCPUWriteCombined:
		return "gpu-cpu-write-combined"
	default:
		return fmt.Sprintf("SurfaceAccess(%d)", a)
	}
}

// SurfaceKind distinguishes off-screen surfaces from window surfaces.
type SurfaceKind uint8

const (
	SurfaceGeneric SurfaceKind = iota
	SurfaceWidget
)

func (k SurfaceKind) String() string {
	if k == SurfaceWidget {
		return "widget"
	}
	return "generic"
}

// NativeWidget is a window to present into. Display and Window are the
// platform handles (X11 display and window, HWND, CAMetalLayer, ...); a
// zero Window gives a headless window whose presents are discarded.
// Provider supplies the logical size and scale factor.
type NativeWidget struct {
	Display  uintptr
	Window   uintptr
	Provider gpucontext.WindowProvider
}

// SurfaceType selects what a new surface renders into.
type SurfaceType struct {
	kind    SurfaceKind
	generic image.Point
	widget  NativeWidget
}

// GenericSurface is an off-screen surface of the given pixel size.
func GenericSurface(size image.Point) SurfaceType {
	return SurfaceType{kind: SurfaceGeneric, generic: size}
}

// WidgetSurface is a window surface sized by the widget's provider.
func WidgetSurface(w NativeWidget) SurfaceType {
	return SurfaceType{kind: SurfaceWidget, widget: w}
}

// Kind returns the surface kind.
func (t SurfaceType) Kind() SurfaceKind { return t.kind }

// size returns the physical pixel size of the surface to create.
func (t SurfaceType) size() (image.Point, error) {
	size := t.generic
	if t.kind == SurfaceWidget {
		p := t.widget.Provider
		if p == nil {
			return image.Point{}, ErrNoWidgetAttached
		}
		scale := p.ScaleFactor()
		if scale <= 0 {
			scale = 1
		}
		w, h := p.Size()
		size = image.Pt(int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale)))
	}
	if size.X < 1 || size.Y < 1 {
		return image.Point{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.X, size.Y)
	}
	return size, nil
}

type surfaceState uint8

const (
	surfaceLive surfaceState = iota
	surfacePresented
	surfaceDestroyed
)

// Surface is a drawable: an off-screen texture or the current frame of a
// window. It is Free or bound to exactly one context.
type Surface struct {
	id      SurfaceID
	dev     *Device
	handle  arena.Handle
	creator ContextID
	access  SurfaceAccess
	kind    SurfaceKind
	size    image.Point
	format  gputypes.TextureFormat
	native  backend.Surface
	rank    uint64

	mu        sync.Mutex
	state     surfaceState
	stale     bool
	boundTo   *Context
	textures  int
	written   backend.SyncPoint // last submission that wrote the surface
	published backend.SyncPoint // last write made visible to consumers
}

func newSurface(d *Device, id SurfaceID, creator ContextID, access SurfaceAccess, kind SurfaceKind, ns backend.Surface) *Surface {
	w, h := ns.Size()
	return &Surface{
		id:      id,
		dev:     d,
		creator: creator,
		access:  access,
		kind:    kind,
		size:    image.Pt(w, h),
		format:  ns.Format(),
		native:  ns,
		rank:    nextLockRank.Add(1),
	}
}

// lockSurfaces locks a and b, either of which may be nil, in rank order
// and returns the matching unlock.
func lockSurfaces(a, b *Surface) (unlock func()) {
	if a == nil || a == b {
		a, b = b, nil
	}
	if a == nil {
		return func() {}
	}
	if b == nil {
		a.mu.Lock()
		return a.mu.Unlock
	}
	if b.rank < a.rank {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

// usable rejects destroyed and presented surfaces. Caller holds s.mu.
func (s *Surface) usable(op string) error {
	switch s.state {
	case surfaceDestroyed:
		return newError(op, ErrDestroyed)
	case surfacePresented:
		return newError(op, ErrInvalidated)
	}
	return nil
}

// unbindLocked frees s and publishes its writes. Caller holds s.mu.
func (s *Surface) unbindLocked() {
	s.boundTo = nil
	s.published = s.written
}

// ID returns the surface id.
func (s *Surface) ID() SurfaceID { return s.id }

// Size returns the size in pixels.
func (s *Surface) Size() image.Point { return s.size }

// Kind returns the surface kind.
func (s *Surface) Kind() SurfaceKind { return s.kind }

// Device returns the device that created the surface.
func (s *Surface) Device() *Device { return s.dev }

// SurfaceInfo describes a surface.
type SurfaceInfo struct {
	ID     SurfaceID
	Size   image.Point
	Format gputypes.TextureFormat
	Access SurfaceAccess
	Kind   SurfaceKind

	// ContextID is the context the surface is bound to, zero when Free.
	ContextID ContextID
	// Creator is the context that created the surface.
	Creator ContextID
	// Framebuffer is the native handle to render into.
	Framebuffer uintptr
}

// Info returns a snapshot of the surface state.
func (s *Surface) Info() SurfaceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SurfaceInfo{
		ID:          s.id,
		Size:        s.size,
		Format:      s.format,
		Access:      s.access,
		Kind:        s.kind,
		Creator:     s.creator,
		Framebuffer: s.native.NativeHandle(),
	}
	if s.boundTo != nil {
		info.ContextID = s.boundTo.id
	}
	return info
}

// Valid reports whether the surface can still be used: it was neither
// destroyed nor replaced by Present.
func (s *Surface) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == surfaceLive
}

// Invalidate marks the surface contents stale. Surface textures borrowing
// it fail with ErrInvalidated from then on.
func (s *Surface) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Present shows a widget surface bound to ctx and returns the surface for
// the next frame, bound to ctx in its place. The receiver is invalid
// afterwards. ctx must be current on the calling thread.
//
// If the backend fails, the receiver is unbound and invalid, and must
// still be released with DestroySurface.
func (s *Surface) Present(ctx *Context) (*Surface, error) {
	const op = "present"
	d := s.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	if ctx == nil || ctx.dev != d {
		return nil, newError(op, ErrIncompatibleContext)
	}
	if s.kind != SurfaceWidget {
		return nil, &Error{Op: op, Kind: ErrPresentFailed, Err: ErrNoWidgetAttached}
	}
	if !ctx.IsCurrent() {
		return nil, newError(op, ErrNotCurrent)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(op); err != nil {
		return nil, err
	}
	if s.boundTo != ctx {
		return nil, &Error{Op: op, Kind: ErrPresentFailed, Err: ErrIncompatibleSurface}
	}

	next, err := d.native.Present(ctx.native, s.native)
	if err != nil {
		// The frame may already be gone. s is only good for DestroySurface.
		s.state = surfacePresented
		s.boundTo = nil
		ctx.bound = nil
		if !d.lost.Load() {
			if derr := d.native.MakeCurrent(ctx.native, nil); derr != nil {
				d.log().Warn("gpusurf: detach failed surface", "context", ctx.id, "surface", s.id, "err", derr)
			}
		}
		return nil, d.fail(op, ErrPresentFailed, err)
	}
	ns := newSurface(d, s.id, s.creator, s.access, s.kind, next)
	ns.boundTo = ctx
	ns.handle = s.handle
	d.surfaces.Replace(s.handle, ns)
	s.state = surfacePresented
	s.boundTo = nil
	ctx.bound = ns
	return ns, nil
}

// Data reads a Free surface back to the CPU. The surface must have been
// created with CPU access.
func (s *Surface) Data() (*image.RGBA, error) {
	const op = "surface data"
	d := s.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	if !s.access.CPUAccessAllowed() || s.kind == SurfaceWidget {
		return nil, newError(op, ErrSurfaceDataInaccessible)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(op); err != nil {
		return nil, err
	}
	if s.boundTo != nil {
		return nil, newError(op, ErrSurfaceInUse)
	}
	if err := d.wait(s.published, d.opts.syncTimeout); err != nil {
		return nil, d.fail(op, ErrFailed, err)
	}
	pix, err := d.native.ReadPixels(nil, s.native)
	if err != nil {
		return nil, d.fail(op, ErrFailed, err)
	}
	return newRGBA(s.size, pix), nil
}

// Destroy destroys the surface through its device.
func (s *Surface) Destroy(ctx *Context) error { return s.dev.DestroySurface(ctx, s) }

// newRGBA wraps tightly packed RGBA pixels.
func newRGBA(size image.Point, pix []byte) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	copy(img.Pix, pix)
	return img
}

// packRGBA returns img's pixels tightly packed from its top-left corner.
func packRGBA(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w {
		return img.Pix[:4*w*h]
	}
	out := make([]byte, 0, 4*w*h)
	for y := range h {
		off := y * img.Stride
		out = append(out, img.Pix[off:off+4*w]...)
	}
	return out
}
