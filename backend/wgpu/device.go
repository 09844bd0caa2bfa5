// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

const (
	// copyPitchAlignment is the HAL row pitch alignment for texture copies.
	copyPitchAlignment = 256

	// transferTimeout bounds internal waits for readback copies.
	transferTimeout = 5 * time.Second

	surfaceUsage = gputypes.TextureUsageRenderAttachment |
		gputypes.TextureUsageCopySrc |
		gputypes.TextureUsageCopyDst |
		gputypes.TextureUsageTextureBinding
)

// handles gives every object a non-zero native handle, even on HALs
// whose resources report zero.
var handles atomic.Uint64

func nextHandle() uintptr { return uintptr(handles.Add(1)) }

type device struct {
	b       *Backend
	inst    *instance
	adapter hal.Adapter
	info    gputypes.AdapterInfo
	hal     hal.Device
	queue   hal.Queue

	// mu serializes HAL resource creation and destruction, queue access
	// and completion polling. Command recording happens outside it.
	mu        sync.Mutex
	submitted uint64

	// transfer records readbacks issued outside any context.
	transferMu sync.Mutex
	transfer   *renderContext
}

var _ backend.Device = (*device)(nil)

func newDevice(inst *instance, exposed hal.ExposedAdapter, open hal.OpenDevice) (*device, error) {
	d := &device{
		b:       inst.b,
		inst:    inst,
		adapter: exposed.Adapter,
		info:    exposed.Info,
		hal:     open.Device,
		queue:   open.Queue,
	}
	rc, err := d.newRenderContext(&backend.ContextDescriptor{Label: "gpusurf.transfer"})
	if err != nil {
		return nil, err
	}
	d.transfer = rc
	return d, nil
}

func (d *device) MaxVersion() (major, minor uint8) { return d.b.major, d.b.minor }

func (d *device) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

func (d *device) Native() (dev, queue any) { return d.hal, d.queue }

// renderContext is a HAL command encoder plus the command buffers it has
// submitted that the GPU may still be reading.
type renderContext struct {
	handle  uintptr
	desc    backend.ContextDescriptor
	enc     hal.CommandEncoder
	pending []pendingBuffer
	target  *surface
}

type pendingBuffer struct {
	cmd   hal.CommandBuffer
	index uint64
}

func (c *renderContext) NativeHandle() uintptr { return c.handle }

func (d *device) newRenderContext(desc *backend.ContextDescriptor) (*renderContext, error) {
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: desc.Label})
	if err != nil {
		return nil, wrap("create context", err)
	}
	return &renderContext{handle: nextHandle(), desc: *desc, enc: enc}, nil
}

func (d *device) CreateContext(desc *backend.ContextDescriptor) (backend.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newRenderContext(desc)
}

func (d *device) DestroyContext(ctx backend.Context) {
	rc := ctx.(*renderContext)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseContext(rc)
}

// releaseContext frees rc's encoder once its submissions have retired.
// Caller holds d.mu.
func (d *device) releaseContext(rc *renderContext) {
	if len(rc.pending) > 0 && d.queue.PollCompleted() < rc.pending[len(rc.pending)-1].index {
		if err := d.hal.WaitIdle(); err != nil {
			hal.Logger().Warn("wgpu: wait idle before context release", "err", err)
		}
	}
	for _, p := range rc.pending {
		d.hal.FreeCommandBuffer(p.cmd)
	}
	rc.pending = nil
	rc.enc.Destroy()
}

func (d *device) MakeCurrent(ctx backend.Context, target backend.Surface) error {
	rc := ctx.(*renderContext)
	rc.target = nil
	if target != nil {
		rc.target = target.(*surface)
	}
	return nil
}

func (d *device) ReleaseCurrent(ctx backend.Context) error {
	ctx.(*renderContext).target = nil
	return nil
}

// recorder returns ctx's render context, or the locked transfer context
// when ctx is nil. done releases it.
func (d *device) recorder(ctx backend.Context) (rc *renderContext, done func()) {
	if ctx == nil {
		d.transferMu.Lock()
		return d.transfer, d.transferMu.Unlock
	}
	return ctx.(*renderContext), func() {}
}

// reclaim frees rc's command buffers the GPU has finished with.
func (d *device) reclaim(rc *renderContext) {
	if len(rc.pending) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	done := d.queue.PollCompleted()
	keep := rc.pending[:0]
	for _, p := range rc.pending {
		if p.index <= done {
			d.hal.FreeCommandBuffer(p.cmd)
			continue
		}
		keep = append(keep, p)
	}
	rc.pending = keep
}

// submit records commands on rc's encoder and submits them.
func (d *device) submit(rc *renderContext, label string, record func(enc hal.CommandEncoder)) (backend.SyncPoint, error) {
	d.reclaim(rc)
	if err := rc.enc.BeginEncoding(label); err != nil {
		return 0, wrap(label, err)
	}
	record(rc.enc)
	cmd, err := rc.enc.EndEncoding()
	if err != nil {
		return 0, wrap(label, err)
	}

	d.mu.Lock()
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.hal.FreeCommandBuffer(cmd)
		d.mu.Unlock()
		return 0, wrap(label, err)
	}
	if index > d.submitted {
		d.submitted = index
	}
	d.mu.Unlock()

	rc.pending = append(rc.pending, pendingBuffer{cmd: cmd, index: index})
	return backend.SyncPoint(index), nil
}

func (d *device) Wait(sp backend.SyncPoint, timeout time.Duration) error {
	if sp == 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	backoff := 20 * time.Microsecond
	for {
		d.mu.Lock()
		done := d.queue.PollCompleted()
		d.mu.Unlock()
		if done >= uint64(sp) {
			return nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(backoff)
		if backoff < time.Millisecond {
			backoff *= 2
		}
	}

	// Blocking fallback for queues that report completion lazily.
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.hal.WaitIdle(); err != nil {
		return wrap("wait", err)
	}
	return nil
}

func (d *device) Clear(ctx backend.Context, target backend.Surface, color gputypes.Color) (backend.SyncPoint, error) {
	s := target.(*surface)
	return d.submit(ctx.(*renderContext), "gpusurf.clear", func(enc hal.CommandEncoder) {
		pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "gpusurf.clear",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       s.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: color,
			}},
		})
		pass.End()
	})
}

func (d *device) Copy(ctx backend.Context, src, dst backend.Surface) (backend.SyncPoint, error) {
	from, to := src.(*surface), dst.(*surface)
	if from.width != to.width || from.height != to.height {
		return 0, &backend.Error{
			Op:   "copy",
			Code: backend.CodeBadMatch,
			Err:  fmt.Errorf("size %dx%d does not match %dx%d", from.width, from.height, to.width, to.height),
		}
	}
	rc, done := d.recorder(ctx)
	defer done()
	return d.submit(rc, "gpusurf.copy", func(enc hal.CommandEncoder) {
		enc.TransitionTextures([]hal.TextureBarrier{
			barrier(from.tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc),
			barrier(to.tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopyDst),
		})
		enc.CopyTextureToTexture(from.tex, to.tex, []hal.TextureCopy{{
			SrcBase: hal.ImageCopyTexture{Texture: from.tex, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: to.tex, Aspect: gputypes.TextureAspectAll},
			Size:    extent(from.width, from.height),
		}})
		enc.TransitionTextures([]hal.TextureBarrier{
			barrier(from.tex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment),
			barrier(to.tex, gputypes.TextureUsageCopyDst, gputypes.TextureUsageRenderAttachment),
		})
	})
}

func (d *device) Write(target backend.Surface, pix []byte) (backend.SyncPoint, error) {
	s := target.(*surface)
	if want := s.width * s.height * 4; len(pix) != want {
		return 0, &backend.Error{
			Op:   "write",
			Code: backend.CodeBadMatch,
			Err:  fmt.Errorf("got %d bytes, want %d", len(pix), want),
		}
	}
	if isBGRA(s.format) {
		pix = swizzle(append([]byte(nil), pix...))
	}
	size := extent(s.width, s.height)
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: s.tex, Aspect: gputypes.TextureAspectAll},
		pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(s.width * 4), RowsPerImage: uint32(s.height)},
		&size,
	)
	if err != nil {
		return 0, wrap("write", err)
	}
	return backend.SyncPoint(d.submitted), nil
}

func (d *device) ReadPixels(ctx backend.Context, target backend.Surface) ([]byte, error) {
	s := target.(*surface)
	rc, done := d.recorder(ctx)
	defer done()
	return d.readback(rc, s.tex, s.width, s.height, s.format)
}

func (d *device) ReadTexture(ctx backend.Context, st backend.SurfaceTexture) ([]byte, error) {
	t := st.(*surfaceTexture)
	src := t.src
	return d.readback(ctx.(*renderContext), src.tex, src.width, src.height, src.format)
}

// readback copies tex into a mappable buffer through rc and returns the
// pixels as tightly packed RGBA.
func (d *device) readback(rc *renderContext, tex hal.Texture, width, height int, format gputypes.TextureFormat) ([]byte, error) {
	rowBytes := uint32(width * 4)
	pitch := rowBytes
	if !d.b.tight {
		pitch = (rowBytes + copyPitchAlignment - 1) / copyPitchAlignment * copyPitchAlignment
	}
	size := uint64(pitch) * uint64(height)

	d.mu.Lock()
	buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpusurf.readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	d.mu.Unlock()
	if err != nil {
		return nil, wrap("readback", err)
	}
	defer func() {
		d.mu.Lock()
		d.hal.DestroyBuffer(buf)
		d.mu.Unlock()
	}()

	sp, err := d.submit(rc, "gpusurf.readback", func(enc hal.CommandEncoder) {
		enc.TransitionTextures([]hal.TextureBarrier{
			barrier(tex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc),
		})
		enc.CopyTextureToBuffer(tex, buf, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: uint32(height)},
			TextureBase:  hal.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
			Size:         extent(width, height),
		}})
		enc.TransitionTextures([]hal.TextureBarrier{
			barrier(tex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment),
		})
	})
	if err != nil {
		return nil, err
	}
	if err := d.Wait(sp, transferTimeout); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	mapping, err := d.hal.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, wrap("map readback", err)
	}
	mapped := unsafe.Slice((*byte)(mapping.Ptr), size)
	out := make([]byte, int(rowBytes)*height)
	for y := 0; y < height; y++ {
		copy(out[y*int(rowBytes):(y+1)*int(rowBytes)], mapped[uint64(y)*uint64(pitch):])
	}
	if err := d.hal.UnmapBuffer(buf); err != nil {
		return nil, wrap("unmap readback", err)
	}
	if isBGRA(format) {
		swizzle(out)
	}
	return out, nil
}

func (d *device) CreateSurfaceTexture(ctx backend.Context, s backend.Surface) (backend.SurfaceTexture, error) {
	src := s.(*surface)
	if src.window != nil {
		return nil, unsupported("create surface texture", backend.CodeBadDrawable)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	view, err := d.hal.CreateTextureView(src.tex, viewDescriptor("gpusurf.surface-texture", src.format))
	if err != nil {
		return nil, wrap("create surface texture", err)
	}
	return &surfaceTexture{handle: nextHandle(), src: src, view: view}, nil
}

func (d *device) DestroySurfaceTexture(st backend.SurfaceTexture) {
	t := st.(*surfaceTexture)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hal.DestroyTextureView(t.view)
}

func (d *device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseContext(d.transfer)
	if err := d.hal.WaitIdle(); err != nil {
		hal.Logger().Warn("wgpu: wait idle before device destroy", "err", err)
	}
	d.hal.Destroy()
}

func barrier(tex hal.Texture, from, to gputypes.TextureUsage) hal.TextureBarrier {
	return hal.TextureBarrier{
		Texture: tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}
}

func extent(width, height int) hal.Extent3D {
	return hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
}

func isBGRA(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatBGRA8Unorm || f == gputypes.TextureFormatBGRA8UnormSrgb
}

// swizzle swaps the R and B channels in place.
func swizzle(pix []byte) []byte {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
	return pix
}
