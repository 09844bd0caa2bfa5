// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

// surface is an off-screen texture or a window surface with its current
// frame. For window surfaces tex is the acquired frame texture.
type surface struct {
	handle uintptr
	width  int
	height int
	format gputypes.TextureFormat
	tex    hal.Texture
	view   hal.TextureView

	window hal.Surface
	frame  hal.SurfaceTexture
}

func (s *surface) NativeHandle() uintptr {
	if s.tex != nil {
		if h := s.tex.NativeHandle(); h != 0 {
			return h
		}
	}
	return s.handle
}

func (s *surface) Size() (width, height int) { return s.width, s.height }

func (s *surface) Format() gputypes.TextureFormat { return s.format }

type surfaceTexture struct {
	handle uintptr
	src    *surface
	view   hal.TextureView
}

func (t *surfaceTexture) NativeHandle() uintptr {
	if h := t.view.NativeHandle(); h != 0 {
		return h
	}
	return t.handle
}

func viewDescriptor(label string, format gputypes.TextureFormat) *hal.TextureViewDescriptor {
	return &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
}

func (d *device) CreateSurface(desc *backend.SurfaceDescriptor) (backend.Surface, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, &backend.Error{
			Op:   "create surface",
			Code: backend.CodeBadAttribute,
			Err:  fmt.Errorf("invalid size %dx%d", desc.Width, desc.Height),
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Widget {
		return d.createWindowSurface(desc)
	}
	return d.createTextureSurface(desc)
}

func (d *device) createTextureSurface(desc *backend.SurfaceDescriptor) (*surface, error) {
	format := d.SurfaceFormat()
	tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent(desc.Width, desc.Height),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         surfaceUsage,
	})
	if err != nil {
		return nil, wrap("create surface", err)
	}
	view, err := d.hal.CreateTextureView(tex, viewDescriptor(desc.Label, format))
	if err != nil {
		d.hal.DestroyTexture(tex)
		return nil, wrap("create surface view", err)
	}
	return &surface{
		handle: nextHandle(),
		width:  desc.Width,
		height: desc.Height,
		format: format,
		tex:    tex,
		view:   view,
	}, nil
}

// windowFormat picks RGBA8 when the surface supports it, else the first
// format the surface reports.
func windowFormat(caps *hal.SurfaceCapabilities) gputypes.TextureFormat {
	if caps == nil || len(caps.Formats) == 0 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	if slices.Contains(caps.Formats, gputypes.TextureFormatRGBA8Unorm) {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return caps.Formats[0]
}

func (d *device) createWindowSurface(desc *backend.SurfaceDescriptor) (*surface, error) {
	win, err := d.inst.hal.CreateSurface(desc.Display, desc.Window)
	if err != nil {
		return nil, wrap("create window surface", err)
	}
	format := windowFormat(d.adapter.SurfaceCapabilities(win))
	err = win.Configure(d.hal, &hal.SurfaceConfiguration{
		Width:       uint32(desc.Width),
		Height:      uint32(desc.Height),
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		PresentMode: gputypes.PresentModeFifo,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		win.Destroy()
		return nil, wrap("configure window surface", err)
	}
	s := &surface{
		handle: nextHandle(),
		width:  desc.Width,
		height: desc.Height,
		format: format,
		window: win,
	}
	if err := d.acquireFrame(s, desc.Label); err != nil {
		win.Unconfigure(d.hal)
		win.Destroy()
		return nil, err
	}
	return s, nil
}

// acquireFrame acquires the next frame of a window surface and creates its
// render view. Caller holds d.mu.
func (d *device) acquireFrame(s *surface, label string) error {
	acquired, err := s.window.AcquireTexture(nil)
	if errors.Is(err, hal.ErrSurfaceOutdated) {
		err = s.window.Configure(d.hal, &hal.SurfaceConfiguration{
			Width:       uint32(s.width),
			Height:      uint32(s.height),
			Format:      s.format,
			Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
			PresentMode: gputypes.PresentModeFifo,
			AlphaMode:   gputypes.CompositeAlphaModeOpaque,
		})
		if err == nil {
			acquired, err = s.window.AcquireTexture(nil)
		}
	}
	if err != nil {
		return wrap("acquire frame", err)
	}
	view, err := d.hal.CreateTextureView(acquired.Texture, viewDescriptor(label, s.format))
	if err != nil {
		s.window.DiscardTexture(acquired.Texture)
		return wrap("create frame view", err)
	}
	s.frame = acquired.Texture
	s.tex = acquired.Texture
	s.view = view
	return nil
}

func (d *device) DestroySurface(bs backend.Surface) {
	s := bs.(*surface)
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.view != nil {
		d.hal.DestroyTextureView(s.view)
	}
	if s.window == nil {
		if s.tex != nil {
			d.hal.DestroyTexture(s.tex)
		}
		return
	}
	if s.frame != nil {
		s.window.DiscardTexture(s.frame)
	}
	s.window.Unconfigure(d.hal)
	s.window.Destroy()
}

func (d *device) Present(ctx backend.Context, target backend.Surface) (backend.Surface, error) {
	s := target.(*surface)
	if s.window == nil {
		return nil, unsupported("present", backend.CodeBadDrawable)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// Presentation must follow everything the context submitted.
	if err := d.queue.Present(s.window, s.frame, nil); err != nil {
		return nil, wrap("present", err)
	}
	d.hal.DestroyTextureView(s.view)
	s.view, s.frame, s.tex = nil, nil, nil

	next := &surface{
		handle: s.handle,
		width:  s.width,
		height: s.height,
		format: s.format,
		window: s.window,
	}
	// On failure s keeps the window so DestroySurface can release it, and
	// no context renders into it any more.
	rc := ctx.(*renderContext)
	if err := d.acquireFrame(next, "gpusurf.frame"); err != nil {
		if rc.target == s {
			rc.target = nil
		}
		return nil, err
	}
	*s = surface{handle: s.handle}
	if rc.target == s {
		rc.target = next
	}
	return next, nil
}
