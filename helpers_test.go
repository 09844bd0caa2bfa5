// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"errors"
	"image"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/software"

	"github.com/gogpu/gpusurf/backend"
	"github.com/gogpu/gpusurf/backend/wgpu"
)

func newTestConnection(t *testing.T, opts ...Option) *Connection {
	t.Helper()
	conn, err := Connect(append([]Option{WithBackend(backend.Software)}, opts...)...)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	conn := newTestConnection(t)
	adapter, err := conn.CreateSoftwareAdapter()
	if err != nil {
		t.Fatalf("CreateSoftwareAdapter() error = %v", err)
	}
	dev, err := NewDevice(conn, adapter, opts...)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { dev.Destroy() })
	return dev
}

// newTestContext creates a context that is released, unbound and
// destroyed at cleanup.
func newTestContext(t *testing.T, dev *Device) *Context {
	t.Helper()
	c, err := dev.CreateContext(DefaultContextAttributes())
	if err != nil {
		t.Fatalf("CreateContext() error = %v", err)
	}
	t.Cleanup(func() {
		c.MakeNotCurrent()
		if s, err := c.UnbindSurface(); err == nil {
			dev.DestroySurface(c, s)
		}
		c.Destroy()
	})
	return c
}

func newTestSurface(t *testing.T, dev *Device, c *Context, w, h int) *Surface {
	t.Helper()
	s, err := dev.CreateSurface(c, AccessGPUCPU, GenericSurface(image.Pt(w, h)))
	if err != nil {
		t.Fatalf("CreateSurface(%dx%d) error = %v", w, h, err)
	}
	t.Cleanup(func() { dev.DestroySurface(nil, s) })
	return s
}

// onThread runs f on a new goroutine locked to its own OS thread and waits
// for it to return.
func onThread(f func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		f()
	}()
	<-done
}

// lockThread pins the test goroutine to its OS thread until the test ends.
func lockThread(t *testing.T) {
	runtime.LockOSThread()
	t.Cleanup(runtime.UnlockOSThread)
}

func pixelAt(img *image.RGBA, x, y int) [4]byte {
	i := img.PixOffset(x, y)
	return [4]byte(img.Pix[i : i+4])
}

// lossyBackend wraps the software backend with a device that can be made
// to report device loss.
type lossyBackend struct{ backend.Backend }

const lossyName = "lossy-test"

func (lossyBackend) Name() string { return lossyName }

func (b lossyBackend) Open() (backend.Instance, error) {
	inst, err := b.Backend.Open()
	if err != nil {
		return nil, err
	}
	return lossyInstance{inst}, nil
}

type lossyInstance struct{ backend.Instance }

func (i lossyInstance) OpenDevice(index int) (backend.Device, error) {
	d, err := i.Instance.OpenDevice(index)
	if err != nil {
		return nil, err
	}
	return &lossyDevice{Device: d}, nil
}

type lossyDevice struct {
	backend.Device
	lost        atomic.Bool
	failPresent atomic.Bool
}

func (d *lossyDevice) Present(ctx backend.Context, target backend.Surface) (backend.Surface, error) {
	if d.failPresent.Load() {
		return nil, &backend.Error{Op: "present", Code: backend.CodeBadNativeWindow, Err: errors.New("window gone")}
	}
	return d.Device.Present(ctx, target)
}

func (d *lossyDevice) Clear(ctx backend.Context, target backend.Surface, color gputypes.Color) (backend.SyncPoint, error) {
	if d.lost.Load() {
		return 0, &backend.Error{Op: "clear", Code: backend.CodeContextLost, Err: backend.ErrDeviceLost}
	}
	return d.Device.Clear(ctx, target, color)
}

func init() {
	backend.Register(lossyName, func() backend.Backend {
		return lossyBackend{wgpu.New(lossyName, software.API{}, wgpu.WithTightCopies())}
	})
}
