// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func TestClearUnbindReadback(t *testing.T) {
	lockThread(t)
	dev := newTestDevice(t)
	c := newTestContext(t, dev)
	s := newTestSurface(t, dev, c, 64, 64)

	if _, err := c.BindSurface(s); err != nil {
		t.Fatalf("BindSurface() error = %v", err)
	}
	if err := c.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent() error = %v", err)
	}
	if err := c.Clear(gputypes.Color{R: 1, G: 0, B: 0, A: 1}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	img, err := c.ReadPixels()
	if err != nil {
		t.Fatalf("ReadPixels() error = %v", err)
	}
	if got := pixelAt(img, 63, 63); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("bound pixel(63,63) = %v, want [255 0 0 255]", got)
	}

	if _, err := s.Data(); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("Data() on a bound surface error = %v, want ErrSurfaceInUse", err)
	}
	if _, err := c.UnbindSurface(); err != nil {
		t.Fatalf("UnbindSurface() error = %v", err)
	}
	if err := c.MakeNotCurrent(); err != nil {
		t.Fatalf("MakeNotCurrent() error = %v", err)
	}

	img, err = s.Data()
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if img.Rect != image.Rect(0, 0, 64, 64) {
		t.Errorf("Data() bounds = %v, want 64x64", img.Rect)
	}
	if got := pixelAt(img, 0, 0); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("pixel(0,0) = %v, want [255 0 0 255]", got)
	}
}

func TestSurfaceTextureCrossThreadHandOff(t *testing.T) {
	dev := newTestDevice(t)
	producer := newTestContext(t, dev)
	consumer := newTestContext(t, dev)
	s := newTestSurface(t, dev, producer, 16, 16)

	// Consecutive markers differ in every channel, so reading the previous
	// frame fails the check.
	markers := []struct {
		color gputypes.Color
		want  [4]byte
	}{
		{gputypes.Color{R: 0.2, G: 0.4, B: 0.8, A: 1}, [4]byte{51, 102, 204, 255}},
		{gputypes.Color{R: 0.8, G: 0.2, B: 0.4, A: 1}, [4]byte{204, 51, 102, 255}},
		{gputypes.Color{R: 0.4, G: 0.8, B: 0.2, A: 1}, [4]byte{102, 204, 51, 255}},
		{gputypes.Color{R: 1, G: 0, B: 0.8, A: 1}, [4]byte{255, 0, 204, 255}},
		{gputypes.Color{R: 0, G: 1, B: 0.2, A: 1}, [4]byte{0, 255, 51, 255}},
		{gputypes.Color{R: 0.2, G: 0.4, B: 0.8, A: 1}, [4]byte{51, 102, 204, 255}},
	}
	for i, m := range markers {
		// Producer: render the marker and publish it.
		var drawn *Surface
		onThread(func() {
			if _, err := producer.BindSurface(s); err != nil {
				t.Errorf("trial %d: BindSurface() error = %v", i, err)
				return
			}
			if err := producer.MakeCurrent(); err != nil {
				t.Errorf("trial %d: producer MakeCurrent() error = %v", i, err)
				return
			}
			defer producer.MakeNotCurrent()
			if err := producer.Clear(m.color); err != nil {
				t.Errorf("trial %d: Clear() error = %v", i, err)
			}
			done, err := producer.UnbindSurface()
			if err != nil {
				t.Errorf("trial %d: UnbindSurface() error = %v", i, err)
			}
			drawn = done
		})
		if drawn == nil {
			t.FailNow()
		}

		// Consumer: borrow the surface on another thread and read the marker.
		onThread(func() {
			if err := consumer.MakeCurrent(); err != nil {
				t.Errorf("trial %d: consumer MakeCurrent() error = %v", i, err)
				return
			}
			defer consumer.MakeNotCurrent()

			st, err := dev.CreateSurfaceTexture(consumer, drawn)
			if err != nil {
				t.Errorf("trial %d: CreateSurfaceTexture() error = %v", i, err)
				return
			}
			if st.Width() != 16 || st.Height() != 16 {
				t.Errorf("texture size = %dx%d, want 16x16", st.Width(), st.Height())
			}
			if st.Context() != consumer.ID() || st.Surface().ID != drawn.ID() {
				t.Error("texture does not report its consumer and surface")
			}
			img, err := st.ReadPixels()
			if err != nil {
				t.Errorf("trial %d: ReadPixels() error = %v", i, err)
			} else {
				for _, p := range []image.Point{{0, 0}, {8, 8}, {15, 15}} {
					if got := pixelAt(img, p.X, p.Y); got != m.want {
						t.Errorf("trial %d: marker pixel %v = %v, want %v", i, p, got, m.want)
					}
				}
			}
			back, err := dev.DestroySurfaceTexture(consumer, st)
			if err != nil {
				t.Errorf("trial %d: DestroySurfaceTexture() error = %v", i, err)
			}
			if back != drawn {
				t.Error("DestroySurfaceTexture() did not return the source surface")
			}
		})
	}
}

func TestSurfaceTextureReadRequiresCurrent(t *testing.T) {
	dev := newTestDevice(t)
	consumer := newTestContext(t, dev)
	s := newTestSurface(t, dev, consumer, 4, 4)

	st, err := dev.CreateSurfaceTexture(consumer, s)
	if err != nil {
		t.Fatalf("CreateSurfaceTexture() error = %v", err)
	}
	if _, err := st.ReadPixels(); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("ReadPixels() without current consumer error = %v, want ErrNotCurrent", err)
	}
	var _ gpucontext.Texture = st
	if !st.Valid() {
		t.Error("fresh texture is not valid")
	}
	s.Invalidate()
	if st.Valid() {
		t.Error("texture valid after its surface was invalidated")
	}
	if _, err := dev.DestroySurfaceTexture(consumer, st); err != nil {
		t.Fatalf("DestroySurfaceTexture() error = %v", err)
	}
	if _, err := dev.DestroySurfaceTexture(consumer, st); !errors.Is(err, ErrDestroyed) {
		t.Errorf("second DestroySurfaceTexture() error = %v, want ErrDestroyed", err)
	}
}

func TestDestroyRejections(t *testing.T) {
	lockThread(t)
	dev := newTestDevice(t)
	c := newTestContext(t, dev)
	consumer := newTestContext(t, dev)
	s := newTestSurface(t, dev, c, 8, 8)

	if _, err := c.BindSurface(s); err != nil {
		t.Fatalf("BindSurface() error = %v", err)
	}
	if err := c.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent() error = %v", err)
	}
	if err := dev.DestroyContext(c); !errors.Is(err, ErrContextInUse) {
		t.Errorf("DestroyContext(current) error = %v, want ErrContextInUse", err)
	}
	if err := c.MakeNotCurrent(); err != nil {
		t.Fatalf("MakeNotCurrent() error = %v", err)
	}
	if err := dev.DestroyContext(c); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("DestroyContext(bound) error = %v, want ErrSurfaceInUse", err)
	}
	if c.BoundSurface() != s {
		t.Error("failed DestroyContext changed the binding")
	}
	if err := dev.DestroySurface(c, s); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("DestroySurface(bound) error = %v, want ErrSurfaceInUse", err)
	}
	if _, err := dev.CreateSurfaceTexture(consumer, s); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("CreateSurfaceTexture(bound) error = %v, want ErrSurfaceInUse", err)
	}
	if _, err := c.UnbindSurface(); err != nil {
		t.Fatalf("UnbindSurface() error = %v", err)
	}

	st, err := dev.CreateSurfaceTexture(consumer, s)
	if err != nil {
		t.Fatalf("CreateSurfaceTexture() error = %v", err)
	}
	if err := dev.DestroySurface(c, s); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("DestroySurface(borrowed) error = %v, want ErrSurfaceInUse", err)
	}
	if _, err := c.BindSurface(s); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("BindSurface(borrowed) error = %v, want ErrSurfaceInUse", err)
	}
	if err := dev.DestroyContext(consumer); !errors.Is(err, ErrSurfaceInUse) {
		t.Errorf("DestroyContext(consumer with texture) error = %v, want ErrSurfaceInUse", err)
	}
	if _, err := dev.DestroySurfaceTexture(c, st); !errors.Is(err, ErrIncompatibleSurfaceTexture) {
		t.Errorf("DestroySurfaceTexture(wrong consumer) error = %v, want ErrIncompatibleSurfaceTexture", err)
	}
	if err := dev.Destroy(); !errors.Is(err, ErrDeviceInUse) {
		t.Errorf("Device.Destroy() with live objects error = %v, want ErrDeviceInUse", err)
	}

	if _, err := dev.DestroySurfaceTexture(consumer, st); err != nil {
		t.Fatalf("DestroySurfaceTexture() error = %v", err)
	}
	if err := s.Destroy(c); err != nil {
		t.Errorf("DestroySurface() after texture release error = %v", err)
	}
	if s.Valid() {
		t.Error("destroyed surface reports valid")
	}
	if err := c.Destroy(); err != nil {
		t.Errorf("DestroyContext() error = %v", err)
	}
	if err := c.MakeCurrent(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("MakeCurrent() on destroyed context error = %v, want ErrDestroyed", err)
	}
}

func TestCreateSurfaceInvalid(t *testing.T) {
	dev := newTestDevice(t)
	c := newTestContext(t, dev)

	tests := []struct {
		name string
		typ  SurfaceType
		want error
	}{
		{"zero width", GenericSurface(image.Pt(0, 8)), ErrInvalidSize},
		{"negative height", GenericSurface(image.Pt(8, -1)), ErrInvalidSize},
		{"widget without provider", WidgetSurface(NativeWidget{}), ErrNoWidgetAttached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dev.CreateSurface(c, AccessGPUOnly, tt.typ)
			if !errors.Is(err, ErrSurfaceCreationFailed) || !errors.Is(err, tt.want) {
				t.Errorf("CreateSurface() error = %v, want ErrSurfaceCreationFailed and %v", err, tt.want)
			}
		})
	}
	if _, err := dev.CreateSurface(nil, AccessGPUOnly, GenericSurface(image.Pt(4, 4))); !errors.Is(err, ErrIncompatibleContext) {
		t.Errorf("CreateSurface(nil context) error = %v, want ErrIncompatibleContext", err)
	}
}

func TestSurfaceDataAccess(t *testing.T) {
	dev := newTestDevice(t)
	c := newTestContext(t, dev)
	s, err := dev.CreateSurface(c, AccessGPUOnly, GenericSurface(image.Pt(4, 4)))
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	defer dev.DestroySurface(c, s)

	if _, err := s.Data(); !errors.Is(err, ErrSurfaceDataInaccessible) {
		t.Errorf("Data() on GPU-only surface error = %v, want ErrSurfaceDataInaccessible", err)
	}
	info := s.Info()
	if info.Access != AccessGPUOnly || info.Kind != SurfaceGeneric || info.Creator != c.ID() {
		t.Errorf("Info() = %+v", info)
	}
	if info.Framebuffer == 0 {
		t.Error("Info().Framebuffer = 0")
	}
}

func TestWriteAndCopySurface(t *testing.T) {
	dev := newTestDevice(t)
	c := newTestContext(t, dev)
	src := newTestSurface(t, dev, c, 8, 4)
	dst := newTestSurface(t, dev, c, 8, 4)

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []byte{9, 8, 7, 255})
	}
	if err := dev.WriteSurface(src, img); err != nil {
		t.Fatalf("WriteSurface() error = %v", err)
	}
	if err := dev.CopySurface(src, dst); err != nil {
		t.Fatalf("CopySurface() error = %v", err)
	}
	got, err := dst.Data()
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if p := pixelAt(got, 7, 3); p != [4]byte{9, 8, 7, 255} {
		t.Errorf("copied pixel = %v, want [9 8 7 255]", p)
	}

	small := newTestSurface(t, dev, c, 2, 2)
	if err := dev.CopySurface(src, small); !errors.Is(err, ErrIncompatibleSurface) {
		t.Errorf("CopySurface(size mismatch) error = %v, want ErrIncompatibleSurface", err)
	}
	if err := dev.WriteSurface(small, img); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("WriteSurface(size mismatch) error = %v, want ErrInvalidSize", err)
	}
}

func TestPresent(t *testing.T) {
	lockThread(t)
	dev := newTestDevice(t)
	c := newTestContext(t, dev)

	generic := newTestSurface(t, dev, c, 4, 4)
	if _, err := generic.Present(c); !errors.Is(err, ErrPresentFailed) || !errors.Is(err, ErrNoWidgetAttached) {
		t.Errorf("Present(generic) error = %v, want ErrPresentFailed and ErrNoWidgetAttached", err)
	}

	widget := NativeWidget{Provider: gpucontext.NullWindowProvider{W: 32, H: 16, SF: 2}}
	s, err := dev.CreateSurface(c, AccessGPUOnly, WidgetSurface(widget))
	if err != nil {
		t.Fatalf("CreateSurface(widget) error = %v", err)
	}
	if got := s.Size(); got != image.Pt(64, 32) {
		t.Errorf("widget size = %v, want (64,32)", got)
	}
	if _, err := dev.CreateSurfaceTexture(c, s); !errors.Is(err, ErrSurfaceTextureCreationFailed) || !errors.Is(err, ErrWidgetAttached) {
		t.Errorf("CreateSurfaceTexture(widget) error = %v, want ErrSurfaceTextureCreationFailed and ErrWidgetAttached", err)
	}
	if _, err := s.Present(c); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("Present() without current context error = %v, want ErrNotCurrent", err)
	}

	if err := c.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent() error = %v", err)
	}
	defer c.MakeNotCurrent()
	if _, err := s.Present(c); !errors.Is(err, ErrPresentFailed) {
		t.Errorf("Present() on unbound surface error = %v, want ErrPresentFailed", err)
	}
	if _, err := c.BindSurface(s); err != nil {
		t.Fatalf("BindSurface() error = %v", err)
	}
	if err := c.Clear(gputypes.Color{B: 1, A: 1}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	next, err := s.Present(c)
	if err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if next == s || next.ID() != s.ID() {
		t.Error("Present() must return a new surface with the same id")
	}
	if s.Valid() || !next.Valid() {
		t.Error("presented surface still valid or replacement invalid")
	}
	if c.BoundSurface() != next {
		t.Error("replacement surface is not bound to the context")
	}
	if _, err := c.BindSurface(s); !errors.Is(err, ErrInvalidated) {
		t.Errorf("BindSurface(presented) error = %v, want ErrInvalidated", err)
	}
	// s and next share a handle; only next resolves through it.
	if err := dev.DestroySurface(c, s); !errors.Is(err, ErrDestroyed) {
		t.Errorf("DestroySurface(presented) error = %v, want ErrDestroyed", err)
	}
	if !next.Valid() {
		t.Error("destroying the presented surface invalidated its replacement")
	}

	if _, err := c.UnbindSurface(); err != nil {
		t.Fatalf("UnbindSurface() error = %v", err)
	}
	if err := dev.DestroySurface(c, next); err != nil {
		t.Errorf("DestroySurface(next) error = %v", err)
	}
}

func TestPresentFailureInvalidatesSurface(t *testing.T) {
	lockThread(t)
	conn := newTestConnection(t, WithBackend(lossyName))
	adapter, err := conn.CreateAdapter(PreferDefault)
	if err != nil {
		t.Fatalf("CreateAdapter() error = %v", err)
	}
	dev, err := NewDevice(conn, adapter)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { dev.Destroy() })
	c := newTestContext(t, dev)

	widget := NativeWidget{Provider: gpucontext.NullWindowProvider{W: 16, H: 16, SF: 1}}
	s, err := dev.CreateSurface(c, AccessGPUOnly, WidgetSurface(widget))
	if err != nil {
		t.Fatalf("CreateSurface(widget) error = %v", err)
	}
	if _, err := c.BindSurface(s); err != nil {
		t.Fatalf("BindSurface() error = %v", err)
	}
	if err := c.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent() error = %v", err)
	}

	dev.native.(*lossyDevice).failPresent.Store(true)
	next, err := s.Present(c)
	if !errors.Is(err, ErrPresentFailed) || CodeOf(err) != CodeBadNativeWindow {
		t.Fatalf("Present() error = %v, want ErrPresentFailed with native window code", err)
	}
	if next != nil {
		t.Error("failed Present() returned a surface")
	}
	if s.Valid() {
		t.Error("surface still valid after failed Present()")
	}
	if c.BoundSurface() != nil || s.Info().ContextID != 0 {
		t.Error("surface still bound after failed Present()")
	}
	if err := c.Clear(gputypes.Color{A: 1}); !errors.Is(err, ErrNothingBound) {
		t.Errorf("Clear() after failed Present() error = %v, want ErrNothingBound", err)
	}
	if _, err := c.BindSurface(s); !errors.Is(err, ErrInvalidated) {
		t.Errorf("BindSurface() after failed Present() error = %v, want ErrInvalidated", err)
	}
	if _, err := s.Present(c); !errors.Is(err, ErrInvalidated) {
		t.Errorf("second Present() error = %v, want ErrInvalidated", err)
	}
	if dev.IsLost() {
		t.Error("present failure marked the device lost")
	}
	if err := dev.DestroySurface(c, s); err != nil {
		t.Errorf("DestroySurface() error = %v", err)
	}
}

func TestDeviceLost(t *testing.T) {
	lockThread(t)
	conn, err := Connect(WithBackend(lossyName))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	adapter, err := conn.CreateAdapter(PreferDefault)
	if err != nil {
		t.Fatalf("CreateAdapter() error = %v", err)
	}
	dev, err := NewDevice(conn, adapter)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	c, err := dev.CreateContext(DefaultContextAttributes())
	if err != nil {
		t.Fatalf("CreateContext() error = %v", err)
	}
	s, err := dev.CreateSurface(c, AccessGPUCPU, GenericSurface(image.Pt(4, 4)))
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	if _, err := c.BindSurface(s); err != nil {
		t.Fatalf("BindSurface() error = %v", err)
	}
	if err := c.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent() error = %v", err)
	}

	dev.native.(*lossyDevice).lost.Store(true)
	err = c.Clear(gputypes.Color{A: 1})
	if !errors.Is(err, ErrContextLost) || CodeOf(err) != CodeContextLost {
		t.Fatalf("Clear() after loss error = %v, want ErrContextLost", err)
	}
	if !dev.IsLost() {
		t.Error("IsLost() = false after device loss")
	}
	if _, err := dev.CreateContext(DefaultContextAttributes()); !errors.Is(err, ErrContextLost) {
		t.Errorf("CreateContext() on lost device error = %v, want ErrContextLost", err)
	}
	if err := c.Flush(); !errors.Is(err, ErrContextLost) {
		t.Errorf("Flush() on lost device error = %v, want ErrContextLost", err)
	}

	// Teardown still works.
	if err := c.MakeNotCurrent(); err != nil {
		t.Errorf("MakeNotCurrent() error = %v", err)
	}
	if _, err := c.UnbindSurface(); err != nil {
		t.Errorf("UnbindSurface() error = %v", err)
	}
	if err := dev.DestroySurface(c, s); err != nil {
		t.Errorf("DestroySurface() error = %v", err)
	}
	if err := dev.DestroyContext(c); err != nil {
		t.Errorf("DestroyContext() error = %v", err)
	}
	if err := dev.Destroy(); err != nil {
		t.Errorf("Destroy() error = %v", err)
	}
	if err := dev.Destroy(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("second Destroy() error = %v, want ErrDestroyed", err)
	}
}
