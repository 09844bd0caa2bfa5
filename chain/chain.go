// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package chain rotates a ring of surfaces between a producing context,
// which renders into the back buffer, and consumers, which read the last
// published front buffer through surface textures.
//
// A swap publishes the back buffer as the new front and hands the producer
// another member. The member a consumer is reading is never handed back to
// the producer.
package chain

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gpusurf"
)

var (
	// ErrNoFront is wrapped by AcquireFront errors before the first swap
	// and after a resize.
	ErrNoFront = errors.New("chain: no frame published")
	// ErrNotBack is returned by Swap for a surface that is not the back buffer.
	ErrNotBack = errors.New("chain: surface is not the back buffer")
)

// DefaultCapacity is the member count used when Config.Capacity is zero.
const DefaultCapacity = 2

// Config describes a chain.
type Config struct {
	Size image.Point

	// Capacity is the member count, at least 2.
	Capacity int

	Access gpusurf.SurfaceAccess

	// Preserve carries the published contents into the next back buffer
	// on Swap and into the resized back buffer on Resize. It implies CPU
	// access.
	Preserve bool
}

// Chain is a ring of equally sized surfaces owned by a producer context.
// A Chain is safe for concurrent use; the producer side is expected to be
// driven from the thread the producer is current on.
type Chain struct {
	dev      *gpusurf.Device
	producer *gpusurf.Context

	mu       sync.Mutex
	cfg      Config
	members  []*gpusurf.Surface
	back     int
	front    int // -1 until the first swap
	borrowed map[*gpusurf.SurfaceTexture]*gpusurf.Surface
	retired  []*gpusurf.Surface
	closed   bool
}

// New creates a chain of cfg.Capacity Free surfaces on dev for producer.
func New(dev *gpusurf.Device, producer *gpusurf.Context, cfg Config) (*Chain, error) {
	const op = "new chain"
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Capacity < 2 {
		return nil, &gpusurf.Error{
			Op:   op,
			Kind: gpusurf.ErrSurfaceCreationFailed,
			Err:  fmt.Errorf("capacity %d below 2", cfg.Capacity),
		}
	}
	if cfg.Preserve && !cfg.Access.CPUAccessAllowed() {
		cfg.Access = gpusurf.AccessGPUCPU
	}
	members, err := createMembers(dev, producer, cfg)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		dev:      dev,
		producer: producer,
		cfg:      cfg,
		members:  members,
		front:    -1,
		borrowed: make(map[*gpusurf.SurfaceTexture]*gpusurf.Surface),
	}
	gpusurf.Logger().Debug("chain: created",
		"producer", producer.ID(),
		"capacity", cfg.Capacity,
		"size", cfg.Size)
	return c, nil
}

// createMembers creates every member or none.
func createMembers(dev *gpusurf.Device, producer *gpusurf.Context, cfg Config) ([]*gpusurf.Surface, error) {
	members := make([]*gpusurf.Surface, 0, cfg.Capacity)
	for range cfg.Capacity {
		s, err := dev.CreateSurface(producer, cfg.Access, gpusurf.GenericSurface(cfg.Size))
		if err != nil {
			return nil, errors.Join(err, destroyMembers(dev, members))
		}
		members = append(members, s)
	}
	return members, nil
}

// destroyMembers destroys every surface in members.
func destroyMembers(dev *gpusurf.Device, members []*gpusurf.Surface) error {
	var errs []error
	for _, m := range members {
		if err := dev.DestroySurface(nil, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Capacity returns the member count, zero once the chain is destroyed.
func (c *Chain) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Size returns the member size.
func (c *Chain) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Size
}

// Back returns the surface the producer renders into, or nil once the
// chain is destroyed.
func (c *Chain) Back() *gpusurf.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.members[c.back]
}

// IsAttached reports whether the back buffer is bound to the producer.
func (c *Chain) IsAttached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.attached()
}

// attached reports whether the back buffer is bound to the producer.
// Caller holds c.mu.
func (c *Chain) attached() bool {
	return c.members[c.back].Info().ContextID == c.producer.ID()
}

// Attach binds the back buffer to the producer and returns the surface
// bound before, if any.
func (c *Chain) Attach() (*gpusurf.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &gpusurf.Error{Op: "attach", Kind: gpusurf.ErrDestroyed}
	}
	return c.producer.BindSurface(c.members[c.back])
}

// isBorrowed reports whether a consumer holds a texture of s. Caller holds c.mu.
func (c *Chain) isBorrowed(s *gpusurf.Surface) bool {
	for _, src := range c.borrowed {
		if src == s {
			return true
		}
	}
	return false
}

// nextBack picks the member following the back buffer that no consumer is
// reading, or -1. Caller holds c.mu.
func (c *Chain) nextBack() int {
	n := len(c.members)
	for k := 1; k < n; k++ {
		i := (c.back + k) % n
		if !c.isBorrowed(c.members[i]) {
			return i
		}
	}
	return -1
}

// Swap publishes drawn, which must be the back buffer, as the front and
// returns the new back buffer. If drawn was bound to the producer, the new
// back buffer is bound in its place. When every other member is being read
// Swap fails with ErrSurfaceInUse and the chain is unchanged.
func (c *Chain) Swap(drawn *gpusurf.Surface) (*gpusurf.Surface, error) {
	const op = "swap"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &gpusurf.Error{Op: op, Kind: gpusurf.ErrDestroyed}
	}
	if drawn != c.members[c.back] {
		return nil, &gpusurf.Error{Op: op, Kind: gpusurf.ErrIncompatibleSurface, Err: ErrNotBack}
	}
	next := c.nextBack()
	if next < 0 {
		return nil, &gpusurf.Error{Op: op, Kind: gpusurf.ErrSurfaceInUse}
	}
	target := c.members[next]

	attached := c.attached()
	if attached {
		if _, err := c.producer.UnbindSurface(); err != nil {
			return nil, err
		}
	}
	if err := c.handOver(drawn, target, attached); err != nil {
		if attached {
			if _, rerr := c.producer.BindSurface(drawn); rerr != nil {
				err = errors.Join(err, fmt.Errorf("chain: rebind back buffer: %w", rerr))
			}
		}
		return nil, err
	}

	c.front, c.back = c.back, next
	return target, nil
}

// handOver prepares target as the next back buffer. Caller holds c.mu.
func (c *Chain) handOver(drawn, target *gpusurf.Surface, attach bool) error {
	if c.cfg.Preserve {
		if err := c.dev.CopySurface(drawn, target); err != nil {
			return err
		}
	}
	if attach {
		if _, err := c.producer.BindSurface(target); err != nil {
			return err
		}
	}
	return nil
}

// AcquireFront lends the front buffer to consumer. Release it with
// ReleaseFront; until then Swap never hands it to the producer.
func (c *Chain) AcquireFront(consumer *gpusurf.Context) (*gpusurf.SurfaceTexture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &gpusurf.Error{Op: "acquire front", Kind: gpusurf.ErrDestroyed}
	}
	if c.front < 0 {
		return nil, &gpusurf.Error{Op: "acquire front", Kind: gpusurf.ErrSurfaceTextureCreationFailed, Err: ErrNoFront}
	}
	s := c.members[c.front]
	st, err := c.dev.CreateSurfaceTexture(consumer, s)
	if err != nil {
		return nil, err
	}
	c.borrowed[st] = s
	return st, nil
}

// ReleaseFront ends a borrow started by AcquireFront. Members retired by
// Resize are destroyed once their last texture is released.
func (c *Chain) ReleaseFront(consumer *gpusurf.Context, st *gpusurf.SurfaceTexture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.borrowed[st]
	if !ok {
		return &gpusurf.Error{Op: "release front", Kind: gpusurf.ErrIncompatibleSurfaceTexture}
	}
	if _, err := c.dev.DestroySurfaceTexture(consumer, st); err != nil {
		return err
	}
	delete(c.borrowed, st)

	if c.isBorrowed(s) {
		return nil
	}
	for i, r := range c.retired {
		if r == s {
			c.retired = append(c.retired[:i], c.retired[i+1:]...)
			return c.dev.DestroySurface(nil, s)
		}
	}
	return nil
}

// Resize replaces every member with one of the new size. Members that are
// being read are retired: their textures report gpusurf.ErrInvalidated.
// With Preserve the last published frame is scaled into the new back
// buffer.
func (c *Chain) Resize(size image.Point) error {
	const op = "resize"
	if size.X < 1 || size.Y < 1 {
		return &gpusurf.Error{Op: op, Kind: gpusurf.ErrInvalidSize, Err: fmt.Errorf("%dx%d", size.X, size.Y)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &gpusurf.Error{Op: op, Kind: gpusurf.ErrDestroyed}
	}
	if size == c.cfg.Size {
		return nil
	}

	var snapshot *image.RGBA
	if c.cfg.Preserve && c.front >= 0 {
		img, err := c.members[c.front].Data()
		if err != nil {
			return err
		}
		snapshot = img
	}

	cfg := c.cfg
	cfg.Size = size
	members, err := createMembers(c.dev, c.producer, cfg)
	if err != nil {
		return err
	}
	if snapshot != nil {
		scaled := image.NewRGBA(image.Rectangle{Max: size})
		xdraw.BiLinear.Scale(scaled, scaled.Bounds(), snapshot, snapshot.Bounds(), xdraw.Src, nil)
		if err := c.dev.WriteSurface(members[0], scaled); err != nil {
			return errors.Join(err, destroyMembers(c.dev, members))
		}
	}

	if c.attached() {
		if _, err := c.producer.BindSurface(members[0]); err != nil {
			return errors.Join(err, destroyMembers(c.dev, members))
		}
	}

	for _, m := range c.members {
		c.retire(m)
	}
	c.members = members
	c.back, c.front = 0, -1
	c.cfg = cfg
	gpusurf.Logger().Debug("chain: resized", "producer", c.producer.ID(), "size", size, "retired", len(c.retired))
	return nil
}

// retire destroys m, or invalidates it if a consumer still reads it.
// Caller holds c.mu.
func (c *Chain) retire(m *gpusurf.Surface) {
	if c.isBorrowed(m) {
		m.Invalidate()
		c.retired = append(c.retired, m)
		return
	}
	if err := c.dev.DestroySurface(nil, m); err != nil {
		gpusurf.Logger().Warn("chain: destroy member", "surface", m.ID(), "err", err)
		m.Invalidate()
		c.retired = append(c.retired, m)
	}
}

// Clear fills the back buffer with color. The producer must be current on
// the calling thread. The producer's binding is restored afterwards.
func (c *Chain) Clear(color gputypes.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &gpusurf.Error{Op: "clear", Kind: gpusurf.ErrDestroyed}
	}
	back := c.members[c.back]
	prev := c.producer.BoundSurface()
	if prev == back {
		return c.producer.Clear(color)
	}

	if _, err := c.producer.BindSurface(back); err != nil {
		return err
	}
	err := c.producer.Clear(color)
	if prev != nil {
		_, rerr := c.producer.BindSurface(prev)
		return errors.Join(err, rerr)
	}
	_, uerr := c.producer.UnbindSurface()
	return errors.Join(err, uerr)
}

// Destroy destroys every member. It fails with ErrSurfaceInUse while a
// consumer still holds a front texture.
func (c *Chain) Destroy() error {
	const op = "destroy chain"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if len(c.borrowed) > 0 {
		return &gpusurf.Error{Op: op, Kind: gpusurf.ErrSurfaceInUse, Err: fmt.Errorf("%d front textures held", len(c.borrowed))}
	}
	if c.producer.BoundSurface() == c.members[c.back] {
		if _, err := c.producer.UnbindSurface(); err != nil {
			return err
		}
	}
	err := destroyMembers(c.dev, append(c.members, c.retired...))
	c.members, c.retired = nil, nil
	c.closed = true
	return err
}
