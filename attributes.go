// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import "fmt"

// GLVersion is a context API version.
type GLVersion struct {
	Major, Minor uint8
}

func (v GLVersion) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Less reports whether v is older than w.
func (v GLVersion) Less(w GLVersion) bool {
	return v.Major < w.Major || v.Major == w.Major && v.Minor < w.Minor
}

// ContextAttributeFlags select the optional framebuffer parts of a context.
type ContextAttributeFlags uint8

const (
	AttrAlpha ContextAttributeFlags = 1 << iota
	AttrDepth
	AttrStencil
	AttrCompatibilityProfile
)

// Has reports whether every flag in f2 is set.
func (f ContextAttributeFlags) Has(f2 ContextAttributeFlags) bool { return f&f2 == f2 }

// ContextAttributes is the requested version and framebuffer layout of a
// context.
type ContextAttributes struct {
	Version GLVersion
	Flags   ContextAttributeFlags
}

// DefaultContextAttributes requests a 3.3 context with an RGBA8 color
// buffer and no depth or stencil.
func DefaultContextAttributes() ContextAttributes {
	return ContextAttributes{Version: GLVersion{3, 3}, Flags: AttrAlpha}
}

// Bits is the per-channel framebuffer layout derived from attributes.
type Bits struct {
	Red, Green, Blue, Alpha int
	Depth, Stencil          int
}

// Bits returns the framebuffer layout the attributes select.
func (a ContextAttributes) Bits() Bits {
	b := Bits{Red: 8, Green: 8, Blue: 8}
	if a.Flags.Has(AttrAlpha) {
		b.Alpha = 8
	}
	if a.Flags.Has(AttrDepth) {
		b.Depth = 24
	}
	if a.Flags.Has(AttrStencil) {
		b.Stencil = 8
	}
	return b
}

// ContextDescriptor is a validated set of attributes for one device.
// Obtain it from Device.ContextDescriptor.
type ContextDescriptor struct {
	attrs    ContextAttributes
	deviceID uint64
}

// Attributes returns the attributes the descriptor was built from.
func (d ContextDescriptor) Attributes() ContextAttributes { return d.attrs }
