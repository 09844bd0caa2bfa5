// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

// Backend adapts a HAL backend to backend.Backend.
type Backend struct {
	name  string
	hal   hal.Backend
	api   backend.API
	tight bool
	major uint8
	minor uint8
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithTightCopies declares that the HAL copies texture rows without the
// 256-byte row pitch padding. The software and noop HALs do this.
func WithTightCopies() Option {
	return func(b *Backend) { b.tight = true }
}

// New wraps a HAL backend under the given registry name.
func New(name string, api hal.Backend, opts ...Option) *Backend {
	b := &Backend{
		name:  name,
		hal:   api,
		api:   apiFor(api.Variant()),
		major: 4,
		minor: 6,
	}
	if b.api == backend.APIGLES {
		b.major, b.minor = 3, 2
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func apiFor(v gputypes.Backend) backend.API {
	if v == gputypes.BackendGL {
		return backend.APIGLES
	}
	return backend.APINative
}

// Name returns the registry name.
func (b *Backend) Name() string { return b.name }

// API returns the API family.
func (b *Backend) API() backend.API { return b.api }

// Variant returns the wrapped HAL variant.
func (b *Backend) Variant() gputypes.Backend { return b.hal.Variant() }

// Open creates the HAL instance and enumerates its adapters.
func (b *Backend) Open() (backend.Instance, error) {
	inst, err := b.hal.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << b.hal.Variant(),
	})
	if err != nil {
		return nil, wrap("create instance", err)
	}
	adapters := inst.EnumerateAdapters(nil)
	hal.Logger().Info("wgpu: backend opened", "backend", b.name, "adapters", len(adapters))
	return &instance{b: b, hal: inst, adapters: adapters}, nil
}
