// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"sync/atomic"

	"github.com/gogpu/gpusurf/backend"
)

// API is the graphics API family a connection's contexts use.
type API = backend.API

// API families.
const (
	APINative = backend.APINative
	APIGL     = backend.APIGL
	APIGLES   = backend.APIGLES
)

var nextConnectionID atomic.Uint64

// Connection is an open connection to a platform backend. Backend
// initialization happens once per process; every Connection to the same
// backend shares it.
//
// A Connection is safe for concurrent use.
type Connection struct {
	id       uint64
	name     string
	api      API
	inst     backend.Instance
	opts     options
	adapters []Adapter
	closed   atomic.Bool
}

// Connect opens a connection to the backend chosen by the options, the
// configuration and the GPUSURF_* environment, in increasing precedence.
// Without any of them the highest-priority registered backend is used.
func Connect(opts ...Option) (*Connection, error) {
	const op = "connect"

	o := defaultOptions()
	o.apply(opts)
	EnvConfig().applyTo(&o)

	name := o.backend
	if name == "" {
		name = backend.DefaultName()
	}
	if name == "" || !backend.IsRegistered(name) {
		return nil, &Error{Op: op, Kind: ErrUnknownBackend, Err: backend.ErrBackendNotAvailable}
	}

	inst, err := backend.Open(name)
	if err != nil {
		return nil, wrapError(op, ErrFailed, err)
	}

	c := &Connection{
		id:   nextConnectionID.Add(1),
		name: name,
		api:  backend.Get(name).API(),
		inst: inst,
		opts: o,
	}
	for i, info := range inst.Adapters() {
		c.adapters = append(c.adapters, Adapter{
			Index:  i,
			Kind:   kindOf(info.DeviceType),
			Name:   info.Name,
			Vendor: info.Vendor,
			Info:   info,
			conn:   c.id,
		})
	}
	o.log().Info("gpusurf: connected", "backend", name, "api", c.api, "adapters", len(c.adapters))
	return c, nil
}

// Backend returns the name of the backend in use.
func (c *Connection) Backend() string { return c.name }

// API returns the API family of contexts created through this connection.
func (c *Connection) API() API { return c.api }

// Adapters returns every adapter the backend exposes.
func (c *Connection) Adapters() []Adapter {
	return append([]Adapter(nil), c.adapters...)
}

// CreateAdapter returns the first adapter matching pref's order.
func (c *Connection) CreateAdapter(pref AdapterPreference) (Adapter, error) {
	if c.closed.Load() {
		return Adapter{}, &Error{Op: "create adapter", Kind: ErrAdapterUnavailable, Err: ErrDestroyed}
	}
	for _, kind := range pref.order() {
		for _, a := range c.adapters {
			if a.Kind == kind {
				return a, nil
			}
		}
	}
	return Adapter{}, newError("create adapter", ErrNoAdapterFound)
}

// DefaultAdapter uses the preference from the connection's options.
func (c *Connection) DefaultAdapter() (Adapter, error) {
	return c.CreateAdapter(c.opts.adapter)
}

// CreateHardwareAdapter prefers a high-performance GPU.
func (c *Connection) CreateHardwareAdapter() (Adapter, error) {
	return c.CreateAdapter(PreferHighPerformance)
}

// CreateLowPowerAdapter prefers an integrated GPU.
func (c *Connection) CreateLowPowerAdapter() (Adapter, error) {
	return c.CreateAdapter(PreferLowPower)
}

// CreateSoftwareAdapter returns a CPU adapter.
func (c *Connection) CreateSoftwareAdapter() (Adapter, error) {
	return c.CreateAdapter(PreferSoftware)
}

// Close prevents further adapter and device creation through c. Devices
// already open are unaffected; the shared backend instance stays open
// until backend.Shutdown.
func (c *Connection) Close() error {
	c.closed.Store(true)
	return nil
}
