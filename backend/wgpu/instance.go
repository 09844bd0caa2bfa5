// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

type instance struct {
	b        *Backend
	hal      hal.Instance
	adapters []hal.ExposedAdapter
}

var _ backend.Instance = (*instance)(nil)

func (i *instance) Adapters() []gputypes.AdapterInfo {
	infos := make([]gputypes.AdapterInfo, len(i.adapters))
	for n, a := range i.adapters {
		infos[n] = a.Info
	}
	return infos
}

func (i *instance) OpenDevice(index int) (backend.Device, error) {
	if index < 0 || index >= len(i.adapters) {
		return nil, &backend.Error{
			Op:   "open device",
			Code: backend.CodeBadMatch,
			Err:  fmt.Errorf("adapter index %d out of range [0,%d)", index, len(i.adapters)),
		}
	}
	exposed := i.adapters[index]
	open, err := exposed.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		return nil, wrap("open device", err)
	}
	d, err := newDevice(i, exposed, open)
	if err != nil {
		open.Device.Destroy()
		return nil, err
	}
	hal.Logger().Info("wgpu: device opened",
		"backend", i.b.name, "adapter", exposed.Info.Name, "type", exposed.Info.DeviceType)
	return d, nil
}

func (i *instance) Close() {
	for _, a := range i.adapters {
		a.Adapter.Destroy()
	}
	i.hal.Destroy()
}
