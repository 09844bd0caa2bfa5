// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// AdapterKind classifies an adapter by how it renders.
type AdapterKind uint8

const (
	// AdapterHighPerformance is a discrete or virtual GPU.
	AdapterHighPerformance AdapterKind = iota
	// AdapterLowPower is an integrated GPU.
	AdapterLowPower
	// AdapterSoftware renders on the CPU.
	AdapterSoftware
)

func (k AdapterKind) String() string {
	switch k {
	case AdapterHighPerformance:
		return "high-performance"
	case AdapterLowPower:
		return "low-power"
	case AdapterSoftware:
		return "software"
	default:
		return fmt.Sprintf("AdapterKind(%d)", k)
	}
}

func kindOf(t gputypes.DeviceType) AdapterKind {
	switch t {
	case gputypes.DeviceTypeIntegratedGPU:
		return AdapterLowPower
	case gputypes.DeviceTypeCPU:
		return AdapterSoftware
	default:
		return AdapterHighPerformance
	}
}

// Adapter identifies a physical or software GPU exposed by a Connection.
// Adapters are plain values; they hold no resources.
type Adapter struct {
	Index  int
	Kind   AdapterKind
	Name   string
	Vendor string
	Info   gputypes.AdapterInfo

	conn uint64
}

// Type maps the adapter onto the shared gpucontext classification.
func (a Adapter) Type() gpucontext.AdapterType {
	switch a.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeVirtualGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func (a Adapter) String() string {
	if a.Vendor == "" {
		return fmt.Sprintf("%s (%s)", a.Name, a.Kind)
	}
	return fmt.Sprintf("%s %s (%s)", a.Vendor, a.Name, a.Kind)
}

// AdapterPreference orders adapter kinds for Connection.CreateAdapter.
type AdapterPreference uint8

const (
	// PreferDefault tries high-performance, then low-power, then software.
	PreferDefault AdapterPreference = iota
	// PreferHighPerformance tries high-performance, then low-power.
	PreferHighPerformance
	// PreferLowPower tries low-power, then high-performance.
	PreferLowPower
	// PreferSoftware accepts only software adapters.
	PreferSoftware
)

var preferenceOrder = [...][]AdapterKind{
	PreferDefault:         {AdapterHighPerformance, AdapterLowPower, AdapterSoftware},
	PreferHighPerformance: {AdapterHighPerformance, AdapterLowPower},
	PreferLowPower:        {AdapterLowPower, AdapterHighPerformance},
	PreferSoftware:        {AdapterSoftware},
}

func (p AdapterPreference) order() []AdapterKind {
	if int(p) < len(preferenceOrder) {
		return preferenceOrder[p]
	}
	return preferenceOrder[PreferDefault]
}

func (p AdapterPreference) String() string {
	switch p {
	case PreferDefault:
		return "default"
	case PreferHighPerformance:
		return "high-performance"
	case PreferLowPower:
		return "low-power"
	case PreferSoftware:
		return "software"
	default:
		return fmt.Sprintf("AdapterPreference(%d)", p)
	}
}

// ParseAdapterPreference parses the names printed by String.
func ParseAdapterPreference(s string) (AdapterPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return PreferDefault, nil
	case "high-performance", "hardware", "discrete":
		return PreferHighPerformance, nil
	case "low-power", "integrated":
		return PreferLowPower, nil
	case "software", "cpu":
		return PreferSoftware, nil
	}
	return PreferDefault, fmt.Errorf("gpusurf: unknown adapter preference %q", s)
}

// PreferenceFromPower converts a WebGPU power preference.
func PreferenceFromPower(p gputypes.PowerPreference) AdapterPreference {
	switch p {
	case gputypes.PowerPreferenceHighPerformance:
		return PreferHighPerformance
	case gputypes.PowerPreferenceLowPower:
		return PreferLowPower
	default:
		return PreferDefault
	}
}
