// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusurf/backend"
)

// wrap converts a HAL error into a backend.Error with the matching code.
// Device loss additionally wraps backend.ErrDeviceLost.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	code := backend.CodeFailed
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		return &backend.Error{
			Op:   op,
			Code: backend.CodeContextLost,
			Err:  fmt.Errorf("%w: %w", backend.ErrDeviceLost, err),
		}
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		code = backend.CodeBadAlloc
	case errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrZeroArea):
		code = backend.CodeBadNativeWindow
	case errors.Is(err, hal.ErrSurfaceOutdated):
		code = backend.CodeBadDrawable
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		code = backend.CodeTimeout
	case errors.Is(err, hal.ErrInvalidMapRange):
		code = backend.CodeBadAccess
	case errors.Is(err, hal.ErrBackendNotFound):
		code = backend.CodeUnsupported
	}
	return &backend.Error{Op: op, Code: code, Err: err}
}

func unsupported(op string, code backend.Code) error {
	return &backend.Error{Op: op, Code: code, Err: backend.ErrUnsupported}
}
