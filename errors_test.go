// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/gpusurf/backend"
)

func TestErrorMatching(t *testing.T) {
	cause := &backend.Error{Op: "create surface", Code: backend.CodeBadAlloc, Err: errors.New("out of memory")}
	err := wrapError("create surface", ErrSurfaceCreationFailed, cause)

	if !errors.Is(err, ErrSurfaceCreationFailed) {
		t.Error("errors.Is(err, kind) = false")
	}
	var be *backend.Error
	if !errors.As(err, &be) || be != cause {
		t.Error("errors.As did not reach the backend error")
	}
	if CodeOf(err) != CodeBadAlloc {
		t.Errorf("CodeOf() = %v, want %v", CodeOf(err), CodeBadAlloc)
	}
	if errors.Is(err, ErrSurfaceInUse) {
		t.Error("error matches an unrelated kind")
	}

	wrapped := fmt.Errorf("render: %w", err)
	if !errors.Is(wrapped, ErrSurfaceCreationFailed) || CodeOf(wrapped) != CodeBadAlloc {
		t.Error("kind or code lost through fmt.Errorf wrapping")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{newError("bind surface", ErrSurfaceInUse), "gpusurf: surface in use (bind surface)"},
		{&Error{Kind: ErrFailed, Code: CodeTimeout}, "gpusurf: native call failed [timeout]"},
		{
			&Error{Op: "present", Kind: ErrPresentFailed, Err: ErrNoWidgetAttached},
			"gpusurf: present failed (present): gpusurf: no widget attached",
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != CodeNone {
		t.Error("CodeOf(nil) != CodeNone")
	}
	if CodeOf(errors.New("plain")) != CodeFailed {
		t.Error("CodeOf(plain error) != CodeFailed")
	}
	if CodeOf(newError("op", ErrContextInUse)) != CodeNone {
		t.Error("CodeOf(error without native cause) != CodeNone")
	}
}
