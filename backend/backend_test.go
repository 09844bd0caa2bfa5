// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
)

type stubInstance struct {
	closed atomic.Bool
}

func (*stubInstance) Adapters() []gputypes.AdapterInfo { return nil }

func (*stubInstance) OpenDevice(int) (Device, error) { return nil, ErrUnsupported }

func (i *stubInstance) Close() { i.closed.Store(true) }

type stubBackend struct {
	name  string
	opens *atomic.Int32
	inst  *stubInstance
}

func (b *stubBackend) Name() string { return b.name }
func (b *stubBackend) API() API     { return APINative }

func (b *stubBackend) Open() (Instance, error) {
	b.opens.Add(1)
	return b.inst, nil
}

func registerStub(t *testing.T, name string) *stubBackend {
	t.Helper()
	b := &stubBackend{name: name, opens: new(atomic.Int32), inst: &stubInstance{}}
	Register(name, func() Backend { return b })
	t.Cleanup(func() {
		Shutdown()
		Unregister(name)
	})
	return b
}

func TestRegisterAndGet(t *testing.T) {
	registerStub(t, "stub-a")

	if !IsRegistered("stub-a") {
		t.Fatal("IsRegistered(stub-a) = false")
	}
	if b := Get("stub-a"); b == nil || b.Name() != "stub-a" {
		t.Errorf("Get(stub-a) = %v", b)
	}
	if b := Get("missing"); b != nil {
		t.Errorf("Get(missing) = %v, want nil", b)
	}
	if !slices.Contains(Available(), "stub-a") {
		t.Errorf("Available() = %v, missing stub-a", Available())
	}
	if !slices.IsSorted(Available()) {
		t.Errorf("Available() = %v, want sorted", Available())
	}
}

func TestDefaultPrefersPriority(t *testing.T) {
	registerStub(t, "zzz-unlisted")
	registerStub(t, Noop)

	// Without a listed backend registered the unlisted one could win;
	// a listed one must always take precedence.
	name := DefaultName()
	if name == "zzz-unlisted" {
		t.Errorf("DefaultName() = %q, want a prioritized backend", name)
	}
}

func TestOpenInitializesOnce(t *testing.T) {
	b := registerStub(t, "stub-once")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Open("stub-once"); err != nil {
				t.Errorf("Open() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := b.opens.Load(); got != 1 {
		t.Errorf("backend opened %d times, want 1", got)
	}
	if !IsOpen("stub-once") {
		t.Error("IsOpen = false after Open")
	}

	Shutdown()
	if !b.inst.closed.Load() {
		t.Error("Shutdown did not close the instance")
	}
	if IsOpen("stub-once") {
		t.Error("IsOpen = true after Shutdown")
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("no-such-backend")
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(unknown) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeNone},
		{errors.New("plain"), CodeFailed},
		{&Error{Op: "create", Code: CodeBadAlloc}, CodeBadAlloc},
		{fmt.Errorf("wrapped: %w", &Error{Op: "bind", Code: CodeBadDrawable}), CodeBadDrawable},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Op: "present", Code: CodeContextLost, Err: ErrDeviceLost}
	if !errors.Is(err, ErrDeviceLost) {
		t.Error("errors.Is(err, ErrDeviceLost) = false")
	}
	if got := err.Error(); got != "backend: present: context lost: backend: device lost" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAPIString(t *testing.T) {
	if APIGLES.String() != "gles" || APINative.String() != "native" {
		t.Errorf("API strings = %q, %q", APIGLES, APINative)
	}
	if Code(99).String() != "Code(99)" {
		t.Errorf("Code(99).String() = %q", Code(99))
	}
}
