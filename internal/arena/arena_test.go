// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import "testing"

func TestInsertGetRemove(t *testing.T) {
	var a Arena[string]

	h := a.Insert("ctx")
	if h.IsZero() {
		t.Fatal("Insert returned zero handle")
	}
	if v, ok := a.Get(h); !ok || v != "ctx" {
		t.Errorf("Get = (%q, %v), want (ctx, true)", v, ok)
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d, want 1", a.Len())
	}

	if v, ok := a.Remove(h); !ok || v != "ctx" {
		t.Errorf("Remove = (%q, %v), want (ctx, true)", v, ok)
	}
	if _, ok := a.Get(h); ok {
		t.Error("Get after Remove succeeded")
	}
	if _, ok := a.Remove(h); ok {
		t.Error("second Remove succeeded")
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d, want 0", a.Len())
	}
}

func TestStaleHandleAfterReuse(t *testing.T) {
	var a Arena[int]

	old := a.Insert(1)
	a.Remove(old)
	fresh := a.Insert(2)

	if old.index != fresh.index {
		t.Fatalf("slot not reused: old %d, fresh %d", old.index, fresh.index)
	}
	if _, ok := a.Get(old); ok {
		t.Error("stale handle resolves after slot reuse")
	}
	if v, _ := a.Get(fresh); v != 2 {
		t.Errorf("Get(fresh) = %d, want 2", v)
	}
}

func TestZeroHandle(t *testing.T) {
	var a Arena[int]
	a.Insert(5)
	if _, ok := a.Get(Handle{}); ok {
		t.Error("zero handle resolves")
	}
}

func TestReplace(t *testing.T) {
	var a Arena[int]
	h1 := a.Insert(1)
	h2 := a.Insert(2)
	a.Remove(h2)

	if !a.Replace(h1, 10) {
		t.Fatal("Replace on live handle failed")
	}
	if v, ok := a.Get(h1); !ok || v != 10 {
		t.Errorf("Get after Replace = (%d, %v), want (10, true)", v, ok)
	}
	if a.Replace(h2, 20) {
		t.Error("Replace on removed handle succeeded")
	}
	if a.Len() != 1 {
		t.Errorf("Len = %d, want 1", a.Len())
	}
}
