// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package thread identifies the OS thread running the caller.
//
// Identifiers are only meaningful while the calling goroutine holds
// runtime.LockOSThread; otherwise the scheduler may move it between
// threads at any point.
package thread

// ID returns a non-zero identifier for the calling OS thread.
func ID() uint64 {
	return current()
}
