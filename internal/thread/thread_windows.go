// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package thread

import "golang.org/x/sys/windows"

func current() uint64 {
	return uint64(windows.GetCurrentThreadId())
}
