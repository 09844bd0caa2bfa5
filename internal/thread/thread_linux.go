// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux

package thread

import "golang.org/x/sys/unix"

func current() uint64 {
	return uint64(unix.Gettid())
}
