// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build linux

package bucket

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// syncData flushes file data (but not metadata) to stable storage when w is
// an *os.File.  Other writers are assumed to be in-memory.
func syncData(w io.WriterAt) error {
	f, ok := w.(*os.File)
	if !ok {
		return nil
	}
	return unix.Fdatasync(int(f.Fd()))
}
