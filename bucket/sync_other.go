// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !linux

package bucket

import (
	"io"
	"os"
)

func syncData(w io.WriterAt) error {
	f, ok := w.(*os.File)
	if !ok {
		return nil
	}
	return f.Sync()
}
