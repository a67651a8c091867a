// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"errors"
	"fmt"
	"io"
)

// ReadFull fills p from r.  Any short read, including a clean EOF before
// the first byte, is reported as ErrTruncated.
func ReadFull(r io.Reader, p []byte) error {
	n, err := io.ReadFull(r, p)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read %d of %d bytes", ErrTruncated, n, len(p))
	}
	return err
}

// ReadUint32 reads a 4-byte integer in byte order e.
func ReadUint32(r io.Reader, e Endian) (uint32, error) {
	var buf [4]byte
	if err := ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return e.order().Uint32(buf[:]), nil
}

// ReadUint64 reads an 8-byte integer in byte order e.
func ReadUint64(r io.Reader, e Endian) (uint64, error) {
	var buf [8]byte
	if err := ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return e.order().Uint64(buf[:]), nil
}

// ReadOffset reads a file offset: 4 bytes zero-extended for Align32 files,
// 8 bytes for Align64 files.
func ReadOffset(r io.Reader, a Alignment, e Endian) (uint64, error) {
	if a.Is64() {
		return ReadUint64(r, e)
	}
	v, err := ReadUint32(r, e)
	return uint64(v), err
}

// AppendUint32 appends v to buf in byte order e.
func AppendUint32(buf []byte, e Endian, v uint32) []byte {
	return e.order().AppendUint32(buf, v)
}

// AppendUint64 appends v to buf in byte order e.
func AppendUint64(buf []byte, e Endian, v uint64) []byte {
	return e.order().AppendUint64(buf, v)
}

// AppendOffset appends a file offset using the width selected by a.  Offsets
// that don't fit in 32 bits are a programming error for Align32 files.
func AppendOffset(buf []byte, a Alignment, e Endian, v uint64) []byte {
	if a.Is64() {
		return AppendUint64(buf, e, v)
	}
	if v > 0xffffffff {
		panic(fmt.Errorf("invariant broken: offset %d doesn't fit in a 32-bit file", v))
	}
	return AppendUint32(buf, e, uint32(v))
}
