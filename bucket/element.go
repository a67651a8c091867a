// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bucket

import (
	"fmt"
	"io"

	"github.com/bpowers/gdbm/format"
)

// Element is one hash-table slot inside a bucket, describing where a
// key/value record lives in the file.
type Element struct {
	Hash       uint32
	KeyStart   [format.KeySmall]byte // first bytes of the key, never byte-swapped
	DataOffset uint64
	KeySize    uint32
	DataSize   uint32
}

// ElementSize returns the encoded size of an Element: 16 bytes in 32-bit
// files and 20 bytes in 64-bit files.
func ElementSize(a format.Alignment) int {
	return 4 + format.KeySmall + format.OffsetWidth(a) + 4 + 4
}

// IsEmpty reports whether the slot holds no record.
func (e Element) IsEmpty() bool {
	return e.KeySize == 0 && e.DataSize == 0
}

// ReadElement decodes a single bucket element from r.
func ReadElement(r io.Reader, g format.Geometry) (Element, error) {
	var e Element
	var err error

	if e.Hash, err = format.ReadUint32(r, g.Endian); err != nil {
		return Element{}, fmt.Errorf("hash: %w", err)
	}
	if err = format.ReadFull(r, e.KeyStart[:]); err != nil {
		return Element{}, fmt.Errorf("key_start: %w", err)
	}
	if e.DataOffset, err = format.ReadOffset(r, g.Alignment, g.Endian); err != nil {
		return Element{}, fmt.Errorf("data_ofs: %w", err)
	}
	if e.KeySize, err = format.ReadUint32(r, g.Endian); err != nil {
		return Element{}, fmt.Errorf("key_size: %w", err)
	}
	if e.DataSize, err = format.ReadUint32(r, g.Endian); err != nil {
		return Element{}, fmt.Errorf("data_size: %w", err)
	}

	return e, nil
}

// AppendBinary appends the on-disk encoding of e to buf.
func (e Element) AppendBinary(buf []byte, g format.Geometry) []byte {
	buf = format.AppendUint32(buf, g.Endian, e.Hash)
	buf = append(buf, e.KeyStart[:]...)
	buf = format.AppendOffset(buf, g.Alignment, g.Endian, e.DataOffset)
	buf = format.AppendUint32(buf, g.Endian, e.KeySize)
	buf = format.AppendUint32(buf, g.Endian, e.DataSize)
	return buf
}

// Encode returns the on-disk encoding of e.
func (e Element) Encode(g format.Geometry) []byte {
	return e.AppendBinary(make([]byte, 0, ElementSize(g.Alignment)), g)
}

// AvailElem describes a reclaimable free region of the file.
type AvailElem struct {
	Size   uint32
	Offset uint64
}

// AvailElemSize returns the encoded size of an AvailElem.
func AvailElemSize(a format.Alignment) int {
	return 4 + format.OffsetWidth(a)
}

// ReadAvailElem decodes a single avail element from r.
func ReadAvailElem(r io.Reader, g format.Geometry) (AvailElem, error) {
	size, err := format.ReadUint32(r, g.Endian)
	if err != nil {
		return AvailElem{}, fmt.Errorf("av_size: %w", err)
	}
	off, err := format.ReadOffset(r, g.Alignment, g.Endian)
	if err != nil {
		return AvailElem{}, fmt.Errorf("av_adr: %w", err)
	}
	return AvailElem{Size: size, Offset: off}, nil
}

// AppendBinary appends the on-disk encoding of a to buf.
func (a AvailElem) AppendBinary(buf []byte, g format.Geometry) []byte {
	buf = format.AppendUint32(buf, g.Endian, a.Size)
	return format.AppendOffset(buf, g.Alignment, g.Endian, a.Offset)
}
