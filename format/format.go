// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package format describes the on-disk geometry of a GDBM database file and
// provides the fixed-width integer and offset codecs every on-disk structure
// is built from.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HashBits is the number of significant bits in a GDBM key hash.
	HashBits = 31
	// KeySmall is the length of the key prefix stored inline in a bucket element.
	KeySmall = 4
)

var (
	// ErrTruncated is returned when a source yields fewer bytes than a
	// fixed-width field requires.
	ErrTruncated = errors.New("truncated input")
	// ErrInvalidGeometry is returned when a decoded structure doesn't fit
	// the database geometry.  The file is corrupt or was written with
	// different format parameters.
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// Alignment selects the width of every offset field in the file.
type Alignment uint8

const (
	// Align32 files store offsets as 4-byte integers.
	Align32 Alignment = iota + 1
	// Align64 files (large file support) store offsets as 8-byte integers.
	Align64
)

// OffsetWidth returns the size in bytes of an encoded offset.
func OffsetWidth(a Alignment) int {
	if a == Align64 {
		return 8
	}
	return 4
}

// Is64 reports whether offsets are 8 bytes wide.
func (a Alignment) Is64() bool {
	return a == Align64
}

func (a Alignment) String() string {
	switch a {
	case Align32:
		return "align32"
	case Align64:
		return "align64"
	default:
		return fmt.Sprintf("Alignment(%d)", uint8(a))
	}
}

// Endian is the database-wide byte order of multi-byte integers.
type Endian uint8

const (
	Little Endian = iota + 1
	Big
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e Endian) order() byteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endian) String() string {
	switch e {
	case Little:
		return "little"
	case Big:
		return "big"
	default:
		return fmt.Sprintf("Endian(%d)", uint8(e))
	}
}

// Geometry holds the format parameters, supplied by the file header, needed
// to decode or encode any directory or bucket.
type Geometry struct {
	Alignment   Alignment
	Endian      Endian
	BucketElems uint32 // element slots per bucket
	DirBits     uint32 // hash bits used to index the directory
	DirOffset   uint64 // file offset of the directory
	DirSize     uint32 // directory length in bytes
}

// DirEntries returns the number of offsets stored in the directory.
func (g Geometry) DirEntries() int {
	return int(g.DirSize) / OffsetWidth(g.Alignment)
}

// Validate checks that g describes a layout the codecs can handle.
func (g Geometry) Validate() error {
	if g.Alignment != Align32 && g.Alignment != Align64 {
		return fmt.Errorf("%w: unknown alignment %s", ErrInvalidGeometry, g.Alignment)
	}
	if g.Endian != Little && g.Endian != Big {
		return fmt.Errorf("%w: unknown byte order %s", ErrInvalidGeometry, g.Endian)
	}
	if g.BucketElems == 0 {
		return fmt.Errorf("%w: bucket_elems must be > 0", ErrInvalidGeometry)
	}
	if g.DirBits > HashBits {
		return fmt.Errorf("%w: dir_bits %d > %d", ErrInvalidGeometry, g.DirBits, HashBits)
	}
	if int(g.DirSize)%OffsetWidth(g.Alignment) != 0 {
		return fmt.Errorf("%w: dir_size %d not a multiple of %d", ErrInvalidGeometry, g.DirSize, OffsetWidth(g.Alignment))
	}
	return nil
}
