// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package dir implements the GDBM hash directory: a flat array of bucket
// offsets indexed by the top bits of a key's hash.
package dir

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bpowers/gdbm/format"
)

// BuildSize returns the byte size and bit depth of the directory for a new
// database.  The directory starts with 8 entries and doubles until it fills
// at least one block, leaving at least three hash bits for later splits.
func BuildSize(blockSize uint32, a format.Alignment) (dirSize, dirBits uint32) {
	dirSize = 8 * uint32(format.OffsetWidth(a))
	dirBits = 3

	for dirSize < blockSize && dirBits < format.HashBits-3 {
		dirSize <<= 1
		dirBits++
	}

	return dirSize, dirBits
}

// Index returns the directory slot responsible for hash when the directory
// is indexed by dirBits bits.
func Index(hash uint32, dirBits uint32) int {
	if dirBits == 0 {
		return 0
	}
	return int((hash & (1<<format.HashBits - 1)) >> (format.HashBits - dirBits))
}

// Directory is the in-memory copy of the on-disk bucket directory.  Several
// consecutive entries may point at the same bucket until it is split.
type Directory struct {
	Offsets []uint64
}

// New returns a directory of n entries all pointing at bucketOffset.
func New(n int, bucketOffset uint64) *Directory {
	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i] = bucketOffset
	}
	return &Directory{Offsets: offsets}
}

// Len returns the number of entries in the directory.
func (d *Directory) Len() int {
	return len(d.Offsets)
}

// Lookup returns the offset of the bucket responsible for hash.
func (d *Directory) Lookup(hash uint32, dirBits uint32) (uint64, error) {
	i := Index(hash, dirBits)
	if i >= len(d.Offsets) {
		return 0, fmt.Errorf("%w: index %d beyond directory of %d entries", format.ErrInvalidGeometry, i, len(d.Offsets))
	}
	return d.Offsets[i], nil
}

// dirPrealloc caps the entries allocated before any are read; dir_sz comes
// from the file header and may be corrupt.
const dirPrealloc = 4096

// Read seeks to g.DirOffset and decodes g.DirEntries() offsets.
func Read(r io.ReadSeeker, g format.Geometry) (*Directory, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(g.DirOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("r.Seek(%d): %w", g.DirOffset, err)
	}

	br := bufio.NewReader(io.LimitReader(r, int64(g.DirSize)))
	n := g.DirEntries()
	offsets := make([]uint64, 0, min(n, dirPrealloc))
	for i := 0; i < n; i++ {
		off, err := format.ReadOffset(br, g.Alignment, g.Endian)
		if err != nil {
			return nil, fmt.Errorf("dir[%d]: %w", i, err)
		}
		offsets = append(offsets, off)
	}

	return &Directory{Offsets: offsets}, nil
}

// AppendBinary appends every entry, in index order, to buf.  The result is
// a fixed-layout array without a length prefix.
func (d *Directory) AppendBinary(buf []byte, g format.Geometry) []byte {
	for _, off := range d.Offsets {
		buf = format.AppendOffset(buf, g.Alignment, g.Endian, off)
	}
	return buf
}

// Encode returns the on-disk encoding of d.
func (d *Directory) Encode(g format.Geometry) []byte {
	return d.AppendBinary(make([]byte, 0, len(d.Offsets)*format.OffsetWidth(g.Alignment)), g)
}

// Size returns the encoded length of d in bytes.
func (d *Directory) Size(a format.Alignment) uint32 {
	return uint32(len(d.Offsets) * format.OffsetWidth(a))
}
