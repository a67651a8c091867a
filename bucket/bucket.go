// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bucket implements the GDBM hash bucket: its exact on-disk
// encoding, and a cache that tracks which buckets need to be written back.
package bucket

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/gdbm/format"
)

// AvailSlots is the number of avail elements embedded in every bucket.
const AvailSlots = 6

// ErrCorruptBucket is returned when a decoded bucket violates the
// geometry it was read with.  It wraps format.ErrInvalidGeometry.
var ErrCorruptBucket = fmt.Errorf("corrupt bucket: %w", format.ErrInvalidGeometry)

// Bucket is an on-disk hash bucket: a private free-space reserve plus a
// fixed-capacity table of elements.
type Bucket struct {
	AvailCount uint32 // number of valid entries in Avail
	Avail      [AvailSlots]AvailElem
	Bits       uint32 // hash bits this bucket was created or last split at
	Count      uint32 // occupied entries in Table
	Table      []Element
}

// New returns an empty bucket with a zero-filled table sized for g.
func New(g format.Geometry, bits uint32) *Bucket {
	return &Bucket{
		Bits:  bits,
		Table: make([]Element, g.BucketElems),
	}
}

// headerSize is the length of everything before the element table.
func headerSize(a format.Alignment) int {
	n := 4 // av_count
	if a.Is64() {
		n += 4 // alignment padding
	}
	n += AvailSlots * AvailElemSize(a)
	n += 4 + 4 // bits, count
	return n
}

// Size returns the encoded length of a bucket in a file with geometry g.
func Size(g format.Geometry) int {
	return headerSize(g.Alignment) + int(g.BucketElems)*ElementSize(g.Alignment)
}

// Clone returns a deep copy of b.
func (b *Bucket) Clone() *Bucket {
	c := *b
	c.Table = append([]Element(nil), b.Table...)
	return &c
}

// tablePrealloc caps the element table capacity allocated up front, so a
// corrupt bucket_elems can't force a huge allocation before any element
// has been read.
const tablePrealloc = 1024

// ReadBucket decodes a bucket from r, consuming exactly Size(g) bytes on
// success.  The count and bits fields are validated against g before the
// element table is read; on any failure no bucket is returned.
func ReadBucket(r io.Reader, g format.Geometry) (*Bucket, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	b := new(Bucket)
	var err error

	// avail section
	if b.AvailCount, err = format.ReadUint32(r, g.Endian); err != nil {
		return nil, fmt.Errorf("av_count: %w", err)
	}
	if g.Alignment.Is64() {
		if _, err = format.ReadUint32(r, g.Endian); err != nil {
			return nil, fmt.Errorf("av_count padding: %w", err)
		}
	}
	for i := range b.Avail {
		if b.Avail[i], err = ReadAvailElem(r, g); err != nil {
			return nil, fmt.Errorf("avail[%d]: %w", i, err)
		}
	}

	// misc section
	if b.Bits, err = format.ReadUint32(r, g.Endian); err != nil {
		return nil, fmt.Errorf("bucket_bits: %w", err)
	}
	if b.Count, err = format.ReadUint32(r, g.Endian); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if err = b.validate(g); err != nil {
		return nil, err
	}

	// element table
	b.Table = make([]Element, 0, min(g.BucketElems, tablePrealloc))
	for i := uint32(0); i < g.BucketElems; i++ {
		e, err := ReadElement(r, g)
		if err != nil {
			return nil, fmt.Errorf("h_table[%d]: %w", i, err)
		}
		b.Table = append(b.Table, e)
	}

	return b, nil
}

// ReadBucketAt decodes the bucket stored at file offset off.
func ReadBucketAt(r io.ReaderAt, off int64, g format.Geometry) (*Bucket, error) {
	sr := io.NewSectionReader(r, off, int64(Size(g)))
	b, err := ReadBucket(bufio.NewReader(sr), g)
	if err != nil {
		return nil, fmt.Errorf("bucket at %d: %w", off, err)
	}
	return b, nil
}

// DecodeBucket decodes a bucket from its on-disk bytes.
func DecodeBucket(p []byte, g format.Geometry) (*Bucket, error) {
	return ReadBucket(bytes.NewReader(p), g)
}

func (b *Bucket) validate(g format.Geometry) error {
	if b.Count > g.BucketElems {
		return fmt.Errorf("%w: count %d > bucket_elems %d", ErrCorruptBucket, b.Count, g.BucketElems)
	}
	if b.Bits > g.DirBits {
		return fmt.Errorf("%w: bits %d > dir_bits %d", ErrCorruptBucket, b.Bits, g.DirBits)
	}
	if b.AvailCount > AvailSlots {
		return fmt.Errorf("%w: av_count %d > %d", ErrCorruptBucket, b.AvailCount, AvailSlots)
	}
	return nil
}

// AppendBinary appends the on-disk encoding of b to buf.  b must have been
// built for g: a table of any length other than g.BucketElems is a
// programming error, not an I/O condition.
func (b *Bucket) AppendBinary(buf []byte, g format.Geometry) []byte {
	if len(b.Table) != int(g.BucketElems) {
		panic(fmt.Errorf("invariant broken: bucket table has %d elements, want %d", len(b.Table), g.BucketElems))
	}
	if b.AvailCount > AvailSlots {
		panic(fmt.Errorf("invariant broken: av_count %d > %d", b.AvailCount, AvailSlots))
	}

	buf = format.AppendUint32(buf, g.Endian, b.AvailCount)
	if g.Alignment.Is64() {
		buf = format.AppendUint32(buf, g.Endian, 0)
	}
	for _, av := range b.Avail {
		buf = av.AppendBinary(buf, g)
	}

	buf = format.AppendUint32(buf, g.Endian, b.Bits)
	buf = format.AppendUint32(buf, g.Endian, b.Count)

	for _, e := range b.Table {
		buf = e.AppendBinary(buf, g)
	}

	return buf
}

// Encode returns the on-disk encoding of b.
func (b *Bucket) Encode(g format.Geometry) []byte {
	return b.AppendBinary(make([]byte, 0, Size(g)), g)
}

// IsCorrupt reports whether err came from a bucket failing validation.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptBucket)
}
