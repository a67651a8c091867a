// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package dir

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/gdbm/format"
)

// File is usually an *os.File, but specified as an interface for easier testing.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// Slots reads and writes individual directory entries directly in the
// file, without loading or rewriting the whole directory.
type Slots struct {
	f     File
	g     format.Geometry
	len   int // length in number of entries
	width int
}

// NewSlots returns an accessor for the directory described by g.
func NewSlots(f File, g format.Geometry) *Slots {
	return &Slots{
		f:     f,
		g:     g,
		len:   g.DirEntries(),
		width: format.OffsetWidth(g.Alignment),
	}
}

// Len returns the number of directory entries.
func (s *Slots) Len() int {
	return s.len
}

func (s *Slots) pos(i int) int64 {
	return int64(s.g.DirOffset) + int64(i*s.width)
}

// Get reads entry i.
func (s *Slots) Get(i int) (uint64, error) {
	if i < 0 || i >= s.len {
		return 0, fmt.Errorf("index (%d) out of range (len %d)", i, s.len)
	}
	var buf [8]byte
	n, err := s.f.ReadAt(buf[:s.width], s.pos(i))
	if n < s.width {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("dir[%d]: %w", i, format.ErrTruncated)
		}
		return 0, fmt.Errorf("f.ReadAt(%d): %w", s.pos(i), err)
	}
	return format.ReadOffset(bytes.NewReader(buf[:s.width]), s.g.Alignment, s.g.Endian)
}

// Set overwrites entry i with off.
func (s *Slots) Set(i int, off uint64) error {
	if i < 0 || i >= s.len {
		return fmt.Errorf("index (%d) out of range (len %d)", i, s.len)
	}
	var arr [8]byte
	buf := format.AppendOffset(arr[:0], s.g.Alignment, s.g.Endian, off)
	if _, err := s.f.WriteAt(buf, s.pos(i)); err != nil {
		return fmt.Errorf("f.WriteAt(%d): %w", s.pos(i), err)
	}
	return nil
}

// SetRange points entries [start, end) at off, as done when a bucket is
// split and half of its directory range moves to the new bucket.
func (s *Slots) SetRange(start, end int, off uint64) error {
	if start < 0 || end > s.len || start > end {
		return fmt.Errorf("range [%d, %d) out of range (len %d)", start, end, s.len)
	}
	buf := make([]byte, 0, (end-start)*s.width)
	for i := start; i < end; i++ {
		buf = format.AppendOffset(buf, s.g.Alignment, s.g.Endian, off)
	}
	if _, err := s.f.WriteAt(buf, s.pos(start)); err != nil {
		return fmt.Errorf("f.WriteAt(%d): %w", s.pos(start), err)
	}
	return nil
}
