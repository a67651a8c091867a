// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffset_RoundTrip(t *testing.T) {
	for _, a := range []Alignment{Align32, Align64} {
		for _, e := range []Endian{Little, Big} {
			values := []uint64{0, 1, 0x1234, 0xfffffffe, 0xffffffff}
			if a.Is64() {
				values = append(values, 1<<32, 0x0102030405060708, ^uint64(0))
			}
			var buf []byte
			for _, v := range values {
				buf = AppendOffset(buf, a, e, v)
			}
			require.Equal(t, len(values)*OffsetWidth(a), len(buf))

			r := bytes.NewReader(buf)
			for _, expected := range values {
				v, err := ReadOffset(r, a, e)
				require.NoError(t, err)
				assert.Equal(t, expected, v, "%s/%s", a, e)
			}
			_, err := ReadOffset(r, a, e)
			assert.ErrorIs(t, err, ErrTruncated)
		}
	}
}

func TestUint32_ByteOrder(t *testing.T) {
	le := AppendUint32(nil, Little, 0x01020304)
	be := AppendUint32(nil, Big, 0x01020304)
	assert.Equal(t, []byte{4, 3, 2, 1}, le)
	assert.Equal(t, []byte{1, 2, 3, 4}, be)

	v, err := ReadUint32(bytes.NewReader(be), Big)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v)

	// a 32-bit offset is zero-extended
	off, err := ReadOffset(bytes.NewReader(le), Align32, Little)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x01020304), off)
}

func TestReadFull_Truncated(t *testing.T) {
	_, err := ReadUint32(bytes.NewReader(nil), Little)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadUint32(bytes.NewReader([]byte{1, 2, 3}), Little)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadOffset(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7}), Align64, Big)
	assert.ErrorIs(t, err, ErrTruncated)

	// non-EOF errors are passed through untouched
	boom := errors.New("boom")
	err = ReadFull(errReader{boom}, make([]byte, 4))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTruncated)
}

func TestAppendOffset_TooWide(t *testing.T) {
	assert.Panics(t, func() {
		AppendOffset(nil, Align32, Little, 1<<32)
	})
}

func TestGeometry_Validate(t *testing.T) {
	good := Geometry{
		Alignment:   Align64,
		Endian:      Little,
		BucketElems: 100,
		DirBits:     9,
		DirOffset:   4096,
		DirSize:     4096,
	}
	require.NoError(t, good.Validate())
	assert.Equal(t, 512, good.DirEntries())

	bad := []func(g *Geometry){
		func(g *Geometry) { g.Alignment = 0 },
		func(g *Geometry) { g.Endian = 7 },
		func(g *Geometry) { g.BucketElems = 0 },
		func(g *Geometry) { g.DirBits = HashBits + 1 },
		func(g *Geometry) { g.DirSize = 4100 },
	}
	for i, mutate := range bad {
		g := good
		mutate(&g)
		assert.ErrorIs(t, g.Validate(), ErrInvalidGeometry, "case %d", i)
	}
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}
