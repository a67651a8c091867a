// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bpowers/gdbm/bucket"
	"github.com/bpowers/gdbm/dir"
	"github.com/bpowers/gdbm/format"
)

var errTooManyKeys = errors.New("keys don't fit even with a fully split directory")

// image is an in-memory file that grows on write.
type image struct {
	buf []byte
}

func (m *image) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := int(off) + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:end], p), nil
}

func (m *image) Bytes() []byte {
	return m.buf
}

type record struct {
	key   []byte
	value []byte
	hash  uint32
}

func makeRecords(n int, h hasher) []record {
	records := make([]record, n)
	for i := range records {
		key := []byte(fmt.Sprintf("key-%08d", i))
		records[i] = record{
			key:   key,
			value: []byte(fmt.Sprintf("value-%d", i)),
			hash:  h(key),
		}
	}
	return records
}

func roundUp(n, block uint64) uint64 {
	return (n + block - 1) / block * block
}

// bucketBits returns the smallest bucket depth at which no bucket
// overflows.
func bucketBits(records []record, g format.Geometry) (uint32, error) {
	for bits := uint32(0); bits <= g.DirBits; bits++ {
		counts := make([]uint32, 1<<bits)
		fits := true
		for _, r := range records {
			i := dir.Index(r.hash, bits)
			counts[i]++
			if counts[i] > g.BucketElems {
				fits = false
				break
			}
		}
		if fits {
			return bits, nil
		}
	}
	return 0, fmt.Errorf("%w: %d keys, %d bucket elems, %d dir bits", errTooManyKeys, len(records), g.BucketElems, g.DirBits)
}

// Stats summarizes a generated image.
type Stats struct {
	Buckets    int    `json:"buckets"`
	BucketBits uint32 `json:"bucket_bits"`
	Records    int    `json:"records"`
	Size       int    `json:"size"`
}

// Build lays out a complete image: the header block (left zeroed), the
// directory, one block-aligned bucket per hash prefix, then the key/value
// records.
func Build(cfg Config, g format.Geometry, logger *slog.Logger) (*image, Stats, error) {
	h, err := hasherFor(cfg.Hash)
	if err != nil {
		return nil, Stats{}, err
	}
	records := makeRecords(cfg.Keys, h)

	bits, err := bucketBits(records, g)
	if err != nil {
		return nil, Stats{}, err
	}

	block := uint64(cfg.BlockSize)
	stride := roundUp(uint64(bucket.Size(g)), block)
	bucketsStart := roundUp(g.DirOffset+uint64(g.DirSize), block)
	nBuckets := 1 << bits
	bucketOffset := func(i int) uint64 {
		return bucketsStart + uint64(i)*stride
	}

	logger.Info("laying out image",
		"buckets", nBuckets,
		"bucket_bits", bits,
		"bucket_elems", g.BucketElems,
		"dir_bits", g.DirBits,
		"alignment", g.Alignment,
		"byte_order", g.Endian)

	img := &image{}
	cache := bucket.NewCache(bucket.WithLogger(logger))
	for i := 0; i < nBuckets; i++ {
		cache.Update(bucketOffset(i), bucket.New(g, bits))
	}

	dataOff := bucketOffset(nBuckets)
	for _, r := range records {
		off := bucketOffset(dir.Index(r.hash, bits))
		b, _ := cache.Get(off)

		loc := r.hash % g.BucketElems
		for !b.Table[loc].IsEmpty() {
			loc = (loc + 1) % g.BucketElems
		}
		e := bucket.Element{
			Hash:       r.hash,
			DataOffset: dataOff,
			KeySize:    uint32(len(r.key)),
			DataSize:   uint32(len(r.value)),
		}
		copy(e.KeyStart[:], r.key)
		b.Table[loc] = e
		b.Count++

		if _, err := img.WriteAt(append(append([]byte(nil), r.key...), r.value...), int64(dataOff)); err != nil {
			return nil, Stats{}, err
		}
		dataOff += uint64(len(r.key) + len(r.value))
	}

	d := dir.New(g.DirEntries(), 0)
	for i := range d.Offsets {
		d.Offsets[i] = bucketOffset(i >> (g.DirBits - bits))
	}
	if _, err := img.WriteAt(d.Encode(g), int64(g.DirOffset)); err != nil {
		return nil, Stats{}, err
	}

	if err := cache.Flush(img, g); err != nil {
		return nil, Stats{}, fmt.Errorf("cache.Flush: %w", err)
	}

	return img, Stats{
		Buckets:    nBuckets,
		BucketBits: bits,
		Records:    len(records),
		Size:       len(img.buf),
	}, nil
}

// File is usually an *os.File, but specified as an interface for easier testing.
type File interface {
	io.ReaderAt
	io.ReadSeeker
}

// Verify reads the directory and buckets back from f and checks that every
// generated key can be found and its record read.
func Verify(f File, cfg Config, g format.Geometry, logger *slog.Logger) (loaded int, err error) {
	h, err := hasherFor(cfg.Hash)
	if err != nil {
		return 0, err
	}

	d, err := dir.Read(f, g)
	if err != nil {
		return 0, fmt.Errorf("dir.Read: %w", err)
	}

	cache := bucket.NewCache(bucket.WithLogger(logger))
	for _, r := range makeRecords(cfg.Keys, h) {
		off, err := d.Lookup(r.hash, g.DirBits)
		if err != nil {
			return 0, err
		}
		b, err := cache.Load(f, off, g)
		if err != nil {
			return 0, fmt.Errorf("cache.Load: %w", err)
		}
		if err := findRecord(f, b, r, g); err != nil {
			return 0, fmt.Errorf("key %q: %w", r.key, err)
		}
	}

	return cache.Len(), nil
}

func findRecord(f io.ReaderAt, b *bucket.Bucket, r record, g format.Geometry) error {
	loc := r.hash % g.BucketElems
	for n := uint32(0); n < g.BucketElems; n++ {
		e := b.Table[loc]
		if e.IsEmpty() {
			break
		}
		if e.Hash == r.hash && e.KeySize == uint32(len(r.key)) && bytes.HasPrefix(r.key, e.KeyStart[:min(len(r.key), format.KeySmall)]) {
			buf := make([]byte, e.KeySize+e.DataSize)
			if _, err := f.ReadAt(buf, int64(e.DataOffset)); err != nil {
				return fmt.Errorf("f.ReadAt(%d): %w", e.DataOffset, err)
			}
			if bytes.Equal(buf[:e.KeySize], r.key) {
				if !bytes.Equal(buf[e.KeySize:], r.value) {
					return fmt.Errorf("value mismatch at %d", e.DataOffset)
				}
				return nil
			}
		}
		loc = (loc + 1) % g.BucketElems
	}
	return errors.New("not found")
}
