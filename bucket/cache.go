// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bucket

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/bpowers/gdbm/format"
)

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger for cache misses and flushes.  If not
// provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(opts *cacheOptions) {
		opts.logger = logger
	}
}

// Cache maps bucket file offsets to decoded buckets and remembers which of
// them have diverged from disk.  Reads never mark a bucket dirty: callers
// declare a mutation with Update or MarkDirty.
//
// A Cache is owned by a single session and is not safe for concurrent use.
// It never evicts; call Reset after a Flush to bound its size.
type Cache struct {
	loaded map[uint64]*Bucket
	dirty  *roaring64.Bitmap
	logger *slog.Logger
}

// NewCache returns an empty Cache.
func NewCache(opts ...CacheOption) *Cache {
	var options cacheOptions
	options.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&options)
	}
	return &Cache{
		loaded: make(map[uint64]*Bucket),
		dirty:  roaring64.New(),
		logger: options.logger,
	}
}

// Contains reports whether the bucket at off is cached.
func (c *Cache) Contains(off uint64) bool {
	_, ok := c.loaded[off]
	return ok
}

// Get returns the cached bucket at off without marking it dirty.  The
// bucket is borrowed: mutate it only if you follow up with MarkDirty.
func (c *Cache) Get(off uint64) (*Bucket, bool) {
	b, ok := c.loaded[off]
	return b, ok
}

// Insert caches b at off without marking it dirty; used when populating the
// cache from disk.
func (c *Cache) Insert(off uint64, b *Bucket) {
	c.loaded[off] = b
}

// Update caches b at off and marks it dirty.
func (c *Cache) Update(off uint64, b *Bucket) {
	c.loaded[off] = b
	c.dirty.Add(off)
}

// MarkDirty marks off dirty without changing the cached content, for
// buckets that were mutated in place through Get.
func (c *Cache) MarkDirty(off uint64) {
	c.dirty.Add(off)
}

// DirtyOffsets returns every dirty offset in ascending order, which is the
// order they should be written back in.
func (c *Cache) DirtyOffsets() []uint64 {
	return c.dirty.ToArray()
}

// ClearDirty forgets all dirty state.  Only call it once every offset from
// DirtyOffsets is durably on disk.
func (c *Cache) ClearDirty() {
	c.dirty.Clear()
}

// Len returns the number of cached buckets.
func (c *Cache) Len() int {
	return len(c.loaded)
}

// DirtyLen returns the number of dirty buckets.
func (c *Cache) DirtyLen() int {
	return int(c.dirty.GetCardinality())
}

// Reset drops every cached bucket and all dirty state.
func (c *Cache) Reset() {
	if n := c.DirtyLen(); n > 0 {
		c.logger.Warn("resetting bucket cache with unflushed buckets", "dirty", n)
	}
	c.loaded = make(map[uint64]*Bucket)
	c.dirty.Clear()
}

// Load returns the bucket at off, decoding it from r on first access.
func (c *Cache) Load(r io.ReaderAt, off uint64, g format.Geometry) (*Bucket, error) {
	if b, ok := c.loaded[off]; ok {
		return b, nil
	}
	b, err := ReadBucketAt(r, int64(off), g)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("bucket cache miss", "offset", off, "bits", b.Bits, "count", b.Count)
	c.Insert(off, b)
	return b, nil
}

// Flush writes every dirty bucket to w in ascending offset order, syncs the
// file data if w is backed by a file, and then clears the dirty set.  If
// anything fails the dirty set is left untouched.
func (c *Cache) Flush(w io.WriterAt, g format.Geometry) error {
	offsets := c.DirtyOffsets()
	if len(offsets) == 0 {
		return nil
	}

	var buf []byte
	for _, off := range offsets {
		b, ok := c.loaded[off]
		if !ok {
			return fmt.Errorf("dirty bucket %d not in cache", off)
		}
		buf = b.AppendBinary(buf[:0], g)
		if n, err := w.WriteAt(buf, int64(off)); err != nil {
			return fmt.Errorf("w.WriteAt(%d): %w", off, err)
		} else if n != len(buf) {
			return fmt.Errorf("w.WriteAt(%d): short write of %d (wanted %d)", off, n, len(buf))
		}
	}

	if err := syncData(w); err != nil {
		return fmt.Errorf("syncData: %w", err)
	}

	c.logger.Debug("flushed bucket cache", "buckets", len(offsets), "first", offsets[0], "last", offsets[len(offsets)-1])
	c.ClearDirty()
	return nil
}
