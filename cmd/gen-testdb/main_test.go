// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/gdbm/bucket"
	"github.com/bpowers/gdbm/dir"
	"github.com/bpowers/gdbm/format"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Geometry(t *testing.T) {
	g, err := DefaultConfig().Geometry()
	require.NoError(t, err)
	assert.Equal(t, format.Align64, g.Alignment)
	assert.Equal(t, format.Little, g.Endian)
	assert.Equal(t, uint64(4096), g.DirOffset)
	assert.Equal(t, uint32(4096), g.DirSize)
	assert.Equal(t, uint32(9), g.DirBits)
	// (4096 - 88 byte bucket header) / 20 byte elements
	assert.Equal(t, uint32(200), g.BucketElems)
	assert.LessOrEqual(t, bucket.Size(g), 4096)

	cfg := DefaultConfig()
	cfg.WideOffsets = false
	cfg.ByteOrder = "big"
	g, err = cfg.Geometry()
	require.NoError(t, err)
	assert.Equal(t, format.Align32, g.Alignment)
	assert.Equal(t, format.Big, g.Endian)
	assert.Equal(t, uint32(10), g.DirBits)
	assert.Equal(t, uint32(252), g.BucketElems)

	cfg = DefaultConfig()
	cfg.ByteOrder = "middle"
	_, err = cfg.Geometry()
	assert.ErrorIs(t, err, errUnknownByteOrder)

	cfg = DefaultConfig()
	cfg.Hash = "md5"
	_, err = cfg.Geometry()
	assert.ErrorIs(t, err, errUnknownHash)

	cfg = DefaultConfig()
	cfg.Keys = -1
	_, err = cfg.Geometry()
	assert.ErrorIs(t, err, errNegativeKeys)

	cfg = DefaultConfig()
	cfg.BlockSize = 64
	_, err = cfg.Geometry()
	assert.ErrorIs(t, err, errBlockTooSmall)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.jsonc")
	contents := `{
		// small 32-bit database
		"block_size": 512,
		"wide_offsets": false,
		"byte_order": "big",
		"hash": "murmur3", // trailing comma is fine
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(512), cfg.BlockSize)
	assert.False(t, cfg.WideOffsets)
	assert.Equal(t, "big", cfg.ByteOrder)
	assert.Equal(t, "murmur3", cfg.Hash)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig().Keys, cfg.Keys)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"block_size": "big"}`), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestHashers(t *testing.T) {
	for _, name := range []string{"farm", "xxhash", "murmur3"} {
		h, err := hasherFor(name)
		require.NoError(t, err)
		a, b := h([]byte("key-00000001")), h([]byte("key-00000002"))
		assert.Zero(t, a&^uint32(hashMask), name)
		assert.NotEqual(t, a, b, name)
		assert.Equal(t, a, h([]byte("key-00000001")), name)
	}
}

func TestBuild_Verify(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig()},
		{"align32-big-xxhash", Config{BlockSize: 1024, ByteOrder: "big", Keys: 500, Hash: "xxhash"}},
		{"align64-murmur3-small-buckets", Config{BlockSize: 512, BucketElems: 16, WideOffsets: true, Keys: 300, Hash: "murmur3"}},
		{"empty", Config{BlockSize: 512, WideOffsets: true, Keys: 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, err := tc.cfg.Geometry()
			require.NoError(t, err)

			img, stats, err := Build(tc.cfg, g, discardLogger())
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.Keys, stats.Records)
			assert.Equal(t, 1<<stats.BucketBits, stats.Buckets)
			assert.Equal(t, len(img.Bytes()), stats.Size)

			loaded, err := Verify(bytes.NewReader(img.Bytes()), tc.cfg, g, discardLogger())
			require.NoError(t, err)
			if tc.cfg.Keys > 0 {
				assert.LessOrEqual(t, loaded, stats.Buckets)
				assert.Positive(t, loaded)
			}

			// every directory entry points at a bucket whose depth matches
			// the number of entries sharing it
			d, err := dir.Read(bytes.NewReader(img.Bytes()), g)
			require.NoError(t, err)
			shared := make(map[uint64]int)
			for _, off := range d.Offsets {
				shared[off]++
			}
			assert.Len(t, shared, stats.Buckets)
			total := uint32(0)
			for off, n := range shared {
				b, err := bucket.ReadBucketAt(bytes.NewReader(img.Bytes()), int64(off), g)
				require.NoError(t, err)
				assert.Equal(t, stats.BucketBits, b.Bits)
				assert.Equal(t, 1<<(g.DirBits-b.Bits), n)
				total += b.Count
			}
			assert.Equal(t, uint32(tc.cfg.Keys), total)
		})
	}
}

func TestBuild_TooManyKeys(t *testing.T) {
	cfg := Config{BlockSize: 512, BucketElems: 2, WideOffsets: true, Keys: 1000}
	g, err := cfg.Geometry()
	require.NoError(t, err)

	_, _, err = Build(cfg, g, discardLogger())
	assert.ErrorIs(t, err, errTooManyKeys)
}

func TestVerify_Corrupt(t *testing.T) {
	cfg := Config{BlockSize: 512, WideOffsets: true, Keys: 50}
	g, err := cfg.Geometry()
	require.NoError(t, err)
	img, _, err := Build(cfg, g, discardLogger())
	require.NoError(t, err)

	// different key set than what was written
	other := cfg
	other.Hash = "xxhash"
	_, err = Verify(bytes.NewReader(img.Bytes()), other, g, discardLogger())
	assert.Error(t, err)

	// chop the image in the middle of the bucket area
	short := img.Bytes()[:g.DirOffset+uint64(g.DirSize)+10]
	_, err = Verify(bytes.NewReader(short), cfg, g, discardLogger())
	assert.ErrorIs(t, err, format.ErrTruncated)
}

func TestRun(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"block_size": 1024,
		"keys": 10, // overridden below
	}`), 0o644))
	out := filepath.Join(tmp, "test.db")

	var stdout bytes.Buffer
	err := run([]string{"--config", configPath, "--out", out, "--keys", "400", "--big-endian", "--hash", "xxhash", "--verify"}, &stdout, discardLogger())
	require.NoError(t, err)

	var result output
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.Equal(t, "big", result.ByteOrder)
	assert.True(t, result.WideOffsets)
	assert.Equal(t, uint32(1024), result.BlockSize)
	assert.Equal(t, uint64(1024), result.DirOffset)
	assert.Equal(t, 400, result.Records)
	assert.Positive(t, result.Loaded)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(result.Size), info.Size())

	err = run([]string{"--out", out, "--hash", "sha1"}, io.Discard, discardLogger())
	assert.ErrorIs(t, err, errUnknownHash)

	err = run([]string{"--out", out, "--keys=-1"}, io.Discard, discardLogger())
	assert.ErrorIs(t, err, errNegativeKeys)

	negative := filepath.Join(tmp, "negative.json")
	require.NoError(t, os.WriteFile(negative, []byte(`{"keys": -5}`), 0o644))
	err = run([]string{"--config", negative, "--out", out}, io.Discard, discardLogger())
	assert.ErrorIs(t, err, errNegativeKeys)

	err = run([]string{"--no-such-flag"}, io.Discard, discardLogger())
	assert.Error(t, err)
}
