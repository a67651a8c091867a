// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/bpowers/gdbm/bucket"
	"github.com/bpowers/gdbm/dir"
	"github.com/bpowers/gdbm/format"
)

var (
	errUnknownByteOrder = errors.New("byte_order must be \"little\" or \"big\"")
	errUnknownHash      = errors.New("hash must be one of farm, xxhash, murmur3")
	errBlockTooSmall    = errors.New("block_size too small to hold a bucket")
	errNegativeKeys     = errors.New("keys must not be negative")
)

// Config describes the image to generate.  It can be loaded from a JSON
// file (comments and trailing commas allowed) and overridden by flags.
type Config struct {
	BlockSize   uint32 `json:"block_size"`
	BucketElems uint32 `json:"bucket_elems,omitempty"`
	WideOffsets bool   `json:"wide_offsets"`
	ByteOrder   string `json:"byte_order"`
	Keys        int    `json:"keys"`
	Hash        string `json:"hash"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BlockSize:   4096,
		WideOffsets: true,
		ByteOrder:   "little",
		Keys:        1000,
		Hash:        "farm",
	}
}

// LoadConfig reads a HuJSON config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Geometry derives the on-disk format parameters from cfg.  The directory
// is placed in the second block; the first is left for the file header.
func (cfg Config) Geometry() (format.Geometry, error) {
	g := format.Geometry{
		Alignment: format.Align32,
		Endian:    format.Little,
		DirOffset: uint64(cfg.BlockSize),
	}
	if cfg.WideOffsets {
		g.Alignment = format.Align64
	}
	switch cfg.ByteOrder {
	case "little", "":
	case "big":
		g.Endian = format.Big
	default:
		return format.Geometry{}, fmt.Errorf("%w: %q", errUnknownByteOrder, cfg.ByteOrder)
	}
	if _, err := hasherFor(cfg.Hash); err != nil {
		return format.Geometry{}, err
	}
	if cfg.Keys < 0 {
		return format.Geometry{}, fmt.Errorf("%w: %d", errNegativeKeys, cfg.Keys)
	}

	g.DirSize, g.DirBits = dir.BuildSize(cfg.BlockSize, g.Alignment)

	g.BucketElems = cfg.BucketElems
	if g.BucketElems == 0 {
		// as many elements as fit in one block
		header := uint32(bucket.Size(g))
		if cfg.BlockSize <= header {
			return format.Geometry{}, fmt.Errorf("%w: %d", errBlockTooSmall, cfg.BlockSize)
		}
		g.BucketElems = (cfg.BlockSize - header) / uint32(bucket.ElementSize(g.Alignment))
	}

	if err := g.Validate(); err != nil {
		return format.Geometry{}, err
	}
	return g, nil
}
