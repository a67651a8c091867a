// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command gen-testdb writes a synthetic GDBM directory + bucket image for
// use as a test fixture, and prints the geometry needed to read it back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
)

type output struct {
	WideOffsets bool   `json:"wide_offsets"`
	ByteOrder   string `json:"byte_order"`
	BlockSize   uint32 `json:"block_size"`
	BucketElems uint32 `json:"bucket_elems"`
	DirBits     uint32 `json:"dir_bits"`
	DirOffset   uint64 `json:"dir_ofs"`
	DirSize     uint32 `json:"dir_sz"`
	Hash        string `json:"hash"`
	Stats
	Loaded int `json:"verified_buckets,omitempty"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("gen-testdb failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("gen-testdb", pflag.ContinueOnError)
	out := flags.StringP("out", "o", "testdata.db", "path of the image to write")
	configPath := flags.StringP("config", "c", "", "HuJSON config file")
	blockSize := flags.Uint32("block-size", 0, "block size in bytes")
	bucketElems := flags.Uint32("bucket-elems", 0, "elements per bucket (default: as many as fit in a block)")
	wide := flags.Bool("wide", true, "use 64-bit offsets")
	bigEndian := flags.Bool("big-endian", false, "use big endian byte order")
	keys := flags.IntP("keys", "n", 0, "number of keys to generate")
	hashName := flags.String("hash", "", "key hash: farm, xxhash or murmur3")
	verify := flags.Bool("verify", false, "read the image back and look up every key")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if flags.Changed("block-size") {
		cfg.BlockSize = *blockSize
	}
	if flags.Changed("bucket-elems") {
		cfg.BucketElems = *bucketElems
	}
	if flags.Changed("wide") {
		cfg.WideOffsets = *wide
	}
	if flags.Changed("big-endian") {
		cfg.ByteOrder = "little"
		if *bigEndian {
			cfg.ByteOrder = "big"
		}
	}
	if flags.Changed("keys") {
		cfg.Keys = *keys
	}
	if flags.Changed("hash") {
		cfg.Hash = *hashName
	}

	g, err := cfg.Geometry()
	if err != nil {
		return err
	}

	img, stats, err := Build(cfg, g, logger)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(*out, bytes.NewReader(img.Bytes())); err != nil {
		return fmt.Errorf("atomic.WriteFile(%s): %w", *out, err)
	}
	logger.Info("wrote image", "path", *out, "size", stats.Size, "records", stats.Records)

	result := output{
		WideOffsets: cfg.WideOffsets,
		ByteOrder:   g.Endian.String(),
		BlockSize:   cfg.BlockSize,
		BucketElems: g.BucketElems,
		DirBits:     g.DirBits,
		DirOffset:   g.DirOffset,
		DirSize:     g.DirSize,
		Hash:        cfg.Hash,
		Stats:       stats,
	}

	if *verify {
		f, err := os.Open(*out)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		if result.Loaded, err = Verify(f, cfg, g, logger); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		logger.Info("verified image", "keys", cfg.Keys, "buckets", result.Loaded)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
