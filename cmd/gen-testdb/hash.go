// Copyright 2024 The gdbm Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/dgryski/go-farm"
	"github.com/spaolacci/murmur3"
)

const hashMask = 1<<31 - 1

// hasher maps a key to a 31-bit hash value, the range GDBM stores in
// bucket elements.
type hasher func(key []byte) uint32

func hasherFor(name string) (hasher, error) {
	switch name {
	case "farm", "":
		return func(key []byte) uint32 { return farm.Hash32(key) & hashMask }, nil
	case "xxhash":
		return func(key []byte) uint32 { return uint32(xxhash.Sum64(key)) & hashMask }, nil
	case "murmur3":
		return func(key []byte) uint32 { return murmur3.Sum32(key) & hashMask }, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownHash, name)
	}
}
