// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Key derives a storage slot from a prefix and identifiers.
// Key: BLAKE3(prefix || ids...)
func Key(prefix []byte, ids ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	for _, id := range ids {
		h.Write(id)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// Uint64ToHash encodes v as a big-endian storage word.
func Uint64ToHash(v uint64) common.Hash {
	var out common.Hash
	binary.BigEndian.PutUint64(out[common.HashLength-8:], v)
	return out
}

// HashToUint64 decodes a word written by Uint64ToHash.
func HashToUint64(h common.Hash) uint64 {
	return binary.BigEndian.Uint64(h[common.HashLength-8:])
}
