package binary

import "github.com/cespare/xxhash/v2"

// Checksum computes the 64-bit xxhash used for trellis metadata blocks.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
