// Package hash wraps xxHash64 for footer checksums and lineage signatures.
package hash

import "github.com/cespare/xxhash/v2"

// Checksum computes the xxHash64 of a footer block.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Signature hashes an ordered list of strings. Each part is followed by a NUL
// separator so ["ab", "c"] and ["a", "bc"] differ.
func Signature(parts []string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}

	return d.Sum64()
}
