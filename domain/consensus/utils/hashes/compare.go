package hashes

import "bytes"

// Cmp orders hashes by their bytes, first byte most significant. It returns
// -1, 0 or 1 as a is before, equal to or after b.
func Cmp(a, b *Hash) int {
	return bytes.Compare(a[:], b[:])
}

// Less returns whether a is before b.
func Less(a, b *Hash) bool {
	return Cmp(a, b) < 0
}
