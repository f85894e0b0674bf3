package hashes

import (
	"encoding/hex"
)

// HashSize of array used to store hashes.
const HashSize = 32

// Hash is a 32-byte blake2b digest. It is used to identify headers, blocks,
// MMR nodes and verified cryptographic objects.
type Hash [HashSize]byte

// ZeroHash is the Hash value of all zero bytes. It is the root of an empty MMR.
var ZeroHash Hash

// String returns the Hash as the hexadecimal string.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// ByteSlice returns a copy of the hash bytes.
func (hash *Hash) ByteSlice() []byte {
	bytes := make([]byte, HashSize)
	copy(bytes, hash[:])
	return bytes
}

// Equal returns whether hash equals other.
// Two nil hashes are considered equal.
func (hash *Hash) Equal(other *Hash) bool {
	if hash == nil || other == nil {
		return hash == other
	}
	return *hash == *other
}

// IsZero returns true if the hash is the zero hash.
func (hash *Hash) IsZero() bool {
	return *hash == ZeroHash
}

// ToU64 interprets the first 8 bytes of the hash as a big-endian number.
func (hash *Hash) ToU64() uint64 {
	var result uint64
	for i := 0; i < 8; i++ {
		result = result<<8 | uint64(hash[i])
	}
	return result
}
