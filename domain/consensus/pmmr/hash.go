package pmmr

import (
	"encoding/binary"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

// HashWithIndex hashes index as a big endian uint64 followed by parts.
// Leaves are hashed with their 0-based position, parents with theirs and
// bagged peaks with the MMR size.
func HashWithIndex(index uint64, parts ...[]byte) *hashes.Hash {
	writer := hashes.NewHashWriter()
	var indexBytes [8]byte
	binary.BigEndian.PutUint64(indexBytes[:], index)
	writer.InfallibleWrite(indexBytes[:])
	for _, part := range parts {
		writer.InfallibleWrite(part)
	}
	return writer.Finalize()
}

// LeafHash returns the hash of leaf data stored at pos.
func LeafHash(pos uint64, data []byte) *hashes.Hash {
	return HashWithIndex(pos-1, data)
}

func pairHash(index uint64, left, right *hashes.Hash) *hashes.Hash {
	return HashWithIndex(index, left[:], right[:])
}
