package pow

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

const (
	edgeBlockBits = 6
	edgeBlockSize = 1 << edgeBlockBits
	edgeBlockMask = edgeBlockSize - 1
)

// sipHash24 is the siphash-2-4 state used to generate cuckoo graph
// endpoints. The state is kept between consecutive hashes when generating
// edge blocks.
type sipHash24 struct {
	v0, v1, v2, v3 uint64
}

func newSipHash24(keys *[4]uint64) sipHash24 {
	return sipHash24{keys[0], keys[1], keys[2], keys[3]}
}

func (s *sipHash24) hash(nonce uint64, rotE int) {
	s.v3 ^= nonce
	s.round(rotE)
	s.round(rotE)
	s.v0 ^= nonce
	s.v2 ^= 0xff
	s.round(rotE)
	s.round(rotE)
	s.round(rotE)
	s.round(rotE)
}

func (s *sipHash24) digest() uint64 {
	return s.v0 ^ s.v1 ^ s.v2 ^ s.v3
}

func (s *sipHash24) round(rotE int) {
	s.v0 += s.v1
	s.v2 += s.v3
	s.v1 = bits.RotateLeft64(s.v1, 13)
	s.v3 = bits.RotateLeft64(s.v3, 16)
	s.v1 ^= s.v0
	s.v3 ^= s.v2
	s.v0 = bits.RotateLeft64(s.v0, 32)
	s.v2 += s.v1
	s.v0 += s.v3
	s.v1 = bits.RotateLeft64(s.v1, 17)
	s.v3 = bits.RotateLeft64(s.v3, rotE)
	s.v1 ^= s.v2
	s.v3 ^= s.v0
	s.v2 = bits.RotateLeft64(s.v2, 32)
}

// siphash24 hashes a single nonce with fresh keys.
func siphash24(keys *[4]uint64, nonce uint64, rotE int) uint64 {
	state := newSipHash24(keys)
	state.hash(nonce, rotE)
	return state.digest()
}

// siphashBlock hashes the whole block of 64 nonces that contains nonce,
// keeping the siphash state between nonces, and returns the digest of
// nonce xored with the digest of the last nonce of the block (or with all
// following digests if xorAll is set).
func siphashBlock(keys *[4]uint64, nonce uint64, rotE int, xorAll bool) uint64 {
	var nonceHashes [edgeBlockSize]uint64
	state := newSipHash24(keys)
	start := nonce &^ edgeBlockMask
	for i := uint64(0); i < edgeBlockSize; i++ {
		state.hash(start+i, rotE)
		nonceHashes[i] = state.digest()
	}
	index := nonce & edgeBlockMask
	xor := nonceHashes[index]
	xorFrom := uint64(edgeBlockMask)
	if xorAll || index == edgeBlockMask {
		xorFrom = index + 1
	}
	for i := xorFrom; i < edgeBlockSize; i++ {
		xor ^= nonceHashes[i]
	}
	return xor
}

// siphashKeys derives the four siphash keys from the pre-pow header bytes
// and the header nonce.
func siphashKeys(header []byte, nonce uint64) [4]uint64 {
	data := make([]byte, len(header)+8)
	copy(data, header)
	binary.BigEndian.PutUint64(data[len(header):], nonce)
	sum := blake2b.Sum256(data)
	var keys [4]uint64
	for i := range keys {
		keys[i] = binary.LittleEndian.Uint64(sum[i*8 : (i+1)*8])
	}
	return keys
}
