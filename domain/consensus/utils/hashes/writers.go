package hashes

import (
	"hash"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// HashWriter computes a blake2b-256 hash of everything written to it.
type HashWriter struct {
	hash.Hash
}

// NewHashWriter returns an empty HashWriter.
func NewHashWriter() HashWriter {
	blake, err := blake2b.New256(nil)
	if err != nil {
		panic(errors.Wrap(err, "unkeyed blake2b-256 failed"))
	}
	return HashWriter{blake}
}

// InfallibleWrite writes p. hash.Hash writes never fail.
func (h HashWriter) InfallibleWrite(p []byte) {
	_, err := h.Write(p)
	if err != nil {
		panic(errors.Wrap(err, "hash write failed"))
	}
}

// Finalize returns the hash of the data written so far.
func (h HashWriter) Finalize() *Hash {
	var sum Hash
	h.Sum(sum[:0])
	return &sum
}

// HashData returns the blake2b-256 hash of data.
func HashData(data []byte) *Hash {
	sum := Hash(blake2b.Sum256(data))
	return &sum
}
