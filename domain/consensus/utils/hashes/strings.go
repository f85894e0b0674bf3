package hashes

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// FromString creates a Hash from a hash string. The string must be exactly
// 64 hexadecimal characters; either case is accepted.
func FromString(hash string) (*Hash, error) {
	ret := new(Hash)
	err := decode(ret, hash)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// FromBytes creates a Hash from the given byte slice.
func FromBytes(hashBytes []byte) (*Hash, error) {
	if len(hashBytes) != HashSize {
		return nil, errors.Errorf("a hash is %d bytes, got %d", HashSize, len(hashBytes))
	}
	var hash Hash
	copy(hash[:], hashBytes)
	return &hash, nil
}

func decode(dst *Hash, src string) error {
	if len(src) != 2*HashSize {
		return errors.Errorf("a hash is %d hex characters, got %d", 2*HashSize, len(src))
	}

	_, err := hex.Decode(dst[:], []byte(strings.ToLower(src)))
	if err != nil {
		return errors.Wrap(err, "couldn't decode hash hex")
	}
	return nil
}
