package secp

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// BlindingFactorSize is the size of a serialized blinding factor.
const BlindingFactorSize = 32

// ErrInvalidBlindingFactor is returned for byte strings that are not a
// scalar smaller than the group order.
var ErrInvalidBlindingFactor = errors.New("invalid blinding factor")

// BlindingFactor is a secret scalar. It is used as the blinding factor of a
// commitment, as the kernel offset and as a kernel signing key.
type BlindingFactor [BlindingFactorSize]byte

// ZeroBlindingFactor is the zero scalar.
var ZeroBlindingFactor BlindingFactor

// String returns the blinding factor as a hex string.
func (b BlindingFactor) String() string {
	return hex.EncodeToString(b[:])
}

// IsZero returns whether b is the zero scalar.
func (b *BlindingFactor) IsZero() bool {
	return *b == ZeroBlindingFactor
}

func (b *BlindingFactor) scalar() (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b[:]); overflow {
		return nil, errors.WithStack(ErrInvalidBlindingFactor)
	}
	return &s, nil
}

func blindingFactorFromScalar(s *secp256k1.ModNScalar) BlindingFactor {
	return BlindingFactor(s.Bytes())
}

// BlindingFactorFromBytes validates and copies b.
func BlindingFactorFromBytes(b []byte) (BlindingFactor, error) {
	var factor BlindingFactor
	if len(b) != BlindingFactorSize {
		return factor, errors.Wrapf(ErrInvalidBlindingFactor, "length %d", len(b))
	}
	copy(factor[:], b)
	_, err := factor.scalar()
	if err != nil {
		return ZeroBlindingFactor, err
	}
	return factor, nil
}

// BlindingFactorFromSeed deterministically derives a non zero blinding
// factor from seed.
func BlindingFactorFromSeed(seed []byte) BlindingFactor {
	var s secp256k1.ModNScalar
	data := seed
	for {
		hash := hashBytes(data)
		overflow := s.SetByteSlice(hash[:])
		if !overflow && !s.IsZero() {
			return blindingFactorFromScalar(&s)
		}
		data = hash[:]
	}
}

// BlindSum returns the sum of the positive blinding factors minus the sum
// of the negative ones.
func BlindSum(positive []BlindingFactor, negative []BlindingFactor) (BlindingFactor, error) {
	var sum secp256k1.ModNScalar
	for i := range positive {
		s, err := positive[i].scalar()
		if err != nil {
			return ZeroBlindingFactor, err
		}
		sum.Add(s)
	}
	for i := range negative {
		s, err := negative[i].scalar()
		if err != nil {
			return ZeroBlindingFactor, err
		}
		sum.Add(new(secp256k1.ModNScalar).NegateVal(s))
	}
	return blindingFactorFromScalar(&sum), nil
}

func valueScalar(value uint64) *secp256k1.ModNScalar {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(value >> (8 * uint(i)))
	}
	var s secp256k1.ModNScalar
	s.SetByteSlice(buf[:])
	return &s
}
