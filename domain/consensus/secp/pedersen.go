package secp

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// CommitmentSize is the size of a serialized Pedersen commitment.
const CommitmentSize = 33

// Commitment is a compressed Pedersen commitment v*H + r*G.
type Commitment [CommitmentSize]byte

// String returns the commitment as a hex string.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// CommitmentFromBytes copies b into a commitment and checks that it is a
// valid curve point.
func CommitmentFromBytes(b []byte) (Commitment, error) {
	var commitment Commitment
	if len(b) != CommitmentSize {
		return commitment, errors.Wrapf(ErrInvalidPoint, "commitment length %d", len(b))
	}
	copy(commitment[:], b)
	if _, err := commitment.point(); err != nil {
		return Commitment{}, err
	}
	return commitment, nil
}

// CommitmentFromString parses a hex encoded commitment.
func CommitmentFromString(s string) (Commitment, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Commitment{}, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	return CommitmentFromBytes(b)
}

func (c *Commitment) point() (*secp256k1.JacobianPoint, error) {
	return parsePoint(c[:])
}

// valueGenerator is H, the generator values are committed to. Nobody knows
// its discrete logarithm with respect to G.
var valueGenerator = hashToCurve("mwcd/pedersen/H", 0)

// Commit creates the commitment value*H + blind*G.
func Commit(value uint64, blind *BlindingFactor) (Commitment, error) {
	r, err := blind.scalar()
	if err != nil {
		return Commitment{}, err
	}
	point := addPoints(mulPoint(valueScalar(value), valueGenerator), mulBase(r))
	serialized, err := serializePoint(point)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment(serialized), nil
}

// commitValue returns value*H, the commitment to value with a zero
// blinding factor.
func commitValue(value uint64) *secp256k1.JacobianPoint {
	return mulPoint(valueScalar(value), valueGenerator)
}

// PointSum is an accumulator of commitments. The point at infinity is a
// valid intermediate and final value.
type PointSum struct {
	point secp256k1.JacobianPoint
}

// NewPointSum returns an accumulator holding the point at infinity.
func NewPointSum() *PointSum {
	return &PointSum{}
}

// AddCommitment adds c to the sum.
func (s *PointSum) AddCommitment(c *Commitment) error {
	point, err := c.point()
	if err != nil {
		return err
	}
	s.point = *addPoints(&s.point, point)
	return nil
}

// SubCommitment subtracts c from the sum.
func (s *PointSum) SubCommitment(c *Commitment) error {
	point, err := c.point()
	if err != nil {
		return err
	}
	s.point = *addPoints(&s.point, negatePoint(point))
	return nil
}

// AddValue adds value*H to the sum.
func (s *PointSum) AddValue(value uint64) {
	if value == 0 {
		return
	}
	s.point = *addPoints(&s.point, commitValue(value))
}

// SubValue subtracts value*H from the sum.
func (s *PointSum) SubValue(value uint64) {
	if value == 0 {
		return
	}
	s.point = *addPoints(&s.point, negatePoint(commitValue(value)))
}

// AddBlind adds blind*G to the sum.
func (s *PointSum) AddBlind(blind *BlindingFactor) error {
	if blind.IsZero() {
		return nil
	}
	r, err := blind.scalar()
	if err != nil {
		return err
	}
	s.point = *addPoints(&s.point, mulBase(r))
	return nil
}

// Equal returns whether both sums are the same point.
func (s *PointSum) Equal(other *PointSum) bool {
	return pointsEqual(&s.point, &other.point)
}

// Commitment serializes the sum. It fails if the sum is the point at
// infinity.
func (s *PointSum) Commitment() (Commitment, error) {
	serialized, err := serializePoint(&s.point)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment(serialized), nil
}

// CommitSum returns the sum of the positive commitments minus the sum of
// the negative ones.
func CommitSum(positive []Commitment, negative []Commitment) (*PointSum, error) {
	sum := NewPointSum()
	for i := range positive {
		err := sum.AddCommitment(&positive[i])
		if err != nil {
			return nil, err
		}
	}
	for i := range negative {
		err := sum.SubCommitment(&negative[i])
		if err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func hashBytes(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
