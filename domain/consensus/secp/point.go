package secp

import (
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// ErrInvalidPoint is returned for byte strings that don't encode a valid
// curve point.
var ErrInvalidPoint = errors.New("invalid curve point")

// ErrPointAtInfinity is returned when a point at infinity would have to be
// serialized.
var ErrPointAtInfinity = errors.New("point at infinity")

// isInfinity follows the secp256k1 package convention: either a zero Z or
// zero X and Y coordinates mark the point at infinity. Base point
// multiplication by zero yields the latter.
func isInfinity(p *secp256k1.JacobianPoint) bool {
	x, y, z := p.X, p.Y, p.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()
	return z.IsZero() || (x.IsZero() && y.IsZero())
}

func addPoints(a, b *secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	secp256k1.AddNonConst(a, b, &result)
	return &result
}

func negatePoint(p *secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	result.Set(p)
	if isInfinity(&result) {
		return &result
	}
	result.ToAffine()
	result.Y.Negate(1).Normalize()
	return &result
}

func mulPoint(k *secp256k1.ModNScalar, p *secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(k, p, &result)
	return &result
}

func mulBase(k *secp256k1.ModNScalar) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &result)
	return &result
}

func pointsEqual(a, b *secp256k1.JacobianPoint) bool {
	aInf, bInf := isInfinity(a), isInfinity(b)
	if aInf || bInf {
		return aInf == bInf
	}
	var aAffine, bAffine secp256k1.JacobianPoint
	aAffine.Set(a)
	bAffine.Set(b)
	aAffine.ToAffine()
	bAffine.ToAffine()
	return aAffine.X.Equals(&bAffine.X) && aAffine.Y.Equals(&bAffine.Y)
}

// serializePoint returns the 33 byte compressed encoding of p.
func serializePoint(p *secp256k1.JacobianPoint) ([33]byte, error) {
	var out [33]byte
	if isInfinity(p) {
		return out, errors.WithStack(ErrPointAtInfinity)
	}
	var affine secp256k1.JacobianPoint
	affine.Set(p)
	affine.ToAffine()
	copy(out[:], secp256k1.NewPublicKey(&affine.X, &affine.Y).SerializeCompressed())
	return out, nil
}

// parsePoint decodes a 33 byte compressed point.
func parsePoint(serialized []byte) (*secp256k1.JacobianPoint, error) {
	publicKey, err := secp256k1.ParsePubKey(serialized)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	var point secp256k1.JacobianPoint
	publicKey.AsJacobian(&point)
	return &point, nil
}

// hashToCurve maps a domain separation tag and an index to a curve point
// whose discrete logarithm is unknown, by hashing to an x coordinate and
// incrementing a counter until the coordinate is on the curve.
func hashToCurve(tag string, index uint32) *secp256k1.JacobianPoint {
	for counter := uint32(0); ; counter++ {
		data := make([]byte, len(tag)+8)
		copy(data, tag)
		binary.BigEndian.PutUint32(data[len(tag):], index)
		binary.BigEndian.PutUint32(data[len(tag)+4:], counter)
		sum := blake2b.Sum256(data)

		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(sum[:]); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		y.Normalize()
		var point secp256k1.JacobianPoint
		point.X.Set(&x)
		point.Y.Set(&y)
		point.Z.SetInt(1)
		return &point
	}
}
