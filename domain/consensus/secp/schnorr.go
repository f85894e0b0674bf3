package secp

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/pkg/errors"
)

// SignatureSize is the size of a serialized Schnorr signature.
const SignatureSize = 64

// ErrInvalidSignature is returned when a signature doesn't verify.
var ErrInvalidSignature = errors.New("invalid signature")

// Signature is a 64 byte Schnorr signature.
type Signature [SignatureSize]byte

// String returns the signature as a hex string.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// PublicKeyCommitment returns blind*G, the commitment to zero with the
// given blinding factor. Kernel excesses are such commitments.
func PublicKeyCommitment(blind *BlindingFactor) (Commitment, error) {
	return Commit(0, blind)
}

// Sign signs the 32 byte message hash with the blinding factor as the
// private key. The matching public key is PublicKeyCommitment(blind).
func Sign(message []byte, blind *BlindingFactor) (Signature, error) {
	s, err := blind.scalar()
	if err != nil {
		return Signature{}, err
	}
	if s.IsZero() {
		return Signature{}, errors.Wrap(ErrInvalidBlindingFactor, "can't sign with a zero key")
	}
	signature, err := schnorr.Sign(secp256k1.NewPrivateKey(s), message)
	if err != nil {
		return Signature{}, errors.WithStack(err)
	}
	var result Signature
	copy(result[:], signature.Serialize())
	return result, nil
}

// VerifySignature verifies signature over the 32 byte message hash against
// the public key encoded as a commitment.
func VerifySignature(message []byte, signature *Signature, publicKey *Commitment) error {
	parsedKey, err := secp256k1.ParsePubKey(publicKey[:])
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	parsedSignature, err := schnorr.ParseSignature(signature[:])
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !parsedSignature.Verify(message, parsedKey) {
		return errors.WithStack(ErrInvalidSignature)
	}
	return nil
}
