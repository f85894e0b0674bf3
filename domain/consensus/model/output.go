package model

import (
	"bytes"
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

// OutputFeatures marks an output as plain or coinbase.
type OutputFeatures uint8

const (
	// OutputFeaturesPlain is a regular transaction output.
	OutputFeaturesPlain OutputFeatures = 0

	// OutputFeaturesCoinbase is a block reward output. It is subject to
	// coinbase maturity.
	OutputFeaturesCoinbase OutputFeatures = 1
)

// String returns the features as a human-readable name.
func (f OutputFeatures) String() string {
	switch f {
	case OutputFeaturesPlain:
		return "Plain"
	case OutputFeaturesCoinbase:
		return "Coinbase"
	default:
		return "Unknown"
	}
}

func (f OutputFeatures) validate() error {
	if f != OutputFeaturesPlain && f != OutputFeaturesCoinbase {
		return errors.Wrapf(serialization.ErrMalformed, "invalid output features %d", f)
	}
	return nil
}

// OutputIdentifier is the part of an output stored in the output MMR.
type OutputIdentifier struct {
	Features   OutputFeatures
	Commitment secp.Commitment
}

// Serialize writes the features and the commitment.
func (o *OutputIdentifier) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	err := serialization.WriteElement(w, uint8(o.Features))
	if err != nil {
		return err
	}
	_, err = w.Write(o.Commitment[:])
	return errors.WithStack(err)
}

// DeserializeOutputIdentifier reads an OutputIdentifier.
func DeserializeOutputIdentifier(r io.Reader) (*OutputIdentifier, error) {
	identifier := &OutputIdentifier{}
	var features uint8
	err := serialization.ReadElement(r, &features)
	if err != nil {
		return nil, err
	}
	identifier.Features = OutputFeatures(features)
	err = identifier.Features.validate()
	if err != nil {
		return nil, err
	}
	err = serialization.ReadFixedBytes(r, identifier.Commitment[:])
	if err != nil {
		return nil, err
	}
	return identifier, nil
}

// IsCoinbase returns whether the output is a coinbase output.
func (o *OutputIdentifier) IsCoinbase() bool {
	return o.Features == OutputFeaturesCoinbase
}

// Output is a transaction output: a commitment and a range proof showing
// the committed value is not negative.
type Output struct {
	OutputIdentifier
	Proof secp.RangeProof
}

// Identifier returns the MMR stored part of the output.
func (o *Output) Identifier() *OutputIdentifier {
	identifier := o.OutputIdentifier
	return &identifier
}

// ProofHash returns the hash of the range proof, the data stored in the
// rangeproof MMR.
func (o *Output) ProofHash() *hashes.Hash {
	return hashes.HashData(o.Proof)
}

// Serialize writes the output identifier followed by the length prefixed
// range proof.
func (o *Output) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	err := o.OutputIdentifier.Serialize(w, version)
	if err != nil {
		return err
	}
	return serialization.WriteVarBytes(w, o.Proof)
}

// DeserializeOutput reads an output written by Serialize.
func DeserializeOutput(r io.Reader) (*Output, error) {
	identifier, err := DeserializeOutputIdentifier(r)
	if err != nil {
		return nil, err
	}
	proof, err := serialization.ReadVarBytes(r, secp.MaxRangeProofSize, "range proof")
	if err != nil {
		return nil, err
	}
	return &Output{OutputIdentifier: *identifier, Proof: proof}, nil
}

// Input spends a previously created output, identified by its commitment.
type Input struct {
	Commitment secp.Commitment
}

// Serialize writes the commitment.
func (i *Input) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	_, err := w.Write(i.Commitment[:])
	return errors.WithStack(err)
}

// DeserializeInput reads an input.
func DeserializeInput(r io.Reader) (*Input, error) {
	input := &Input{}
	err := serialization.ReadFixedBytes(r, input.Commitment[:])
	if err != nil {
		return nil, err
	}
	return input, nil
}

func compareCommitments(a, b *secp.Commitment) int {
	return bytes.Compare(a[:], b[:])
}
