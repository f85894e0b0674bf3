package model

import (
	"bytes"
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

// HeaderVersion is the only block header version this node accepts.
const HeaderVersion uint16 = 2

// BlockHeader is the fixed-width part of a block. It commits to the full
// state of the chain through the MMR roots and sizes.
type BlockHeader struct {
	Version          uint16
	Height           uint64
	Timestamp        int64
	PrevHash         hashes.Hash
	PrevRoot         hashes.Hash
	OutputRoot       hashes.Hash
	RangeProofRoot   hashes.Hash
	KernelRoot       hashes.Hash
	OutputMMRSize    uint64
	KernelMMRSize    uint64
	TotalDifficulty  uint64
	SecondaryScaling uint32
	Nonce            uint64
	PoW              *pow.Proof

	// TotalKernelOffset is the sum of all kernel offsets up to and
	// including this block.
	TotalKernelOffset secp.BlindingFactor
}

// Hash returns the hash of the full serialized header.
func (h *BlockHeader) Hash() *hashes.Hash {
	return serialization.HashOf(h)
}

// Clone returns a deep copy of the header.
func (h *BlockHeader) Clone() *BlockHeader {
	clone := *h
	if h.PoW != nil {
		clone.PoW = h.PoW.Clone()
	}
	return &clone
}

func (h *BlockHeader) serializePrePoW(w io.Writer) error {
	err := serialization.WriteElements(w, h.Version, h.Height, h.Timestamp, &h.PrevHash, &h.PrevRoot,
		&h.OutputRoot, &h.RangeProofRoot, &h.KernelRoot)
	if err != nil {
		return err
	}
	_, err = w.Write(h.TotalKernelOffset[:])
	if err != nil {
		return errors.WithStack(err)
	}
	return serialization.WriteElements(w, h.OutputMMRSize, h.KernelMMRSize, h.TotalDifficulty,
		h.SecondaryScaling)
}

// PrePoWBytes returns the serialized header up to, but excluding, the
// nonce and the proof. This is what the PoW graph is seeded with.
func (h *BlockHeader) PrePoWBytes() []byte {
	var buf bytes.Buffer
	err := h.serializePrePoW(&buf)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. writing into memory can't fail"))
	}
	return buf.Bytes()
}

// Serialize writes the canonical encoding of the header.
func (h *BlockHeader) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	if h.PoW == nil {
		return errors.New("header has no proof of work")
	}
	err := h.serializePrePoW(w)
	if err != nil {
		return err
	}
	err = serialization.WriteElement(w, h.Nonce)
	if err != nil {
		return err
	}
	return h.PoW.Serialize(w, serialization.CurrentProtocolVersion)
}

// DeserializeBlockHeader reads a header written by Serialize.
func DeserializeBlockHeader(r io.Reader, version serialization.ProtocolVersion) (*BlockHeader, error) {
	err := version.Validate()
	if err != nil {
		return nil, err
	}
	header := &BlockHeader{}
	err = serialization.ReadElements(r, &header.Version, &header.Height, &header.Timestamp, &header.PrevHash,
		&header.PrevRoot, &header.OutputRoot, &header.RangeProofRoot, &header.KernelRoot)
	if err != nil {
		return nil, err
	}
	err = serialization.ReadFixedBytes(r, header.TotalKernelOffset[:])
	if err != nil {
		return nil, err
	}
	err = serialization.ReadElements(r, &header.OutputMMRSize, &header.KernelMMRSize, &header.TotalDifficulty,
		&header.SecondaryScaling, &header.Nonce)
	if err != nil {
		return nil, err
	}
	header.PoW, err = pow.DeserializeProof(r)
	if err != nil {
		return nil, err
	}
	return header, nil
}
