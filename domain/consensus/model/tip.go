package model

import (
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
)

// Tip is the summary of the head of a chain.
type Tip struct {
	Height          uint64
	LastBlockHash   hashes.Hash
	PrevBlockHash   hashes.Hash
	TotalDifficulty uint64
}

// NewTip returns the tip of a chain ending with header.
func NewTip(header *BlockHeader) *Tip {
	return &Tip{
		Height:          header.Height,
		LastBlockHash:   *header.Hash(),
		PrevBlockHash:   header.PrevHash,
		TotalDifficulty: header.TotalDifficulty,
	}
}

// Serialize writes the tip fields in order.
func (t *Tip) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	return serialization.WriteElements(w, t.Height, t.LastBlockHash, t.PrevBlockHash, t.TotalDifficulty)
}

// DeserializeTip reads a Tip written by Serialize.
func DeserializeTip(r io.Reader) (*Tip, error) {
	tip := &Tip{}
	err := serialization.ReadElements(r, &tip.Height, &tip.LastBlockHash, &tip.PrevBlockHash, &tip.TotalDifficulty)
	if err != nil {
		return nil, err
	}
	return tip, nil
}
