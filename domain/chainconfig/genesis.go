package chainconfig

import (
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
)

// newGenesisBlock returns the genesis block of a network: an empty body,
// zero roots, and the initial difficulty and scaling of the network. Its
// proof of work is never verified.
func newGenesisBlock(params *Params, timestamp int64) *model.Block {
	return &model.Block{
		Header: &model.BlockHeader{
			Version:          model.HeaderVersion,
			Height:           0,
			Timestamp:        timestamp,
			TotalDifficulty:  params.InitialDifficulty,
			SecondaryScaling: params.InitialGraphWeight,
			PoW: &pow.Proof{
				EdgeBits: params.MinEdgeBits,
				Nonces:   make([]uint64, params.ProofSize),
			},
		},
	}
}
