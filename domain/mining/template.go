package mining

import (
	"time"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/transactionhelper"
	"github.com/pkg/errors"
)

// BlockTemplate houses a block that has yet to be solved along with the
// coin paid by its coinbase.
type BlockTemplate struct {
	// Block is ready to be solved: it is valid except for its proof of
	// work, which is all zero nonces.
	Block *model.Block

	// Coinbase opens the coinbase output of the block.
	Coinbase *transactionhelper.Coin

	// Fees is the sum of the fees of the block's transactions.
	Fees uint64

	// Difficulty is the difficulty the solved proof must reach.
	Difficulty uint64
}

// TemplateGenerator builds block templates on top of the chain.
type TemplateGenerator struct {
	chain  *chain.Chain
	params *chainconfig.Params

	// timeSource is nil for deterministic templates, spaced by the target
	// block time.
	timeSource func() time.Time
}

// NewTemplateGenerator returns a generator of templates on top of c. With
// a nil timeSource, templates are timestamped exactly one block time after
// their parent.
func NewTemplateGenerator(c *chain.Chain, timeSource func() time.Time) *TemplateGenerator {
	return &TemplateGenerator{
		chain:      c,
		params:     c.Params(),
		timeSource: timeSource,
	}
}

// NewBlockTemplate returns a template on top of prevHeader holding txs and
// a coinbase paying the reward and the fees. coinbaseSeed derives the
// coinbase blinding factor.
func (g *TemplateGenerator) NewBlockTemplate(prevHeader *model.BlockHeader, txs []*model.Transaction,
	coinbaseSeed []byte) (*BlockTemplate, error) {

	body := model.TransactionBody{}
	offsets := []secp.BlindingFactor{prevHeader.TotalKernelOffset}
	var fees uint64
	for _, tx := range txs {
		body.Inputs = append(body.Inputs, tx.Body.Inputs...)
		body.Outputs = append(body.Outputs, tx.Body.Outputs...)
		body.Kernels = append(body.Kernels, tx.Body.Kernels...)
		offsets = append(offsets, tx.Offset)
		fees += tx.Body.Fee()
	}
	output, kernel, coin, err := transactionhelper.NewCoinbase(g.params.Reward()+fees, coinbaseSeed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build the coinbase")
	}
	body.Outputs = append(body.Outputs, output)
	body.Kernels = append(body.Kernels, kernel)
	body.Sort()

	totalKernelOffset, err := secp.BlindSum(offsets, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum the kernel offsets")
	}
	next, err := g.chain.NextDifficulty(prevHeader)
	if err != nil {
		return nil, err
	}

	header := &model.BlockHeader{
		Version:           model.HeaderVersion,
		Height:            prevHeader.Height + 1,
		Timestamp:         g.nextTimestamp(prevHeader),
		PrevHash:          *prevHeader.Hash(),
		TotalDifficulty:   prevHeader.TotalDifficulty + next.Difficulty,
		SecondaryScaling:  next.SecondaryScaling,
		TotalKernelOffset: totalKernelOffset,
		PoW: &pow.Proof{
			EdgeBits: g.params.MinEdgeBits,
			Nonces:   make([]uint64, g.params.ProofSize),
		},
	}
	block := &model.Block{Header: header, Body: body}
	err = g.chain.SetTxHashSetRoots(block)
	if err != nil {
		return nil, err
	}

	log.Debugf("Created a block template at height %d (%d transactions, %d in fees, difficulty %d)",
		header.Height, len(txs), fees, next.Difficulty)
	return &BlockTemplate{
		Block:      block,
		Coinbase:   coin,
		Fees:       fees,
		Difficulty: next.Difficulty,
	}, nil
}

func (g *TemplateGenerator) nextTimestamp(prevHeader *model.BlockHeader) int64 {
	if g.timeSource == nil {
		return prevHeader.Timestamp + g.params.BlockTime()
	}
	now := g.timeSource().Unix()
	if now <= prevHeader.Timestamp {
		return prevHeader.Timestamp + 1
	}
	return now
}
