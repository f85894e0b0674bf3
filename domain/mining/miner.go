package mining

import (
	"fmt"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/utils/transactionhelper"
	"github.com/mwcnet/mwcd/domain/global"
)

// Miner builds, solves and submits blocks to a chain. It is meant for
// tests and local test networks, where graphs are small.
type Miner struct {
	chain     *chain.Chain
	generator *TemplateGenerator
	running   *global.RunningFlag
	seed      string
}

// NewMiner returns a miner on top of c. seed makes the coinbase blinding
// factors of different miners distinct.
func NewMiner(c *chain.Chain, generator *TemplateGenerator, running *global.RunningFlag, seed string) *Miner {
	return &Miner{chain: c, generator: generator, running: running, seed: seed}
}

// MineBlock builds and solves a block on top of prevHeader holding txs. The
// block is not submitted.
func (m *Miner) MineBlock(prevHeader *model.BlockHeader, txs []*model.Transaction) (*model.Block,
	*transactionhelper.Coin, error) {

	coinbaseSeed := []byte(fmt.Sprintf("%s coinbase %d %s", m.seed, prevHeader.Height+1, prevHeader.Hash()))
	template, err := m.generator.NewBlockTemplate(prevHeader, txs, coinbaseSeed)
	if err != nil {
		return nil, nil, err
	}
	header := template.Block.Header
	err = Solve(m.chain.Params(), header, template.Difficulty, DefaultMaxNonceAttempts, m.running)
	if err != nil {
		return nil, nil, err
	}
	return template.Block, template.Coinbase, nil
}

// MineOnHead mines a block holding txs on top of the head and processes
// it. It returns the block and its coinbase coin.
func (m *Miner) MineOnHead(txs []*model.Transaction) (*model.Block, *transactionhelper.Coin, error) {
	headHeader, err := m.chain.HeadHeader()
	if err != nil {
		return nil, nil, err
	}
	block, coin, err := m.MineBlock(headHeader, txs)
	if err != nil {
		return nil, nil, err
	}
	_, err = m.chain.ProcessBlock(block, chain.OptionsMine)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Mined block %s at height %d", block.Hash(), block.Header.Height)
	return block, coin, nil
}
