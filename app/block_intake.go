package app

import (
	"sync"
	"sync/atomic"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
)

const blockIntakeQueueSize = 64

type blockIntakeRequest struct {
	block  *model.Block
	result chan error
}

// BlockIntake feeds the blocks it's handed to the chain one at a time from
// a single worker goroutine. Every CompactionInterval blocks it compacts
// the chain in the background.
type BlockIntake struct {
	chain    *chain.Chain
	requests chan *blockIntakeRequest
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	compacting int32
}

// NewBlockIntake returns a BlockIntake for c. Use Start to launch its
// worker.
func NewBlockIntake(c *chain.Chain) *BlockIntake {
	return &BlockIntake{
		chain:    c,
		requests: make(chan *blockIntakeRequest, blockIntakeQueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the intake worker.
func (bi *BlockIntake) Start() {
	bi.wg.Add(1)
	spawn("BlockIntake.worker", bi.worker)
}

// Stop stops the intake worker and waits for the block in process and
// any running compaction. Blocks still queued are rejected with a KindStopped error. Stop
// may be called more than once.
func (bi *BlockIntake) Stop() {
	bi.stopOnce.Do(func() {
		close(bi.quit)
	})
	bi.wg.Wait()
}

// SubmitBlock queues block for processing and waits for its outcome.
// Orphans and blocks that are already known are accepted.
//
// This function is safe for concurrent access.
func (bi *BlockIntake) SubmitBlock(block *model.Block) error {
	request := &blockIntakeRequest{block: block, result: make(chan error, 1)}
	select {
	case bi.requests <- request:
	case <-bi.quit:
		return ruleerrors.New(ruleerrors.KindStopped, "the block intake is stopped")
	}
	select {
	case err := <-request.result:
		return err
	case <-bi.quit:
		return ruleerrors.New(ruleerrors.KindStopped, "the block intake is stopped")
	}
}

func (bi *BlockIntake) worker() {
	defer bi.wg.Done()
	for {
		select {
		case request := <-bi.requests:
			request.result <- bi.process(request.block)
		case <-bi.quit:
			return
		}
	}
}

func (bi *BlockIntake) process(block *model.Block) error {
	blockHash := block.Hash()
	tip, err := bi.chain.ProcessBlock(block, chain.OptionsNone)
	if err != nil {
		kind, _ := ruleerrors.KindOf(err)
		switch kind {
		case ruleerrors.KindOrphan:
			log.Infof("Block %s at height %d is an orphan", blockHash, block.Header.Height)
			return nil
		case ruleerrors.KindUnfit:
			log.Debugf("Ignoring block %s: %s", blockHash, err)
			return nil
		}
		log.Infof("Rejected block %s at height %d: %s", blockHash, block.Header.Height, err)
		return err
	}
	if tip != nil {
		log.Infof("Accepted block %s, the head is now at height %d", blockHash, tip.Height)
		bi.compactAt(tip.Height)
	} else {
		log.Infof("Accepted block %s on a side chain", blockHash)
	}
	return nil
}

func (bi *BlockIntake) compactAt(height uint64) {
	interval := bi.chain.Params().CompactionInterval
	if interval == 0 || height%interval != 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&bi.compacting, 0, 1) {
		log.Debugf("Skipping compaction at height %d, the previous one is still running", height)
		return
	}
	bi.wg.Add(1)
	spawn("BlockIntake.compact", func() {
		defer bi.wg.Done()
		defer atomic.StoreInt32(&bi.compacting, 0)

		err := bi.chain.Compact()
		if err != nil {
			log.Warnf("Compaction at height %d failed: %s", height, err)
		}
	})
}
