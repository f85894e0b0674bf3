package chain

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/infrastructure/logger"
	"github.com/pkg/errors"
)

// ProcessBlock is the main workhorse for handling insertion of new blocks
// into the chain. It rejects known and banned blocks, keeps blocks with an
// unknown parent in the orphan pool, validates the rest, and moves the
// head when the block makes the chain with the most work. Orphans waiting
// for the block are processed next.
//
// It returns the new head when the head moved, and nil otherwise. Orphans
// are reported with a KindOrphan error.
//
// This function is safe for concurrent access.
func (c *Chain) ProcessBlock(block *model.Block, options Options) (*model.Tip, error) {
	if !c.running.IsRunning() {
		return nil, ruleerrors.New(ruleerrors.KindStopped, "the chain is shutting down")
	}
	c.txHashSetLock.HighPriorityLock()
	defer c.txHashSetLock.HighPriorityUnlock()
	defer logger.LogElapsed(log, "ProcessBlock")()
	log.Tracef("Processing block %s", logger.NewLogClosure(func() string {
		return spew.Sdump(block)
	}))

	tip, err := c.processBlockNoLock(block, options)
	if err != nil {
		return nil, err
	}
	orphansTip, err := c.processOrphans(block.Hash())
	if err != nil {
		return nil, err
	}
	if orphansTip != nil {
		tip = orphansTip
	}
	return tip, nil
}

func (c *Chain) processBlockNoLock(block *model.Block, options Options) (*model.Tip, error) {
	header := block.Header
	blockHash := header.Hash()
	log.Tracef("Processing block %s at height %d (options: %s)", blockHash, header.Height, options)

	err := c.checkNotKnown(blockHash)
	if err != nil {
		return nil, err
	}

	prevHeader, err := c.processableParent(block, options)
	if err != nil {
		return nil, err
	}

	err = c.validateHeader(header, prevHeader, options)
	if err != nil {
		return nil, c.rejectIfBad(blockHash, err)
	}
	err = c.validateBody(block)
	if err != nil {
		return nil, c.rejectIfBad(blockHash, err)
	}
	return c.connectBlock(block, prevHeader)
}

// checkNotKnown rejects blocks that were already processed, rejected or
// put in the orphan pool. All of them are Unfit: a block rejected before
// was already judged when it was first seen.
func (c *Chain) checkNotKnown(blockHash *hashes.Hash) error {
	isBad, err := c.store.IsBad(blockHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the rejected blocks")
	}
	if isBad {
		return ruleerrors.New(ruleerrors.KindUnfit, "block %s was rejected before", blockHash)
	}
	exists, err := c.store.BlockExists(blockHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the block index")
	}
	if exists {
		return ruleerrors.New(ruleerrors.KindUnfit, "already have block %s", blockHash)
	}
	if c.orphans.has(blockHash) {
		return ruleerrors.New(ruleerrors.KindUnfit, "already have block %s in the orphan pool", blockHash)
	}
	return nil
}

// processableParent returns the header of block's parent once the parent's
// body is known. Blocks with an unknown parent go to the orphan pool.
func (c *Chain) processableParent(block *model.Block, options Options) (*model.BlockHeader, error) {
	prevHash := &block.Header.PrevHash
	isBad, err := c.store.IsBad(prevHash)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the rejected blocks")
	}
	if isBad {
		return nil, c.rejectIfBad(block.Hash(),
			ruleerrors.New(ruleerrors.KindBlock, "block %s builds on the rejected block %s", block.Hash(), prevHash))
	}

	prevExists, err := c.store.BlockExists(prevHash)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the block index")
	}
	if prevExists {
		prevHeader, err := c.store.GetBlockHeader(prevHash)
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the parent header")
		}
		return prevHeader, nil
	}

	tail, err := c.store.Tail()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the tail")
	}
	if block.Header.Height <= tail.Height {
		return nil, ruleerrors.New(ruleerrors.KindOldBlock, "block %s at height %d is below the tail at %d",
			block.Hash(), block.Header.Height, tail.Height)
	}

	c.orphans.add(block, options)
	return nil, ruleerrors.New(ruleerrors.KindOrphan, "block %s has unknown parent %s", block.Hash(), prevHash)
}

// rejectIfBad remembers blockHash as rejected when err judges the block
// itself. err is returned unchanged.
func (c *Chain) rejectIfBad(blockHash *hashes.Hash, err error) error {
	if !ruleerrors.IsBadData(err) {
		return err
	}
	log.Warnf("Rejected block %s: %s", blockHash, err)

	batch, batchErr := c.store.Batch()
	if batchErr != nil {
		log.Errorf("Failed to remember the rejected block %s: %s", blockHash, batchErr)
		return err
	}
	defer batch.Rollback()
	batchErr = batch.MarkBad(blockHash)
	if batchErr == nil {
		batchErr = batch.Commit()
	}
	if batchErr != nil {
		log.Errorf("Failed to remember the rejected block %s: %s", blockHash, batchErr)
	}
	return err
}

// hasMoreWork returns whether a chain ending with header beats the chain
// ending with tip: more total difficulty, or the same with a smaller hash.
func hasMoreWork(header *model.BlockHeader, tip *model.Tip) bool {
	if header.TotalDifficulty != tip.TotalDifficulty {
		return header.TotalDifficulty > tip.TotalDifficulty
	}
	return hashes.Less(header.Hash(), &tip.LastBlockHash)
}

// connectBlock applies block to the txhashset on top of prevHeader. When
// the block makes the chain with the most work, the txhashset moves to it
// and the head follows. Otherwise the block is validated against its fork
// the same way, the txhashset is rolled back, and the block is stored as a
// sidechain block.
func (c *Chain) connectBlock(block *model.Block, prevHeader *model.BlockHeader) (*model.Tip, error) {
	header := block.Header
	blockHash := header.Hash()

	batch, err := c.store.Batch()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()

	head, err := batch.Head()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head")
	}
	oldHeadHeader, err := batch.GetBlockHeader(&head.LastBlockHash)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head header")
	}
	isNewHead := hasMoreWork(header, head)

	err = c.txHashSet.Extending(batch, func(extension *txhashset.Extension) error {
		if !isNewHead {
			extension.ForceRollback()
		}
		err := extension.MoveTo(prevHeader)
		if err != nil {
			return err
		}
		return extension.ApplyBlock(block)
	})
	if err != nil {
		var forkErr *txhashset.ForkBlockError
		if errors.As(err, &forkErr) {
			return nil, c.rejectIfBad(&forkErr.Hash, err)
		}
		return nil, c.rejectIfBad(blockHash, err)
	}

	if !isNewHead {
		return nil, c.storeSidechainBlock(block)
	}

	err = batch.SaveBlockHeader(header)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the header")
	}
	err = batch.SaveBlock(block)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the block")
	}
	err = c.moveHead(batch, oldHeadHeader, header)
	if err != nil {
		return nil, err
	}
	err = c.updateHeaderHead(batch, header)
	if err != nil {
		return nil, err
	}
	err = batch.Commit()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to commit the block")
	}

	tip := model.NewTip(header)
	log.Debugf("Accepted block %s at height %d, total difficulty %d", blockHash, header.Height, header.TotalDifficulty)
	return tip, nil
}

// storeSidechainBlock stores a validated block that doesn't make the chain
// with the most work.
func (c *Chain) storeSidechainBlock(block *model.Block) error {
	batch, err := c.store.Batch()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()

	blockHash := block.Hash()
	err = batch.SaveBlockHeader(block.Header)
	if err == nil {
		err = batch.SaveBlock(block)
	}
	if err == nil {
		err = batch.MarkSidechain(blockHash)
	}
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the sidechain block")
	}
	err = c.updateHeaderHead(batch, block.Header)
	if err != nil {
		return err
	}
	err = batch.Commit()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to commit the sidechain block")
	}
	log.Debugf("Stored sidechain block %s at height %d", blockHash, block.Header.Height)
	return nil
}

// moveHead points the head, the height index and the sidechain marks at
// the chain ending with newHead.
func (c *Chain) moveHead(batch *chainstore.Batch, oldHead *model.BlockHeader, newHead *model.BlockHeader) error {
	fork, oldBranch, newBranch, err := batch.ForkPoint(oldHead, newHead)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to find the fork point")
	}
	for _, header := range oldBranch {
		err = batch.MarkSidechain(header.Hash())
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to mark a sidechain block")
		}
		if header.Height > newHead.Height {
			err = batch.DeleteHeaderHashByHeight(header.Height)
			if err != nil {
				return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to update the height index")
			}
		}
	}
	for _, header := range newBranch {
		err = batch.UnmarkSidechain(header.Hash())
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to unmark a sidechain block")
		}
		err = batch.SaveHeaderHashByHeight(header.Height, header.Hash())
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to update the height index")
		}
	}
	err = batch.SaveHead(model.NewTip(newHead))
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the head")
	}

	if len(oldBranch) > 0 {
		log.Infof("Reorg from %s at height %d to %s at height %d, fork point %s at height %d",
			oldHead.Hash(), oldHead.Height, newHead.Hash(), newHead.Height, fork.Hash(), fork.Height)
	}
	return nil
}

// updateHeaderHead moves the header head to header if it has more work.
func (c *Chain) updateHeaderHead(batch *chainstore.Batch, header *model.BlockHeader) error {
	headerHead, err := batch.HeaderHead()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the header head")
	}
	if !hasMoreWork(header, headerHead) {
		return nil
	}
	err = batch.SaveHeaderHead(model.NewTip(header))
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the header head")
	}
	return nil
}

// processOrphans processes the orphans waiting for the block with the
// given hash, then the orphans waiting for those, until none connects. A
// rejected orphan is logged and skipped. It returns the last head one of
// them moved to.
//
// This function MUST be called with the txhashset lock held for writes.
func (c *Chain) processOrphans(hash *hashes.Hash) (*model.Tip, error) {
	var tip *model.Tip
	processHashes := []hashes.Hash{*hash}
	for len(processHashes) > 0 {
		if !c.running.IsRunning() {
			return nil, ruleerrors.New(ruleerrors.KindStopped, "stopped while processing orphans")
		}
		processHash := processHashes[0]
		processHashes = processHashes[1:]

		for _, orphan := range c.orphans.takeChildren(&processHash) {
			log.Debugf("Processing orphan block %s", orphan.hash)
			orphanTip, err := c.processBlockNoLock(orphan.block, orphan.options)
			if err != nil {
				if isBlockFault(err) {
					log.Warnf("Failed to process orphan block %s: %s", orphan.hash, err)
					continue
				}
				return nil, err
			}
			if orphanTip != nil {
				tip = orphanTip
			}
			processHashes = append(processHashes, orphan.hash)
		}
	}
	return tip, nil
}

// isBlockFault returns whether err is about the block itself rather than
// the node's ability to process it.
func isBlockFault(err error) bool {
	if ruleerrors.IsBadData(err) {
		return true
	}
	kind, ok := ruleerrors.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case ruleerrors.KindUnfit, ruleerrors.KindOrphan, ruleerrors.KindOldBlock:
		return true
	}
	return false
}

// ProcessBlockHeader validates header and stores it, moving the header
// head when it has more work. Headers let a syncing node learn the chain
// with the most work ahead of the blocks.
//
// This function is safe for concurrent access.
func (c *Chain) ProcessBlockHeader(header *model.BlockHeader, options Options) error {
	if !c.running.IsRunning() {
		return ruleerrors.New(ruleerrors.KindStopped, "the chain is shutting down")
	}
	c.txHashSetLock.HighPriorityLock()
	defer c.txHashSetLock.HighPriorityUnlock()

	headerHash := header.Hash()
	isBad, err := c.store.IsBad(headerHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the rejected blocks")
	}
	if isBad {
		return ruleerrors.New(ruleerrors.KindUnfit, "header %s was rejected before", headerHash)
	}
	exists, err := c.store.BlockHeaderExists(headerHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the header index")
	}
	if exists {
		return nil
	}

	prevHeader, err := c.store.GetBlockHeader(&header.PrevHash)
	if chainstore.IsNotFoundError(err) {
		return ruleerrors.New(ruleerrors.KindOrphan, "header %s has unknown parent %s", headerHash, header.PrevHash)
	}
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the parent header")
	}
	err = c.validateHeader(header, prevHeader, options)
	if err != nil {
		return c.rejectIfBad(headerHash, err)
	}

	batch, err := c.store.Batch()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()
	err = batch.SaveBlockHeader(header)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the header")
	}
	err = c.updateHeaderHead(batch, header)
	if err != nil {
		return err
	}
	err = batch.Commit()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to commit the header")
	}
	log.Debugf("Accepted header %s at height %d", headerHash, header.Height)
	return nil
}
