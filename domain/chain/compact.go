package chain

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/infrastructure/logger"
)

// Compact removes the spent outputs and rangeproofs below the cut-through
// horizon from the txhashset files. Unless the chain runs in archive mode,
// the bodies of the blocks below the horizon are deleted too, and the tail
// moves to the horizon.
//
// Compact gives way to block processing: it takes the txhashset lock with
// low priority.
func (c *Chain) Compact() error {
	c.txHashSetLock.LowPriorityLock()
	defer c.txHashSetLock.LowPriorityUnlock()
	defer logger.LogElapsed(log, "Compact")()

	head, err := c.store.Head()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head")
	}
	if head.Height <= c.params.CutThroughHorizon {
		log.Debugf("Not compacting: head at height %d is below the horizon of %d blocks",
			head.Height, c.params.CutThroughHorizon)
		return nil
	}
	horizonHeader, err := c.store.GetHeaderByHeight(head.Height - c.params.CutThroughHorizon)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the horizon header")
	}

	rewindRmPos, err := c.spentAbove(horizonHeader.Height, head.Height)
	if err != nil {
		return err
	}
	err = c.txHashSet.Compact(horizonHeader, rewindRmPos)
	if err != nil {
		return err
	}
	if c.archiveMode {
		return nil
	}
	return c.deleteBlocksBelow(horizonHeader)
}

// spentAbove returns the output positions spent by the blocks above
// fromHeight up to toHeight. Those stay in the files so the blocks can be
// rewound.
func (c *Chain) spentAbove(fromHeight uint64, toHeight uint64) (*roaring.Bitmap, error) {
	positions := roaring.New()
	for height := fromHeight + 1; height <= toHeight; height++ {
		if !c.running.IsRunning() {
			return nil, ruleerrors.New(ruleerrors.KindStopped, "stopped while compacting")
		}
		hash, err := c.store.GetHeaderHashByHeight(height)
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the height index")
		}
		journal, err := c.store.GetSpentJournal(hash)
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read a spent journal")
		}
		for _, pos := range journal.Positions() {
			positions.Add(uint32(pos))
		}
	}
	return positions, nil
}

// deleteBlocksBelow deletes the bodies of every block, sidechain blocks
// included, below horizonHeader. The genesis block is kept.
func (c *Chain) deleteBlocksBelow(horizonHeader *model.BlockHeader) error {
	blockHashes, err := c.store.BlockHashes()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to list the blocks")
	}

	batch, err := c.store.Batch()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()

	deleted := 0
	for _, hash := range blockHashes {
		header, err := batch.GetBlockHeader(hash)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read a block header")
		}
		if header.Height == 0 || header.Height >= horizonHeader.Height {
			continue
		}
		err = batch.DeleteBlock(hash)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to delete a block")
		}
		deleted++
	}
	err = batch.SaveTail(model.NewTip(horizonHeader))
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the tail")
	}
	err = batch.Commit()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to commit the compaction")
	}
	log.Infof("Deleted %d block bodies below the horizon at height %d", deleted, horizonHeader.Height)
	return nil
}
