package chain

import (
	"sort"

	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/difficulty"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

// IsNotFoundError returns whether err means the requested header, block,
// output or kernel doesn't exist.
func IsNotFoundError(err error) bool {
	if chainstore.IsNotFoundError(err) {
		return true
	}
	kind, ok := ruleerrors.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case ruleerrors.KindOutputNotFound, ruleerrors.KindRangeproofNotFound, ruleerrors.KindTxKernelNotFound:
		return true
	}
	return false
}

// Head returns the tip of the full block chain.
func (c *Chain) Head() (*model.Tip, error) {
	return c.store.Head()
}

// HeadHeader returns the header of the tip of the full block chain.
func (c *Chain) HeadHeader() (*model.BlockHeader, error) {
	return c.store.HeadHeader()
}

// HeaderHead returns the tip of the header chain.
func (c *Chain) HeaderHead() (*model.Tip, error) {
	return c.store.HeaderHead()
}

// Tail returns the oldest block whose body is still stored.
func (c *Chain) Tail() (*model.Tip, error) {
	return c.store.Tail()
}

// GetBlockHeader returns the header with the given hash.
func (c *Chain) GetBlockHeader(hash *hashes.Hash) (*model.BlockHeader, error) {
	return c.store.GetBlockHeader(hash)
}

// GetBlock returns the block with the given hash.
func (c *Chain) GetBlock(hash *hashes.Hash) (*model.Block, error) {
	return c.store.GetBlock(hash)
}

// GetHeaderByHeight returns the header of the full block chain at height.
func (c *Chain) GetHeaderByHeight(height uint64) (*model.BlockHeader, error) {
	return c.store.GetHeaderByHeight(height)
}

// IsSidechain returns whether the block with the given hash is stored off
// the full block chain.
func (c *Chain) IsSidechain(hash *hashes.Hash) (bool, error) {
	return c.store.IsSidechain(hash)
}

// IsBad returns whether the block with the given hash was rejected.
func (c *Chain) IsBad(hash *hashes.Hash) (bool, error) {
	return c.store.IsBad(hash)
}

// IsOrphan returns whether the block with the given hash waits in the
// orphan pool.
func (c *Chain) IsOrphan(hash *hashes.Hash) bool {
	return c.orphans.has(hash)
}

// OrphansLen returns the number of blocks in the orphan pool.
func (c *Chain) OrphansLen() int {
	return c.orphans.len()
}

// GetOutputPos returns the position of the unspent output with the given
// commitment.
func (c *Chain) GetOutputPos(commitment *secp.Commitment) (*model.CommitPos, error) {
	return c.store.GetOutputPos(commitment)
}

// WithReadView calls fn with a read view of the txhashset at the head. No
// block is applied while fn runs.
//
// This function is safe for concurrent access.
func (c *Chain) WithReadView(fn func(view *txhashset.ReadView) error) error {
	c.txHashSetLock.HighPriorityReadLock()
	defer c.txHashSetLock.HighPriorityReadUnlock()

	headHeader, err := c.store.HeadHeader()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head header")
	}
	view, err := c.txHashSet.Snapshot(c.store, headHeader)
	if err != nil {
		return err
	}
	return fn(view)
}

// GetUnspent returns the unspent output with the given commitment and its
// position.
func (c *Chain) GetUnspent(commitment *secp.Commitment) (*model.Output, *model.CommitPos, error) {
	var output *model.Output
	var pos *model.CommitPos
	err := c.WithReadView(func(view *txhashset.ReadView) error {
		var err error
		pos, err = c.store.GetOutputPos(commitment)
		if chainstore.IsNotFoundError(err) {
			return ruleerrors.New(ruleerrors.KindOutputNotFound, "no unspent output %s", commitment)
		}
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the output position")
		}
		identifier, err := view.Output(pos.Pos)
		if err != nil {
			return err
		}
		if identifier.Commitment != *commitment {
			return ruleerrors.New(ruleerrors.KindOutputNotFound, "no unspent output %s", commitment)
		}
		proof, err := view.RangeProof(pos.Pos)
		if err != nil {
			return err
		}
		output = &model.Output{OutputIdentifier: *identifier, Proof: proof}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return output, pos, nil
}

// KernelLocation is a kernel along with where it is in the chain.
type KernelLocation struct {
	Kernel   *model.TxKernel
	Height   uint64
	MMRIndex uint64
}

// GetKernel finds the most recent kernel with the given excess in the
// blocks between minHeight and maxHeight. A zero maxHeight means the head.
func (c *Chain) GetKernel(excess *secp.Commitment, minHeight uint64, maxHeight uint64) (*KernelLocation, error) {
	var location *KernelLocation
	err := c.WithReadView(func(view *txhashset.ReadView) error {
		head := view.Header()
		if maxHeight == 0 || maxHeight > head.Height {
			maxHeight = head.Height
		}
		if minHeight > maxHeight {
			return ruleerrors.New(ruleerrors.KindTxKernelNotFound, "empty height range %d..%d", minHeight, maxHeight)
		}

		minPos := uint64(1)
		if minHeight > 0 {
			header, err := c.store.GetHeaderByHeight(minHeight - 1)
			if err != nil {
				return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the range start")
			}
			minPos = header.KernelMMRSize + 1
		}
		maxHeader, err := c.store.GetHeaderByHeight(maxHeight)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the range end")
		}

		kernel, pos, err := view.FindKernel(excess, minPos, maxHeader.KernelMMRSize)
		if err != nil {
			return err
		}
		height, err := c.heightOfKernel(pos, minHeight, maxHeight)
		if err != nil {
			return err
		}
		location = &KernelLocation{Kernel: kernel, Height: height, MMRIndex: pos}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return location, nil
}

// heightOfKernel returns the height of the lowest block in
// minHeight..maxHeight whose kernel MMR covers pos.
func (c *Chain) heightOfKernel(pos uint64, minHeight uint64, maxHeight uint64) (uint64, error) {
	var searchErr error
	offset := sort.Search(int(maxHeight-minHeight+1), func(i int) bool {
		if searchErr != nil {
			return true
		}
		header, err := c.store.GetHeaderByHeight(minHeight + uint64(i))
		if err != nil {
			searchErr = err
			return true
		}
		return header.KernelMMRSize >= pos
	})
	if searchErr != nil {
		return 0, ruleerrors.Wrap(ruleerrors.KindStoreErr, searchErr, "failed to read the height index")
	}
	return minHeight + uint64(offset), nil
}

// NextDifficulty returns the difficulty and secondary scaling a block on
// top of prevHeader must carry.
func (c *Chain) NextDifficulty(prevHeader *model.BlockHeader) (*difficulty.HeaderInfo, error) {
	return c.nextDifficulty(prevHeader)
}

// SetTxHashSetRoots fills the header MMR root, the output, rangeproof and
// kernel roots and the MMR sizes of a block being built, as they are once
// block is applied on top of its parent. The parent may be on a fork.
//
// This function is safe for concurrent access.
func (c *Chain) SetTxHashSetRoots(block *model.Block) error {
	c.txHashSetLock.HighPriorityLock()
	defer c.txHashSetLock.HighPriorityUnlock()

	header := block.Header
	prevHeader, err := c.store.GetBlockHeader(&header.PrevHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the parent header")
	}

	batch, err := c.store.Batch()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()

	err = c.txHashSet.HeaderExtending(batch, func(extension *txhashset.HeaderExtension) error {
		extension.ForceRollback()
		err := extension.MoveTo(prevHeader)
		if err != nil {
			return err
		}
		root, err := extension.Root()
		if err != nil {
			return err
		}
		header.PrevRoot = *root
		return nil
	})
	if err != nil {
		return err
	}

	return c.txHashSet.Extending(batch, func(extension *txhashset.Extension) error {
		extension.ForceRollback()
		err := extension.MoveTo(prevHeader)
		if err != nil {
			return err
		}
		err = extension.ApplyBlockBody(block)
		if err != nil {
			return err
		}
		roots, err := extension.Roots()
		if err != nil {
			return err
		}
		sizes := extension.Sizes()
		header.OutputRoot = *roots.OutputRoot
		header.RangeProofRoot = *roots.RangeProofRoot
		header.KernelRoot = *roots.KernelRoot
		header.OutputMMRSize = sizes.OutputMMRSize
		header.KernelMMRSize = sizes.KernelMMRSize
		return nil
	})
}
