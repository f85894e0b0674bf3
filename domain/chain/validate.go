package chain

import (
	"github.com/mwcnet/mwcd/domain/consensus/difficulty"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
)

// validateHeader runs every check of header against its parent
// prevHeader: version, height, timestamp, proof of work, difficulty and
// the header MMR root.
//
// This function MUST be called with the txhashset lock held for writes.
func (c *Chain) validateHeader(header *model.BlockHeader, prevHeader *model.BlockHeader, options Options) error {
	if header.Version != model.HeaderVersion {
		return ruleerrors.New(ruleerrors.KindInvalidBlockVersion, "header version %d, expected %d",
			header.Version, model.HeaderVersion)
	}
	if header.Height != prevHeader.Height+1 {
		return ruleerrors.New(ruleerrors.KindInvalidBlockHeight, "header at height %d on top of height %d",
			header.Height, prevHeader.Height)
	}

	err := c.checkTimestamp(header)
	if err != nil {
		return err
	}
	err = c.checkProofOfWork(header, options)
	if err != nil {
		return err
	}
	err = c.checkDifficulty(header, prevHeader)
	if err != nil {
		return err
	}
	return c.checkHeaderRoot(header, prevHeader)
}

// checkTimestamp only bounds the timestamp from above. Timestamps don't
// have to increase; the difficulty retargeting tolerates blocks older
// than their parent.
func (c *Chain) checkTimestamp(header *model.BlockHeader) error {
	maxTimestamp := c.timeSource().Unix() + c.futureTimeLimit
	if header.Timestamp > maxTimestamp {
		return ruleerrors.New(ruleerrors.KindInvalidBlockTime, "timestamp %d is too far in the future, the limit is %d",
			header.Timestamp, maxTimestamp)
	}
	return nil
}

// checkProofOfWork checks the proof's graph size, which is either the
// secondary PoW size or at least the minimum primary size, and, unless
// OptionsSkipPoW is set, that it is a cycle of the header's graph.
func (c *Chain) checkProofOfWork(header *model.BlockHeader, options Options) error {
	proof := header.PoW
	if proof == nil {
		return ruleerrors.New(ruleerrors.KindInvalidPow, "header has no proof of work")
	}
	if !(proof.IsSecondary() || proof.EdgeBits >= c.params.MinEdgeBits) {
		return ruleerrors.New(ruleerrors.KindLowEdgeBits, "proof edge bits %d below the minimum %d",
			proof.EdgeBits, c.params.MinEdgeBits)
	}
	if len(proof.Nonces) != c.params.ProofSize {
		return ruleerrors.New(ruleerrors.KindInvalidPow, "proof has %d nonces, expected %d",
			len(proof.Nonces), c.params.ProofSize)
	}
	if options.Has(OptionsSkipPoW) {
		return nil
	}

	context, err := pow.CreateContext(c.params.ChainType, proof.EdgeBits, c.params.ProofSize, 1)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindInvalidPow, err, "unsupported proof")
	}
	context.SetHeaderNonce(header.PrePoWBytes(), header.Nonce)
	err = context.Verify(proof)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindInvalidPow, err, "invalid proof of work")
	}
	return nil
}

// checkDifficulty checks the header claims exactly the difficulty the
// retargeting yields over its ancestors, that its proof meets it, and
// that it carries the expected secondary scaling.
func (c *Chain) checkDifficulty(header *model.BlockHeader, prevHeader *model.BlockHeader) error {
	if header.TotalDifficulty <= prevHeader.TotalDifficulty {
		return ruleerrors.New(ruleerrors.KindWrongTotalDifficulty, "total difficulty %d doesn't exceed the parent's %d",
			header.TotalDifficulty, prevHeader.TotalDifficulty)
	}
	next, err := c.nextDifficulty(prevHeader)
	if err != nil {
		return err
	}
	blockDifficulty := header.TotalDifficulty - prevHeader.TotalDifficulty
	if blockDifficulty != next.Difficulty {
		return ruleerrors.New(ruleerrors.KindWrongTotalDifficulty, "block difficulty %d, expected %d",
			blockDifficulty, next.Difficulty)
	}
	proofDifficulty := header.PoW.ToDifficulty(c.params.ScalingFor(header))
	if proofDifficulty < next.Difficulty {
		return ruleerrors.New(ruleerrors.KindDifficultyTooLow, "proof difficulty %d below the target %d",
			proofDifficulty, next.Difficulty)
	}
	if header.SecondaryScaling != next.SecondaryScaling {
		return ruleerrors.New(ruleerrors.KindInvalidScaling, "secondary scaling %d, expected %d",
			header.SecondaryScaling, next.SecondaryScaling)
	}
	return nil
}

// checkHeaderRoot checks the header commits to the header MMR of its
// ancestors. The header MMR is left positioned at header.
func (c *Chain) checkHeaderRoot(header *model.BlockHeader, prevHeader *model.BlockHeader) error {
	batch, err := c.store.Batch()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to begin a batch")
	}
	defer batch.Rollback()

	return c.txHashSet.HeaderExtending(batch, func(extension *txhashset.HeaderExtension) error {
		err := extension.MoveTo(prevHeader)
		if err != nil {
			return err
		}
		return extension.ApplyHeader(header)
	})
}

// nextDifficulty returns the difficulty and secondary scaling of a block
// on top of prevHeader.
func (c *Chain) nextDifficulty(prevHeader *model.BlockHeader) (*difficulty.HeaderInfo, error) {
	iterator := &headerInfoIterator{reader: c.store, header: prevHeader}
	next, err := difficulty.NextDifficulty(c.params, prevHeader.Height+1, iterator)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the difficulty window")
	}
	return next, nil
}

// validateBody runs the checks of block's body that don't depend on the
// txhashset. Rangeproofs and kernel signatures already in the verifier
// cache aren't verified again.
func (c *Chain) validateBody(block *model.Block) error {
	body := &block.Body
	err := body.VerifyWeight(c.params.MaxBlockWeight)
	if err != nil {
		return err
	}
	err = body.VerifySorted()
	if err != nil {
		return err
	}
	err = body.VerifyCutThrough()
	if err != nil {
		return err
	}
	err = body.VerifyCoinbase(c.params.Reward())
	if err != nil {
		return err
	}

	c.verifierCacheLock.Lock()
	unverifiedOutputs := c.verifierCache.FilterRangeProofUnverified(body.Outputs)
	c.verifierCacheLock.Unlock()
	err = model.VerifyRangeProofs(unverifiedOutputs)
	if err != nil {
		return err
	}
	c.verifierCacheLock.Lock()
	c.verifierCache.AddRangeProofVerified(unverifiedOutputs)
	unverifiedKernels := c.verifierCache.FilterKernelSigUnverified(body.Kernels)
	c.verifierCacheLock.Unlock()

	err = model.VerifyKernelSignatures(unverifiedKernels)
	if err != nil {
		return err
	}
	c.verifierCacheLock.Lock()
	c.verifierCache.AddKernelSigVerified(unverifiedKernels)
	c.verifierCacheLock.Unlock()
	return nil
}

type headerReader interface {
	GetPreviousHeader(header *model.BlockHeader) (*model.BlockHeader, error)
}

// headerInfoIterator walks back the stored headers from header, yielding
// each header's own difficulty.
type headerInfoIterator struct {
	reader headerReader
	header *model.BlockHeader
}

func (it *headerInfoIterator) Next() (*difficulty.HeaderInfo, bool, error) {
	header := it.header
	if header == nil {
		return nil, false, nil
	}
	var prevTotalDifficulty uint64
	if header.Height > 0 {
		prevHeader, err := it.reader.GetPreviousHeader(header)
		if err != nil {
			return nil, false, err
		}
		prevTotalDifficulty = prevHeader.TotalDifficulty
		it.header = prevHeader
	} else {
		it.header = nil
	}
	return &difficulty.HeaderInfo{
		Timestamp:        header.Timestamp,
		Difficulty:       header.TotalDifficulty - prevTotalDifficulty,
		SecondaryScaling: header.SecondaryScaling,
		IsSecondary:      header.PoW.IsSecondary(),
	}, true, nil
}
