package txhashset

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pmmr"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
)

// Extension is a writable view of the output, rangeproof and kernel MMRs,
// positioned at a block header. It exists only for the duration of an
// Extending call.
type Extension struct {
	txHashSet *TxHashSet
	batch     *chainstore.Batch

	output     *pmmr.PMMR
	rangeProof *pmmr.PMMR
	kernel     *pmmr.PMMR

	header   *model.BlockHeader
	rollback bool
}

func newExtension(txHashSet *TxHashSet, batch *chainstore.Batch, header *model.BlockHeader) *Extension {
	return &Extension{
		txHashSet:  txHashSet,
		batch:      batch,
		output:     pmmr.New(txHashSet.outputBackend),
		rangeProof: pmmr.New(txHashSet.rangeProofBackend),
		kernel:     pmmr.New(txHashSet.kernelBackend),
		header:     header,
	}
}

// Header returns the header the extension is positioned at, or nil
// before the genesis block was applied.
func (e *Extension) Header() *model.BlockHeader {
	return e.header
}

// Batch returns the store batch the extension writes to.
func (e *Extension) Batch() *chainstore.Batch {
	return e.batch
}

// ForceRollback makes Extending discard every change once fn returns.
func (e *Extension) ForceRollback() {
	e.rollback = true
}

// ApplyBlock applies block on top of the extension's header, then checks
// the resulting roots, sizes and kernel sums against the block header.
func (e *Extension) ApplyBlock(block *model.Block) error {
	prevHeader := e.header
	err := e.ApplyBlockBody(block)
	if err != nil {
		return err
	}
	err = e.ValidateRoots(block.Header)
	if err != nil {
		return err
	}
	err = e.ValidateSizes(block.Header)
	if err != nil {
		return err
	}
	return verifyBlockKernelSums(block, prevHeader, e.txHashSet.params.Reward())
}

func verifyBlockKernelSums(block *model.Block, prevHeader *model.BlockHeader, reward uint64) error {
	var prevOffset secp.BlindingFactor
	if prevHeader != nil {
		prevOffset = prevHeader.TotalKernelOffset
	}
	offset, err := secp.BlindSum([]secp.BlindingFactor{block.Header.TotalKernelOffset},
		[]secp.BlindingFactor{prevOffset})
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindCommitted, err, "invalid total kernel offset")
	}
	overage := int64(reward) * int64(len(block.Body.CoinbaseOutputs()))
	return block.Body.VerifyKernelSums(overage, &offset)
}

// ApplyBlockBody spends the block inputs and appends its outputs,
// rangeproofs and kernels, without checking the header's roots and sizes.
// It is used directly to compute the roots of a block being built.
func (e *Extension) ApplyBlockBody(block *model.Block) error {
	header := block.Header
	if e.header != nil && header.PrevHash != *e.header.Hash() {
		return ruleerrors.New(ruleerrors.KindTxHashSetErr, "block %s doesn't extend the txhashset head %s",
			header.Hash(), e.header.Hash())
	}
	if e.header == nil && header.Height != 0 {
		return ruleerrors.New(ruleerrors.KindGenesisBlockRequired,
			"block %s at height %d applied to an empty txhashset", header.Hash(), header.Height)
	}

	journal := make(model.SpentJournal, 0, len(block.Body.Inputs))
	for _, input := range block.Body.Inputs {
		spent, err := e.applyInput(input, header.Height)
		if err != nil {
			return err
		}
		journal = append(journal, *spent)
	}
	for _, output := range block.Body.Outputs {
		err := e.applyOutput(output, header.Height)
		if err != nil {
			return err
		}
	}
	for _, kernel := range block.Body.Kernels {
		err := e.applyKernel(kernel, header.Height)
		if err != nil {
			return err
		}
	}

	params := e.txHashSet.params
	err := model.VerifyLockHeights(header.Height, block.Body.Kernels, e.txHashSet.nrdEnabled, params.NRDActivationHeight)
	if err != nil {
		return err
	}

	err = e.batch.SaveSpentJournal(header.Hash(), journal)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the spent journal")
	}
	e.header = header
	return nil
}

func (e *Extension) applyInput(input *model.Input, height uint64) (*model.SpentOutput, error) {
	commitment := input.Commitment
	pos, err := e.batch.GetOutputPos(&commitment)
	if chainstore.IsNotFoundError(err) {
		return nil, ruleerrors.New(ruleerrors.KindAlreadySpent, "output %s is not unspent", commitment)
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the output position")
	}

	identifier, err := e.outputAt(pos.Pos)
	if pmmr.IsNotFoundError(err) {
		return nil, ruleerrors.New(ruleerrors.KindAlreadySpent, "output %s at %d is spent", commitment, pos.Pos)
	}
	if err != nil {
		return nil, err
	}
	if identifier.Commitment != commitment {
		return nil, ruleerrors.New(ruleerrors.KindTxHashSetErr, "output MMR position %d holds %s, not %s",
			pos.Pos, identifier.Commitment, commitment)
	}
	if identifier.IsCoinbase() && height < e.txHashSet.params.CoinbaseMaturityHeight(pos.Height) {
		return nil, ruleerrors.New(ruleerrors.KindImmatureCoinbase,
			"coinbase output %s created at height %d spent at height %d", commitment, pos.Height, height)
	}

	_, err = e.output.Prune(pos.Pos)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to prune the output")
	}
	_, err = e.rangeProof.Prune(pos.Pos)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to prune the rangeproof")
	}
	e.txHashSet.spent.Add(pos.Pos)
	err = e.batch.DeleteOutputPos(&commitment)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to delete the output position")
	}
	return &model.SpentOutput{Commitment: commitment, CommitPos: *pos}, nil
}

func (e *Extension) outputAt(pos uint64) (*model.OutputIdentifier, error) {
	data, err := e.output.GetData(pos)
	if err != nil {
		return nil, err
	}
	identifier, err := model.DeserializeOutputIdentifier(bytes.NewReader(data))
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindSerErr, err, "corrupted output MMR data")
	}
	return identifier, nil
}

func (e *Extension) applyOutput(output *model.Output, height uint64) error {
	commitment := output.Commitment
	existing, err := e.batch.GetOutputPos(&commitment)
	if err == nil {
		_, err = e.output.GetData(existing.Pos)
		if err == nil {
			return ruleerrors.New(ruleerrors.KindDuplicateOutputID, "output %s already unspent at %d",
				commitment, existing.Pos)
		}
		if !pmmr.IsNotFoundError(err) {
			return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to read the output MMR")
		}
	} else if !chainstore.IsNotFoundError(err) {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the output position")
	}

	identifierBytes, err := serialization.ToBytes(output.Identifier(), serialization.CurrentProtocolVersion)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindSerErr, err, "failed to serialize the output")
	}
	outputPos, err := e.output.Push(identifierBytes)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to push the output")
	}
	proofPos, err := e.rangeProof.Push(output.Proof)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to push the rangeproof")
	}
	if outputPos != proofPos {
		return ruleerrors.New(ruleerrors.KindTxHashSetErr, "output position %d and rangeproof position %d differ",
			outputPos, proofPos)
	}
	err = e.batch.SaveOutputPos(&commitment, &model.CommitPos{Pos: outputPos, Height: height})
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the output position")
	}
	return nil
}

func (e *Extension) applyKernel(kernel *model.TxKernel, height uint64) error {
	kernelBytes, err := serialization.ToBytes(kernel, serialization.CurrentProtocolVersion)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindSerErr, err, "failed to serialize the kernel")
	}
	pos, err := e.kernel.Push(kernelBytes)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to push the kernel")
	}
	if !kernel.IsNRD() || !e.txHashSet.nrdEnabled {
		return nil
	}

	entries, err := e.batch.GetNRDEntries(&kernel.Excess)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the NRD index")
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		relativeHeight := uint64(kernel.Features.RelativeHeight)
		if last.Height+relativeHeight > height {
			return ruleerrors.New(ruleerrors.KindNRDRelativeHeight,
				"NRD kernel %s at height %d is within %d blocks of the one at height %d",
				kernel.Excess, height, relativeHeight, last.Height)
		}
	}
	entries = append(entries, model.CommitPos{Pos: pos, Height: height})
	err = e.batch.SaveNRDEntries(&kernel.Excess, entries)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the NRD index")
	}
	return nil
}

// Rewind moves the extension back to header, which must be an ancestor
// of the extension's current header. The outputs spent by the rewound
// blocks become unspent again, and the positions and NRD entries they
// created are removed.
func (e *Extension) Rewind(header *model.BlockHeader) error {
	if e.header == nil {
		return ruleerrors.New(ruleerrors.KindTxHashSetErr, "cannot rewind an empty txhashset")
	}
	log.Debugf("Rewinding the txhashset from %d to %d", e.header.Height, header.Height)

	rewindRmPos := roaring.New()
	current := e.header
	for current.Height > header.Height {
		err := e.undoBlock(current.Hash(), current.Height, rewindRmPos)
		if err != nil {
			return err
		}
		current, err = e.batch.GetPreviousHeader(current)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read a rewound header")
		}
	}
	if !current.Hash().Equal(header.Hash()) {
		return ruleerrors.New(ruleerrors.KindTxHashSetErr, "header %s is not an ancestor of %s",
			header.Hash(), e.header.Hash())
	}

	err := e.output.Rewind(header.OutputMMRSize, rewindRmPos)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to rewind the output MMR")
	}
	err = e.rangeProof.Rewind(header.OutputMMRSize, rewindRmPos)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to rewind the rangeproof MMR")
	}
	err = e.kernel.Rewind(header.KernelMMRSize, nil)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to rewind the kernel MMR")
	}
	e.txHashSet.spent.Rewind(header.OutputMMRSize, nil)
	e.header = header
	return nil
}

func (e *Extension) undoBlock(blockHash *hashes.Hash, height uint64, rewindRmPos *roaring.Bitmap) error {
	block, err := e.batch.GetBlock(blockHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "missing the body of a rewound block")
	}
	journal, err := e.batch.GetSpentJournal(blockHash)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "missing the spent journal of a rewound block")
	}

	for _, output := range block.Body.Outputs {
		commitment := output.Commitment
		err = e.batch.DeleteOutputPos(&commitment)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to delete a rewound output position")
		}
	}
	for i := range journal {
		spent := journal[i]
		err = e.batch.SaveOutputPos(&spent.Commitment, &spent.CommitPos)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to restore an output position")
		}
		rewindRmPos.Add(uint32(spent.Pos))
		e.txHashSet.spent.Remove(spent.Pos)
	}
	for _, kernel := range block.Body.Kernels {
		if !kernel.IsNRD() {
			continue
		}
		err = e.popNRDEntries(&kernel.Excess, height)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) popNRDEntries(excess *secp.Commitment, height uint64) error {
	entries, err := e.batch.GetNRDEntries(excess)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the NRD index")
	}
	for len(entries) > 0 && entries[len(entries)-1].Height >= height {
		entries = entries[:len(entries)-1]
	}
	err = e.batch.SaveNRDEntries(excess, entries)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to save the NRD index")
	}
	return nil
}

// Roots returns the current output, rangeproof and kernel roots.
func (e *Extension) Roots() (*Roots, error) {
	return rootsOf(e.output, e.rangeProof, e.kernel)
}

// Sizes returns the current MMR sizes.
func (e *Extension) Sizes() *Sizes {
	return &Sizes{
		OutputMMRSize:     e.output.Size(),
		RangeProofMMRSize: e.rangeProof.Size(),
		KernelMMRSize:     e.kernel.Size(),
	}
}

// ValidateRoots checks the current roots match the ones in header.
func (e *Extension) ValidateRoots(header *model.BlockHeader) error {
	roots, err := e.Roots()
	if err != nil {
		return err
	}
	return validateRoots(roots, header)
}

// ValidateSizes checks the current MMR sizes match the ones in header.
func (e *Extension) ValidateSizes(header *model.BlockHeader) error {
	return validateSizes(e.Sizes(), header)
}

// Validate checks the internal consistency of the MMRs: every parent
// hashes to its children, and every output leaf up to the current size is
// either unspent or spent.
func (e *Extension) Validate() error {
	for _, mmr := range []*pmmr.PMMR{e.output, e.rangeProof, e.kernel} {
		err := mmr.Validate()
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindInvalidTxHashSet, err, "invalid MMR")
		}
	}
	unspent := e.output.LeafPositions()
	for _, pos := range unspent {
		if e.txHashSet.spent.Includes(pos) {
			return ruleerrors.New(ruleerrors.KindInvalidTxHashSet, "output %d is both spent and unspent", pos)
		}
	}
	total := pmmr.NLeaves(e.output.Size())
	if uint64(len(unspent))+e.txHashSet.spent.Len() != total {
		return ruleerrors.New(ruleerrors.KindInvalidTxHashSet, "%d unspent and %d spent outputs, expected %d outputs",
			len(unspent), e.txHashSet.spent.Len(), total)
	}
	return nil
}

// UnspentOutputAt returns the unspent output at pos.
func (e *Extension) UnspentOutputAt(pos uint64) (*model.OutputIdentifier, error) {
	return e.outputAt(pos)
}
