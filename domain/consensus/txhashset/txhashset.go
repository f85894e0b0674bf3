package txhashset

import (
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pmmr"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/pkg/errors"
)

// Directory and file names of the txhashset, relative to its root.
const (
	Subdir           = "txhashset"
	OutputSubdir     = "output"
	RangeProofSubdir = "rangeproof"
	KernelSubdir     = "kernel"
	HeaderSubdir     = "header"
	SpentFileName    = "spent.bin"
)

// Roots are the output, rangeproof and kernel MMR roots a header commits
// to.
type Roots struct {
	OutputRoot     *hashes.Hash
	RangeProofRoot *hashes.Hash
	KernelRoot     *hashes.Hash
}

// Sizes are the output, rangeproof and kernel MMR sizes. The output and
// rangeproof MMRs always have the same size.
type Sizes struct {
	OutputMMRSize     uint64
	RangeProofMMRSize uint64
	KernelMMRSize     uint64
}

// TxHashSet is the set of MMRs committing to the chain state: outputs,
// rangeproofs and kernels, plus the header MMR committing to the header
// chain. It is not safe for concurrent use; the chain serializes access
// to it.
type TxHashSet struct {
	rootDir string
	params  *chainconfig.Params
	running *global.RunningFlag

	// nrdEnabled turns on the NRD kernel feature and its relative height
	// rule.
	nrdEnabled bool

	outputBackend     *pmmr.PMMRBackend
	rangeProofBackend *pmmr.PMMRBackend
	kernelBackend     *pmmr.PMMRBackend
	headerBackend     *pmmr.PMMRBackend

	// spent holds the output MMR positions spent on the current chain.
	spent *pmmr.LeafSet
}

// Open opens the txhashset stored under dataDir, creating empty MMRs if
// none exist. nrdEnabled decides whether blocks may carry NRD kernels.
func Open(dataDir string, params *chainconfig.Params, running *global.RunningFlag,
	nrdEnabled bool) (*TxHashSet, error) {

	rootDir := filepath.Join(dataDir, Subdir)
	txHashSet := &TxHashSet{rootDir: rootDir, params: params, running: running, nrdEnabled: nrdEnabled}

	var err error
	txHashSet.outputBackend, err = pmmr.NewPMMRBackend(filepath.Join(rootDir, OutputSubdir), true)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to open the output MMR")
	}
	txHashSet.rangeProofBackend, err = pmmr.NewPMMRBackend(filepath.Join(rootDir, RangeProofSubdir), true)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to open the rangeproof MMR")
	}
	txHashSet.kernelBackend, err = pmmr.NewPMMRBackend(filepath.Join(rootDir, KernelSubdir), false)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to open the kernel MMR")
	}
	txHashSet.headerBackend, err = pmmr.NewPMMRBackend(filepath.Join(rootDir, HeaderSubdir), false)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to open the header MMR")
	}
	txHashSet.spent, err = pmmr.OpenLeafSet(filepath.Join(rootDir, OutputSubdir, SpentFileName))
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindBitmap, err, "failed to open the spent bitmap")
	}

	log.Infof("Opened txhashset at %s: output MMR size %d, kernel MMR size %d, header MMR size %d",
		rootDir, txHashSet.outputBackend.Size(), txHashSet.kernelBackend.Size(), txHashSet.headerBackend.Size())
	return txHashSet, nil
}

// Extending runs fn on an Extension positioned at the head stored in
// batch. The MMR changes fn makes are synced to disk if fn succeeds and
// the extension wasn't forced to roll back, and discarded otherwise.
//
// Writes fn makes to batch belong to the caller, who must not commit batch
// if Extending returns an error or the extension was rolled back.
func (t *TxHashSet) Extending(batch *chainstore.Batch, fn func(extension *Extension) error) error {
	head, err := headHeader(batch)
	if err != nil {
		return err
	}
	extension := newExtension(t, batch, head)

	err = fn(extension)
	if err == nil && !extension.rollback && !t.running.IsRunning() {
		err = ruleerrors.New(ruleerrors.KindStopped, "stopped while extending the txhashset")
	}
	if err != nil || extension.rollback {
		t.discard()
		return err
	}
	return t.sync()
}

// HeaderExtending runs fn on a HeaderExtension positioned at the header
// head stored in batch. The header MMR change is synced on success and
// discarded otherwise, like Extending.
func (t *TxHashSet) HeaderExtending(batch *chainstore.Batch, fn func(extension *HeaderExtension) error) error {
	head, err := headerHeadHeader(batch)
	if err != nil {
		return err
	}
	extension := newHeaderExtension(t, batch, head)

	err = fn(extension)
	if err == nil && !extension.rollback && !t.running.IsRunning() {
		err = ruleerrors.New(ruleerrors.KindStopped, "stopped while extending the header MMR")
	}
	if err != nil || extension.rollback {
		t.headerBackend.Discard()
		return err
	}
	err = t.headerBackend.Sync()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to sync the header MMR")
	}
	return nil
}

func headHeader(batch *chainstore.Batch) (*model.BlockHeader, error) {
	header, err := batch.HeadHeader()
	if chainstore.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head header")
	}
	return header, nil
}

func headerHeadHeader(batch *chainstore.Batch) (*model.BlockHeader, error) {
	tip, err := batch.HeaderHead()
	if chainstore.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the header head")
	}
	header, err := batch.GetBlockHeader(&tip.LastBlockHash)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the header head")
	}
	return header, nil
}

func (t *TxHashSet) sync() error {
	for _, backend := range []*pmmr.PMMRBackend{t.outputBackend, t.rangeProofBackend, t.kernelBackend} {
		err := backend.Sync()
		if err != nil {
			t.discard()
			return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to sync the txhashset")
		}
	}
	err := t.spent.Flush()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindBitmap, err, "failed to flush the spent bitmap")
	}
	return nil
}

func (t *TxHashSet) discard() {
	t.outputBackend.Discard()
	t.rangeProofBackend.Discard()
	t.kernelBackend.Discard()
	t.spent.Discard()
}

// Roots returns the current output, rangeproof and kernel MMR roots.
func (t *TxHashSet) Roots() (*Roots, error) {
	return rootsOf(pmmr.New(t.outputBackend), pmmr.New(t.rangeProofBackend), pmmr.New(t.kernelBackend))
}

// Sizes returns the current MMR sizes.
func (t *TxHashSet) Sizes() *Sizes {
	return &Sizes{
		OutputMMRSize:     t.outputBackend.Size(),
		RangeProofMMRSize: t.rangeProofBackend.Size(),
		KernelMMRSize:     t.kernelBackend.Size(),
	}
}

// NRDEnabled returns whether the txhashset accepts NRD kernels.
func (t *TxHashSet) NRDEnabled() bool {
	return t.nrdEnabled
}

// HeaderMMRSize returns the size of the header MMR.
func (t *TxHashSet) HeaderMMRSize() uint64 {
	return t.headerBackend.Size()
}

// ValidateAgainst checks the MMR roots and sizes match header. The chain
// runs it on startup to detect a txhashset out of step with the store.
func (t *TxHashSet) ValidateAgainst(header *model.BlockHeader) error {
	roots, err := t.Roots()
	if err != nil {
		return err
	}
	err = validateRoots(roots, header)
	if err != nil {
		return err
	}
	return validateSizes(t.Sizes(), header)
}

type rootReader interface {
	Root() (*hashes.Hash, error)
}

func rootsOf(output, rangeProof, kernel rootReader) (*Roots, error) {
	outputRoot, err := output.Root()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compute the output root")
	}
	rangeProofRoot, err := rangeProof.Root()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compute the rangeproof root")
	}
	kernelRoot, err := kernel.Root()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compute the kernel root")
	}
	return &Roots{OutputRoot: outputRoot, RangeProofRoot: rangeProofRoot, KernelRoot: kernelRoot}, nil
}

func validateRoots(roots *Roots, header *model.BlockHeader) error {
	if *roots.OutputRoot != header.OutputRoot {
		return ruleerrors.New(ruleerrors.KindInvalidRoot, "output root %s doesn't match %s in header %s",
			roots.OutputRoot, header.OutputRoot, header.Hash())
	}
	if *roots.RangeProofRoot != header.RangeProofRoot {
		return ruleerrors.New(ruleerrors.KindInvalidRoot, "rangeproof root %s doesn't match %s in header %s",
			roots.RangeProofRoot, header.RangeProofRoot, header.Hash())
	}
	if *roots.KernelRoot != header.KernelRoot {
		return ruleerrors.New(ruleerrors.KindInvalidRoot, "kernel root %s doesn't match %s in header %s",
			roots.KernelRoot, header.KernelRoot, header.Hash())
	}
	return nil
}

func validateSizes(sizes *Sizes, header *model.BlockHeader) error {
	if sizes.OutputMMRSize != header.OutputMMRSize || sizes.RangeProofMMRSize != header.OutputMMRSize {
		return ruleerrors.New(ruleerrors.KindInvalidMMRSize,
			"output MMR size %d and rangeproof MMR size %d don't match %d in header %s",
			sizes.OutputMMRSize, sizes.RangeProofMMRSize, header.OutputMMRSize, header.Hash())
	}
	if sizes.KernelMMRSize != header.KernelMMRSize {
		return ruleerrors.New(ruleerrors.KindInvalidMMRSize, "kernel MMR size %d doesn't match %d in header %s",
			sizes.KernelMMRSize, header.KernelMMRSize, header.Hash())
	}
	return nil
}

// Compact removes the data and hashes of the outputs and rangeproofs spent
// at or below horizonHeader. Positions in rewindRmPos stay, so that blocks
// above the horizon can still be rewound.
func (t *TxHashSet) Compact(horizonHeader *model.BlockHeader, rewindRmPos *roaring.Bitmap) error {
	cutoff := horizonHeader.OutputMMRSize
	for _, backend := range []*pmmr.PMMRBackend{t.outputBackend, t.rangeProofBackend} {
		_, err := backend.CheckCompact(cutoff, rewindRmPos)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compact the txhashset")
		}
	}
	log.Infof("Compacted the txhashset up to height %d (output MMR size %d)", horizonHeader.Height, cutoff)
	return nil
}

// ChainReader is the part of the chain store a read view needs to tell
// which outputs were spent after its header.
type ChainReader interface {
	HeadHeader() (*model.BlockHeader, error)
	GetHeaderHashByHeight(height uint64) (*hashes.Hash, error)
	GetSpentJournal(hash *hashes.Hash) (model.SpentJournal, error)
}

// Snapshot returns a read view of the MMRs at header's sizes. header must
// be on the current chain at or below the head. Outputs spent by the
// blocks above header are unspent in the view, as long as compaction
// didn't remove them.
func (t *TxHashSet) Snapshot(chainReader ChainReader, header *model.BlockHeader) (*ReadView, error) {
	if header.OutputMMRSize > t.outputBackend.Size() || header.KernelMMRSize > t.kernelBackend.Size() {
		return nil, ruleerrors.New(ruleerrors.KindTxHashSetErr,
			"header %s is beyond the txhashset", header.Hash())
	}
	spentAbove, err := spentAboveHeader(chainReader, header)
	if err != nil {
		return nil, err
	}
	return &ReadView{
		header:     header,
		output:     pmmr.NewReadonly(t.outputBackend, header.OutputMMRSize),
		rangeProof: pmmr.NewReadonly(t.rangeProofBackend, header.OutputMMRSize),
		kernel:     pmmr.NewReadonly(t.kernelBackend, header.KernelMMRSize),
		spent:      t.spent,
		spentAbove: spentAbove,
	}, nil
}

// spentAboveHeader returns the positions within header's output MMR spent
// by the blocks between header and the head.
func spentAboveHeader(chainReader ChainReader, header *model.BlockHeader) (*roaring.Bitmap, error) {
	positions := roaring.New()
	head, err := chainReader.HeadHeader()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the head header")
	}
	if head.Height == header.Height && head.Hash().Equal(header.Hash()) {
		return positions, nil
	}
	hashAtHeight, err := chainReader.GetHeaderHashByHeight(header.Height)
	if err != nil && !chainstore.IsNotFoundError(err) {
		return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the height index")
	}
	if err != nil || header.Height > head.Height || !hashAtHeight.Equal(header.Hash()) {
		return nil, ruleerrors.New(ruleerrors.KindTxHashSetErr,
			"header %s at height %d is not on the current chain", header.Hash(), header.Height)
	}

	for height := header.Height + 1; height <= head.Height; height++ {
		hash, err := chainReader.GetHeaderHashByHeight(height)
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read the height index")
		}
		journal, err := chainReader.GetSpentJournal(hash)
		if chainstore.IsNotFoundError(err) {
			return nil, ruleerrors.New(ruleerrors.KindTxHashSetErr,
				"the spent journal of %s was compacted", hash)
		}
		if err != nil {
			return nil, ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to read a spent journal")
		}
		for _, pos := range journal.Positions() {
			if pos <= header.OutputMMRSize {
				positions.Add(uint32(pos))
			}
		}
	}
	return positions, nil
}

// Close closes the MMR files.
func (t *TxHashSet) Close() error {
	var firstErr error
	for _, backend := range []*pmmr.PMMRBackend{t.outputBackend, t.rangeProofBackend, t.kernelBackend, t.headerBackend} {
		err := backend.Close()
		if err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to close the txhashset")
		}
	}
	return firstErr
}
