package txhashset

import (
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pmmr"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

// HeaderExtension is a writable view of the header MMR, positioned at a
// header. Leaf i of the header MMR holds the hash of the header at height i.
type HeaderExtension struct {
	txHashSet *TxHashSet
	batch     *chainstore.Batch

	headers  *pmmr.PMMR
	header   *model.BlockHeader
	rollback bool
}

func newHeaderExtension(txHashSet *TxHashSet, batch *chainstore.Batch, header *model.BlockHeader) *HeaderExtension {
	return &HeaderExtension{
		txHashSet: txHashSet,
		batch:     batch,
		headers:   pmmr.New(txHashSet.headerBackend),
		header:    header,
	}
}

// Header returns the header the extension is positioned at.
func (e *HeaderExtension) Header() *model.BlockHeader {
	return e.header
}

// ForceRollback makes HeaderExtending discard every change once fn
// returns.
func (e *HeaderExtension) ForceRollback() {
	e.rollback = true
}

// ApplyHeader appends header to the header MMR after checking it commits
// to the root of the headers before it.
func (e *HeaderExtension) ApplyHeader(header *model.BlockHeader) error {
	if header.Height != pmmr.NLeaves(e.headers.Size()) {
		return ruleerrors.New(ruleerrors.KindInvalidBlockHeight,
			"header %s at height %d applied to a header MMR of %d headers",
			header.Hash(), header.Height, pmmr.NLeaves(e.headers.Size()))
	}
	root, err := e.headers.Root()
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compute the header root")
	}
	if *root != header.PrevRoot {
		return ruleerrors.New(ruleerrors.KindInvalidRoot, "header %s commits to header root %s, expected %s",
			header.Hash(), header.PrevRoot, root)
	}
	_, err = e.headers.Push(header.Hash().ByteSlice())
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to push the header")
	}
	e.header = header
	return nil
}

// Rewind truncates the header MMR to the headers up to and including
// header.
func (e *HeaderExtension) Rewind(header *model.BlockHeader) error {
	err := e.headers.Rewind(pmmr.LeafPos(header.Height), nil)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to rewind the header MMR")
	}
	e.header = header
	return nil
}

// Root returns the root of the header MMR, the PrevRoot of a header built
// on top of the extension's header.
func (e *HeaderExtension) Root() (*hashes.Hash, error) {
	root, err := e.headers.Root()
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to compute the header root")
	}
	return root, nil
}

// Size returns the size of the header MMR.
func (e *HeaderExtension) Size() uint64 {
	return e.headers.Size()
}

// HeaderHashAt returns the hash of the header at height in the header MMR.
func (e *HeaderExtension) HeaderHashAt(height uint64) (*hashes.Hash, error) {
	data, err := e.headers.GetData(pmmr.LeafPos(height))
	if err != nil {
		return nil, err
	}
	return hashes.FromBytes(data)
}

func (e *HeaderExtension) size() uint64 {
	return pmmr.NLeaves(e.headers.Size())
}

func (e *HeaderExtension) truncate() error {
	err := e.headers.Rewind(0, nil)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to truncate the header MMR")
	}
	e.header = nil
	return nil
}
