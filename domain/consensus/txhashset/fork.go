package txhashset

import (
	"fmt"

	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

// ForkBlockError is returned by Extension.MoveTo when a stored block
// between the fork point and the target fails to apply.
type ForkBlockError struct {
	Hash hashes.Hash
	Err  error
}

func (e *ForkBlockError) Error() string {
	return fmt.Sprintf("fork block %s: %s", e.Hash, e.Err)
}

// Unwrap returns the error the fork block failed with.
func (e *ForkBlockError) Unwrap() error {
	return e.Err
}

// MoveTo positions the extension at header: it rewinds to the fork point
// between the extension's header and header, then applies the stored
// blocks of header's chain above it.
func (e *Extension) MoveTo(header *model.BlockHeader) error {
	if e.header == nil {
		return ruleerrors.New(ruleerrors.KindGenesisBlockRequired, "cannot move an empty txhashset")
	}
	if e.header.Hash().Equal(header.Hash()) {
		return nil
	}
	fork, _, branch, err := e.batch.ForkPoint(e.header, header)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to find the fork point")
	}
	err = e.Rewind(fork)
	if err != nil {
		return err
	}
	for _, branchHeader := range branch {
		block, err := e.batch.GetBlock(branchHeader.Hash())
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "missing the body of a fork block")
		}
		err = e.ApplyBlock(block)
		if err != nil {
			return &ForkBlockError{Hash: *branchHeader.Hash(), Err: err}
		}
	}
	return nil
}

// MoveTo positions the header MMR at header. The fork point is the highest
// ancestor of header whose hash is already in the MMR at its height, so the
// MMR content doesn't need to match any stored head.
func (e *HeaderExtension) MoveTo(header *model.BlockHeader) error {
	var branch []*model.BlockHeader
	current := header
	leaves := e.size()
	for {
		if current.Height < leaves {
			hash, err := e.HeaderHashAt(current.Height)
			if err != nil {
				return ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to read the header MMR")
			}
			if hash.Equal(current.Hash()) {
				break
			}
		}
		branch = append(branch, current)
		if current.Height == 0 {
			current = nil
			break
		}
		previous, err := e.batch.GetPreviousHeader(current)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindStoreErr, err, "failed to walk back the header chain")
		}
		current = previous
	}

	if current == nil {
		err := e.truncate()
		if err != nil {
			return err
		}
	} else {
		err := e.Rewind(current)
		if err != nil {
			return err
		}
	}
	for i := len(branch) - 1; i >= 0; i-- {
		err := e.ApplyHeader(branch[i])
		if err != nil {
			return err
		}
	}
	return nil
}
