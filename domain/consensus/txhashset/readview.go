package txhashset

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"

	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pmmr"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
)

// ReadView is a read-only view of the MMRs at the sizes of a header.
// Outputs are spent in the view if they were spent at or below its header.
type ReadView struct {
	header     *model.BlockHeader
	output     *pmmr.ReadonlyPMMR
	rangeProof *pmmr.ReadonlyPMMR
	kernel     *pmmr.ReadonlyPMMR
	spent      *pmmr.LeafSet

	// spentAbove holds the positions spent by blocks above the view's
	// header. They are unspent in the view, and their data is read past
	// the current leaf set.
	spentAbove *roaring.Bitmap
}

func (v *ReadView) isSpentAbove(pos uint64) bool {
	return v.spentAbove.Contains(uint32(pos))
}

// Header returns the header the view was taken at.
func (v *ReadView) Header() *model.BlockHeader {
	return v.header
}

// Roots returns the output, rangeproof and kernel roots of the view.
func (v *ReadView) Roots() (*Roots, error) {
	return rootsOf(v.output, v.rangeProof, v.kernel)
}

// Output returns the unspent output identifier at pos.
func (v *ReadView) Output(pos uint64) (*model.OutputIdentifier, error) {
	var data []byte
	var err error
	if v.isSpentAbove(pos) {
		data, err = v.output.GetDataFromFile(pos)
	} else {
		data, err = v.output.GetData(pos)
	}
	if pmmr.IsNotFoundError(err) {
		return nil, ruleerrors.New(ruleerrors.KindOutputNotFound, "no unspent output at %d", pos)
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to read the output MMR")
	}
	identifier, err := model.DeserializeOutputIdentifier(bytes.NewReader(data))
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindSerErr, err, "corrupted output MMR data")
	}
	return identifier, nil
}

// RangeProof returns the rangeproof of the unspent output at pos.
func (v *ReadView) RangeProof(pos uint64) (secp.RangeProof, error) {
	var data []byte
	var err error
	if v.isSpentAbove(pos) {
		data, err = v.rangeProof.GetDataFromFile(pos)
	} else {
		data, err = v.rangeProof.GetData(pos)
	}
	if pmmr.IsNotFoundError(err) {
		return nil, ruleerrors.New(ruleerrors.KindRangeproofNotFound, "no rangeproof at %d", pos)
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to read the rangeproof MMR")
	}
	return secp.RangeProof(data), nil
}

// Kernel returns the kernel at pos.
func (v *ReadView) Kernel(pos uint64) (*model.TxKernel, error) {
	data, err := v.kernel.GetDataFromFile(pos)
	if pmmr.IsNotFoundError(err) {
		return nil, ruleerrors.New(ruleerrors.KindTxKernelNotFound, "no kernel at %d", pos)
	}
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindTxHashSetErr, err, "failed to read the kernel MMR")
	}
	kernel, err := model.DeserializeTxKernel(bytes.NewReader(data), serialization.CurrentProtocolVersion)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindSerErr, err, "corrupted kernel MMR data")
	}
	return kernel, nil
}

// FindKernel scans the kernel MMR from its end for a kernel with excess
// and returns it with its position. minPos and maxPos bound the scan when
// non zero.
func (v *ReadView) FindKernel(excess *secp.Commitment, minPos uint64, maxPos uint64) (*model.TxKernel, uint64, error) {
	if maxPos == 0 || maxPos > v.kernel.Size() {
		maxPos = v.kernel.Size()
	}
	if minPos == 0 {
		minPos = 1
	}
	for pos := maxPos; pos >= minPos; pos-- {
		if !pmmr.IsLeaf(pos) {
			continue
		}
		kernel, err := v.Kernel(pos)
		if err != nil {
			return nil, 0, err
		}
		if kernel.Excess == *excess {
			return kernel, pos, nil
		}
	}
	return nil, 0, ruleerrors.New(ruleerrors.KindTxKernelNotFound, "no kernel with excess %s", excess)
}

// IsSpent returns whether the output at pos was spent at or below the
// view's header.
func (v *ReadView) IsSpent(pos uint64) bool {
	if v.isSpentAbove(pos) {
		return false
	}
	return v.spent.Includes(pos)
}

// OutputMerkleProof returns a Merkle proof of the output at pos against
// the output root of the view.
func (v *ReadView) OutputMerkleProof(pos uint64) (*pmmr.MerkleProof, error) {
	proof, err := v.output.MerkleProof(pos)
	if err != nil {
		return nil, ruleerrors.Wrap(ruleerrors.KindMerkleProof, err, "failed to build the output Merkle proof")
	}
	return proof, nil
}

// UnspentPositions returns the positions of the unspent outputs of the
// view.
func (v *ReadView) UnspentPositions() []uint64 {
	if v.spentAbove.IsEmpty() {
		return v.output.LeafPositions()
	}
	unspent := v.spentAbove.Clone()
	for _, pos := range v.output.LeafPositions() {
		unspent.Add(uint32(pos))
	}
	positions := make([]uint64, 0, unspent.GetCardinality())
	iterator := unspent.Iterator()
	for iterator.HasNext() {
		positions = append(positions, uint64(iterator.Next()))
	}
	return positions
}

// OutputMMRSize returns the size of the output MMR of the view.
func (v *ReadView) OutputMMRSize() uint64 {
	return v.output.Size()
}

// KernelMMRSize returns the size of the kernel MMR of the view.
func (v *ReadView) KernelMMRSize() uint64 {
	return v.kernel.Size()
}
