package pmmr

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// PMMR is a prunable Merkle Mountain Range over a Backend. It is not safe
// for concurrent use.
type PMMR struct {
	backend Backend
}

// New returns a PMMR over backend, sized to the backend.
func New(backend Backend) *PMMR {
	return &PMMR{backend: backend}
}

// Size returns the number of positions in the MMR.
func (p *PMMR) Size() uint64 {
	return p.backend.Size()
}

// Push appends leaf data and returns its position.
func (p *PMMR) Push(data []byte) (uint64, error) {
	leafPos := p.backend.Size() + 1
	currentHash := LeafHash(leafPos, data)
	newHashes := []*hashes.Hash{currentHash}

	pos := leafPos
	height := uint64(0)
	for Height(pos+1) > height {
		leftSibling := pos - subtreeSize(height)
		leftHash, err := p.backend.GetFromFile(leftSibling)
		if err != nil {
			return 0, errors.Wrapf(err, "missing left sibling %d of %d", leftSibling, pos)
		}
		height++
		pos++
		currentHash = pairHash(pos-1, leftHash, currentHash)
		newHashes = append(newHashes, currentHash)
	}

	err := p.backend.Append(data, newHashes)
	if err != nil {
		return 0, err
	}
	return leafPos, nil
}

// Root returns the root of the MMR. The root of an empty MMR is the zero
// hash.
func (p *PMMR) Root() (*hashes.Hash, error) {
	return root(p.backend, p.backend.Size())
}

// Peaks returns the hashes of the peaks, left to right.
func (p *PMMR) Peaks() ([]*hashes.Hash, error) {
	return peakHashes(p.backend, p.backend.Size())
}

// GetHash returns the hash at pos. Pruned leaves are not found.
func (p *PMMR) GetHash(pos uint64) (*hashes.Hash, error) {
	if pos > p.backend.Size() {
		return nil, errors.Wrapf(ErrNotFound, "position %d beyond size %d", pos, p.backend.Size())
	}
	if IsLeaf(pos) {
		return p.backend.GetHash(pos)
	}
	return p.backend.GetFromFile(pos)
}

// GetData returns the data of the unpruned leaf at pos.
func (p *PMMR) GetData(pos uint64) ([]byte, error) {
	if pos > p.backend.Size() || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "no leaf at position %d", pos)
	}
	return p.backend.GetData(pos)
}

// Prune removes the leaf at pos from the leaf set. It returns false if the
// leaf was already pruned.
func (p *PMMR) Prune(pos uint64) (bool, error) {
	if pos == 0 || pos > p.backend.Size() || !IsLeaf(pos) {
		return false, errors.Errorf("cannot prune position %d", pos)
	}
	if !p.backend.IsUnpruned(pos) {
		return false, nil
	}
	err := p.backend.Remove(pos)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Rewind truncates the MMR to size, completing the parents of the last
// leaf if size falls in the middle of a mountain, and restores the leaves
// in rewindRmPos.
func (p *PMMR) Rewind(size uint64, rewindRmPos *roaring.Bitmap) error {
	for size > 0 && Height(size+1) > 0 {
		size++
	}
	if size > p.backend.Size() {
		return errors.Errorf("cannot rewind to size %d beyond %d", size, p.backend.Size())
	}
	return p.backend.Rewind(size, rewindRmPos)
}

// MerkleProof builds a proof that the leaf at pos is part of the MMR.
func (p *PMMR) MerkleProof(pos uint64) (*MerkleProof, error) {
	return merkleProof(p.backend, p.backend.Size(), pos)
}

// LeafPositions returns the positions of the unpruned leaves.
func (p *PMMR) LeafPositions() []uint64 {
	return p.backend.LeafPositions(p.backend.Size())
}

// Validate checks every parent whose children are both available hashes
// to the pair of its children.
func (p *PMMR) Validate() error {
	size := p.backend.Size()
	for pos := uint64(1); pos <= size; pos++ {
		height := Height(pos)
		if height == 0 {
			continue
		}
		hash, err := p.backend.GetFromFile(pos)
		if IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return err
		}
		leftChild := pos - 1 - subtreeSize(height-1)
		rightChild := pos - 1
		leftHash, err := p.backend.GetFromFile(leftChild)
		if IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return err
		}
		rightHash, err := p.backend.GetFromFile(rightChild)
		if IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return err
		}
		if !pairHash(pos-1, leftHash, rightHash).Equal(hash) {
			return errors.Errorf("invalid MMR, hash of parent at %d does not match children", pos)
		}
	}
	return nil
}

type hashReader interface {
	GetFromFile(pos uint64) (*hashes.Hash, error)
}

func peakHashes(reader hashReader, size uint64) ([]*hashes.Hash, error) {
	positions := Peaks(size)
	if positions == nil && size != 0 {
		return nil, errors.Errorf("invalid MMR size %d", size)
	}
	peaks := make([]*hashes.Hash, len(positions))
	for i, pos := range positions {
		hash, err := reader.GetFromFile(pos)
		if err != nil {
			return nil, errors.Wrapf(err, "missing peak %d", pos)
		}
		peaks[i] = hash
	}
	return peaks, nil
}

// bag folds hashes right to left, each pair hashed with size.
func bag(peaks []*hashes.Hash, size uint64) *hashes.Hash {
	var res *hashes.Hash
	for i := len(peaks) - 1; i >= 0; i-- {
		if res == nil {
			res = peaks[i]
			continue
		}
		res = pairHash(size, peaks[i], res)
	}
	return res
}

func root(reader hashReader, size uint64) (*hashes.Hash, error) {
	if size == 0 {
		zero := hashes.ZeroHash
		return &zero, nil
	}
	peaks, err := peakHashes(reader, size)
	if err != nil {
		return nil, err
	}
	return bag(peaks, size), nil
}

func merkleProof(reader hashReader, size uint64, pos uint64) (*MerkleProof, error) {
	if pos == 0 || pos > size || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "no leaf at position %d", pos)
	}
	branch := familyBranch(pos, size)
	path := make([]hashes.Hash, 0, len(branch)+2)
	for _, family := range branch {
		sibling, err := reader.GetFromFile(family[1])
		if err != nil {
			return nil, errors.Wrapf(err, "missing sibling %d", family[1])
		}
		path = append(path, *sibling)
	}

	peakPos := pos
	if len(branch) > 0 {
		peakPos = branch[len(branch)-1][0]
	}
	peakPositions := Peaks(size)
	peaks, err := peakHashes(reader, size)
	if err != nil {
		return nil, err
	}
	var rightPeaks []*hashes.Hash
	peakIndex := -1
	for i, position := range peakPositions {
		if position == peakPos {
			peakIndex = i
		}
		if position > peakPos {
			rightPeaks = append(rightPeaks, peaks[i])
		}
	}
	if peakIndex < 0 {
		return nil, errors.Errorf("position %d has no peak in MMR of size %d", pos, size)
	}
	if len(rightPeaks) > 0 {
		path = append(path, *bag(rightPeaks, size))
	}
	for i := peakIndex - 1; i >= 0; i-- {
		path = append(path, *peaks[i])
	}
	return &MerkleProof{MMRSize: size, Path: path}, nil
}
