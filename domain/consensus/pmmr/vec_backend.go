package pmmr

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// VecBackend is an in-memory Backend. It never compacts.
type VecBackend struct {
	hashes  []hashes.Hash
	data    [][]byte
	leafSet *roaring.Bitmap
}

// NewVecBackend returns an empty VecBackend.
func NewVecBackend() *VecBackend {
	return &VecBackend{leafSet: roaring.New()}
}

// Append implements Backend.
func (b *VecBackend) Append(data []byte, newHashes []*hashes.Hash) error {
	pos := uint64(len(b.hashes)) + 1
	b.leafSet.Add(uint32(pos))
	b.data = append(b.data, append([]byte(nil), data...))
	for _, hash := range newHashes {
		b.hashes = append(b.hashes, *hash)
	}
	return nil
}

// GetHash implements Backend.
func (b *VecBackend) GetHash(pos uint64) (*hashes.Hash, error) {
	if IsLeaf(pos) && !b.IsUnpruned(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf %d is pruned", pos)
	}
	return b.GetFromFile(pos)
}

// GetFromFile implements Backend.
func (b *VecBackend) GetFromFile(pos uint64) (*hashes.Hash, error) {
	if pos == 0 || pos > uint64(len(b.hashes)) {
		return nil, errors.Wrapf(ErrNotFound, "position %d", pos)
	}
	hash := b.hashes[pos-1]
	return &hash, nil
}

// GetData implements Backend.
func (b *VecBackend) GetData(pos uint64) ([]byte, error) {
	if !b.IsUnpruned(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf %d is pruned", pos)
	}
	return b.GetDataFromFile(pos)
}

// GetDataFromFile implements Backend.
func (b *VecBackend) GetDataFromFile(pos uint64) ([]byte, error) {
	if pos == 0 || pos > uint64(len(b.hashes)) || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf position %d", pos)
	}
	return b.data[LeafIndex(pos)], nil
}

// Remove implements Backend.
func (b *VecBackend) Remove(pos uint64) error {
	b.leafSet.Remove(uint32(pos))
	return nil
}

// Rewind implements Backend.
func (b *VecBackend) Rewind(size uint64, rewindRmPos *roaring.Bitmap) error {
	if size > uint64(len(b.hashes)) {
		return errors.Errorf("cannot rewind to %d beyond size %d", size, len(b.hashes))
	}
	b.hashes = b.hashes[:size]
	b.data = b.data[:NLeaves(size)]
	rewindLeafSet(b.leafSet, size, rewindRmPos)
	return nil
}

// Size implements Backend.
func (b *VecBackend) Size() uint64 {
	return uint64(len(b.hashes))
}

// IsUnpruned implements Backend.
func (b *VecBackend) IsUnpruned(pos uint64) bool {
	return b.leafSet.Contains(uint32(pos))
}

// LeafPositions implements Backend.
func (b *VecBackend) LeafPositions(size uint64) []uint64 {
	return leafPositions(b.leafSet, size)
}

func rewindLeafSet(leafSet *roaring.Bitmap, size uint64, rewindRmPos *roaring.Bitmap) {
	leafSet.RemoveRange(size+1, uint64(1)<<32)
	if rewindRmPos == nil {
		return
	}
	iterator := rewindRmPos.Iterator()
	for iterator.HasNext() {
		pos := iterator.Next()
		if uint64(pos) <= size {
			leafSet.Add(pos)
		}
	}
}

func leafPositions(leafSet *roaring.Bitmap, size uint64) []uint64 {
	var positions []uint64
	iterator := leafSet.Iterator()
	for iterator.HasNext() {
		pos := uint64(iterator.Next())
		if pos > size {
			break
		}
		positions = append(positions, pos)
	}
	return positions
}
