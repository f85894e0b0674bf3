package pmmr

import (
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// ReadonlyPMMR is a read view over a Backend limited to the first size
// positions.
type ReadonlyPMMR struct {
	backend Backend
	size    uint64
}

// NewReadonly returns a read view of backend at size.
func NewReadonly(backend Backend, size uint64) *ReadonlyPMMR {
	return &ReadonlyPMMR{backend: backend, size: size}
}

// Size returns the size of the view.
func (p *ReadonlyPMMR) Size() uint64 {
	return p.size
}

// GetHash returns the hash at pos within the view.
func (p *ReadonlyPMMR) GetHash(pos uint64) (*hashes.Hash, error) {
	if pos > p.size {
		return nil, errors.Wrapf(ErrNotFound, "position %d beyond size %d", pos, p.size)
	}
	if IsLeaf(pos) {
		return p.backend.GetHash(pos)
	}
	return p.backend.GetFromFile(pos)
}

// GetData returns the data of the leaf at pos if it is unpruned in the
// backend's current leaf set.
func (p *ReadonlyPMMR) GetData(pos uint64) ([]byte, error) {
	if pos > p.size || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "no leaf at position %d", pos)
	}
	return p.backend.GetData(pos)
}

// GetDataFromFile returns the data of the leaf at pos unless it was
// compacted away.
func (p *ReadonlyPMMR) GetDataFromFile(pos uint64) ([]byte, error) {
	if pos > p.size || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "no leaf at position %d", pos)
	}
	return p.backend.GetDataFromFile(pos)
}

// Root returns the root of the MMR at the view's size.
func (p *ReadonlyPMMR) Root() (*hashes.Hash, error) {
	return root(p.backend, p.size)
}

// MerkleProof builds a proof for the leaf at pos against the view's root.
func (p *ReadonlyPMMR) MerkleProof(pos uint64) (*MerkleProof, error) {
	return merkleProof(p.backend, p.size, pos)
}

// LeafPositions returns the unpruned leaf positions within the view.
func (p *ReadonlyPMMR) LeafPositions() []uint64 {
	return p.backend.LeafPositions(p.size)
}
