package pmmr

import (
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

const maxMerkleProofPathLength = 128

// ErrInvalidMerkleProof is returned when a proof doesn't connect a leaf to
// a root.
var ErrInvalidMerkleProof = errors.New("invalid merkle proof")

// MerkleProof is the path of hashes from a leaf to the root of an MMR of
// size MMRSize: the siblings up to the leaf's peak, then the bagged peaks
// to its right if any, then the peaks to its left from nearest to
// farthest.
type MerkleProof struct {
	MMRSize uint64
	Path    []hashes.Hash
}

// Verify checks that data, stored as a leaf at pos, is committed to by
// root.
func (proof *MerkleProof) Verify(root *hashes.Hash, data []byte, pos uint64) error {
	size := proof.MMRSize
	if pos == 0 || pos > size || !IsLeaf(pos) {
		return errors.Wrapf(ErrInvalidMerkleProof, "position %d is not a leaf of an MMR of size %d", pos, size)
	}
	peakPositions := Peaks(size)
	if peakPositions == nil {
		return errors.Wrapf(ErrInvalidMerkleProof, "invalid MMR size %d", size)
	}

	path := proof.Path
	current := LeafHash(pos, data)
	for _, family := range familyBranch(pos, size) {
		if len(path) == 0 {
			return errors.Wrapf(ErrInvalidMerkleProof, "path too short")
		}
		sibling := path[0]
		path = path[1:]
		parent, siblingPos := family[0], family[1]
		if siblingPos < parent-1 {
			current = pairHash(parent-1, &sibling, current)
		} else {
			current = pairHash(parent-1, current, &sibling)
		}
	}

	peakPos := pos
	if branch := familyBranch(pos, size); len(branch) > 0 {
		peakPos = branch[len(branch)-1][0]
	}
	peakIndex := -1
	for i, position := range peakPositions {
		if position == peakPos {
			peakIndex = i
		}
	}
	if peakIndex < 0 {
		return errors.Wrapf(ErrInvalidMerkleProof, "position %d has no peak", pos)
	}

	if peakIndex < len(peakPositions)-1 {
		if len(path) == 0 {
			return errors.Wrapf(ErrInvalidMerkleProof, "missing right peaks")
		}
		rightBag := path[0]
		path = path[1:]
		current = pairHash(size, current, &rightBag)
	}
	if len(path) != peakIndex {
		return errors.Wrapf(ErrInvalidMerkleProof, "expected %d left peaks, got %d", peakIndex, len(path))
	}
	for i := range path {
		current = pairHash(size, &path[i], current)
	}

	if !current.Equal(root) {
		return errors.Wrapf(ErrInvalidMerkleProof, "computed root %s, expected %s", current, root)
	}
	return nil
}

// Serialize writes the proof as the MMR size followed by the path.
func (proof *MerkleProof) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	err := serialization.WriteElement(w, proof.MMRSize)
	if err != nil {
		return err
	}
	err = serialization.WriteVarInt(w, uint64(len(proof.Path)))
	if err != nil {
		return err
	}
	for i := range proof.Path {
		_, err = w.Write(proof.Path[i][:])
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// DeserializeMerkleProof reads a proof written by Serialize.
func DeserializeMerkleProof(r io.Reader) (*MerkleProof, error) {
	proof := &MerkleProof{}
	err := serialization.ReadElement(r, &proof.MMRSize)
	if err != nil {
		return nil, err
	}
	pathLength, err := serialization.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if pathLength > maxMerkleProofPathLength {
		return nil, errors.Wrapf(serialization.ErrMalformed, "merkle proof path of length %d", pathLength)
	}
	proof.Path = make([]hashes.Hash, pathLength)
	for i := range proof.Path {
		err = serialization.ReadFixedBytes(r, proof.Path[i][:])
		if err != nil {
			return nil, err
		}
	}
	return proof, nil
}
