package pmmr

import (
	"github.com/RoaringBitmap/roaring"
)

// LeafSet tracks the unpruned leaf positions of a PMMR. Changes are kept
// in memory until Flush and Discard restores the last flushed state.
type LeafSet struct {
	path    string
	bitmap  *roaring.Bitmap
	flushed *roaring.Bitmap
}

// OpenLeafSet loads the leaf set stored at path, or an empty one if the
// file doesn't exist.
func OpenLeafSet(path string) (*LeafSet, error) {
	bitmap, err := readBitmap(path)
	if err != nil {
		return nil, err
	}
	return &LeafSet{path: path, bitmap: bitmap, flushed: bitmap.Clone()}, nil
}

// Add marks pos as unpruned.
func (s *LeafSet) Add(pos uint64) {
	s.bitmap.Add(uint32(pos))
}

// Remove marks pos as pruned.
func (s *LeafSet) Remove(pos uint64) {
	s.bitmap.Remove(uint32(pos))
}

// Includes returns whether pos is unpruned.
func (s *LeafSet) Includes(pos uint64) bool {
	return s.bitmap.Contains(uint32(pos))
}

// Len returns the number of unpruned leaves.
func (s *LeafSet) Len() uint64 {
	return s.bitmap.GetCardinality()
}

// Rewind removes every position beyond size and restores the positions of
// rewindRmPos within size.
func (s *LeafSet) Rewind(size uint64, rewindRmPos *roaring.Bitmap) {
	rewindLeafSet(s.bitmap, size, rewindRmPos)
}

// Positions returns the unpruned positions up to size.
func (s *LeafSet) Positions(size uint64) []uint64 {
	return leafPositions(s.bitmap, size)
}

// Flush persists the leaf set.
func (s *LeafSet) Flush() error {
	err := writeBitmap(s.path, s.bitmap)
	if err != nil {
		return err
	}
	s.flushed = s.bitmap.Clone()
	return nil
}

// Discard drops every change since the last flush.
func (s *LeafSet) Discard() {
	s.bitmap = s.flushed.Clone()
}
