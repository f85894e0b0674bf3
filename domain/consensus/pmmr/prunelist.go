package pmmr

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// PruneList holds the roots of the compacted subtrees of a PMMR. The hash
// of a root is kept while the hashes below it and the data of all its
// leaves are removed from the backing files. The shift caches hold, for
// the i-th root, the number of hashes and leaf data records removed up to
// and including that root.
type PruneList struct {
	path   string
	bitmap *roaring.Bitmap

	roots          []uint64
	shiftCache     []uint64
	leafShiftCache []uint64
}

// OpenPruneList loads the prune list stored at path, or an empty one if the
// file doesn't exist.
func OpenPruneList(path string) (*PruneList, error) {
	bitmap, err := readBitmap(path)
	if err != nil {
		return nil, err
	}
	list := &PruneList{path: path, bitmap: bitmap}
	list.buildCaches()
	return list, nil
}

func (l *PruneList) clone() *PruneList {
	cloned := &PruneList{path: l.path, bitmap: l.bitmap.Clone()}
	cloned.buildCaches()
	return cloned
}

func (l *PruneList) buildCaches() {
	l.roots = l.roots[:0]
	l.shiftCache = l.shiftCache[:0]
	l.leafShiftCache = l.leafShiftCache[:0]
	shift, leafShift := uint64(0), uint64(0)
	iterator := l.bitmap.Iterator()
	for iterator.HasNext() {
		root := uint64(iterator.Next())
		height := Height(root)
		shift += subtreeSize(height) - 1
		leafShift += 1 << height
		l.roots = append(l.roots, root)
		l.shiftCache = append(l.shiftCache, shift)
		l.leafShiftCache = append(l.leafShiftCache, leafShift)
	}
}

// rootsBefore returns the number of roots lower than pos.
func (l *PruneList) rootsBefore(pos uint64) int {
	return sort.Search(len(l.roots), func(i int) bool { return l.roots[i] >= pos })
}

// Shift returns the number of hashes removed before pos.
func (l *PruneList) Shift(pos uint64) uint64 {
	n := l.rootsBefore(pos)
	if n == 0 {
		return 0
	}
	return l.shiftCache[n-1]
}

// LeafShift returns the number of leaf data records removed before pos.
func (l *PruneList) LeafShift(pos uint64) uint64 {
	n := l.rootsBefore(pos)
	if n == 0 {
		return 0
	}
	return l.leafShiftCache[n-1]
}

// TotalShift returns the number of removed hashes.
func (l *PruneList) TotalShift() uint64 {
	if len(l.roots) == 0 {
		return 0
	}
	return l.shiftCache[len(l.shiftCache)-1]
}

// TotalLeafShift returns the number of removed leaf data records.
func (l *PruneList) TotalLeafShift() uint64 {
	if len(l.roots) == 0 {
		return 0
	}
	return l.leafShiftCache[len(l.leafShiftCache)-1]
}

// coveringRoot returns the first root at or after pos if its subtree
// contains pos.
func (l *PruneList) coveringRoot(pos uint64) (uint64, bool) {
	n := l.rootsBefore(pos)
	if n == len(l.roots) {
		return 0, false
	}
	root := l.roots[n]
	if subtreeFirst(root) <= pos {
		return root, true
	}
	return 0, false
}

// IsPrunedRoot returns whether pos is the root of a compacted subtree.
func (l *PruneList) IsPrunedRoot(pos uint64) bool {
	return l.bitmap.Contains(uint32(pos))
}

// IsPruned returns whether pos is a compacted root or below one.
func (l *PruneList) IsPruned(pos uint64) bool {
	_, ok := l.coveringRoot(pos)
	return ok
}

// IsCompacted returns whether the hash at pos was removed.
func (l *PruneList) IsCompacted(pos uint64) bool {
	root, ok := l.coveringRoot(pos)
	return ok && root != pos
}

// MaxRoot returns the highest compacted root, or 0.
func (l *PruneList) MaxRoot() uint64 {
	if len(l.roots) == 0 {
		return 0
	}
	return l.roots[len(l.roots)-1]
}

// add compacts the leaf at pos, merging pruned siblings into their parent
// as long as the parent is not beyond cutoff. The caches are stale until
// buildCaches.
func (l *PruneList) add(pos uint64, cutoff uint64) {
	current := pos
	for {
		parent, sibling := Family(current)
		if parent > cutoff || !l.bitmap.Contains(uint32(sibling)) {
			break
		}
		l.bitmap.Remove(uint32(sibling))
		current = parent
	}
	l.bitmap.Add(uint32(current))
}

// Len returns the number of compacted roots.
func (l *PruneList) Len() int {
	return len(l.roots)
}

// Flush persists the prune list.
func (l *PruneList) Flush() error {
	return writeBitmap(l.path, l.bitmap)
}
