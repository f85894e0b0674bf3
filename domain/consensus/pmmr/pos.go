package pmmr

import (
	"math"
	"math/bits"
)

// Positions are 1-based and follow the postorder traversal of the
// mountains: leaves and parents are interleaved, a parent directly
// follows its right child.

const allOnes = math.MaxUint64

func allOnesBits(n uint64) bool {
	return n != 0 && n&(n+1) == 0
}

func jumpLeft(pos uint64) uint64 {
	msb := uint(bits.Len64(pos))
	return pos - (1<<(msb-1) - 1)
}

// Height returns the height of the node at pos, leaves having height 0.
func Height(pos uint64) uint64 {
	if pos == 0 {
		return 0
	}
	height := pos
	for !allOnesBits(height) {
		height = jumpLeft(height)
	}
	return uint64(bits.Len64(height)) - 1
}

// IsLeaf returns whether pos is a leaf position.
func IsLeaf(pos uint64) bool {
	return Height(pos) == 0
}

// subtreeSize returns the number of nodes in a perfect subtree of the
// given height.
func subtreeSize(height uint64) uint64 {
	return 1<<(height+1) - 1
}

// peakMapHeight returns a bitmap of the peaks of an MMR of size pos0 and
// the height of the next node to be added.
func peakMapHeight(pos0 uint64) (peakMap uint64, height uint64) {
	if pos0 == 0 {
		return 0, 0
	}
	peakSize := uint64(allOnes) >> uint(bits.LeadingZeros64(pos0))
	remaining := pos0
	for peakSize != 0 {
		peakMap <<= 1
		if remaining >= peakSize {
			remaining -= peakSize
			peakMap |= 1
		}
		peakSize >>= 1
	}
	return peakMap, remaining
}

// Peaks returns the positions of the peaks of an MMR of the given size, left
// to right. It returns nil if size is not a valid MMR size.
func Peaks(size uint64) []uint64 {
	if size == 0 {
		return nil
	}
	peakSize := uint64(allOnes) >> uint(bits.LeadingZeros64(size))
	remaining := size
	sumPrevPeaks := uint64(0)
	var peaks []uint64
	for peakSize != 0 {
		if remaining >= peakSize {
			peaks = append(peaks, sumPrevPeaks+peakSize)
			sumPrevPeaks += peakSize
			remaining -= peakSize
		}
		peakSize >>= 1
	}
	if remaining > 0 {
		return nil
	}
	return peaks
}

// IsValidSize returns whether an MMR can have exactly size nodes.
func IsValidSize(size uint64) bool {
	return size == 0 || Peaks(size) != nil
}

// NLeaves returns the number of leaves in an MMR of the given size. A size
// ending in the middle of a mountain counts the leaf that started it.
func NLeaves(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	peakSize := uint64(allOnes) >> uint(bits.LeadingZeros64(size))
	remaining := size
	leaves := uint64(0)
	for peakSize != 0 {
		if remaining >= peakSize {
			leaves += (peakSize + 1) / 2
			remaining -= peakSize
		}
		peakSize >>= 1
	}
	if remaining > 0 {
		leaves++
	}
	return leaves
}

// LeafPos returns the position of the leaf with the given 0-based
// insertion index.
func LeafPos(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex)) + 1
}

// LeafIndex returns the 0-based insertion index of the leaf at pos.
func LeafIndex(pos uint64) uint64 {
	return NLeaves(pos) - 1
}

// Family returns the parent and sibling positions of pos.
func Family(pos uint64) (parent uint64, sibling uint64) {
	peakMap, height := peakMapHeight(pos - 1)
	peak := uint64(1) << height
	if peakMap&peak != 0 {
		return pos + 1, pos + 1 - 2*peak
	}
	return pos + 2*peak, pos + 2*peak - 1
}

// IsLeftSibling returns whether pos is the left child of its parent.
func IsLeftSibling(pos uint64) bool {
	peakMap, height := peakMapHeight(pos - 1)
	peak := uint64(1) << height
	return peakMap&peak == 0
}

// familyBranch returns the (parent, sibling) pairs from pos up to the peak
// containing it in an MMR of the given size.
func familyBranch(pos uint64, size uint64) [][2]uint64 {
	peakMap, height := peakMapHeight(pos - 1)
	var branch [][2]uint64
	peak := uint64(1) << height
	current := pos
	for {
		var parent, sibling uint64
		if peakMap&peak != 0 {
			parent, sibling = current+1, current+1-2*peak
		} else {
			parent, sibling = current+2*peak, current+2*peak-1
		}
		if parent > size {
			break
		}
		branch = append(branch, [2]uint64{parent, sibling})
		current = parent
		peak <<= 1
	}
	return branch
}

// subtreeFirst returns the first position covered by the subtree rooted at
// pos.
func subtreeFirst(pos uint64) uint64 {
	return pos + 1 - subtreeSize(Height(pos))
}
