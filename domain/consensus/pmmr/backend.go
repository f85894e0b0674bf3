package pmmr

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a position is beyond the MMR size, pruned
// or compacted away.
var ErrNotFound = errors.New("not found")

// IsNotFoundError returns whether err is caused by ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Backend stores the hashes and leaf data of a PMMR.
type Backend interface {
	// Append adds the data of a new leaf followed by the hashes it
	// produces: the leaf hash first, then the hashes of every parent
	// completed by the leaf.
	Append(data []byte, hashes []*hashes.Hash) error

	// GetHash returns the hash at pos. Leaves removed from the leaf set
	// are not found.
	GetHash(pos uint64) (*hashes.Hash, error)

	// GetFromFile returns the hash at pos as long as it was not
	// compacted away, regardless of the leaf set.
	GetFromFile(pos uint64) (*hashes.Hash, error)

	// GetData returns the data of the leaf at pos if it is in the leaf
	// set.
	GetData(pos uint64) ([]byte, error)

	// GetDataFromFile returns the data of the leaf at pos as long as it
	// was not compacted away.
	GetDataFromFile(pos uint64) ([]byte, error)

	// Remove drops the leaf at pos from the leaf set.
	Remove(pos uint64) error

	// Rewind truncates the backend to size and restores the leaves in
	// rewindRmPos that are within the new size.
	Rewind(size uint64, rewindRmPos *roaring.Bitmap) error

	// Size returns the number of positions, including pruned ones.
	Size() uint64

	// IsUnpruned returns whether the leaf at pos is in the leaf set.
	IsUnpruned(pos uint64) bool

	// LeafPositions returns the unpruned leaf positions up to size, in
	// increasing order.
	LeafPositions(size uint64) []uint64
}
