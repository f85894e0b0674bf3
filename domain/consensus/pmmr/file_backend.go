package pmmr

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// File names inside a PMMR directory.
const (
	HashFileName      = "pmmr_hash.bin"
	DataFileName      = "pmmr_data.bin"
	DataIndexFileName = "pmmr_data.idx"
	LeafSetFileName   = "pmmr_leaf.bin"
	PruneListFileName = "pmmr_prun.bin"
)

// indexRecordSize is the size of a data index record: the offset of the
// leaf data in the data file followed by its length.
const indexRecordSize = 12

// PMMRBackend is a Backend stored in a directory. Appends, removals and
// rewinds are staged in memory until Sync and dropped by Discard.
// Non-prunable backends have no leaf set: every leaf is unpruned.
type PMMRBackend struct {
	dataDir  string
	prunable bool

	hashFile  *appendOnlyFile
	dataFile  *appendOnlyFile
	indexFile *appendOnlyFile
	leafSet   *LeafSet
	pruneList *PruneList
}

// NewPMMRBackend opens the PMMR stored in dataDir, creating it if needed.
func NewPMMRBackend(dataDir string, prunable bool) (*PMMRBackend, error) {
	err := os.MkdirAll(dataDir, 0700)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dataDir)
	}
	backend := &PMMRBackend{dataDir: dataDir, prunable: prunable}
	backend.hashFile, err = openAppendOnlyFile(filepath.Join(dataDir, HashFileName))
	if err != nil {
		return nil, err
	}
	backend.dataFile, err = openAppendOnlyFile(filepath.Join(dataDir, DataFileName))
	if err != nil {
		return nil, err
	}
	backend.indexFile, err = openAppendOnlyFile(filepath.Join(dataDir, DataIndexFileName))
	if err != nil {
		return nil, err
	}
	backend.leafSet, err = OpenLeafSet(filepath.Join(dataDir, LeafSetFileName))
	if err != nil {
		return nil, err
	}
	backend.pruneList, err = OpenPruneList(filepath.Join(dataDir, PruneListFileName))
	if err != nil {
		return nil, err
	}
	if backend.hashFile.size()%hashes.HashSize != 0 {
		return nil, errors.Errorf("corrupted hash file in %s", dataDir)
	}
	if backend.indexFile.size()%indexRecordSize != 0 {
		return nil, errors.Errorf("corrupted data index file in %s", dataDir)
	}
	log.Debugf("Opened PMMR %s at size %d", dataDir, backend.Size())
	return backend, nil
}

// Size implements Backend.
func (b *PMMRBackend) Size() uint64 {
	stored := uint64(b.hashFile.size() / hashes.HashSize)
	if stored == 0 {
		return 0
	}
	return stored + b.pruneList.TotalShift()
}

func (b *PMMRBackend) storedLeaves() uint64 {
	return uint64(b.indexFile.size() / indexRecordSize)
}

// Append implements Backend.
func (b *PMMRBackend) Append(data []byte, newHashes []*hashes.Hash) error {
	pos := b.Size() + 1
	var record [indexRecordSize]byte
	binary.BigEndian.PutUint64(record[:8], uint64(b.dataFile.size()))
	binary.BigEndian.PutUint32(record[8:], uint32(len(data)))
	b.indexFile.append(record[:])
	b.dataFile.append(data)
	for _, hash := range newHashes {
		b.hashFile.append(hash[:])
	}
	if b.prunable {
		b.leafSet.Add(pos)
	}
	return nil
}

// GetFromFile implements Backend.
func (b *PMMRBackend) GetFromFile(pos uint64) (*hashes.Hash, error) {
	if pos == 0 || pos > b.Size() {
		return nil, errors.Wrapf(ErrNotFound, "position %d", pos)
	}
	if b.pruneList.IsCompacted(pos) {
		return nil, errors.Wrapf(ErrNotFound, "position %d is compacted", pos)
	}
	index := pos - 1 - b.pruneList.Shift(pos)
	hashBytes, err := b.hashFile.readAt(int64(index*hashes.HashSize), hashes.HashSize)
	if err != nil {
		return nil, err
	}
	return hashes.FromBytes(hashBytes)
}

// GetHash implements Backend.
func (b *PMMRBackend) GetHash(pos uint64) (*hashes.Hash, error) {
	if IsLeaf(pos) && !b.IsUnpruned(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf %d is pruned", pos)
	}
	return b.GetFromFile(pos)
}

func (b *PMMRBackend) readIndexRecord(leafIndex uint64) (offset int64, length int, err error) {
	record, err := b.indexFile.readAt(int64(leafIndex*indexRecordSize), indexRecordSize)
	if err != nil {
		return 0, 0, err
	}
	return int64(binary.BigEndian.Uint64(record[:8])), int(binary.BigEndian.Uint32(record[8:])), nil
}

// GetDataFromFile implements Backend.
func (b *PMMRBackend) GetDataFromFile(pos uint64) ([]byte, error) {
	if pos == 0 || pos > b.Size() || !IsLeaf(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf position %d", pos)
	}
	if b.pruneList.IsPruned(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf %d is compacted", pos)
	}
	offset, length, err := b.readIndexRecord(LeafIndex(pos) - b.pruneList.LeafShift(pos))
	if err != nil {
		return nil, err
	}
	return b.dataFile.readAt(offset, length)
}

// GetData implements Backend.
func (b *PMMRBackend) GetData(pos uint64) ([]byte, error) {
	if !b.IsUnpruned(pos) {
		return nil, errors.Wrapf(ErrNotFound, "leaf %d is pruned", pos)
	}
	return b.GetDataFromFile(pos)
}

// Remove implements Backend.
func (b *PMMRBackend) Remove(pos uint64) error {
	if !b.prunable {
		return errors.Errorf("cannot remove %d from non-prunable PMMR %s", pos, b.dataDir)
	}
	b.leafSet.Remove(pos)
	return nil
}

// IsUnpruned implements Backend.
func (b *PMMRBackend) IsUnpruned(pos uint64) bool {
	if !b.prunable {
		return pos > 0 && pos <= b.Size() && IsLeaf(pos)
	}
	return b.leafSet.Includes(pos)
}

// LeafPositions implements Backend.
func (b *PMMRBackend) LeafPositions(size uint64) []uint64 {
	if b.prunable {
		return b.leafSet.Positions(size)
	}
	var positions []uint64
	for leafIndex := uint64(0); leafIndex < NLeaves(size); leafIndex++ {
		positions = append(positions, LeafPos(leafIndex))
	}
	return positions
}

// Rewind implements Backend.
func (b *PMMRBackend) Rewind(size uint64, rewindRmPos *roaring.Bitmap) error {
	if size > b.Size() {
		return errors.Errorf("cannot rewind %s to %d beyond size %d", b.dataDir, size, b.Size())
	}
	if size < b.pruneList.MaxRoot() {
		return errors.Errorf("cannot rewind %s to %d below compacted position %d",
			b.dataDir, size, b.pruneList.MaxRoot())
	}

	storedHashes := uint64(0)
	storedLeaves := uint64(0)
	if size > 0 {
		storedHashes = size - b.pruneList.TotalShift()
		storedLeaves = NLeaves(size) - b.pruneList.TotalLeafShift()
	}
	if storedLeaves < b.storedLeaves() {
		offset, _, err := b.readIndexRecord(storedLeaves)
		if err != nil {
			return err
		}
		b.dataFile.rewind(offset)
	}
	b.indexFile.rewind(int64(storedLeaves * indexRecordSize))
	b.hashFile.rewind(int64(storedHashes * hashes.HashSize))
	if b.prunable {
		b.leafSet.Rewind(size, rewindRmPos)
	}
	return nil
}

// Sync writes every staged change to disk.
func (b *PMMRBackend) Sync() error {
	for _, file := range []*appendOnlyFile{b.dataFile, b.indexFile, b.hashFile} {
		err := file.flush()
		if err != nil {
			return err
		}
	}
	if b.prunable {
		return b.leafSet.Flush()
	}
	return nil
}

// Discard drops every staged change.
func (b *PMMRBackend) Discard() {
	b.dataFile.discard()
	b.indexFile.discard()
	b.hashFile.discard()
	b.leafSet.Discard()
}

// LeafSetLen returns the number of unpruned leaves.
func (b *PMMRBackend) LeafSetLen() uint64 {
	if !b.prunable {
		return NLeaves(b.Size())
	}
	return b.leafSet.Len()
}

// PruneList returns the compacted subtree roots.
func (b *PMMRBackend) PruneList() *PruneList {
	return b.pruneList
}

// CheckCompact removes the data of the pruned leaves up to cutoff and
// the hashes of the subtrees they complete. Leaves in rewindRmPos are
// kept so a rewind can restore them. There must be no staged changes. It
// returns whether anything was compacted.
func (b *PMMRBackend) CheckCompact(cutoff uint64, rewindRmPos *roaring.Bitmap) (bool, error) {
	if !b.prunable {
		return false, nil
	}
	if b.dataFile.hasChanges() || b.indexFile.hasChanges() || b.hashFile.hasChanges() {
		return false, errors.Errorf("cannot compact %s with staged changes", b.dataDir)
	}
	if cutoff > b.Size() {
		cutoff = b.Size()
	}

	newPruneList := b.pruneList.clone()
	compacted := 0
	for leafIndex := uint64(0); leafIndex < NLeaves(cutoff); leafIndex++ {
		pos := LeafPos(leafIndex)
		if pos > cutoff {
			break
		}
		if b.leafSet.Includes(pos) || b.pruneList.IsPruned(pos) {
			continue
		}
		if rewindRmPos != nil && rewindRmPos.Contains(uint32(pos)) {
			continue
		}
		newPruneList.add(pos, cutoff)
		compacted++
	}
	if compacted == 0 {
		return false, nil
	}
	newPruneList.buildCaches()

	// The data files go first, the size of the backend is derived from the
	// hash file and the current prune list.
	err := b.rewriteDataFiles(newPruneList)
	if err != nil {
		return false, err
	}
	err = b.rewriteHashFile(newPruneList)
	if err != nil {
		return false, err
	}
	err = newPruneList.Flush()
	if err != nil {
		return false, err
	}
	b.pruneList = newPruneList
	log.Debugf("Compacted %d leaves of %s up to position %d", compacted, b.dataDir, cutoff)
	return true, nil
}

func (b *PMMRBackend) rewriteHashFile(newPruneList *PruneList) error {
	tmpPath := b.hashFile.path + ".compact"
	err := writeFile(tmpPath, func(writer *bufio.Writer) error {
		size := b.Size()
		for pos := uint64(1); pos <= size; pos++ {
			if newPruneList.IsCompacted(pos) {
				continue
			}
			hash, err := b.GetFromFile(pos)
			if err != nil {
				return err
			}
			_, err = writer.Write(hash[:])
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return b.hashFile.replace(tmpPath)
}

func (b *PMMRBackend) rewriteDataFiles(newPruneList *PruneList) error {
	dataTmpPath := b.dataFile.path + ".compact"
	indexTmpPath := b.indexFile.path + ".compact"
	var records []byte
	err := writeFile(dataTmpPath, func(writer *bufio.Writer) error {
		offset := uint64(0)
		size := b.Size()
		for leafIndex := uint64(0); leafIndex < NLeaves(size); leafIndex++ {
			pos := LeafPos(leafIndex)
			if newPruneList.IsPruned(pos) {
				continue
			}
			data, err := b.GetDataFromFile(pos)
			if err != nil {
				return err
			}
			_, err = writer.Write(data)
			if err != nil {
				return errors.WithStack(err)
			}
			var record [indexRecordSize]byte
			binary.BigEndian.PutUint64(record[:8], offset)
			binary.BigEndian.PutUint32(record[8:], uint32(len(data)))
			records = append(records, record[:]...)
			offset += uint64(len(data))
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = writeFile(indexTmpPath, func(writer *bufio.Writer) error {
		_, err := writer.Write(records)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}
	err = b.dataFile.replace(dataTmpPath)
	if err != nil {
		return err
	}
	return b.indexFile.replace(indexTmpPath)
}

func writeFile(path string, write func(writer *bufio.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	writer := bufio.NewWriter(file)
	err = write(writer)
	if err == nil {
		err = writer.Flush()
	}
	if err == nil {
		err = file.Sync()
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	return errors.Wrapf(err, "failed to write %s", path)
}

// Close releases the files of the backend. Staged changes are lost.
func (b *PMMRBackend) Close() error {
	for _, file := range []*appendOnlyFile{b.dataFile, b.indexFile, b.hashFile} {
		err := file.close()
		if err != nil {
			return err
		}
	}
	return nil
}
