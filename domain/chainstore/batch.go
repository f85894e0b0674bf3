package chainstore

import (
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/mwcnet/mwcd/infrastructure/db/database"
)

// Batch is a set of writes to the ChainStore applied atomically on Commit.
type Batch struct {
	reader
	dbTx database.Transaction

	savedHeaders []*model.BlockHeader
}

// Commit writes the batch to the store.
func (b *Batch) Commit() error {
	err := b.dbTx.Commit()
	if err != nil {
		return err
	}
	for _, header := range b.savedHeaders {
		b.headerCache.Add(*header.Hash(), header)
	}
	b.savedHeaders = nil
	return nil
}

// Rollback drops the batch unless it was already committed.
func (b *Batch) Rollback() error {
	b.savedHeaders = nil
	return b.dbTx.RollbackUnlessClosed()
}

func (b *Batch) put(key *database.Key, value serialization.Serializable) error {
	valueBytes, err := serialization.ToBytes(value, serialization.CurrentProtocolVersion)
	if err != nil {
		return err
	}
	return b.dbTx.Put(key, valueBytes)
}

// SaveHead sets the tip of the full block chain.
func (b *Batch) SaveHead(tip *model.Tip) error {
	return b.put(headKey, tip)
}

// SaveHeaderHead sets the tip of the header chain.
func (b *Batch) SaveHeaderHead(tip *model.Tip) error {
	return b.put(headerHeadKey, tip)
}

// SaveTail sets the oldest block whose body is still stored.
func (b *Batch) SaveTail(tip *model.Tip) error {
	return b.put(tailKey, tip)
}

// SaveBlockHeader stores header under its hash.
func (b *Batch) SaveBlockHeader(header *model.BlockHeader) error {
	err := b.put(hashKey(headerBucket, header.Hash()), header)
	if err != nil {
		return err
	}
	b.savedHeaders = append(b.savedHeaders, header)
	return nil
}

// SaveBlock stores the body of block under its hash.
func (b *Batch) SaveBlock(block *model.Block) error {
	return b.put(hashKey(blockBucket, block.Hash()), block)
}

// DeleteBlock removes the body of the block with the given hash along with
// its spent journal.
func (b *Batch) DeleteBlock(hash *hashes.Hash) error {
	err := b.dbTx.Delete(hashKey(blockBucket, hash))
	if err != nil {
		return err
	}
	return b.dbTx.Delete(hashKey(spentBucket, hash))
}

// SaveHeaderHashByHeight indexes hash as the full block chain's header at
// height.
func (b *Batch) SaveHeaderHashByHeight(height uint64, hash *hashes.Hash) error {
	return b.dbTx.Put(heightKey(height), hash[:])
}

// DeleteHeaderHashByHeight removes the height index entry at height.
func (b *Batch) DeleteHeaderHashByHeight(height uint64) error {
	return b.dbTx.Delete(heightKey(height))
}

// SaveOutputPos indexes the position of an unspent output.
func (b *Batch) SaveOutputPos(commitment *secp.Commitment, pos *model.CommitPos) error {
	return b.put(commitmentKey(outputPosBucket, commitment), pos)
}

// DeleteOutputPos removes the index entry of a spent output.
func (b *Batch) DeleteOutputPos(commitment *secp.Commitment) error {
	return b.dbTx.Delete(commitmentKey(outputPosBucket, commitment))
}

// SaveSpentJournal stores the outputs spent by the block with the given
// hash.
func (b *Batch) SaveSpentJournal(hash *hashes.Hash, journal model.SpentJournal) error {
	return b.put(hashKey(spentBucket, hash), journal)
}

// SaveNRDEntries replaces the positions of the no-recent-duplicate kernels
// with the given excess. An empty list removes the entry.
func (b *Batch) SaveNRDEntries(excess *secp.Commitment, entries []model.CommitPos) error {
	key := commitmentKey(nrdBucket, excess)
	if len(entries) == 0 {
		return b.dbTx.Delete(key)
	}
	entriesBytes, err := serializeCommitPosList(entries)
	if err != nil {
		return err
	}
	return b.dbTx.Put(key, entriesBytes)
}

// MarkSidechain records that the block with the given hash was processed
// on a fork.
func (b *Batch) MarkSidechain(hash *hashes.Hash) error {
	return b.dbTx.Put(hashKey(sideBucket, hash), []byte{1})
}

// UnmarkSidechain records that the block with the given hash is on the
// full block chain.
func (b *Batch) UnmarkSidechain(hash *hashes.Hash) error {
	return b.dbTx.Delete(hashKey(sideBucket, hash))
}

// MarkBad records that the block with the given hash was rejected.
func (b *Batch) MarkBad(hash *hashes.Hash) error {
	log.Debugf("Marking block %s as bad", hash)
	return b.dbTx.Put(hashKey(badBucket, hash), []byte{1})
}
