package chainstore

import (
	"bytes"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/pkg/errors"
)

// DefaultHeaderCacheSize is the default number of headers kept in memory.
const DefaultHeaderCacheSize = 2000

// IsNotFoundError returns whether err means the requested item is not in
// the store.
func IsNotFoundError(err error) bool {
	return database.IsNotFoundError(err)
}

// ChainStore holds the headers, blocks and indexes of the chain. Writes go
// through a Batch.
type ChainStore struct {
	reader
	db database.Database
}

// New returns a ChainStore over db.
func New(db database.Database, headerCacheSize int) (*ChainStore, error) {
	headerCache, err := lru.New(headerCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ChainStore{
		reader: reader{accessor: db, headerCache: headerCache, fillCache: true},
		db:     db,
	}, nil
}

// Batch begins a new write batch. Reads through the batch observe its own
// writes.
func (s *ChainStore) Batch() (*Batch, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &Batch{
		reader: reader{accessor: dbTx, headerCache: s.headerCache},
		dbTx:   dbTx,
	}, nil
}

// Close closes the underlying database.
func (s *ChainStore) Close() error {
	return s.db.Close()
}

// reader implements the lookups shared by ChainStore and Batch. Only
// committed headers may enter the cache, so batches don't fill it.
type reader struct {
	accessor    database.DataAccessor
	headerCache *lru.Cache
	fillCache   bool
}

func (r *reader) getTip(key *database.Key) (*model.Tip, error) {
	tipBytes, err := r.accessor.Get(key)
	if err != nil {
		return nil, err
	}
	return model.DeserializeTip(bytes.NewReader(tipBytes))
}

// Head returns the tip of the full block chain.
func (r *reader) Head() (*model.Tip, error) {
	return r.getTip(headKey)
}

// HeaderHead returns the tip of the header chain.
func (r *reader) HeaderHead() (*model.Tip, error) {
	return r.getTip(headerHeadKey)
}

// Tail returns the oldest block whose body is still stored.
func (r *reader) Tail() (*model.Tip, error) {
	return r.getTip(tailKey)
}

// HeadHeader returns the header of the full block chain's tip.
func (r *reader) HeadHeader() (*model.BlockHeader, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	return r.GetBlockHeader(&head.LastBlockHash)
}

// GetBlockHeader returns the header with the given hash.
func (r *reader) GetBlockHeader(hash *hashes.Hash) (*model.BlockHeader, error) {
	if header, ok := r.headerCache.Get(*hash); ok {
		return header.(*model.BlockHeader), nil
	}
	headerBytes, err := r.accessor.Get(hashKey(headerBucket, hash))
	if err != nil {
		return nil, err
	}
	header, err := model.DeserializeBlockHeader(bytes.NewReader(headerBytes), serialization.CurrentProtocolVersion)
	if err != nil {
		return nil, err
	}
	if r.fillCache {
		r.headerCache.Add(*hash, header)
	}
	return header, nil
}

// BlockHeaderExists returns whether the header with the given hash is
// stored.
func (r *reader) BlockHeaderExists(hash *hashes.Hash) (bool, error) {
	if r.headerCache.Contains(*hash) {
		return true, nil
	}
	return r.accessor.Has(hashKey(headerBucket, hash))
}

// GetPreviousHeader returns the parent of header.
func (r *reader) GetPreviousHeader(header *model.BlockHeader) (*model.BlockHeader, error) {
	return r.GetBlockHeader(&header.PrevHash)
}

// GetBlock returns the full block with the given hash.
func (r *reader) GetBlock(hash *hashes.Hash) (*model.Block, error) {
	blockBytes, err := r.accessor.Get(hashKey(blockBucket, hash))
	if err != nil {
		return nil, err
	}
	return model.DeserializeBlock(bytes.NewReader(blockBytes), serialization.CurrentProtocolVersion)
}

// BlockExists returns whether the body of the block with the given hash is
// stored.
func (r *reader) BlockExists(hash *hashes.Hash) (bool, error) {
	return r.accessor.Has(hashKey(blockBucket, hash))
}

// GetHeaderHashByHeight returns the hash of the full block chain's header
// at height.
func (r *reader) GetHeaderHashByHeight(height uint64) (*hashes.Hash, error) {
	hashBytes, err := r.accessor.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	return hashes.FromBytes(hashBytes)
}

// GetHeaderByHeight returns the full block chain's header at height.
func (r *reader) GetHeaderByHeight(height uint64) (*model.BlockHeader, error) {
	hash, err := r.GetHeaderHashByHeight(height)
	if err != nil {
		return nil, err
	}
	return r.GetBlockHeader(hash)
}

// GetOutputPos returns the position of the unspent output with the given
// commitment.
func (r *reader) GetOutputPos(commitment *secp.Commitment) (*model.CommitPos, error) {
	posBytes, err := r.accessor.Get(commitmentKey(outputPosBucket, commitment))
	if err != nil {
		return nil, err
	}
	return model.DeserializeCommitPos(bytes.NewReader(posBytes))
}

// GetSpentJournal returns the outputs spent by the block with the given
// hash.
func (r *reader) GetSpentJournal(hash *hashes.Hash) (model.SpentJournal, error) {
	journalBytes, err := r.accessor.Get(hashKey(spentBucket, hash))
	if err != nil {
		return nil, err
	}
	return model.DeserializeSpentJournal(bytes.NewReader(journalBytes))
}

// GetNRDEntries returns the positions of the no-recent-duplicate kernels
// with the given excess, oldest first. A missing entry is an empty list.
func (r *reader) GetNRDEntries(excess *secp.Commitment) ([]model.CommitPos, error) {
	entriesBytes, err := r.accessor.Get(commitmentKey(nrdBucket, excess))
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return deserializeCommitPosList(entriesBytes)
}

// IsSidechain returns whether the block with the given hash was processed
// on a fork.
func (r *reader) IsSidechain(hash *hashes.Hash) (bool, error) {
	return r.accessor.Has(hashKey(sideBucket, hash))
}

// IsBad returns whether the block with the given hash was rejected.
func (r *reader) IsBad(hash *hashes.Hash) (bool, error) {
	return r.accessor.Has(hashKey(badBucket, hash))
}

// BlockHashes returns the hashes of every stored block body.
func (r *reader) BlockHashes() ([]*hashes.Hash, error) {
	cursor, err := r.accessor.Cursor(blockBucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var blockHashes []*hashes.Hash
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return nil, err
		}
		hash, err := hashes.FromBytes(key.Suffix())
		if err != nil {
			return nil, err
		}
		blockHashes = append(blockHashes, hash)
	}
	return blockHashes, nil
}

func serializeCommitPosList(entries []model.CommitPos) ([]byte, error) {
	var buf bytes.Buffer
	err := serialization.WriteVarInt(&buf, uint64(len(entries)))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		err = entries[i].Serialize(&buf, serialization.CurrentProtocolVersion)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func deserializeCommitPosList(entriesBytes []byte) ([]model.CommitPos, error) {
	r := bytes.NewReader(entriesBytes)
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > uint64(len(entriesBytes)) {
		return nil, errors.Wrapf(serialization.ErrMalformed, "commit pos list of %d entries", count)
	}
	entries := make([]model.CommitPos, count)
	for i := range entries {
		pos, err := model.DeserializeCommitPos(r)
		if err != nil {
			return nil, err
		}
		entries[i] = *pos
	}
	return entries, nil
}
