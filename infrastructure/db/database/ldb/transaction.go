package ldb

import (
	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// transaction stages its writes in a leveldb batch on top of a snapshot
// taken at Begin. staged mirrors the batch so reads see the transaction's
// own writes. A nil staged value is a deletion.
type transaction struct {
	db       *LevelDB
	snapshot *leveldb.Snapshot
	batch    *leveldb.Batch
	staged   map[string][]byte
	closed   bool
}

// Begin starts a transaction.
func (db *LevelDB) Begin() (database.Transaction, error) {
	snapshot, err := db.ldb.GetSnapshot()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &transaction{
		db:       db,
		snapshot: snapshot,
		batch:    new(leveldb.Batch),
		staged:   make(map[string][]byte),
	}, nil
}

func (tx *transaction) checkOpen(operation string) error {
	if tx.closed {
		return errors.Errorf("%s on a closed transaction", operation)
	}
	return nil
}

func (tx *transaction) close() {
	tx.closed = true
	tx.snapshot.Release()
}

func (tx *transaction) Commit() error {
	if err := tx.checkOpen("Commit"); err != nil {
		return err
	}
	tx.close()
	return errors.WithStack(tx.db.ldb.Write(tx.batch, nil))
}

func (tx *transaction) Rollback() error {
	if err := tx.checkOpen("Rollback"); err != nil {
		return err
	}
	tx.close()
	tx.batch.Reset()
	tx.staged = nil
	return nil
}

func (tx *transaction) RollbackUnlessClosed() error {
	if tx.closed {
		return nil
	}
	return tx.Rollback()
}

func (tx *transaction) Put(key *database.Key, value []byte) error {
	if err := tx.checkOpen("Put"); err != nil {
		return err
	}
	keyBytes := key.Bytes()
	tx.batch.Put(keyBytes, value)
	tx.staged[string(keyBytes)] = append([]byte{}, value...)
	return nil
}

func (tx *transaction) Get(key *database.Key) ([]byte, error) {
	if err := tx.checkOpen("Get"); err != nil {
		return nil, err
	}
	keyBytes := key.Bytes()
	if value, ok := tx.staged[string(keyBytes)]; ok {
		if value == nil {
			return nil, notFound(key)
		}
		return value, nil
	}
	value, err := tx.snapshot.Get(keyBytes, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

func (tx *transaction) Has(key *database.Key) (bool, error) {
	if err := tx.checkOpen("Has"); err != nil {
		return false, err
	}
	keyBytes := key.Bytes()
	if value, ok := tx.staged[string(keyBytes)]; ok {
		return value != nil, nil
	}
	exists, err := tx.snapshot.Has(keyBytes, nil)
	return exists, errors.WithStack(err)
}

func (tx *transaction) Delete(key *database.Key) error {
	if err := tx.checkOpen("Delete"); err != nil {
		return err
	}
	keyBytes := key.Bytes()
	tx.batch.Delete(keyBytes)
	tx.staged[string(keyBytes)] = nil
	return nil
}

// Cursor returns a cursor over bucket as of Begin.
func (tx *transaction) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	if err := tx.checkOpen("Cursor"); err != nil {
		return nil, err
	}
	return newCursor(tx.snapshot.NewIterator(util.BytesPrefix(bucket.Path()), nil), bucket), nil
}
