// Package ldb implements database.Database on top of goleveldb.
package ldb

import (
	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a database.Database stored in a leveldb directory.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens the leveldb at path, creating it if needed. A corrupted
// database is recovered, losing the entries that can't be read back.
func NewLevelDB(path string, cacheSizeMiB int) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, Options(cacheSizeMiB))
	var corrupted *ldbErrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		log.Warnf("The database at %s is corrupted, recovering: %s", path, err)
		db, err = leveldb.RecoverFile(path, Options(cacheSizeMiB))
		if err == nil {
			log.Warnf("Recovered the database at %s", path)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open the database at %s", path)
	}
	return &LevelDB{ldb: db}, nil
}

// Compact compacts the whole key range.
func (db *LevelDB) Compact() error {
	return errors.WithStack(db.ldb.CompactRange(util.Range{}))
}

// Close closes the database.
func (db *LevelDB) Close() error {
	return errors.WithStack(db.ldb.Close())
}

func notFound(key *database.Key) error {
	return errors.Wrapf(database.ErrNotFound, "key %s not found", key)
}

// Put sets the value of key.
func (db *LevelDB) Put(key *database.Key, value []byte) error {
	return errors.WithStack(db.ldb.Put(key.Bytes(), value, nil))
}

// Get returns the value of key.
func (db *LevelDB) Get(key *database.Key) ([]byte, error) {
	value, err := db.ldb.Get(key.Bytes(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

// Has returns whether key has a value.
func (db *LevelDB) Has(key *database.Key) (bool, error) {
	exists, err := db.ldb.Has(key.Bytes(), nil)
	return exists, errors.WithStack(err)
}

// Delete removes the value of key.
func (db *LevelDB) Delete(key *database.Key) error {
	return errors.WithStack(db.ldb.Delete(key.Bytes(), nil))
}
