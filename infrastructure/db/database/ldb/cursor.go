package ldb

import (
	"bytes"

	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type cursor struct {
	iter   iterator.Iterator
	bucket *database.Bucket
	closed bool
}

// Cursor returns a cursor over the keys of bucket.
func (db *LevelDB) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	return newCursor(db.ldb.NewIterator(util.BytesPrefix(bucket.Path()), nil), bucket), nil
}

func newCursor(iter iterator.Iterator, bucket *database.Bucket) *cursor {
	return &cursor{iter: iter, bucket: bucket}
}

func (c *cursor) mustBeOpen(operation string) {
	if c.closed {
		panic(operation + " on a closed cursor")
	}
}

func (c *cursor) First() bool {
	c.mustBeOpen("First")
	return c.iter.First()
}

func (c *cursor) Next() bool {
	c.mustBeOpen("Next")
	return c.iter.Next()
}

func (c *cursor) Key() (*database.Key, error) {
	if c.closed {
		return nil, errors.New("Key on a closed cursor")
	}
	fullKey := c.iter.Key()
	if fullKey == nil {
		return nil, errors.Wrap(database.ErrNotFound, "the cursor has no current entry")
	}
	suffix := bytes.TrimPrefix(fullKey, c.bucket.Path())
	return c.bucket.Key(append([]byte(nil), suffix...)), nil
}

func (c *cursor) Value() ([]byte, error) {
	if c.closed {
		return nil, errors.New("Value on a closed cursor")
	}
	value := c.iter.Value()
	if value == nil {
		return nil, errors.Wrap(database.ErrNotFound, "the cursor has no current entry")
	}
	return value, nil
}

func (c *cursor) Close() error {
	if c.closed {
		return errors.New("the cursor is already closed")
	}
	c.closed = true
	c.iter.Release()
	c.iter = nil
	return nil
}
