// Package database defines the key-value store the chain keeps its headers,
// blocks, indexes and tips in. ldb implements it on top of leveldb.
package database

// DataAccessor reads and writes single keys. Both the database and its
// transactions are DataAccessors, so stores can be written against either.
type DataAccessor interface {
	// Put sets the value of key, replacing any previous value.
	Put(key *Key, value []byte) error

	// Get returns the value of key, or an error for which
	// IsNotFoundError holds if there's none.
	Get(key *Key) ([]byte, error)

	// Has returns whether key has a value.
	Has(key *Key) (bool, error)

	// Delete removes the value of key. Deleting a missing key is not an
	// error.
	Delete(key *Key) error

	// Cursor returns a cursor over the keys of bucket, in key order.
	Cursor(bucket *Bucket) (Cursor, error)
}

// Cursor walks the entries of a bucket. It starts before the first entry.
type Cursor interface {
	// First moves to the first entry and returns whether there is one.
	First() bool

	// Next moves to the next entry and returns false once the cursor is
	// exhausted.
	Next() bool

	// Key returns the key of the current entry, relative to the bucket the
	// cursor was opened on.
	Key() (*Key, error)

	// Value returns the value of the current entry. The returned slice is
	// only valid until the cursor moves.
	Value() ([]byte, error)

	// Close releases the cursor. Moving a closed cursor panics.
	Close() error
}

// Transaction is an atomic set of writes. Its reads see its own writes on top
// of the database as of Begin. Its cursors only see the latter.
type Transaction interface {
	DataAccessor

	// Commit writes the transaction to the database.
	Commit() error

	// Rollback discards the transaction.
	Rollback() error

	// RollbackUnlessClosed discards the transaction if neither Commit nor
	// Rollback were called on it. Meant to be deferred.
	RollbackUnlessClosed() error
}

// Database is an open key-value store.
type Database interface {
	DataAccessor

	// Begin starts a transaction.
	Begin() (Transaction, error)

	// Compact reclaims the space of deleted and overwritten entries.
	Compact() error

	// Close closes the database.
	Close() error
}
