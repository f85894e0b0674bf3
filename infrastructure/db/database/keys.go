package database

import (
	"bytes"
	"encoding/hex"
)

const bucketSeparator = '/'

// Bucket is a key prefix. Nested buckets join their names with '/', and the
// prefix always ends with one, so no bucket's keys fall inside another's.
type Bucket struct {
	prefix []byte
}

// MakeBucket returns the bucket nested along names.
func MakeBucket(names ...[]byte) *Bucket {
	return &Bucket{prefix: append(bytes.Join(names, []byte{bucketSeparator}), bucketSeparator)}
}

// Bucket returns the bucket named name inside b.
func (b *Bucket) Bucket(name []byte) *Bucket {
	prefix := make([]byte, 0, len(b.prefix)+len(name)+1)
	prefix = append(prefix, b.prefix...)
	prefix = append(prefix, name...)
	prefix = append(prefix, bucketSeparator)
	return &Bucket{prefix: prefix}
}

// Key returns the key suffix inside b.
func (b *Bucket) Key(suffix []byte) *Key {
	return &Key{bucket: b, suffix: suffix}
}

// Path returns the prefix shared by the keys of b.
func (b *Bucket) Path() []byte {
	return b.prefix
}

// Key is a suffix within a bucket.
type Key struct {
	bucket *Bucket
	suffix []byte
}

// Bytes returns the bucket prefix followed by the suffix.
func (k *Key) Bytes() []byte {
	keyBytes := make([]byte, 0, len(k.bucket.prefix)+len(k.suffix))
	keyBytes = append(keyBytes, k.bucket.prefix...)
	return append(keyBytes, k.suffix...)
}

func (k *Key) String() string {
	return hex.EncodeToString(k.Bytes())
}

// Bucket returns the bucket k is in.
func (k *Key) Bucket() *Bucket {
	return k.bucket
}

// Suffix returns k without its bucket prefix.
func (k *Key) Suffix() []byte {
	return k.suffix
}
