package ldb

import "github.com/syndtr/goleveldb/leveldb/opt"

// Options returns the leveldb options for a cache of cacheSizeMiB. Half of
// the cache size goes to the write buffer. It's a variable so tests can
// shrink it.
var Options = func(cacheSizeMiB int) *opt.Options {
	return &opt.Options{
		BlockCacheCapacity:     cacheSizeMiB * opt.MiB,
		WriteBuffer:            cacheSizeMiB * opt.MiB / 2,
		Compression:            opt.NoCompression,
		DisableSeeksCompaction: true,
	}
}
