package chainstore

import (
	"encoding/binary"

	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/infrastructure/db/database"
)

var (
	headerBucket    = database.MakeBucket([]byte("hdr"))
	blockBucket     = database.MakeBucket([]byte("blk"))
	heightBucket    = database.MakeBucket([]byte("height"))
	outputPosBucket = database.MakeBucket([]byte("outpos"))
	spentBucket     = database.MakeBucket([]byte("spent"))
	nrdBucket       = database.MakeBucket([]byte("nrd"))
	sideBucket      = database.MakeBucket([]byte("side"))
	badBucket       = database.MakeBucket([]byte("bad"))

	headKey       = database.MakeBucket().Key([]byte("head"))
	headerHeadKey = database.MakeBucket().Key([]byte("header_head"))
	tailKey       = database.MakeBucket().Key([]byte("tail"))
)

func hashKey(bucket *database.Bucket, hash *hashes.Hash) *database.Key {
	return bucket.Key(hash[:])
}

func commitmentKey(bucket *database.Bucket, commitment *secp.Commitment) *database.Key {
	return bucket.Key(commitment[:])
}

func heightKey(height uint64) *database.Key {
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)
	return heightBucket.Key(heightBytes[:])
}
