package apiserver

import (
	"regexp"
	"strconv"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

var hashRegexp = regexp.MustCompile("(?i)^[0-9a-f]{64}$")

// resolveHeader finds the header a request identifies. id is tried, in
// order, as an output commitment (the header of the block that created
// it), as a height on the current chain, and as a block hash.
func resolveHeader(c *chain.Chain, id string) (*model.BlockHeader, error) {
	if commitment, err := secp.CommitmentFromString(id); err == nil {
		return headerByCommitment(c, &commitment)
	}
	if height, err := strconv.ParseUint(id, 10, 64); err == nil {
		return headerByHeight(c, height)
	}
	if hashRegexp.MatchString(id) {
		hash, err := hashes.FromString(id)
		if err != nil {
			return nil, newArgumentError("invalid block hash %s", id)
		}
		return headerByHash(c, hash)
	}
	return nil, newArgumentError("%s is neither a height, a block hash nor an output commitment", id)
}

func headerByCommitment(c *chain.Chain, commitment *secp.Commitment) (*model.BlockHeader, error) {
	_, pos, err := c.GetUnspent(commitment)
	if chain.IsNotFoundError(err) {
		return nil, newNotFoundError("no unspent output %s", commitment)
	}
	if err != nil {
		return nil, err
	}
	return headerByHeight(c, pos.Height)
}

func headerByHeight(c *chain.Chain, height uint64) (*model.BlockHeader, error) {
	header, err := c.GetHeaderByHeight(height)
	if chain.IsNotFoundError(err) {
		return nil, newNotFoundError("no block at height %d", height)
	}
	return header, err
}

func headerByHash(c *chain.Chain, hash *hashes.Hash) (*model.BlockHeader, error) {
	header, err := c.GetBlockHeader(hash)
	if chain.IsNotFoundError(err) {
		return nil, newNotFoundError("block %s not found", hash)
	}
	return header, err
}

func blockOfHeader(c *chain.Chain, header *model.BlockHeader) (*model.Block, error) {
	hash := header.Hash()
	block, err := c.GetBlock(hash)
	if chain.IsNotFoundError(err) {
		return nil, newNotFoundError("the body of block %s isn't stored", hash)
	}
	return block, err
}
