package chain

import (
	"sync"
	"time"

	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

const (
	// DefaultMaxOrphans is the default number of orphan blocks kept
	// waiting for their parent.
	DefaultMaxOrphans = 200

	// orphanExpiration is how long an orphan block is kept before it's
	// dropped.
	orphanExpiration = time.Hour
)

// orphanBlock is a block whose parent is unknown, with the options it was
// submitted with.
type orphanBlock struct {
	block      *model.Block
	hash       hashes.Hash
	options    Options
	expiration time.Time
	added      uint64
}

// orphanPool holds orphan blocks indexed by their own hash and by the hash
// of their parent. Children of a parent are kept in arrival order.
type orphanPool struct {
	sync.Mutex
	maxOrphans  int
	now         func() time.Time
	orphans     map[hashes.Hash]*orphanBlock
	prevOrphans map[hashes.Hash][]*orphanBlock
	nextAdded   uint64
}

func newOrphanPool(maxOrphans int, now func() time.Time) *orphanPool {
	return &orphanPool{
		maxOrphans:  maxOrphans,
		now:         now,
		orphans:     make(map[hashes.Hash]*orphanBlock),
		prevOrphans: make(map[hashes.Hash][]*orphanBlock),
	}
}

// add puts block in the pool. Expired orphans are dropped first, then, if
// the pool is still full, the oldest orphan is evicted along with every
// orphan that shares its parent or descends from it.
func (p *orphanPool) add(block *model.Block, options Options) {
	p.Lock()
	defer p.Unlock()

	hash := *block.Hash()
	if _, exists := p.orphans[hash]; exists {
		return
	}

	now := p.now()
	var oldest *orphanBlock
	for _, orphan := range p.orphans {
		if now.After(orphan.expiration) {
			p.remove(orphan)
			continue
		}
		if oldest == nil || orphan.added < oldest.added {
			oldest = orphan
		}
	}
	if len(p.orphans)+1 > p.maxOrphans && oldest != nil {
		evicted := p.evictChain(oldest)
		log.Debugf("Orphan pool full: evicted %d orphans descending from %s",
			evicted, oldest.block.Header.PrevHash)
	}

	orphan := &orphanBlock{
		block:      block,
		hash:       hash,
		options:    options,
		expiration: now.Add(orphanExpiration),
		added:      p.nextAdded,
	}
	p.nextAdded++
	p.orphans[hash] = orphan
	prevHash := block.Header.PrevHash
	p.prevOrphans[prevHash] = append(p.prevOrphans[prevHash], orphan)

	log.Debugf("Added orphan block %s at height %d with parent %s (total: %d)",
		hash, block.Header.Height, prevHash, len(p.orphans))
}

// remove drops orphan from both indexes. The caller holds the lock.
func (p *orphanPool) remove(orphan *orphanBlock) {
	delete(p.orphans, orphan.hash)

	prevHash := orphan.block.Header.PrevHash
	siblings := p.prevOrphans[prevHash]
	for i, sibling := range siblings {
		if sibling == orphan {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(p.prevOrphans, prevHash)
		return
	}
	p.prevOrphans[prevHash] = siblings
}

// evictChain removes every orphan sharing the parent of orphan and every
// orphan descending from those. It returns the number of removed orphans.
// The caller holds the lock.
func (p *orphanPool) evictChain(orphan *orphanBlock) int {
	evicted := 0
	parents := []hashes.Hash{orphan.block.Header.PrevHash}
	for len(parents) > 0 {
		parent := parents[0]
		parents = parents[1:]
		for _, child := range p.prevOrphans[parent] {
			delete(p.orphans, child.hash)
			parents = append(parents, child.hash)
			evicted++
		}
		delete(p.prevOrphans, parent)
	}
	return evicted
}

// takeChildren removes and returns the orphans whose parent is parentHash,
// in arrival order.
func (p *orphanPool) takeChildren(parentHash *hashes.Hash) []*orphanBlock {
	p.Lock()
	defer p.Unlock()

	children := p.prevOrphans[*parentHash]
	delete(p.prevOrphans, *parentHash)
	for _, child := range children {
		delete(p.orphans, child.hash)
	}
	return children
}

func (p *orphanPool) has(hash *hashes.Hash) bool {
	p.Lock()
	defer p.Unlock()
	_, exists := p.orphans[*hash]
	return exists
}

func (p *orphanPool) len() int {
	p.Lock()
	defer p.Unlock()
	return len(p.orphans)
}
