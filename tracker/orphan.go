package tracker

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/bnb-chain/chain-tracker/types"
)

const (
	// DefaultMaxOrphans bounds how many parentless blocks are buffered.
	DefaultMaxOrphans = 512
	// DefaultMaxOrphanDistance bounds how far above the highest attached
	// height an orphan may claim to be.
	DefaultMaxOrphanDistance = 256
)

type orphanEntry struct {
	block      *types.ExecBlock
	receivedAt uint64
}

// OrphanPool buffers blocks that arrived before their parent, keyed by the
// missing parent hash. Entries violating the pool bounds are dropped silently;
// such blocks can be re-fetched once their ancestry is known.
//
// Not safe for concurrent use; serialized by the chain tracker worker.
type OrphanPool struct {
	byParent    map[common.Hash][]*orphanEntry
	byHash      map[common.Hash]*orphanEntry
	maxCount    int
	maxDistance uint64
	seq         uint64
}

func NewOrphanPool(maxCount int, maxDistance uint64) *OrphanPool {
	if maxCount <= 0 {
		maxCount = DefaultMaxOrphans
	}
	if maxDistance == 0 {
		maxDistance = DefaultMaxOrphanDistance
	}
	return &OrphanPool{
		byParent:    make(map[common.Hash][]*orphanEntry),
		byHash:      make(map[common.Hash]*orphanEntry),
		maxCount:    maxCount,
		maxDistance: maxDistance,
	}
}

func (p *OrphanPool) Size() int {
	return len(p.byHash)
}

func (p *OrphanPool) Has(hash common.Hash) bool {
	_, ok := p.byHash[hash]
	return ok
}

// Insert buffers the block until its parent becomes known. highestAttached is
// the highest height currently attached to the tree; blocks too far above it
// are dropped. Returns whether the block was kept.
func (p *OrphanPool) Insert(block *types.ExecBlock, highestAttached uint64) bool {
	if _, ok := p.byHash[block.Hash]; ok {
		return true
	}
	if block.Height > highestAttached+p.maxDistance {
		return false
	}
	if len(p.byHash) >= p.maxCount {
		p.evictOldest()
	}
	p.seq++
	entry := &orphanEntry{block: block, receivedAt: p.seq}
	p.byHash[block.Hash] = entry
	p.byParent[block.ParentHash] = append(p.byParent[block.ParentHash], entry)
	return true
}

// Take removes and returns the blocks waiting on the given parent hash, in
// arrival order. The caller attaches them and calls Take again for each newly
// attached hash, cascading through chains of orphans.
func (p *OrphanPool) Take(parentHash common.Hash) []*types.ExecBlock {
	waiting := p.byParent[parentHash]
	if len(waiting) == 0 {
		return nil
	}
	delete(p.byParent, parentHash)
	blocks := make([]*types.ExecBlock, 0, len(waiting))
	for _, entry := range waiting {
		delete(p.byHash, entry.block.Hash)
		blocks = append(blocks, entry.block)
	}
	return blocks
}

// Remove discards one buffered orphan, used when the block attaches through
// a direct submission instead of a cascade.
func (p *OrphanPool) Remove(hash common.Hash) {
	entry, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	p.removeFromParentIndex(entry)
}

// DropBelow discards orphans at or below the given height; they can no longer
// attach above the finalized root after finality advanced.
func (p *OrphanPool) DropBelow(height uint64) {
	for hash, entry := range p.byHash {
		if entry.block.Height > height {
			continue
		}
		delete(p.byHash, hash)
		p.removeFromParentIndex(entry)
	}
}

func (p *OrphanPool) evictOldest() {
	var oldest *orphanEntry
	for _, entry := range p.byHash {
		if oldest == nil || entry.receivedAt < oldest.receivedAt {
			oldest = entry
		}
	}
	if oldest == nil {
		return
	}
	delete(p.byHash, oldest.block.Hash)
	p.removeFromParentIndex(oldest)
}

func (p *OrphanPool) removeFromParentIndex(entry *orphanEntry) {
	waiting := p.byParent[entry.block.ParentHash]
	for i, e := range waiting {
		if e == entry {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(p.byParent, entry.block.ParentHash)
	} else {
		p.byParent[entry.block.ParentHash] = waiting
	}
}
