package tracker

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bnb-chain/chain-tracker/types"
)

var (
	// ErrUnknownParent is returned by Attach when the block's parent is not in
	// the tree; the caller routes such blocks to the orphan pool.
	ErrUnknownParent = errors.New("block parent is not in the unfinalized tree")
	// ErrUnknownFinalizedBlock is returned by AdvanceFinality when the target
	// hash is not attached yet; the caller must backfill ancestors and retry.
	ErrUnknownFinalizedBlock = errors.New("finalized block is not in the unfinalized tree")
	// ErrInvalidBlock is returned when a block contradicts its parent, e.g.
	// its height is not parent height + 1.
	ErrInvalidBlock = errors.New("block is inconsistent with its parent")
)

// blockEntry is one node of the unfinalized tree. Children are kept in attach
// order, which is what the canonical-tip rule is defined over.
type blockEntry struct {
	block    *types.ExecBlock
	children []common.Hash
}

// UnfinalizedTree holds every known block between the finalized root and all
// unfinalized leaves, keyed by hash, and selects the canonical tip.
//
// Canonical-tip rule: starting from the finalized root, follow at every fork
// the child that was attached first, until a leaf is reached. Arrival order is
// total, so the rule is deterministic; a later-arriving sibling never displaces
// a branch that was seen first, only finality does.
//
// The tree is not safe for concurrent use; the chain tracker serializes all
// access through its single worker.
type UnfinalizedTree struct {
	finalizedRoot types.HeightHash
	entries       map[common.Hash]*blockEntry
	canonicalTip  types.HeightHash
	highestHeight uint64
}

// NewUnfinalizedTree creates a tree holding only the finalized root.
func NewUnfinalizedTree(finalizedRoot types.HeightHash) *UnfinalizedTree {
	t := &UnfinalizedTree{
		finalizedRoot: finalizedRoot,
		entries:       make(map[common.Hash]*blockEntry),
		canonicalTip:  finalizedRoot,
		highestHeight: finalizedRoot.Height,
	}
	t.entries[finalizedRoot.Hash] = &blockEntry{
		block: &types.ExecBlock{Hash: finalizedRoot.Hash, Height: finalizedRoot.Height},
	}
	return t
}

func (t *UnfinalizedTree) FinalizedRoot() types.HeightHash {
	return t.finalizedRoot
}

func (t *UnfinalizedTree) CanonicalTip() types.HeightHash {
	return t.canonicalTip
}

// HighestHeight is the height of the highest attached block, used to bound how
// far ahead orphans may run.
func (t *UnfinalizedTree) HighestHeight() uint64 {
	return t.highestHeight
}

func (t *UnfinalizedTree) Has(hash common.Hash) bool {
	_, ok := t.entries[hash]
	return ok
}

// Size is the number of unfinalized entries, the root excluded.
func (t *UnfinalizedTree) Size() int {
	return len(t.entries) - 1
}

// ValidateChild checks that the block can hang under its parent without
// mutating the tree.
func (t *UnfinalizedTree) ValidateChild(block *types.ExecBlock) error {
	parent, ok := t.entries[block.ParentHash]
	if !ok {
		return ErrUnknownParent
	}
	if block.Height != parent.block.Height+1 {
		return fmt.Errorf("%w: height %d under parent at height %d",
			ErrInvalidBlock, block.Height, parent.block.Height)
	}
	return nil
}

// Attach inserts the block under its parent and re-evaluates the canonical
// tip. A block already attached is ignored.
func (t *UnfinalizedTree) Attach(block *types.ExecBlock) (types.HeightHash, error) {
	if _, ok := t.entries[block.Hash]; ok {
		return t.canonicalTip, nil
	}
	parent, ok := t.entries[block.ParentHash]
	if !ok {
		return t.canonicalTip, ErrUnknownParent
	}
	if block.Height != parent.block.Height+1 {
		return t.canonicalTip, fmt.Errorf("%w: height %d under parent at height %d",
			ErrInvalidBlock, block.Height, parent.block.Height)
	}
	t.entries[block.Hash] = &blockEntry{block: block}
	parent.children = append(parent.children, block.Hash)
	if block.Height > t.highestHeight {
		t.highestHeight = block.Height
	}
	t.canonicalTip = t.selectCanonicalTip()
	return t.canonicalTip, nil
}

// selectCanonicalTip walks first-attached children from the root to a leaf.
func (t *UnfinalizedTree) selectCanonicalTip() types.HeightHash {
	entry := t.entries[t.finalizedRoot.Hash]
	for len(entry.children) != 0 {
		entry = t.entries[entry.children[0]]
	}
	return types.HeightHash{Height: entry.block.Height, Hash: entry.block.Hash}
}

// IsCanonical reports whether the given hash lies on the current canonical
// path from the root to the tip.
func (t *UnfinalizedTree) IsCanonical(hash common.Hash) bool {
	entry := t.entries[t.finalizedRoot.Hash]
	for {
		if entry.block.Hash == hash {
			return true
		}
		if len(entry.children) == 0 {
			return false
		}
		entry = t.entries[entry.children[0]]
	}
}

// PlanFinality computes what moving the finalized root to the given hash
// would do, without mutating the tree: the newly finalized path (root
// exclusive, ascending) and every entry discarded because it is not in the
// new root's subtree. The caller persists the plan first and applies it with
// AdvanceFinality afterwards, so a failed durable write leaves the tree
// untouched. Planning against the current root is a no-op.
func (t *UnfinalizedTree) PlanFinality(newRootHash common.Hash) (finalized []common.Hash, discarded []common.Hash, err error) {
	if newRootHash == t.finalizedRoot.Hash {
		return nil, nil, nil
	}
	target, ok := t.entries[newRootHash]
	if !ok {
		return nil, nil, ErrUnknownFinalizedBlock
	}

	// path from the old root to the new root, ascending
	path := make([]common.Hash, 0, target.block.Height-t.finalizedRoot.Height)
	for cursor := target; cursor.block.Hash != t.finalizedRoot.Hash; {
		path = append(path, cursor.block.Hash)
		parent, ok := t.entries[cursor.block.ParentHash]
		if !ok {
			return nil, nil, ErrUnknownFinalizedBlock
		}
		cursor = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	// everything reachable from the new root survives
	kept := make(map[common.Hash]bool, len(t.entries))
	t.collectSubtree(newRootHash, kept)

	onPath := make(map[common.Hash]bool, len(path))
	for _, h := range path {
		onPath[h] = true
	}
	for hash := range t.entries {
		if hash == t.finalizedRoot.Hash || kept[hash] || onPath[hash] {
			continue
		}
		discarded = append(discarded, hash)
	}
	return path, discarded, nil
}

// AdvanceFinality moves the finalized root to the given hash, dropping the
// passed-over entries. Advancing to the current root is a no-op.
func (t *UnfinalizedTree) AdvanceFinality(newRootHash common.Hash) (finalized []common.Hash, discarded []common.Hash, err error) {
	path, discarded, err := t.PlanFinality(newRootHash)
	if err != nil {
		return nil, nil, err
	}
	if len(path) == 0 {
		return nil, nil, nil
	}
	target := t.entries[newRootHash]
	for _, hash := range discarded {
		delete(t.entries, hash)
	}
	for _, hash := range path {
		if hash != newRootHash {
			delete(t.entries, hash)
		}
	}
	delete(t.entries, t.finalizedRoot.Hash)

	t.finalizedRoot = types.HeightHash{Height: target.block.Height, Hash: newRootHash}
	t.canonicalTip = t.selectCanonicalTip()
	if t.highestHeight < t.finalizedRoot.Height {
		t.highestHeight = t.finalizedRoot.Height
	}
	return path, discarded, nil
}

func (t *UnfinalizedTree) collectSubtree(root common.Hash, out map[common.Hash]bool) {
	entry, ok := t.entries[root]
	if !ok {
		return
	}
	for _, child := range entry.children {
		out[child] = true
		t.collectSubtree(child, out)
	}
}
