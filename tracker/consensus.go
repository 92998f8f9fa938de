package tracker

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/bnb-chain/chain-tracker/db"
	"github.com/bnb-chain/chain-tracker/logging"
	"github.com/bnb-chain/chain-tracker/metrics"
	"github.com/bnb-chain/chain-tracker/types"
)

var (
	// ErrFinalizedReorg is fatal to local state: the OL reports a different
	// hash at a height this tracker already holds as finalized. Finalized
	// history is assumed immutable everywhere else, so the only recovery is a
	// full resynchronization from the block store.
	ErrFinalizedReorg = errors.New("OL finalized hash conflicts with locally finalized history")
)

// ConsensusTracker owns the OL-side truth: the latest confirmed and finalized
// heads, reconciled against the unfinalized tree and the block store.
// Mutations run on the chain tracker worker only.
type ConsensusTracker struct {
	blockDao db.BlockDao
	heads    types.ConsensusHeads
}

func NewConsensusTracker(blockDao db.BlockDao, finalizedRoot types.HeightHash) *ConsensusTracker {
	return &ConsensusTracker{
		blockDao: blockDao,
		heads: types.ConsensusHeads{
			Confirmed: finalizedRoot,
			Finalized: finalizedRoot,
		},
	}
}

func (c *ConsensusTracker) Heads() types.ConsensusHeads {
	return c.heads
}

// Reconcile applies one OL status read against the tree. On a forward
// finalized movement it advances tree finality and persists the advance. It
// returns whether the published heads changed.
//
// Error contract: ErrFinalizedReorg and the store's ErrInvalidFinalityAdvance
// are fatal and require resynchronization; ErrUnknownFinalizedBlock means the
// finalized block has not arrived yet and the read should be retried after
// backfill; anything else is transient.
func (c *ConsensusTracker) Reconcile(status *types.OLStatus, tree *UnfinalizedTree) (bool, error) {
	changed := false
	if status.Finalized.Height > status.Confirmed.Height {
		// malformed response, skip this cycle
		logging.Logger.Errorf("discarding malformed OL status, finalized=%s above confirmed=%s",
			status.Finalized.String(), status.Confirmed.String())
		return false, nil
	}

	switch {
	case status.Finalized.Height < c.heads.Finalized.Height:
		// A stale read is ignored, but a conflicting hash at an already
		// finalized height means the OL itself reorganized.
		stored, err := c.blockDao.GetFinalizedBlockByHeight(status.Finalized.Height)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return false, nil
			}
			return false, err
		}
		if stored.Hash != hashHex(status.Finalized.Hash) {
			return false, fmt.Errorf("%w: height %d, stored %s, reported %s",
				ErrFinalizedReorg, status.Finalized.Height, stored.Hash, status.Finalized.Hash.Hex())
		}
		return false, nil

	case status.Finalized.Height == c.heads.Finalized.Height:
		if status.Finalized.Hash != c.heads.Finalized.Hash {
			return false, fmt.Errorf("%w: height %d, local %s, reported %s",
				ErrFinalizedReorg, status.Finalized.Height,
				c.heads.Finalized.Hash.Hex(), status.Finalized.Hash.Hex())
		}

	default:
		// write-then-publish: the advance is planned without touching the
		// tree, made durable, and only then applied and published. A failed
		// store write leaves tree and heads as they were, so the next poll
		// retries the same advance.
		finalizedPath, discarded, err := tree.PlanFinality(status.Finalized.Hash)
		if err != nil {
			return false, err
		}
		if err = c.blockDao.AdvanceFinalizedTo(hashesToHex(finalizedPath), hashesToHex(discarded)); err != nil {
			return false, err
		}
		if _, _, err = tree.AdvanceFinality(status.Finalized.Hash); err != nil {
			return false, err
		}
		if len(discarded) != 0 {
			metrics.DiscardedBlocksCounter.Add(float64(len(discarded)))
			logging.Logger.Infof("finality advanced to %s, discarded %d blocks on passed-over branches",
				status.Finalized.String(), len(discarded))
		}
		c.heads.Finalized = status.Finalized
		changed = true
	}

	// Confirmation does not remove branches, only finalization does; the
	// confirmed head is bookkeeping republished with the snapshot.
	if status.Confirmed.Height >= c.heads.Confirmed.Height && status.Confirmed != c.heads.Confirmed {
		c.heads.Confirmed = status.Confirmed
		changed = true
	}
	return changed, nil
}

func hashHex(h common.Hash) string {
	return hex.EncodeToString(h.Bytes())
}

func hashesToHex(hashes []common.Hash) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, hashHex(h))
	}
	return out
}
