package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/bnb-chain/chain-tracker/config"
	"github.com/bnb-chain/chain-tracker/db"
	"github.com/bnb-chain/chain-tracker/external"
	"github.com/bnb-chain/chain-tracker/logging"
	"github.com/bnb-chain/chain-tracker/metrics"
	"github.com/bnb-chain/chain-tracker/types"
)

const (
	RPCTimeout        = 20 * time.Second
	submissionBacklog = 256
	subscriberBacklog = 16
	pruneBatchSize    = 100
)

var (
	// ErrFinalityHalted is returned for consensus updates after a fatal
	// inconsistency, until Resync is called. Block ingestion keeps going.
	ErrFinalityHalted = errors.New("finality advancement halted pending resynchronization")
)

type submissionKind int

const (
	submitBlock submissionKind = iota
	submitConsensus
	submitResync
)

type submission struct {
	kind   submissionKind
	block  *types.ExecBlock
	status *types.OLStatus
	done   chan error
}

// ChainTracker is the single serialization point for all chain mutations. New
// blocks and OL consensus updates are queued onto one channel and applied by
// one worker goroutine against the unfinalized tree, the orphan pool and the
// block store; every completed mutation republishes an immutable snapshot.
type ChainTracker struct {
	cfg      *config.TrackerConfig
	blockDao db.BlockDao
	olClient external.IOLClient
	archiver *Archiver

	// worker-owned state
	tree           *UnfinalizedTree
	orphans        *OrphanPool
	consensus      *ConsensusTracker
	finalityHalted bool

	snapshot    atomic.Value // types.ChainSnapshot
	submissions chan *submission

	subMu       sync.Mutex
	subscribers map[int]chan types.ChainSnapshot
	nextSubID   int

	quit chan struct{}
}

func NewChainTracker(cfg *config.TrackerConfig, blockDao db.BlockDao, olClient external.IOLClient) (*ChainTracker, error) {
	t := &ChainTracker{
		cfg:         cfg,
		blockDao:    blockDao,
		olClient:    olClient,
		submissions: make(chan *submission, submissionBacklog),
		subscribers: make(map[int]chan types.ChainSnapshot),
		quit:        make(chan struct{}),
	}
	if cfg.ArchiveConfig.Enable {
		archiver, err := NewArchiver(&cfg.ArchiveConfig, blockDao)
		if err != nil {
			return nil, err
		}
		t.archiver = archiver
	}
	if err := t.loadState(); err != nil {
		return nil, err
	}
	return t, nil
}

// loadState rebuilds the in-memory tree from the block store, bootstrapping an
// empty store with the configured genesis root.
func (t *ChainTracker) loadState() error {
	tip, err := t.blockDao.GetFinalizedTip()
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		root := &db.Block{
			Hash:       hashHex(common.HexToHash(t.cfg.GenesisHash)),
			ParentHash: hashHex(common.Hash{}),
			Height:     t.cfg.GenesisHeight,
		}
		if err = t.blockDao.SaveFinalizedRoot(root); err != nil {
			return err
		}
		tip = root
	}
	root := types.HeightHash{
		Height: tip.Height,
		Hash:   common.HexToHash(tip.Hash),
	}
	t.tree = NewUnfinalizedTree(root)
	t.orphans = NewOrphanPool(int(t.cfg.MaxOrphans), t.cfg.MaxOrphanDistance)
	t.consensus = NewConsensusTracker(t.blockDao, root)
	t.finalityHalted = false

	// replay is parent-before-child because records come back ordered by height
	stored, err := t.blockDao.GetUnfinalizedBlocks()
	if err != nil {
		return err
	}
	for _, record := range stored {
		block := &types.ExecBlock{
			Hash:       common.HexToHash(record.Hash),
			ParentHash: common.HexToHash(record.ParentHash),
			Height:     record.Height,
			PackageRef: record.PackageRef,
			ReceivedAt: record.ReceivedTime,
		}
		if _, err = t.tree.Attach(block); err != nil {
			logging.Logger.Errorf("skipping stored block %s not attachable during rebuild, err=%s",
				record.Hash, err.Error())
		}
	}
	t.storeSnapshot()
	return nil
}

// Start launches the mutation worker, the OL poll loop and the prune loop.
func (t *ChainTracker) Start() {
	go t.worker()
	go t.pollLoop()
	if t.cfg.RetentionBlocks > 0 {
		go t.pruneLoop()
	}
	if t.archiver != nil {
		go t.archiver.MonitorQuota(t.quit)
	}
}

func (t *ChainTracker) Stop() {
	close(t.quit)
}

// SubmitBlock queues a locally produced or gossiped block. It returns once the
// block is durably persisted and reflected in the snapshot, or buffered as an
// orphan, or rejected.
func (t *ChainTracker) SubmitBlock(ctx context.Context, block *types.ExecBlock) error {
	return t.submit(ctx, &submission{kind: submitBlock, block: block, done: make(chan error, 1)})
}

// SubmitConsensusUpdate queues one OL status read for reconciliation.
func (t *ChainTracker) SubmitConsensusUpdate(ctx context.Context, status *types.OLStatus) error {
	return t.submit(ctx, &submission{kind: submitConsensus, status: status, done: make(chan error, 1)})
}

// Resync rebuilds the tracker state from the block store after a fatal
// inconsistency and lifts the finality halt.
func (t *ChainTracker) Resync(ctx context.Context) error {
	return t.submit(ctx, &submission{kind: submitResync, done: make(chan error, 1)})
}

func (t *ChainTracker) submit(ctx context.Context, sub *submission) error {
	select {
	case t.submissions <- sub:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		return errors.New("chain tracker stopped")
	}
	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		return errors.New("chain tracker stopped")
	}
}

// CurrentSnapshot returns the latest published snapshot without blocking on
// any in-flight mutation.
func (t *ChainTracker) CurrentSnapshot() types.ChainSnapshot {
	return t.snapshot.Load().(types.ChainSnapshot)
}

// Subscribe registers a snapshot consumer. Slow consumers miss intermediate
// snapshots rather than blocking the worker; the latest state is always
// available through CurrentSnapshot.
func (t *ChainTracker) Subscribe() (<-chan types.ChainSnapshot, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	ch := make(chan types.ChainSnapshot, subscriberBacklog)
	t.subscribers[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subscribers, id)
	}
}

func (t *ChainTracker) worker() {
	for {
		select {
		case sub := <-t.submissions:
			switch sub.kind {
			case submitBlock:
				sub.done <- t.handleBlock(sub.block)
			case submitConsensus:
				sub.done <- t.handleConsensusUpdate(sub.status)
			case submitResync:
				sub.done <- t.loadState()
			}
		case <-t.quit:
			return
		}
	}
}

// handleBlock attaches or buffers one block, write-then-publish: the record is
// durable in the block store before any consumer can observe the new tip.
func (t *ChainTracker) handleBlock(block *types.ExecBlock) error {
	if t.tree.Has(block.Hash) {
		return nil
	}
	if !t.tree.Has(block.ParentHash) {
		kept := t.orphans.Insert(block, t.tree.HighestHeight())
		if !kept {
			logging.Logger.Infof("dropped out-of-bounds orphan %s at height %d", block.Hash.Hex(), block.Height)
		}
		metrics.OrphanPoolSizeGauge.Set(float64(t.orphans.Size()))
		return nil
	}
	// the block may still sit in the pool after a failed cascade attach
	t.orphans.Remove(block.Hash)
	attached, err := t.attachAndPersist(block)
	if err != nil {
		return err
	}
	if !attached {
		return nil
	}
	// cascade orphans waiting on the newly attached hashes
	pending := []common.Hash{block.Hash}
	for len(pending) != 0 {
		next := pending[0]
		pending = pending[1:]
		for _, orphan := range t.orphans.Take(next) {
			ok, err := t.attachAndPersist(orphan)
			if err != nil {
				// a transient store failure must not drop the orphan or its
				// waiting descendants; it stays buffered for a later attach
				logging.Logger.Errorf("failed to attach resolved orphan %s, keeping it buffered, err=%s",
					orphan.Hash.Hex(), err.Error())
				t.orphans.Insert(orphan, t.tree.HighestHeight())
				continue
			}
			if ok {
				pending = append(pending, orphan.Hash)
			}
		}
	}
	metrics.OrphanPoolSizeGauge.Set(float64(t.orphans.Size()))
	t.storeSnapshot()
	t.broadcast()
	return nil
}

// attachAndPersist persists the record and then links it into the tree.
// Returns false if the block was rejected as inconsistent.
func (t *ChainTracker) attachAndPersist(block *types.ExecBlock) (bool, error) {
	if err := t.tree.ValidateChild(block); err != nil {
		if errors.Is(err, ErrInvalidBlock) {
			logging.Logger.Errorf("rejected block %s, err=%s", block.Hash.Hex(), err.Error())
			return false, nil
		}
		return false, err
	}
	record := &db.Block{
		Hash:         hashHex(block.Hash),
		ParentHash:   hashHex(block.ParentHash),
		Height:       block.Height,
		PackageRef:   block.PackageRef,
		ReceivedTime: block.ReceivedAt,
	}
	if err := t.blockDao.SaveBlock(record); err != nil {
		if err == db.ErrParentMismatch {
			// the in-memory tree believes the parent exists, durable truth
			// disagrees; continuing would publish an inconsistent tip
			t.haltFinality(err)
		}
		return false, err
	}
	if _, err := t.tree.Attach(block); err != nil {
		return false, err
	}
	return true, nil
}

func (t *ChainTracker) handleConsensusUpdate(status *types.OLStatus) error {
	if t.finalityHalted {
		return ErrFinalityHalted
	}
	changed, err := t.consensus.Reconcile(status, t.tree)
	if err != nil {
		if errors.Is(err, ErrFinalizedReorg) || err == db.ErrInvalidFinalityAdvance {
			t.haltFinality(err)
			return err
		}
		if err == ErrUnknownFinalizedBlock {
			logging.Logger.Infof("OL finalized block %s not known yet, waiting for backfill", status.Finalized.String())
			return nil
		}
		return err
	}
	if !changed {
		return nil
	}
	t.orphans.DropBelow(t.tree.FinalizedRoot().Height)
	metrics.OrphanPoolSizeGauge.Set(float64(t.orphans.Size()))
	t.storeSnapshot()
	t.broadcast()
	return nil
}

// haltFinality records a fatal inconsistency. Local block ingestion continues,
// but no snapshot with advancing finality is published until Resync.
func (t *ChainTracker) haltFinality(cause error) {
	if t.finalityHalted {
		return
	}
	t.finalityHalted = true
	metrics.FatalResyncCounter.Inc()
	logging.Logger.Errorf("fatal chain inconsistency, finality halted until resync, err=%s", cause.Error())
}

func (t *ChainTracker) storeSnapshot() {
	heads := t.consensus.Heads()
	snapshot := types.ChainSnapshot{
		PreconfirmedTip: t.tree.CanonicalTip(),
		Heads:           heads,
	}
	t.snapshot.Store(snapshot)
	metrics.PreconfirmedHeightGauge.Set(float64(snapshot.PreconfirmedTip.Height))
	metrics.ConfirmedHeightGauge.Set(float64(heads.Confirmed.Height))
	metrics.FinalizedHeightGauge.Set(float64(heads.Finalized.Height))
}

func (t *ChainTracker) broadcast() {
	snapshot := t.CurrentSnapshot()
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (t *ChainTracker) pollLoop() {
	interval := t.cfg.PollIntervalSec
	if interval == 0 {
		interval = config.DefaultPollIntervalSec
	}
	pollTicker := time.NewTicker(time.Duration(interval) * time.Second)
	defer pollTicker.Stop()
	for {
		select {
		case <-pollTicker.C:
			if err := t.pollOnce(); err != nil {
				logging.Logger.Errorf("OL poll failed, err=%s", err.Error())
			}
		case <-t.quit:
			return
		}
	}
}

func (t *ChainTracker) pollOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), RPCTimeout)
	defer cancel()
	status, err := t.olClient.ChainStatus(ctx)
	if err != nil {
		// transient: no state change, retried on the next tick
		return err
	}
	return t.SubmitConsensusUpdate(context.Background(), status)
}

func (t *ChainTracker) pruneLoop() {
	interval := t.cfg.PruneIntervalSec
	if interval == 0 {
		interval = config.DefaultPruneIntervalSec
	}
	pruneTicker := time.NewTicker(time.Duration(interval) * time.Second)
	defer pruneTicker.Stop()
	for {
		select {
		case <-pruneTicker.C:
			if err := t.pruneOnce(); err != nil {
				logging.Logger.Errorf("prune pass failed, err=%s", err.Error())
			}
		case <-t.quit:
			return
		}
	}
}

// pruneOnce offloads and prunes finalized records below the retention window.
// It only ever touches finalized history, never the unfinalized tree.
func (t *ChainTracker) pruneOnce() error {
	finalizedHeight := t.CurrentSnapshot().Heads.Finalized.Height
	if finalizedHeight <= t.cfg.RetentionBlocks {
		return nil
	}
	belowHeight := finalizedHeight - t.cfg.RetentionBlocks
	records, err := t.blockDao.GetBlocksToPrune(belowHeight, pruneBatchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if t.archiver != nil {
		// archive failures leave the records Finalized, the next pass retries
		if err = t.archiver.ArchiveBlocks(records); err != nil {
			return err
		}
	}
	hashes := make([]string, 0, len(records))
	for _, record := range records {
		hashes = append(hashes, record.Hash)
	}
	if err = t.blockDao.UpdateBlocksToPrunedStatus(hashes); err != nil {
		return err
	}
	logging.Logger.Infof("pruned %d finalized blocks below height %d", len(records), belowHeight)
	return nil
}
