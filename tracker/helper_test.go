package tracker

import (
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/bnb-chain/chain-tracker/db"
)

// memoryDao is an in-memory db.BlockDao with the same contract as the gorm
// implementation, used to test the tracker without a database.
type memoryDao struct {
	mu     sync.Mutex
	blocks map[string]*db.Block
	nextID int64

	// failSaveBlock forces SaveBlock to fail with the given error once set.
	failSaveBlock error
	// failSaveOnce fails SaveBlock for the given hash a single time.
	failSaveOnce map[string]error
	// failAdvanceOnce fails the next AdvanceFinalizedTo call.
	failAdvanceOnce error
}

func newMemoryDao() *memoryDao {
	return &memoryDao{blocks: make(map[string]*db.Block)}
}

func (m *memoryDao) SaveBlock(block *db.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveBlock != nil {
		return m.failSaveBlock
	}
	if err, ok := m.failSaveOnce[block.Hash]; ok {
		delete(m.failSaveOnce, block.Hash)
		return err
	}
	if _, ok := m.blocks[block.Hash]; ok {
		return nil
	}
	parent, ok := m.blocks[block.ParentHash]
	if !ok {
		return db.ErrParentMismatch
	}
	if parent.Status != db.Unfinalized && parent.Status != db.Finalized {
		return db.ErrParentMismatch
	}
	if parent.Height+1 != block.Height {
		return db.ErrParentMismatch
	}
	stored := *block
	m.nextID++
	stored.Id = m.nextID
	stored.Status = db.Unfinalized
	m.blocks[stored.Hash] = &stored
	return nil
}

func (m *memoryDao) SaveFinalizedRoot(block *db.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) != 0 {
		return nil
	}
	stored := *block
	m.nextID++
	stored.Id = m.nextID
	stored.Status = db.Finalized
	m.blocks[stored.Hash] = &stored
	return nil
}

func (m *memoryDao) AdvanceFinalizedTo(finalizedPath []string, discarded []string) error {
	if len(finalizedPath) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdvanceOnce != nil {
		err := m.failAdvanceOnce
		m.failAdvanceOnce = nil
		return err
	}
	tip := m.finalizedTipLocked()
	if tip == nil {
		return gorm.ErrRecordNotFound
	}
	first, ok := m.blocks[finalizedPath[0]]
	if !ok || first.ParentHash != tip.Hash {
		return db.ErrInvalidFinalityAdvance
	}
	for _, hash := range finalizedPath {
		if block, ok := m.blocks[hash]; ok && block.Status == db.Unfinalized {
			block.Status = db.Finalized
		}
	}
	for _, hash := range discarded {
		if block, ok := m.blocks[hash]; ok && block.Status == db.Unfinalized {
			block.Status = db.Discarded
		}
	}
	return nil
}

func (m *memoryDao) GetBlockByHash(hash string) (*db.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[hash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *block
	return &copied, nil
}

func (m *memoryDao) GetFinalizedBlockByHeight(height uint64) (*db.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, block := range m.blocks {
		if block.Height == height && (block.Status == db.Finalized || block.Status == db.Pruned) {
			copied := *block
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryDao) GetFinalizedTip() (*db.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tip := m.finalizedTipLocked()
	if tip == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *tip
	return &copied, nil
}

func (m *memoryDao) finalizedTipLocked() *db.Block {
	var tip *db.Block
	for _, block := range m.blocks {
		if block.Status != db.Finalized {
			continue
		}
		if tip == nil || block.Height > tip.Height {
			tip = block
		}
	}
	return tip
}

func (m *memoryDao) GetUnfinalizedBlocks() ([]*db.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocks := make([]*db.Block, 0)
	for _, block := range m.blocks {
		if block.Status == db.Unfinalized {
			copied := *block
			blocks = append(blocks, &copied)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Height != blocks[j].Height {
			return blocks[i].Height < blocks[j].Height
		}
		return blocks[i].Id < blocks[j].Id
	})
	return blocks, nil
}

func (m *memoryDao) GetBlocksToPrune(belowHeight uint64, limit int) ([]*db.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocks := make([]*db.Block, 0)
	for _, block := range m.blocks {
		if block.Status == db.Finalized && block.Height < belowHeight {
			copied := *block
			blocks = append(blocks, &copied)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Height < blocks[j].Height })
	if len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks, nil
}

func (m *memoryDao) UpdateBlocksToPrunedStatus(hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hash := range hashes {
		if block, ok := m.blocks[hash]; ok && block.Status == db.Finalized {
			block.Status = db.Pruned
			block.PackageRef = ""
		}
	}
	return nil
}

func (m *memoryDao) UpdateBlocksBundleName(hashes []string, bundleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hash := range hashes {
		if block, ok := m.blocks[hash]; ok {
			block.BundleName = bundleName
		}
	}
	return nil
}

func (m *memoryDao) statusOf(hash string) (db.BlockStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[hash]
	if !ok {
		return 0, false
	}
	return block.Status, true
}
