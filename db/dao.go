package db

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// BlockDao is the durable block store contract consumed by the chain tracker.
type BlockDao interface {
	// SaveBlock appends a new unfinalized block record. The claimed parent must
	// already be stored and appendable, otherwise ErrParentMismatch is returned.
	// Re-saving an already stored hash is a no-op.
	SaveBlock(block *Block) error
	// SaveFinalizedRoot bootstraps an empty store with the finalized root.
	SaveFinalizedRoot(block *Block) error
	// AdvanceFinalizedTo marks the whole path from the current finalized tip to
	// the new root as Finalized and all passed-over branches as Discarded, in
	// one transaction. The path is ordered by ascending height and its first
	// element must be a child of the current finalized tip, otherwise
	// ErrInvalidFinalityAdvance is returned.
	AdvanceFinalizedTo(finalizedPath []string, discarded []string) error

	GetBlockByHash(hash string) (*Block, error)
	GetFinalizedBlockByHeight(height uint64) (*Block, error)
	GetFinalizedTip() (*Block, error)
	GetUnfinalizedBlocks() ([]*Block, error)

	// GetBlocksToPrune returns finalized records strictly below the given
	// height, oldest first.
	GetBlocksToPrune(belowHeight uint64, limit int) ([]*Block, error)
	// UpdateBlocksToPrunedStatus flips the given finalized records to Pruned.
	UpdateBlocksToPrunedStatus(hashes []string) error
	// UpdateBlocksBundleName records the archive bundle holding the payloads.
	UpdateBlocksBundleName(hashes []string, bundleName string) error
}

type BlockSvcDB struct {
	db *gorm.DB
}

func NewBlockSvcDB(db *gorm.DB) BlockDao {
	return &BlockSvcDB{
		db,
	}
}

func (d *BlockSvcDB) SaveBlock(block *Block) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		existing := Block{}
		err := dbTx.Model(Block{}).Where("hash = ?", block.Hash).Take(&existing).Error
		if err == nil {
			// already stored, acknowledge idempotently
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		parent := Block{}
		err = dbTx.Model(Block{}).Where("hash = ?", block.ParentHash).Take(&parent).Error
		if err == gorm.ErrRecordNotFound {
			return ErrParentMismatch
		}
		if err != nil {
			return err
		}
		if parent.Status != Unfinalized && parent.Status != Finalized {
			return ErrParentMismatch
		}
		if parent.Height+1 != block.Height {
			return ErrParentMismatch
		}
		block.Status = Unfinalized
		if block.ReceivedTime == 0 {
			block.ReceivedTime = time.Now().Unix()
		}
		err = dbTx.Create(block).Error
		if err != nil && (MysqlErrCode(err) == ErrDuplicateEntryCode ||
			strings.Contains(err.Error(), "UNIQUE constraint failed")) {
			return nil
		}
		return err
	})
}

func (d *BlockSvcDB) SaveFinalizedRoot(block *Block) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		var count int64
		if err := dbTx.Model(Block{}).Count(&count).Error; err != nil {
			return err
		}
		if count != 0 {
			return nil
		}
		block.Status = Finalized
		block.FinalizedTime = time.Now().Unix()
		return dbTx.Create(block).Error
	})
}

func (d *BlockSvcDB) AdvanceFinalizedTo(finalizedPath []string, discarded []string) error {
	if len(finalizedPath) == 0 {
		return nil
	}
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		tip := Block{}
		err := dbTx.Model(Block{}).Where("status = ?", Finalized).Order("height desc").Take(&tip).Error
		if err != nil {
			return err
		}
		first := Block{}
		err = dbTx.Model(Block{}).Where("hash = ?", finalizedPath[0]).Take(&first).Error
		if err == gorm.ErrRecordNotFound {
			return ErrInvalidFinalityAdvance
		}
		if err != nil {
			return err
		}
		if first.ParentHash != tip.Hash {
			return ErrInvalidFinalityAdvance
		}
		now := time.Now().Unix()
		err = dbTx.Model(Block{}).Where("hash in (?) and status = ?", finalizedPath, Unfinalized).Updates(
			Block{Status: Finalized, FinalizedTime: now}).Error
		if err != nil {
			return err
		}
		if len(discarded) != 0 {
			err = dbTx.Model(Block{}).Where("hash in (?) and status = ?", discarded, Unfinalized).Updates(
				Block{Status: Discarded}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *BlockSvcDB) GetBlockByHash(hash string) (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("hash = ?", hash).Take(&block).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (d *BlockSvcDB) GetFinalizedBlockByHeight(height uint64) (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("height = ? and status in (?)", height, []BlockStatus{Finalized, Pruned}).Take(&block).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (d *BlockSvcDB) GetFinalizedTip() (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("status = ?", Finalized).Order("height desc").Take(&block).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (d *BlockSvcDB) GetUnfinalizedBlocks() ([]*Block, error) {
	blocks := make([]*Block, 0)
	if err := d.db.Where("status = ?", Unfinalized).Order("height asc, id asc").Find(&blocks).Error; err != nil {
		return blocks, err
	}
	return blocks, nil
}

func (d *BlockSvcDB) GetBlocksToPrune(belowHeight uint64, limit int) ([]*Block, error) {
	blocks := make([]*Block, 0)
	if err := d.db.Where("status = ? and height < ?", Finalized, belowHeight).Order("height asc").Limit(limit).Find(&blocks).Error; err != nil {
		return blocks, err
	}
	return blocks, nil
}

func (d *BlockSvcDB) UpdateBlocksToPrunedStatus(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		// the payload reference is dropped from the row, the archive keeps it
		return dbTx.Model(Block{}).Where("hash in (?) and status = ?", hashes, Finalized).Updates(
			map[string]interface{}{"status": Pruned, "package_ref": ""}).Error
	})
}

func (d *BlockSvcDB) UpdateBlocksBundleName(hashes []string, bundleName string) error {
	if len(hashes) == 0 {
		return nil
	}
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		return dbTx.Model(Block{}).Where("hash in (?)", hashes).Updates(
			Block{BundleName: bundleName}).Error
	})
}

func InitTables(db *gorm.DB) {
	if err := db.AutoMigrate(&Block{}); err != nil {
		panic(err)
	}
}
