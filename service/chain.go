package service

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/bnb-chain/chain-tracker/cache"
	"github.com/bnb-chain/chain-tracker/config"
	"github.com/bnb-chain/chain-tracker/db"
	"github.com/bnb-chain/chain-tracker/entity"
	"github.com/bnb-chain/chain-tracker/external/cmn"
	"github.com/bnb-chain/chain-tracker/types"
)

// ChainSvc is the package-level service instance used by the API handlers.
var ChainSvc Chain

// SnapshotSource supplies the latest published chain snapshot.
type SnapshotSource interface {
	CurrentSnapshot() types.ChainSnapshot
}

type Chain interface {
	GetSnapshot() *entity.Snapshot
	GetBlockByHash(hashHex string) (*entity.Block, error)
	GetFinalizedBlockByHeight(height uint64) (*entity.Block, error)
}

type ChainService struct {
	blockDao     db.BlockDao
	snapshots    SnapshotSource
	bundleClient *cmn.BundleClient
	cacheService cache.Cache
	config       *config.Config
}

func NewChainService(blockDao db.BlockDao, snapshots SnapshotSource, bundleClient *cmn.BundleClient, cache cache.Cache, config *config.Config) Chain {
	return &ChainService{
		blockDao:     blockDao,
		snapshots:    snapshots,
		bundleClient: bundleClient,
		cacheService: cache,
		config:       config,
	}
}

func (s *ChainService) GetSnapshot() *entity.Snapshot {
	snapshot := s.snapshots.CurrentSnapshot()
	return &entity.Snapshot{
		PreconfirmedHeight: snapshot.PreconfirmedTip.Height,
		PreconfirmedHash:   snapshot.PreconfirmedTip.Hash.Hex(),
		ConfirmedHeight:    snapshot.Heads.Confirmed.Height,
		ConfirmedHash:      snapshot.Heads.Confirmed.Hash.Hex(),
		FinalizedHeight:    snapshot.Heads.Finalized.Height,
		FinalizedHash:      snapshot.Heads.Finalized.Hash.Hex(),
	}
}

func (s *ChainService) GetBlockByHash(hashHex string) (*entity.Block, error) {
	hashHex = strings.TrimPrefix(strings.ToLower(hashHex), "0x")
	if _, err := hex.DecodeString(hashHex); err != nil || len(hashHex) != 64 {
		return nil, ErrInvalidBlockID
	}
	if cached, found := s.cacheService.Get(hashHex); found {
		return cached.(*entity.Block), nil
	}
	record, err := s.blockDao.GetBlockByHash(hashHex)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrBlockNotFound
		}
		return nil, InternalErr.Enrich(err.Error())
	}
	return s.toEntityBlock(record)
}

func (s *ChainService) GetFinalizedBlockByHeight(height uint64) (*entity.Block, error) {
	record, err := s.blockDao.GetFinalizedBlockByHeight(height)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrBlockNotFound
		}
		return nil, InternalErr.Enrich(err.Error())
	}
	return s.toEntityBlock(record)
}

func (s *ChainService) toEntityBlock(record *db.Block) (*entity.Block, error) {
	block := &entity.Block{
		Hash:       record.Hash,
		ParentHash: record.ParentHash,
		Height:     record.Height,
		PackageRef: record.PackageRef,
		Status:     statusString(record.Status),
		BundleName: record.BundleName,
	}
	// a pruned record's payload reference lives in the archive bundle
	if record.Status == db.Pruned && record.PackageRef == "" && record.BundleName != "" && s.bundleClient != nil {
		object, err := s.bundleClient.GetObject(
			s.config.TrackerConfig.ArchiveConfig.BucketName,
			record.BundleName,
			types.GetPayloadName(record.Height, record.Hash),
		)
		if err != nil {
			return nil, InternalErr.Enrich(err.Error())
		}
		var payload struct {
			PackageRef string `json:"package_ref"`
		}
		if err = json.Unmarshal([]byte(object), &payload); err != nil {
			return nil, InternalErr.Enrich(err.Error())
		}
		block.PackageRef = payload.PackageRef
	}
	// only terminal records are cached; unfinalized ones can still be
	// discarded and finalized ones still get pruned
	if record.Status == db.Pruned || record.Status == db.Discarded {
		s.cacheService.Set(record.Hash, block)
	}
	return block, nil
}

func statusString(status db.BlockStatus) string {
	switch status {
	case db.Unfinalized:
		return "unfinalized"
	case db.Finalized:
		return "finalized"
	case db.Pruned:
		return "pruned"
	case db.Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}
