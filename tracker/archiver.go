package tracker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnb-chain/chain-tracker/config"
	"github.com/bnb-chain/chain-tracker/db"
	"github.com/bnb-chain/chain-tracker/external/cmn"
	"github.com/bnb-chain/chain-tracker/logging"
	"github.com/bnb-chain/chain-tracker/metrics"
	"github.com/bnb-chain/chain-tracker/types"
)

const MonitorQuotaInterval = 5 * time.Minute

// archivedPayload is the JSON document written into the archive bundle for
// one pruned block.
type archivedPayload struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Height     uint64 `json:"height"`
	PackageRef string `json:"package_ref"`
}

// Archiver offloads the payload references of pruned blocks into the bundle
// service before their records leave the retention window.
type Archiver struct {
	cfg          *config.ArchiveConfig
	bundleClient *cmn.BundleClient
	spClient     *cmn.SPClient
	blockDao     db.BlockDao
}

func NewArchiver(cfg *config.ArchiveConfig, blockDao db.BlockDao) (*Archiver, error) {
	pkBz, err := hex.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	bundleClient, err := cmn.NewBundleClient(cfg.BundleServiceEndpoints[0], cmn.WithPrivateKey(pkBz))
	if err != nil {
		return nil, err
	}
	a := &Archiver{
		cfg:          cfg,
		bundleClient: bundleClient,
		blockDao:     blockDao,
	}
	if cfg.SPEndpoint != "" {
		spClient, err := cmn.NewSPClient(cfg.SPEndpoint)
		if err != nil {
			return nil, err
		}
		a.spClient = spClient
	}
	return a, nil
}

// ArchiveBlocks offloads the payload documents of the given records, at most
// BundleBlockInterval blocks per bundle, and records each bundle name on its
// rows. Records must be ordered by ascending height.
func (a *Archiver) ArchiveBlocks(records []*db.Block) error {
	interval := int(a.cfg.GetBundleBlockInterval())
	for len(records) != 0 {
		chunk := records
		if len(chunk) > interval {
			chunk = chunk[:interval]
		}
		if err := a.archiveBundle(chunk); err != nil {
			return err
		}
		records = records[len(chunk):]
	}
	return nil
}

func (a *Archiver) archiveBundle(records []*db.Block) error {
	bundleName := types.GetArchiveBundleName(records[0].Height, records[len(records)-1].Height)
	bundleDir := filepath.Join(a.cfg.TempDir, bundleName)
	if err := os.MkdirAll(bundleDir, os.ModePerm); err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(bundleDir); err != nil {
			logging.Logger.Errorf("failed to clean up bundle dir %s, err=%s", bundleDir, err.Error())
		}
	}()

	hashes := make([]string, 0, len(records))
	for _, record := range records {
		payload := archivedPayload{
			Hash:       record.Hash,
			ParentHash: record.ParentHash,
			Height:     record.Height,
			PackageRef: record.PackageRef,
		}
		bz, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		name := types.GetPayloadName(record.Height, record.Hash)
		if err = os.WriteFile(filepath.Join(bundleDir, name), bz, 0o644); err != nil {
			return err
		}
		hashes = append(hashes, record.Hash)
	}

	bundleFilePath := filepath.Join(a.cfg.TempDir, fmt.Sprintf("%s.bundle", bundleName))
	err := a.bundleClient.UploadAndFinalizeBundle(bundleName, a.cfg.BucketName, bundleDir, bundleFilePath)
	if err != nil {
		// a retried pass may hit an already uploaded bundle
		if !strings.Contains(err.Error(), "Object exists") && !strings.Contains(err.Error(), "empty bundle") {
			return err
		}
	}
	if err = os.Remove(bundleFilePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err = a.blockDao.UpdateBlocksBundleName(hashes, bundleName); err != nil {
		return err
	}
	logging.Logger.Infof("archived payloads of %d blocks into bundle %s", len(records), bundleName)
	return nil
}

// MonitorQuota periodically reports the remaining read quota of the archive
// bucket. Runs until the quit channel closes.
func (a *Archiver) MonitorQuota(quit <-chan struct{}) {
	if a.spClient == nil {
		return
	}
	monitorTicker := time.NewTicker(MonitorQuotaInterval)
	defer monitorTicker.Stop()
	for {
		select {
		case <-monitorTicker.C:
			quota, err := a.spClient.GetBucketReadQuota(context.Background(), a.cfg.BucketName)
			if err != nil {
				logging.Logger.Errorf("failed to get bucket quota from SP, err=%s", err.Error())
				continue
			}
			remaining := quota.ReadQuotaSize + quota.SPFreeReadQuotaSize - quota.ReadConsumedSize - quota.FreeConsumedSize
			metrics.ArchiveBucketQuotaGauge.Set(float64(remaining))
		case <-quit:
			return
		}
	}
}
