package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bnb-chain/chain-tracker/cache"
)

type Config struct {
	LogConfig     LogConfig     `json:"log_config"`
	DBConfig      DBConfig      `json:"db_config"`
	TrackerConfig TrackerConfig `json:"tracker_config"`
	ServerConfig  ServerConfig  `json:"server_config"`
	CacheConfig   CacheConfig   `json:"cache_config"`
}

type TrackerConfig struct {
	// OLRPCAddrs is a list of OL status endpoints, the first reachable one is used.
	OLRPCAddrs []string `json:"ol_rpc_addrs"`
	// PollIntervalSec is the OL status poll interval in seconds.
	PollIntervalSec uint64 `json:"poll_interval_sec"`
	// GenesisHeight and GenesisHash define the finalized root used when the DB is empty.
	GenesisHeight uint64 `json:"genesis_height"`
	GenesisHash   string `json:"genesis_hash"`
	// MaxOrphans bounds the orphan pool size, 0 means default.
	MaxOrphans uint64 `json:"max_orphans"`
	// MaxOrphanDistance bounds how far above the highest attached height an orphan may be, 0 means default.
	MaxOrphanDistance uint64 `json:"max_orphan_distance"`
	// RetentionBlocks is how many finalized blocks to keep below the finalized tip before pruning, 0 disables pruning.
	RetentionBlocks uint64 `json:"retention_blocks"`
	PruneIntervalSec uint64 `json:"prune_interval_sec"`

	ArchiveConfig ArchiveConfig `json:"archive_config"`
	MetricsConfig MetricsConfig `json:"metrics_config"`
}

// ArchiveConfig configures offloading of pruned block payloads to the bundle service.
type ArchiveConfig struct {
	Enable                 bool     `json:"enable"`
	BucketName             string   `json:"bucket_name"`
	BundleServiceEndpoints []string `json:"bundle_service_endpoints"`
	TempDir                string   `json:"temp_dir"`
	PrivateKey             string   `json:"private_key"`
	// SPEndpoint enables read-quota monitoring of the archive bucket when set.
	SPEndpoint string `json:"sp_endpoint"`
	// BundleBlockInterval is how many pruned blocks go into one bundle.
	BundleBlockInterval uint64 `json:"bundle_block_interval"`
}

func (cfg *ArchiveConfig) GetBundleBlockInterval() uint64 {
	if cfg.BundleBlockInterval == 0 {
		return DefaultArchiveBundleInterval
	}
	return cfg.BundleBlockInterval
}

type MetricsConfig struct {
	Enable      bool   `json:"enable"`
	HttpAddress string `json:"http_address"`
}

type ServerConfig struct {
	HttpAddress string `json:"http_address"`
}

type CacheConfig struct {
	CacheType string `json:"cache_type"`
	URL       string `json:"url"`
	CacheSize uint64 `json:"cache_size"`
}

func (c *CacheConfig) GetCacheSize() uint64 {
	if c.CacheSize != 0 {
		return c.CacheSize
	}
	return cache.DefaultCacheSize
}

type DBConfig struct {
	Dialect      string `json:"dialect"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Url          string `json:"url"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

func (cfg *DBConfig) Validate() {
	if cfg.Dialect != DBDialectMysql && cfg.Dialect != DBDialectSqlite3 {
		panic(fmt.Sprintf("only %s and %s supported", DBDialectMysql, DBDialectSqlite3))
	}
	if cfg.Dialect == DBDialectMysql && (cfg.Username == "" || cfg.Url == "") {
		panic("db config is not correct, missing username and/or url")
	}
	if cfg.MaxIdleConns == 0 || cfg.MaxOpenConns == 0 {
		panic("db connections is not correct")
	}
}

type LogConfig struct {
	Level                        string `json:"level"`
	Filename                     string `json:"filename"`
	MaxFileSizeInMB              int    `json:"max_file_size_in_mb"`
	MaxBackupsOfLogFiles         int    `json:"max_backups_of_log_files"`
	MaxAgeToRetainLogFilesInDays int    `json:"max_age_to_retain_log_files_in_days"`
	UseConsoleLogger             bool   `json:"use_console_logger"`
	UseFileLogger                bool   `json:"use_file_logger"`
	Compress                     bool   `json:"compress"`
}

func (cfg *LogConfig) Validate() {
	if cfg.UseFileLogger {
		if cfg.Filename == "" {
			panic("filename should not be empty if use file logger")
		}
		if cfg.MaxFileSizeInMB <= 0 {
			panic("max_file_size_in_mb should be larger than 0 if use file logger")
		}
		if cfg.MaxBackupsOfLogFiles <= 0 {
			panic("max_backups_off_log_files should be larger than 0 if use file logger")
		}
	}
}

func (cfg *TrackerConfig) Validate() {
	if len(cfg.OLRPCAddrs) == 0 {
		panic("OL rpc address should not be empty")
	}
	if cfg.GenesisHash == "" {
		panic("genesis hash should not be empty")
	}
	if cfg.ArchiveConfig.Enable {
		if cfg.ArchiveConfig.BucketName == "" {
			panic("archive bucket name should not be empty")
		}
		if len(cfg.ArchiveConfig.BundleServiceEndpoints) == 0 {
			panic("bundle service endpoints should not be empty")
		}
		if cfg.ArchiveConfig.TempDir == "" {
			panic("archive temp dir should not be empty")
		}
	}
}

func (cfg *Config) Validate() {
	cfg.LogConfig.Validate()
	cfg.DBConfig.Validate()
	cfg.TrackerConfig.Validate()
}

func ParseConfigFromJson(content string) *Config {
	var config Config
	if err := json.Unmarshal([]byte(content), &config); err != nil {
		panic(err)
	}
	return &config
}

func ParseConfigFromFile(filePath string) *Config {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		panic(err)
	}

	var config Config
	if err := json.Unmarshal(bz, &config); err != nil {
		panic(err)
	}
	return &config
}
