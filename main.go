package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bnb-chain/chain-tracker/api"
	"github.com/bnb-chain/chain-tracker/cache"
	"github.com/bnb-chain/chain-tracker/config"
	trackerdb "github.com/bnb-chain/chain-tracker/db"
	"github.com/bnb-chain/chain-tracker/external"
	"github.com/bnb-chain/chain-tracker/external/cmn"
	"github.com/bnb-chain/chain-tracker/logging"
	"github.com/bnb-chain/chain-tracker/metrics"
	"github.com/bnb-chain/chain-tracker/service"
	"github.com/bnb-chain/chain-tracker/tracker"
)

func initFlags() {
	flag.String(config.FlagConfigPath, "", "config file path")
	flag.String(config.FlagConfigType, "", "config type, local or aws")
	flag.String(config.FlagConfigAwsRegion, "", "aws region")
	flag.String(config.FlagConfigAwsSecretKey, "", "aws secret key")
	flag.String(config.FlagConfigDbPass, "", "chain-tracker db password")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		panic(err)
	}
}

func printUsage() {
	fmt.Print("usage: ./chain-tracker --config-type local --config-path configFile\n")
	fmt.Print("usage: ./chain-tracker --config-type aws --aws-region awsRegion --aws-secret-key awsSecretKey\n")
}

func main() {
	var (
		cfg            *config.Config
		configType     string
		configFilePath string
	)
	initFlags()
	configType = viper.GetString(config.FlagConfigType)
	if configType == "" {
		configType = os.Getenv(config.EnvVarConfigType)
	}
	if configType != config.AWSConfig && configType != config.LocalConfig {
		printUsage()
		return
	}
	if configType == config.AWSConfig {
		awsSecretKey := viper.GetString(config.FlagConfigAwsSecretKey)
		awsRegion := viper.GetString(config.FlagConfigAwsRegion)
		if awsSecretKey == "" || awsRegion == "" {
			printUsage()
			return
		}
		configContent, err := config.GetSecret(awsSecretKey, awsRegion)
		if err != nil {
			fmt.Printf("get aws config error, err=%s", err.Error())
			return
		}
		cfg = config.ParseConfigFromJson(configContent)
	} else {
		configFilePath = viper.GetString(config.FlagConfigPath)
		if configFilePath == "" {
			configFilePath = os.Getenv(config.EnvVarConfigFilePath)
			if configFilePath == "" {
				printUsage()
				return
			}
		}
		cfg = config.ParseConfigFromFile(configFilePath)
	}
	if cfg == nil {
		panic("failed to get configuration")
	}
	cfg.Validate()
	logging.InitLogger(&cfg.LogConfig)

	password := viper.GetString(config.FlagConfigDbPass)
	if password == "" {
		password = os.Getenv(config.EnvVarDBUserPass)
		if password == "" {
			password = cfg.DBConfig.Password
		}
	}
	db := config.InitDBWithConfig(&cfg.DBConfig, password)
	trackerdb.InitTables(db)
	blockDao := trackerdb.NewBlockSvcDB(db)

	olClient, err := external.NewOLClient(cfg.TrackerConfig.OLRPCAddrs[0])
	if err != nil {
		panic(fmt.Sprintf("new OL client error, err=%s", err.Error()))
	}
	chainTracker, err := tracker.NewChainTracker(&cfg.TrackerConfig, blockDao, olClient)
	if err != nil {
		panic(fmt.Sprintf("init chain tracker error, err=%s", err.Error()))
	}

	if cfg.TrackerConfig.MetricsConfig.Enable {
		metricsServer := metrics.NewMetrics(cfg.TrackerConfig.MetricsConfig.HttpAddress)
		metricsServer.Start()
	}

	localCache, err := cache.NewLocalCache(cfg.CacheConfig.GetCacheSize())
	if err != nil {
		panic(fmt.Sprintf("init cache error, err=%s", err.Error()))
	}
	var bundleClient *cmn.BundleClient
	if cfg.TrackerConfig.ArchiveConfig.Enable {
		bundleClient, err = cmn.NewBundleClient(cfg.TrackerConfig.ArchiveConfig.BundleServiceEndpoints[0])
		if err != nil {
			panic(fmt.Sprintf("new bundle client error, err=%s", err.Error()))
		}
	}
	service.ChainSvc = service.NewChainService(blockDao, chainTracker, bundleClient, localCache, cfg)
	apiServer := api.NewServer(cfg.ServerConfig.HttpAddress)
	apiServer.Start()

	chainTracker.Start()
	select {}
}
