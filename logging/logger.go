package logging

import (
	"io"
	"os"

	"github.com/op/go-logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bnb-chain/chain-tracker/config"
)

var Logger = logging.MustGetLogger("chain-tracker")

const logFormat = "%{time:2006-01-02 15:04:05.000} %{shortfile} %{level:.4s} %{message}"

// InitLogger sets up the global Logger according to the log config, writing
// to console and/or a size-rotated log file.
func InitLogger(cfg *config.LogConfig) {
	backends := make([]logging.Backend, 0)
	if cfg.UseConsoleLogger {
		backends = append(backends, newBackend(os.Stdout))
	}
	if cfg.UseFileLogger {
		backends = append(backends, newBackend(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxFileSizeInMB,
			MaxBackups: cfg.MaxBackupsOfLogFiles,
			MaxAge:     cfg.MaxAgeToRetainLogFilesInDays,
			Compress:   cfg.Compress,
		}))
	}
	level, err := logging.LogLevel(cfg.Level)
	if err != nil {
		panic(err)
	}
	leveled := make([]logging.Backend, 0, len(backends))
	for _, backend := range backends {
		leveledBackend := logging.AddModuleLevel(backend)
		leveledBackend.SetLevel(level, "")
		leveled = append(leveled, leveledBackend)
	}
	logging.SetBackend(leveled...)
}

func newBackend(w io.Writer) logging.Backend {
	backend := logging.NewLogBackend(w, "", 0)
	return logging.NewBackendFormatter(backend, logging.MustStringFormatter(logFormat))
}
