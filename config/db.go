package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDBWithConfig opens the DB described by the config and returns the gorm handle.
func InitDBWithConfig(cfg *DBConfig, password string) *gorm.DB {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DBDialectMysql:
		dbPath := fmt.Sprintf("%s:%s@%s", cfg.Username, password, cfg.Url)
		dialector = mysql.Open(dbPath)
	case DBDialectSqlite3:
		dialector = sqlite.Open(cfg.Url)
	default:
		panic(fmt.Sprintf("unexpected DB dialect %s", cfg.Dialect))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		panic(fmt.Sprintf("open db error, err=%s", err.Error()))
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	return db
}
