package database

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"scanhub/internal/config"
	"scanhub/internal/models"
	"scanhub/pkg/logger"
)

var DB *gorm.DB

// Dialector picks the gorm driver for cfg.Driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.Open(cfg.Path), nil
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect opens the database, retrying with exponential backoff until
// cfg.ConnectTimeout elapses, and migrates the schema.
func Connect(cfg config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout
	if expBackoff.MaxElapsedTime <= 0 {
		expBackoff.MaxElapsedTime = time.Minute
	}

	var db *gorm.DB
	operation := func() error {
		conn, err := gorm.Open(dialector, gormCfg)
		if err == nil {
			err = ping(conn)
		}
		if err != nil {
			log.WithFields(logger.Fields{"driver": cfg.Driver}).WithError(err).Warn("Failed to connect to database, will retry")
			return err
		}
		db = conn
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
	}

	if dialector.Name() == "sqlite" {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	log.WithFields(logger.Fields{"driver": cfg.Driver}).Info("Database connection established and migrated")
	return db, nil
}

// InitDB connects and stores the handle in DB.
func InitDB(cfg config.DatabaseConfig, log *logger.Logger) error {
	db, err := Connect(cfg, log)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
