package sqlite

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func dsnFor(conf config.SQLitePSEConfig) (string, error) {
	if conf.InMemory {
		return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil
	}

	if conf.DatabasePath == "" {
		return "", fmt.Errorf("sqlite database_path is required unless in_memory is set")
	}

	return conf.DatabasePath, nil
}

func CreateSQLiteDBConnection(log *logrus.Entry, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: sqlstore.NewGormLogger(log),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// A single connection serialises writers. Pragmas are per connection, so
	// it is never recycled.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA case_sensitive_like = OFF",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("could not apply %q: %w", pragma, err)
		}
	}

	return db, nil
}
