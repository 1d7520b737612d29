package sqlite

import (
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	log "github.com/sirupsen/logrus"
)

func Register() {
	storage.RegisterStorageEngine(config.SQLite, func(logger *log.Entry, conf config.PluggableStorageEngine) (storage.StorageEngine, error) {
		return NewStorageEngine(logger, conf.SQLite)
	})
}

func NewStorageEngine(logger *log.Entry, conf config.SQLitePSEConfig) (*sqlstore.SQLStorageEngine, error) {
	dsn, err := dsnFor(conf)
	if err != nil {
		return nil, err
	}

	db, err := CreateSQLiteDBConnection(logger, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not create sqlite client: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		return nil, err
	}

	return sqlstore.NewSQLStorageEngine(logger, config.SQLite, db), nil
}
