package postgres

import (
	"context"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	log "github.com/sirupsen/logrus"
)

func Register() {
	storage.RegisterStorageEngine(config.Postgres, func(logger *log.Entry, conf config.PluggableStorageEngine) (storage.StorageEngine, error) {
		return NewStorageEngine(logger, conf.Postgres)
	})
}

// NewStorageEngine connects to Postgres and brings the schema to the latest
// migration before handing out repositories.
func NewStorageEngine(logger *log.Entry, conf config.PostgresPSEConfig) (*sqlstore.SQLStorageEngine, error) {
	db, err := CreatePostgresDBConnection(logger, conf)
	if err != nil {
		return nil, fmt.Errorf("could not create postgres client: %w", err)
	}

	m, err := NewMigrator(logger, db)
	if err != nil {
		return nil, err
	}

	if err := m.MigrateToLatest(context.Background()); err != nil {
		return nil, err
	}

	return sqlstore.NewSQLStorageEngine(logger, config.Postgres, db), nil
}
