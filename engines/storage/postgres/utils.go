package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/engines/storage/sqlstore"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func CreatePostgresDBConnection(logger *logrus.Entry, cfg config.PostgresPSEConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable", cfg.Hostname, cfg.Username, string(cfg.Password), cfg.Database, cfg.Port)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: sqlstore.NewGormLogger(logger),
	})
}

type migrator struct {
	logger *logrus.Entry
	Goose  *goose.Provider
}

func NewMigrator(logger *logrus.Entry, db *gorm.DB) (*migrator, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get db connection: %w", err)
	}

	migrationsFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("could not obtain migrations subdirectory: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}

	return &migrator{
		logger: logger.WithField("migrations", db.Migrator().CurrentDatabase()),
		Goose:  p,
	}, nil
}

func (m *migrator) MigrateToLatest(ctx context.Context) error {
	c, t, err := m.Goose.GetVersions(ctx)
	if err != nil {
		return fmt.Errorf("could not get db version: %w", err)
	}

	m.logger.Infof("Current version: %d", c)
	m.logger.Infof("Target version: %d", t)

	if c == t {
		m.logger.Infof("Schema is already up to date")
		return nil
	}

	r, err := m.Goose.UpTo(ctx, t)
	if err != nil {
		return fmt.Errorf("could not migrate db: %w", err)
	}

	m.logger.Infof("Migrated %d steps", len(r))
	return nil
}
