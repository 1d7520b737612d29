package sqlstore

import (
	"context"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SQLStorageEngine serves every repository from one gorm connection. The
// postgres and sqlite engines only differ in how that connection is opened
// and how its schema is created.
type SQLStorageEngine struct {
	provider config.StorageProvider
	db       *gorm.DB
	logger   *logrus.Entry

	ca        storage.CertificateAuthorityRepo
	keyPairs  storage.KeyPairRepo
	incoming  storage.IncomingCertificateRepo
	outgoing  storage.OutgoingCertificateRepo
	published storage.PublishedObjectRepo
	nonHosted storage.NonHostedPublicKeyRepo
	audits    storage.CommandAuditRepo
}

func NewSQLStorageEngine(logger *logrus.Entry, provider config.StorageProvider, db *gorm.DB) *SQLStorageEngine {
	return &SQLStorageEngine{
		provider:  provider,
		db:        db,
		logger:    logger,
		ca:        NewCertificateAuthorityRepository(db),
		keyPairs:  NewKeyPairRepository(db),
		incoming:  NewIncomingCertificateRepository(db),
		outgoing:  NewOutgoingCertificateRepository(db),
		published: NewPublishedObjectRepository(db),
		nonHosted: NewNonHostedPublicKeyRepository(db),
		audits:    NewCommandAuditRepository(db),
	}
}

func (s *SQLStorageEngine) GetProvider() config.StorageProvider {
	return s.provider
}

// DB exposes the underlying connection, mostly for tests and migrations.
func (s *SQLStorageEngine) DB() *gorm.DB {
	return s.db
}

// Transaction joins the transaction already carried by ctx, if any.
// Otherwise it opens a new one that commits when fn returns nil.
func (s *SQLStorageEngine) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	})
}

func (s *SQLStorageEngine) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("could not get db connection: %w", err)
	}
	return sqlDB.Close()
}

func (s *SQLStorageEngine) GetCAStorage() (storage.CertificateAuthorityRepo, error) {
	return s.ca, nil
}

func (s *SQLStorageEngine) GetKeyPairStorage() (storage.KeyPairRepo, error) {
	return s.keyPairs, nil
}

func (s *SQLStorageEngine) GetIncomingCertificateStorage() (storage.IncomingCertificateRepo, error) {
	return s.incoming, nil
}

func (s *SQLStorageEngine) GetOutgoingCertificateStorage() (storage.OutgoingCertificateRepo, error) {
	return s.outgoing, nil
}

func (s *SQLStorageEngine) GetPublishedObjectStorage() (storage.PublishedObjectRepo, error) {
	return s.published, nil
}

func (s *SQLStorageEngine) GetNonHostedPublicKeyStorage() (storage.NonHostedPublicKeyRepo, error) {
	return s.nonHosted, nil
}

func (s *SQLStorageEngine) GetCommandAuditStorage() (storage.CommandAuditRepo, error) {
	return s.audits, nil
}
