package storage

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
)

type StorageEngine interface {
	GetProvider() config.StorageProvider

	// Transaction runs fn inside one storage transaction. Repositories called
	// with the context handed to fn take part in it. An error returned by fn
	// rolls everything back.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	GetCAStorage() (CertificateAuthorityRepo, error)
	GetKeyPairStorage() (KeyPairRepo, error)
	GetIncomingCertificateStorage() (IncomingCertificateRepo, error)
	GetOutgoingCertificateStorage() (OutgoingCertificateRepo, error)
	GetPublishedObjectStorage() (PublishedObjectRepo, error)
	GetNonHostedPublicKeyStorage() (NonHostedPublicKeyRepo, error)
	GetCommandAuditStorage() (CommandAuditRepo, error)
}

// map of available storage engines with config.StorageProvider as key and function to build the storage engine as value
var storageEngineBuilders = make(map[config.StorageProvider]func(*logrus.Entry, config.PluggableStorageEngine) (StorageEngine, error))

// RegisterStorageEngine registers a new storage engine
func RegisterStorageEngine(name config.StorageProvider, builder func(*logrus.Entry, config.PluggableStorageEngine) (StorageEngine, error)) {
	storageEngineBuilders[name] = builder
}

func GetEngineBuilder(name config.StorageProvider) func(*logrus.Entry, config.PluggableStorageEngine) (StorageEngine, error) {
	return storageEngineBuilders[name]
}
