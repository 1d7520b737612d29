package storage

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

type CertificateAuthorityRepo interface {
	Count(ctx context.Context) (int, error)
	SelectAll(ctx context.Context, req StorageListRequest[models.CertificateAuthority]) error
	SelectByType(ctx context.Context, caType models.CAType) ([]models.CertificateAuthority, error)
	SelectChildren(ctx context.Context, parentID uint) ([]models.CertificateAuthority, error)

	SelectExistsByID(ctx context.Context, id uint) (bool, *models.CertificateAuthority, error)
	SelectExistsByName(ctx context.Context, name string) (bool, *models.CertificateAuthority, error)

	// LockByID reads the CA and holds a row lock on it until the enclosing
	// transaction ends, where the engine supports row locks.
	LockByID(ctx context.Context, id uint) (*models.CertificateAuthority, error)

	Insert(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error)
	Update(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error)
	Delete(ctx context.Context, id uint) error
}

type NonHostedPublicKeyRepo interface {
	CountByCA(ctx context.Context, caID uint) (int, error)
	SelectByCA(ctx context.Context, caID uint) ([]models.NonHostedPublicKey, error)
	SelectExistsBySubjectKey(ctx context.Context, caID uint, subjectKeyID string) (bool, *models.NonHostedPublicKey, error)
	Insert(ctx context.Context, key *models.NonHostedPublicKey) (*models.NonHostedPublicKey, error)
	Update(ctx context.Context, key *models.NonHostedPublicKey) (*models.NonHostedPublicKey, error)
	DeleteByCA(ctx context.Context, caID uint) error
}

type CommandAuditRepo interface {
	Insert(ctx context.Context, audit *models.CommandAudit) (*models.CommandAudit, error)
	// CountNewerThan counts the recorded commands that moved the CA past the
	// given version.
	CountNewerThan(ctx context.Context, caID uint, version int64) (int, error)
	SelectByCA(ctx context.Context, caID uint, req StorageListRequest[models.CommandAudit]) error
	DeleteByCA(ctx context.Context, caID uint) error
}
