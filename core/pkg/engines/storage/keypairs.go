package storage

import (
	"context"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

type KeyPairRepo interface {
	SelectByCA(ctx context.Context, caID uint) ([]models.KeyPair, error)
	SelectExistsByID(ctx context.Context, id uint) (bool, *models.KeyPair, error)
	Insert(ctx context.Context, kp *models.KeyPair) (*models.KeyPair, error)
	Update(ctx context.Context, kp *models.KeyPair) (*models.KeyPair, error)
	Delete(ctx context.Context, id uint) error
}

type IncomingCertificateRepo interface {
	SelectByKeyPair(ctx context.Context, keyPairID uint) (bool, *models.IncomingResourceCertificate, error)
	SelectByCA(ctx context.Context, caID uint) ([]models.IncomingResourceCertificate, error)
	Insert(ctx context.Context, cert *models.IncomingResourceCertificate) (*models.IncomingResourceCertificate, error)
	Update(ctx context.Context, cert *models.IncomingResourceCertificate) (*models.IncomingResourceCertificate, error)
	DeleteByKeyPair(ctx context.Context, keyPairID uint) error
}

type OutgoingCertificateRepo interface {
	SelectExistsByID(ctx context.Context, id uint) (bool, *models.OutgoingResourceCertificate, error)
	SelectCurrentBySigningKeyPair(ctx context.Context, keyPairID uint) ([]models.OutgoingResourceCertificate, error)
	SelectCurrentBySubjectKey(ctx context.Context, subjectKeyID string) ([]models.OutgoingResourceCertificate, error)
	SelectCurrentByRequestingCA(ctx context.Context, caID uint) ([]models.OutgoingResourceCertificate, error)
	// SelectLatestBySubjectKeyAndSigningKeyPair returns the most recently issued
	// certificate for the pair, whatever its status.
	SelectLatestBySubjectKeyAndSigningKeyPair(ctx context.Context, subjectKeyID string, keyPairID uint) (bool, *models.OutgoingResourceCertificate, error)
	CountNonExpiredBySubjectKey(ctx context.Context, subjectKeyID string, now time.Time) (int, error)
	// SelectCurrentExpiredBefore returns CURRENT certificates whose validity
	// ended before now.
	SelectCurrentExpiredBefore(ctx context.Context, now time.Time) ([]models.OutgoingResourceCertificate, error)
	// SelectRevokedBySigningKeyPair returns revoked certificates that are still
	// within their validity period, the CRL entries of the key.
	SelectRevokedBySigningKeyPair(ctx context.Context, keyPairID uint, now time.Time) ([]models.OutgoingResourceCertificate, error)
	Insert(ctx context.Context, cert *models.OutgoingResourceCertificate) (*models.OutgoingResourceCertificate, error)
	Update(ctx context.Context, cert *models.OutgoingResourceCertificate) (*models.OutgoingResourceCertificate, error)
	DeleteBySigningKeyPair(ctx context.Context, keyPairID uint) error
}

type PublishedObjectRepo interface {
	SelectExistsByID(ctx context.Context, id uint) (bool, *models.PublishedObject, error)
	SelectByIssuingKeyPair(ctx context.Context, keyPairID uint) ([]models.PublishedObject, error)
	SelectByURI(ctx context.Context, uri string) ([]models.PublishedObject, error)
	SelectByStatus(ctx context.Context, statuses ...models.PublicationStatus) ([]models.PublishedObject, error)
	SelectWithdrawnBefore(ctx context.Context, cutoff time.Time) ([]models.PublishedObject, error)
	Insert(ctx context.Context, obj *models.PublishedObject) (*models.PublishedObject, error)
	Update(ctx context.Context, obj *models.PublishedObject) (*models.PublishedObject, error)
	Delete(ctx context.Context, id uint) error
	UnlinkIssuingKeyPair(ctx context.Context, keyPairID uint) error
	// UpdateStatusIf moves the object to status to only if it is still in
	// status from, and reports whether it did.
	UpdateStatusIf(ctx context.Context, id uint, from, to models.PublicationStatus, at time.Time) (bool, error)
}
