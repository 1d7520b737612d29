package sqlstore

import (
	"context"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const (
	incomingCertTableName = "incoming_resource_certificates"
	outgoingCertTableName = "outgoing_resource_certificates"
)

type IncomingCertificateStore struct {
	querier *gormQuerier[models.IncomingResourceCertificate]
}

func NewIncomingCertificateRepository(db *gorm.DB) storage.IncomingCertificateRepo {
	return &IncomingCertificateStore{
		querier: newGormQuerier[models.IncomingResourceCertificate](db, incomingCertTableName, "id"),
	}
}

func (db *IncomingCertificateStore) SelectByKeyPair(ctx context.Context, keyPairID uint) (bool, *models.IncomingResourceCertificate, error) {
	return db.querier.SelectFirst(ctx, []gormExtraOps{
		{query: "key_pair_id = ?", additionalWhere: []any{keyPairID}},
	}, "")
}

func (db *IncomingCertificateStore) SelectByCA(ctx context.Context, caID uint) ([]models.IncomingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	}, "")
}

func (db *IncomingCertificateStore) Insert(ctx context.Context, cert *models.IncomingResourceCertificate) (*models.IncomingResourceCertificate, error) {
	return db.querier.Insert(ctx, cert)
}

func (db *IncomingCertificateStore) Update(ctx context.Context, cert *models.IncomingResourceCertificate) (*models.IncomingResourceCertificate, error) {
	return db.querier.Update(ctx, cert)
}

func (db *IncomingCertificateStore) DeleteByKeyPair(ctx context.Context, keyPairID uint) error {
	return db.querier.DeleteWhere(ctx, []gormExtraOps{
		{query: "key_pair_id = ?", additionalWhere: []any{keyPairID}},
	})
}

type OutgoingCertificateStore struct {
	querier *gormQuerier[models.OutgoingResourceCertificate]
}

func NewOutgoingCertificateRepository(db *gorm.DB) storage.OutgoingCertificateRepo {
	return &OutgoingCertificateStore{
		querier: newGormQuerier[models.OutgoingResourceCertificate](db, outgoingCertTableName, "id"),
	}
}

func currentStatus() gormExtraOps {
	return gormExtraOps{query: "status = ?", additionalWhere: []any{models.OutgoingCurrent}}
}

func (db *OutgoingCertificateStore) SelectExistsByID(ctx context.Context, id uint) (bool, *models.OutgoingResourceCertificate, error) {
	return db.querier.SelectExists(ctx, id)
}

func (db *OutgoingCertificateStore) SelectCurrentBySigningKeyPair(ctx context.Context, keyPairID uint) ([]models.OutgoingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "signing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
		currentStatus(),
	}, "")
}

func (db *OutgoingCertificateStore) SelectCurrentBySubjectKey(ctx context.Context, subjectKeyID string) ([]models.OutgoingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "subject_key_id = ?", additionalWhere: []any{subjectKeyID}},
		currentStatus(),
	}, "")
}

func (db *OutgoingCertificateStore) SelectCurrentByRequestingCA(ctx context.Context, caID uint) ([]models.OutgoingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "requesting_ca_id = ?", additionalWhere: []any{caID}},
		currentStatus(),
	}, "")
}

func (db *OutgoingCertificateStore) SelectLatestBySubjectKeyAndSigningKeyPair(ctx context.Context, subjectKeyID string, keyPairID uint) (bool, *models.OutgoingResourceCertificate, error) {
	return db.querier.SelectFirst(ctx, []gormExtraOps{
		{query: "subject_key_id = ?", additionalWhere: []any{subjectKeyID}},
		{query: "signing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
	}, "id DESC")
}

func (db *OutgoingCertificateStore) CountNonExpiredBySubjectKey(ctx context.Context, subjectKeyID string, now time.Time) (int, error) {
	return db.querier.Count(ctx, []gormExtraOps{
		{query: "subject_key_id = ?", additionalWhere: []any{subjectKeyID}},
		{query: "status <> ?", additionalWhere: []any{models.OutgoingExpired}},
		{query: "not_after > ?", additionalWhere: []any{now.UTC()}},
	})
}

func (db *OutgoingCertificateStore) SelectCurrentExpiredBefore(ctx context.Context, now time.Time) ([]models.OutgoingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		currentStatus(),
		{query: "not_after < ?", additionalWhere: []any{now.UTC()}},
	}, "")
}

func (db *OutgoingCertificateStore) SelectRevokedBySigningKeyPair(ctx context.Context, keyPairID uint, now time.Time) ([]models.OutgoingResourceCertificate, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "signing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
		{query: "status = ?", additionalWhere: []any{models.OutgoingRevoked}},
		{query: "not_after > ?", additionalWhere: []any{now.UTC()}},
	}, "")
}

func (db *OutgoingCertificateStore) Insert(ctx context.Context, cert *models.OutgoingResourceCertificate) (*models.OutgoingResourceCertificate, error) {
	return db.querier.Insert(ctx, cert)
}

func (db *OutgoingCertificateStore) Update(ctx context.Context, cert *models.OutgoingResourceCertificate) (*models.OutgoingResourceCertificate, error) {
	return db.querier.Update(ctx, cert)
}

func (db *OutgoingCertificateStore) DeleteBySigningKeyPair(ctx context.Context, keyPairID uint) error {
	return db.querier.DeleteWhere(ctx, []gormExtraOps{
		{query: "signing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
	})
}
