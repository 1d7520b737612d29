package sqlstore

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const nonHostedKeyTableName = "non_hosted_public_keys"

type NonHostedPublicKeyStore struct {
	querier *gormQuerier[models.NonHostedPublicKey]
}

func NewNonHostedPublicKeyRepository(db *gorm.DB) storage.NonHostedPublicKeyRepo {
	return &NonHostedPublicKeyStore{
		querier: newGormQuerier[models.NonHostedPublicKey](db, nonHostedKeyTableName, "id"),
	}
}

func (db *NonHostedPublicKeyStore) CountByCA(ctx context.Context, caID uint) (int, error) {
	return db.querier.Count(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	})
}

func (db *NonHostedPublicKeyStore) SelectByCA(ctx context.Context, caID uint) ([]models.NonHostedPublicKey, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	}, "")
}

func (db *NonHostedPublicKeyStore) SelectExistsBySubjectKey(ctx context.Context, caID uint, subjectKeyID string) (bool, *models.NonHostedPublicKey, error) {
	return db.querier.SelectFirst(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
		{query: "subject_key_id = ?", additionalWhere: []any{subjectKeyID}},
	}, "")
}

func (db *NonHostedPublicKeyStore) Insert(ctx context.Context, key *models.NonHostedPublicKey) (*models.NonHostedPublicKey, error) {
	return db.querier.Insert(ctx, key)
}

func (db *NonHostedPublicKeyStore) Update(ctx context.Context, key *models.NonHostedPublicKey) (*models.NonHostedPublicKey, error) {
	return db.querier.Update(ctx, key)
}

func (db *NonHostedPublicKeyStore) DeleteByCA(ctx context.Context, caID uint) error {
	return db.querier.DeleteWhere(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	})
}
