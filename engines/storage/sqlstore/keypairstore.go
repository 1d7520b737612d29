package sqlstore

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const keyPairTableName = "key_pairs"

type KeyPairStore struct {
	querier *gormQuerier[models.KeyPair]
}

func NewKeyPairRepository(db *gorm.DB) storage.KeyPairRepo {
	return &KeyPairStore{
		querier: newGormQuerier[models.KeyPair](db, keyPairTableName, "id"),
	}
}

func (db *KeyPairStore) SelectByCA(ctx context.Context, caID uint) ([]models.KeyPair, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	}, "")
}

func (db *KeyPairStore) SelectExistsByID(ctx context.Context, id uint) (bool, *models.KeyPair, error) {
	return db.querier.SelectExists(ctx, id)
}

func (db *KeyPairStore) Insert(ctx context.Context, kp *models.KeyPair) (*models.KeyPair, error) {
	return db.querier.Insert(ctx, kp)
}

func (db *KeyPairStore) Update(ctx context.Context, kp *models.KeyPair) (*models.KeyPair, error) {
	return db.querier.Update(ctx, kp)
}

func (db *KeyPairStore) Delete(ctx context.Context, id uint) error {
	return db.querier.Delete(ctx, id)
}
