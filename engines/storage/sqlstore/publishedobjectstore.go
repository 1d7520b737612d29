package sqlstore

import (
	"context"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const publishedObjectTableName = "published_objects"

type PublishedObjectStore struct {
	querier *gormQuerier[models.PublishedObject]
}

func NewPublishedObjectRepository(db *gorm.DB) storage.PublishedObjectRepo {
	return &PublishedObjectStore{
		querier: newGormQuerier[models.PublishedObject](db, publishedObjectTableName, "id"),
	}
}

func (db *PublishedObjectStore) SelectExistsByID(ctx context.Context, id uint) (bool, *models.PublishedObject, error) {
	return db.querier.SelectExists(ctx, id)
}

func (db *PublishedObjectStore) SelectByIssuingKeyPair(ctx context.Context, keyPairID uint) ([]models.PublishedObject, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "issuing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
	}, "")
}

func (db *PublishedObjectStore) SelectByURI(ctx context.Context, uri string) ([]models.PublishedObject, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "uri = ?", additionalWhere: []any{uri}},
	}, "")
}

func (db *PublishedObjectStore) SelectByStatus(ctx context.Context, statuses ...models.PublicationStatus) ([]models.PublishedObject, error) {
	if len(statuses) == 0 {
		return []models.PublishedObject{}, nil
	}

	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "status IN ?", additionalWhere: []any{statuses}},
	}, "")
}

func (db *PublishedObjectStore) SelectWithdrawnBefore(ctx context.Context, cutoff time.Time) ([]models.PublishedObject, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "status = ?", additionalWhere: []any{models.Withdrawn}},
		{query: "status_changed_at < ?", additionalWhere: []any{cutoff.UTC()}},
	}, "")
}

func (db *PublishedObjectStore) Insert(ctx context.Context, obj *models.PublishedObject) (*models.PublishedObject, error) {
	return db.querier.Insert(ctx, obj)
}

func (db *PublishedObjectStore) Update(ctx context.Context, obj *models.PublishedObject) (*models.PublishedObject, error) {
	return db.querier.Update(ctx, obj)
}

func (db *PublishedObjectStore) Delete(ctx context.Context, id uint) error {
	return db.querier.Delete(ctx, id)
}

// UnlinkIssuingKeyPair detaches the objects of a key pair that is about to be
// deleted. The objects themselves stay until they are withdrawn and cleaned up.
func (db *PublishedObjectStore) UnlinkIssuingKeyPair(ctx context.Context, keyPairID uint) error {
	return db.querier.UpdateColumnWhere(ctx, []gormExtraOps{
		{query: "issuing_key_pair_id = ?", additionalWhere: []any{keyPairID}},
	}, "issuing_key_pair_id", nil)
}

func (db *PublishedObjectStore) UpdateStatusIf(ctx context.Context, id uint, from, to models.PublicationStatus, at time.Time) (bool, error) {
	tx := db.querier.table(ctx).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "status_changed_at": at.UTC()})
	if err := tx.Error; err != nil {
		return false, err
	}

	if tx.RowsAffected == 0 {
		return false, nil
	}

	helpers.MarkChanged(ctx)
	return true, nil
}
