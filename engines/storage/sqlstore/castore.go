package sqlstore

import (
	"context"
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const caTableName = "certificate_authorities"

type CertificateAuthorityStore struct {
	querier *gormQuerier[models.CertificateAuthority]
}

func NewCertificateAuthorityRepository(db *gorm.DB) storage.CertificateAuthorityRepo {
	return &CertificateAuthorityStore{
		querier: newGormQuerier[models.CertificateAuthority](db, caTableName, "id"),
	}
}

func (db *CertificateAuthorityStore) Count(ctx context.Context) (int, error) {
	return db.querier.Count(ctx, []gormExtraOps{})
}

func (db *CertificateAuthorityStore) SelectAll(ctx context.Context, req storage.StorageListRequest[models.CertificateAuthority]) error {
	return db.querier.SelectAll(ctx, []gormExtraOps{}, req)
}

func (db *CertificateAuthorityStore) SelectByType(ctx context.Context, caType models.CAType) ([]models.CertificateAuthority, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "type = ?", additionalWhere: []any{caType}},
	}, "")
}

func (db *CertificateAuthorityStore) SelectChildren(ctx context.Context, parentID uint) ([]models.CertificateAuthority, error) {
	return db.querier.SelectWhere(ctx, []gormExtraOps{
		{query: "parent_id = ?", additionalWhere: []any{parentID}},
	}, "")
}

func (db *CertificateAuthorityStore) SelectExistsByID(ctx context.Context, id uint) (bool, *models.CertificateAuthority, error) {
	return db.querier.SelectExists(ctx, id)
}

func (db *CertificateAuthorityStore) SelectExistsByName(ctx context.Context, name string) (bool, *models.CertificateAuthority, error) {
	return db.querier.SelectFirst(ctx, []gormExtraOps{
		{query: "normalized_name = ?", additionalWhere: []any{models.NormalizeCAName(name)}},
	}, "")
}

func (db *CertificateAuthorityStore) LockByID(ctx context.Context, id uint) (*models.CertificateAuthority, error) {
	exists, ca, err := db.querier.SelectForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, errs.New("lock CA", errs.KindNotFound, id, fmt.Errorf("%w: id %d", errs.ErrCANotFound, id))
	}

	return ca, nil
}

func (db *CertificateAuthorityStore) Insert(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	ca.NormalizedName = models.NormalizeCAName(ca.Name)
	return db.querier.Insert(ctx, ca)
}

func (db *CertificateAuthorityStore) Update(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	ca.NormalizedName = models.NormalizeCAName(ca.Name)
	return db.querier.Update(ctx, ca)
}

func (db *CertificateAuthorityStore) Delete(ctx context.Context, id uint) error {
	return db.querier.Delete(ctx, id)
}
