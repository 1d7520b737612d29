package sqlstore

import (
	"context"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/storage"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"gorm.io/gorm"
)

const commandAuditTableName = "command_audits"

type CommandAuditStore struct {
	querier *gormQuerier[models.CommandAudit]
}

func NewCommandAuditRepository(db *gorm.DB) storage.CommandAuditRepo {
	return &CommandAuditStore{
		querier: newGormQuerier[models.CommandAudit](db, commandAuditTableName, "id"),
	}
}

func (db *CommandAuditStore) Insert(ctx context.Context, audit *models.CommandAudit) (*models.CommandAudit, error) {
	return db.querier.Insert(ctx, audit)
}

func (db *CommandAuditStore) CountNewerThan(ctx context.Context, caID uint, version int64) (int, error) {
	return db.querier.Count(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
		{query: "ca_version > ?", additionalWhere: []any{version}},
	})
}

func (db *CommandAuditStore) SelectByCA(ctx context.Context, caID uint, req storage.StorageListRequest[models.CommandAudit]) error {
	return db.querier.SelectAll(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	}, req)
}

func (db *CommandAuditStore) DeleteByCA(ctx context.Context, caID uint) error {
	return db.querier.DeleteWhere(ctx, []gormExtraOps{
		{query: "ca_id = ?", additionalWhere: []any{caID}},
	})
}
