package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork(t *testing.T) {
	ctx, uow := WithUnitOfWork(context.Background())
	assert.False(t, uow.HasEffect())

	MarkChanged(ctx)
	RecordEvent(ctx, models.NewEvent(models.EventCACreated, 1, "CN=root", time.Now()))

	assert.True(t, uow.HasEffect())
	assert.Equal(t, 1, uow.Changes())
	require.Len(t, uow.Events(), 1)
	assert.Equal(t, models.EventCACreated, uow.Events()[0].Type)
	assert.Same(t, uow, UnitOfWorkFromContext(ctx))
}

func TestUnitOfWorkAbsent(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		MarkChanged(ctx)
		RecordEvent(ctx, models.Event{})
	})
	assert.Nil(t, UnitOfWorkFromContext(ctx))
}
