package models

import (
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishedObjectLifecycle(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	newObject := func() *PublishedObject {
		return NewPublishedObject(nil, "rsync://rpki.example.net/repo/a.cer", []byte("content"), now.Add(time.Hour), now)
	}

	t.Run("PublishThenWithdraw", func(t *testing.T) {
		obj := newObject()
		assert.Equal(t, ToBePublished, obj.Status)
		assert.Equal(t, ContentHash([]byte("content")), obj.ContentHash)

		changed, err := obj.Published(now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, now.Add(time.Minute), obj.StatusChangedAt)

		changed, err = obj.Published(now.Add(2 * time.Minute))
		require.NoError(t, err)
		assert.False(t, changed)

		assert.True(t, obj.Withdraw(now.Add(3*time.Minute)))
		assert.Equal(t, ToBeWithdrawn, obj.Status)
		assert.False(t, obj.Status.IsActive())

		changed, err = obj.Withdrawn(now.Add(4 * time.Minute))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, Withdrawn, obj.Status)
	})

	t.Run("UnpublishedObjectWithdrawnAtOnce", func(t *testing.T) {
		obj := newObject()
		assert.True(t, obj.Withdraw(now))
		assert.Equal(t, Withdrawn, obj.Status)
		assert.False(t, obj.Withdraw(now))
	})

	t.Run("RepublishAfterPublished", func(t *testing.T) {
		obj := newObject()
		_, err := obj.Published(now)
		require.NoError(t, err)

		changed, err := obj.Publish(now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ToBePublished, obj.Status)
	})

	t.Run("Err/WithdrawnObjectCannotBePublished", func(t *testing.T) {
		obj := newObject()
		obj.Withdraw(now)

		_, err := obj.Publish(now)
		assert.ErrorIs(t, err, errs.ErrPublishedObjectTransition)
		_, err = obj.Published(now)
		assert.ErrorIs(t, err, errs.ErrPublishedObjectTransition)
	})

	t.Run("Err/ConfirmWithdrawalOfActiveObject", func(t *testing.T) {
		_, err := newObject().Withdrawn(now)
		assert.ErrorIs(t, err, errs.ErrPublishedObjectTransition)
	})
}
