package eventpub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	svcmock "github.com/lamassuiot/rpki-core/core/pkg/services/mock"
	"github.com/lamassuiot/rpki-core/engines/eventbus/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type CloudEventPublisherMock struct {
	mock.Mock
}

func (m *CloudEventPublisherMock) PublishCloudEvent(ctx context.Context, payload interface{}) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func TestCommandEventPublisher(t *testing.T) {
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	created := models.NewEvent(models.EventCACreated, 7, "ca/7", now)
	activated := models.NewEvent(models.EventKeyPairActivated, 7, "keypair/3", now)
	cmd := services.CreateRootCACommand{Name: "CN=Root", ParentID: 1}

	var testcases = []struct {
		name       string
		result     *models.CommandResult
		err        error
		publishErr error
		published  int
	}{
		{
			name:      "OK/EveryEventPublished",
			result:    &models.CommandResult{CommandType: cmd.CommandType(), CAID: 7, HasEffect: true, Events: []models.Event{created, activated}},
			published: 2,
		},
		{
			name:      "OK/NoEffect",
			result:    &models.CommandResult{CommandType: cmd.CommandType(), CAID: 7},
			published: 0,
		},
		{
			name:      "Err/CommandRejected",
			err:       errs.New("CreateCA", errs.KindValidation, 0, errs.ErrCAAlreadyExists),
			published: 0,
		},
		{
			name:       "OK/PublishFailureIsNotFatal",
			result:     &models.CommandResult{CommandType: cmd.CommandType(), CAID: 7, HasEffect: true, Events: []models.Event{created}},
			publishErr: errors.New("broker down"),
			published:  1,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			next := new(svcmock.MockCommandService)
			if tc.err != nil {
				next.On("Handle", mock.Anything, cmd).Return(nil, tc.err)
			} else {
				next.On("Handle", mock.Anything, cmd).Return(tc.result, nil)
			}

			pub := new(CloudEventPublisherMock)
			pub.On("PublishCloudEvent", mock.Anything, mock.Anything).Return(tc.publishErr)

			logger := helpers.SetupLogger(config.Info, "Test Case", "Event Publisher")
			svc := NewCommandEventBusPublisher(pub, logger)(next)

			result, err := svc.Handle(context.Background(), cmd)
			if tc.err != nil {
				assert.ErrorIs(t, err, errs.ErrCAAlreadyExists)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.result, result)
			}

			pub.AssertNumberOfCalls(t, "PublishCloudEvent", tc.published)
			if tc.published > 0 {
				assert.Equal(t, tc.result.Events[0], pub.Calls[0].Arguments.Get(1))
			}
		})
	}
}

func TestCloudEventOverChannelBus(t *testing.T) {
	logger := helpers.SetupLogger(config.Info, "Test Case", "Event Publisher")
	pub, sub := channel.NewGoChannelPubSub(logger)
	t.Cleanup(func() { _ = pub.Close() })

	messages, err := sub.Subscribe(t.Context(), string(models.EventKeyPairActivated))
	require.NoError(t, err)

	event := models.NewEvent(models.EventKeyPairActivated, 4, "keypair/9", time.Now()).With("name", "ca4-key2")
	next := new(svcmock.MockCommandService)
	next.On("Handle", mock.Anything, mock.Anything).Return(&models.CommandResult{
		CommandType: models.CommandActivatePendingKeys,
		CAID:        4,
		HasEffect:   true,
		Events:      []models.Event{event},
	}, nil)

	svc := NewCommandEventBusPublisher(&CloudEventPublisher{Publisher: pub, ServiceID: "rpki-ca", Logger: logger}, logger)(next)
	_, err = svc.Handle(t.Context(), services.ActivatePendingKeysCommand{CA: models.VersionedID{ID: 4}, MinStagingTime: time.Hour})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		cloudEvent, err := helpers.ParseCloudEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, string(models.EventKeyPairActivated), cloudEvent.Type())
		assert.Equal(t, "keypair/9", cloudEvent.Subject())
		assert.Equal(t, "source://rpki/"+models.RPKISource, cloudEvent.Source())
		assert.Equal(t, "4", cloudEvent.Extensions()["caid"])

		body, err := helpers.GetEventBody[models.Event](cloudEvent)
		require.NoError(t, err)
		assert.Equal(t, "ca4-key2", body.Data["name"])
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}
