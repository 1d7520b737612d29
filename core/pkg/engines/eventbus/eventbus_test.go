package eventbus

import (
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEngine struct {
	pubSub *gochannel.GoChannel
}

func (e *staticEngine) Subscriber() (message.Subscriber, error) { return e.pubSub, nil }
func (e *staticEngine) Publisher() (message.Publisher, error) { return e.pubSub, nil }

func TestGetEventBusEngine(t *testing.T) {
	logger := helpers.SetupLogger(config.Info, "Test Case", "Event Bus")
	RegisterEventBusEngine("static", func(provider string, conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
		return &staticEngine{}, nil
	})
	RegisterEventBusEngine("broken", func(provider string, conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
		return nil, errors.New("broker unreachable")
	})

	var testcases = []struct {
		name     string
		provider string
		check    func(t *testing.T, engine EventBusEngine, err error)
	}{
		{
			name:     "OK/Registered",
			provider: "static",
			check: func(t *testing.T, engine EventBusEngine, err error) {
				require.NoError(t, err)
				assert.NotNil(t, engine)
			},
		},
		{
			name:     "OK/UnknownProviderIsNil",
			provider: "kafka",
			check: func(t *testing.T, engine EventBusEngine, err error) {
				assert.NoError(t, err)
				assert.Nil(t, engine)
			},
		},
		{
			name:     "Err/BuilderFails",
			provider: "broken",
			check: func(t *testing.T, engine EventBusEngine, err error) {
				assert.EqualError(t, err, "broker unreachable")
				assert.Nil(t, engine)
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := GetEventBusEngine(tc.provider, nil, "rpki-ca", logger)
			tc.check(t, engine, err)
		})
	}
}

func TestFailingMessageGoesToDeadLetterTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for every retry")
	}

	logger := helpers.SetupLogger(config.Info, "Test Case", "Event Bus")
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewLoggerAdapter(logger))
	t.Cleanup(func() { _ = pubSub.Close() })

	dlq, err := pubSub.Subscribe(t.Context(), DeadLetterTopic)
	require.NoError(t, err)

	attempts := 0
	handler, err := NewEventBusMessageHandler("poison", []string{"rpki.ca.create"}, pubSub, pubSub, logger, &basicTestHandler{
		handler: func(msg *message.Message) error {
			attempts++
			return errors.New("cannot handle")
		},
	})
	require.NoError(t, err)
	require.NoError(t, handler.RunAsync())
	defer handler.Stop()

	require.NoError(t, pubSub.Publish("rpki.ca.create", message.NewMessage("poisoned", []byte("{}"))))

	select {
	case msg := <-dlq:
		assert.Equal(t, "poisoned", msg.UUID)
		assert.Equal(t, 4, attempts)
		msg.Ack()
	case <-time.After(30 * time.Second):
		t.Fatal("message did not reach the dead letter topic")
	}
}
