package eventbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type basicTestHandler struct {
	handler func(*message.Message) error
}

func (h *basicTestHandler) HandleMessage(msg *message.Message) error {
	return h.handler(msg)
}

type EventBusTestInput struct {
	SetupEventBus func() (func() error, message.Publisher, func(serviceID string) message.Subscriber)
}

// SharedTestPublishSubscribe checks that a message published on a topic is
// delivered to a handler subscribed to it and to no other topic.
func SharedTestPublishSubscribe(t *testing.T, input EventBusTestInput) {
	testcases := []struct {
		name            string
		subscriptionKey string
		expectedTimeout bool
	}{
		{
			name:            "OK/SameTopic",
			subscriptionKey: "rpki.keypair.activate",
			expectedTimeout: false,
		},
		{
			name:            "Err/Timeout",
			subscriptionKey: "rpki.keypair.revoke",
			expectedTimeout: true,
		},
	}

	for idx, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup, pub, subFunc := input.SetupEventBus()
			defer cleanup()

			logger := helpers.SetupLogger(config.Info, "Test Case", "sub")
			received := make(chan string, 1)
			subHandler, err := NewEventBusMessageHandler(fmt.Sprintf("handler-%d", idx), []string{tc.subscriptionKey}, subFunc(fmt.Sprintf("service-%d", idx)), nil, logger, &basicTestHandler{
				handler: func(msg *message.Message) error {
					received <- msg.UUID
					return nil
				},
			})
			require.NoError(t, err)
			require.NoError(t, subHandler.RunAsync())
			defer subHandler.Stop()

			msgID := uuid.NewString()
			require.NoError(t, pub.Publish("rpki.keypair.activate", message.NewMessage(msgID, []byte("{}"))))

			select {
			case got := <-received:
				assert.False(t, tc.expectedTimeout, "unexpected delivery")
				assert.Equal(t, msgID, got)
			case <-time.After(3 * time.Second):
				assert.True(t, tc.expectedTimeout, "message not delivered")
			}
		})
	}
}
