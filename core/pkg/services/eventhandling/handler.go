package eventhandling

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/lamassuiot/rpki-core/core"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/sirupsen/logrus"
)

// AnyEvent keys the handler used for event types without their own entry.
const AnyEvent = "*"

// CloudEventHandler decodes the cloud event carried by a message and
// dispatches it by event type.
type CloudEventHandler struct {
	Logger      *logrus.Entry
	DispatchMap map[string]func(context.Context, *event.Event) error
}

func (h CloudEventHandler) HandleMessage(m *message.Message) error {
	ev, err := helpers.ParseCloudEvent(m.Payload)
	if err != nil {
		err = fmt.Errorf("something went wrong while processing cloud event: %s", err)
		h.Logger.Error(err)
		return err
	}

	h.Logger.Debugf("received event: Type=%s Subject=%s", ev.Type(), ev.Subject())

	handler, ok := h.DispatchMap[ev.Type()]
	if !ok {
		handler, ok = h.DispatchMap[AnyEvent]
		if !ok {
			h.Logger.Warnf("no handler found for event type: %s", ev.Type())
			return nil
		}
	}

	if err := handler(getContextFromMessage(m), ev); err != nil {
		h.Logger.Errorf("something went wrong while handling event %s: %s", ev.ID(), err)
		return err
	}

	return nil
}

func getContextFromMessage(m *message.Message) context.Context {
	ctx := helpers.InitContext()

	source := m.Metadata.Get(core.RPKIContextKeySource)
	if source == "" {
		source = "unknown"
	}
	ctx = helpers.WithSource(ctx, fmt.Sprintf("eventbus-%s", source))

	if requestID := m.Metadata.Get(core.RPKIContextKeyRequestID); requestID != "" {
		ctx = context.WithValue(ctx, core.RPKIContextKeyRequestID, requestID)
	}

	return ctx
}
