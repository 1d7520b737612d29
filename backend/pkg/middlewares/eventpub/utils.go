package eventpub

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lamassuiot/rpki-core/core"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/sirupsen/logrus"
)

type ICloudEventPublisher interface {
	PublishCloudEvent(ctx context.Context, payload interface{}) error
}

type CloudEventPublisher struct {
	Publisher message.Publisher
	ServiceID string
	Logger    *logrus.Entry
}

func (cemp *CloudEventPublisher) PublishCloudEvent(ctx context.Context, payload interface{}) error {
	event := helpers.BuildCloudEvent(ctx, payload)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		cemp.Logger.Errorf("error while serializing event: %s", err)
		return err
	}

	cemp.Logger.Tracef("publishing event: Type=%s Source=%s \n%s", event.Type(), event.Source(), string(eventBytes))

	msg := message.NewMessage(event.ID(), eventBytes)
	msg.SetContext(ctx)
	for _, key := range []string{core.RPKIContextKeySource, core.RPKIContextKeyRequestID} {
		if value, ok := ctx.Value(key).(string); ok {
			msg.Metadata.Set(key, value)
		}
	}

	if err := cemp.Publisher.Publish(event.Type(), msg); err != nil {
		cemp.Logger.Errorf("could not publish event %s: %s", event.ID(), err)
		return err
	}
	return nil
}

type EventPublisherWithSourceMiddleware struct {
	Publisher ICloudEventPublisher
	Source    string
}

func NewEventPublisherWithSourceMiddleware(publisher ICloudEventPublisher, source string) ICloudEventPublisher {
	return &EventPublisherWithSourceMiddleware{
		Publisher: publisher,
		Source:    source,
	}
}

func (epws *EventPublisherWithSourceMiddleware) PublishCloudEvent(ctx context.Context, payload interface{}) error {
	if ctx.Value(core.RPKIContextKeySource) == nil {
		ctx = context.WithValue(ctx, core.RPKIContextKeySource, epws.Source)
	}
	return epws.Publisher.PublishCloudEvent(ctx, payload)
}
