package eventpub

import (
	"context"

	lservices "github.com/lamassuiot/rpki-core/backend/pkg/services"
	"github.com/lamassuiot/rpki-core/core"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	"github.com/sirupsen/logrus"
)

// CommandEventPublisher drains the events of every applied command to the
// event bus, one cloud event per domain event, in the order they were
// recorded. Publishing happens after the transaction committed, so a failed
// publication is logged and never fails the command.
type CommandEventPublisher struct {
	Next       services.CommandService
	eventMWPub ICloudEventPublisher
	logger     *logrus.Entry
}

func NewCommandEventBusPublisher(eventMWPub ICloudEventPublisher, logger *logrus.Entry) lservices.CommandMiddleware {
	return func(next services.CommandService) services.CommandService {
		return &CommandEventPublisher{
			Next:       next,
			eventMWPub: NewEventPublisherWithSourceMiddleware(eventMWPub, models.RPKISource),
			logger:     logger,
		}
	}
}

func (mw CommandEventPublisher) Handle(ctx context.Context, cmd services.Command) (*models.CommandResult, error) {
	result, err := mw.Next.Handle(ctx, cmd)
	if err != nil || result == nil || !result.HasEffect {
		return result, err
	}

	for _, event := range result.Events {
		evCtx := helpers.WithEvent(ctx, event.Type, event.Subject)
		evCtx = context.WithValue(evCtx, core.RPKIContextKeyCAID, event.CAID)
		if pubErr := mw.eventMWPub.PublishCloudEvent(evCtx, event); pubErr != nil {
			mw.logger.Warnf("event %s of command %s not published: %s", event.Type, result.CommandType, pubErr)
		}
	}

	return result, nil
}
