package handlers

import (
	"context"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services/eventhandling"
	"github.com/sirupsen/logrus"
)

// RepositoryChangeEvents change what a CA must publish. Events emitted by a
// publication run itself are not listed, so a run never triggers another.
var RepositoryChangeEvents = []models.EventType{
	models.EventCADeleted,
	models.EventKeyPairActivated,
	models.EventKeyPairRevoked,
	models.EventIncomingCertificateChanged,
	models.EventOutgoingCertificateIssued,
	models.EventOutgoingCertificateRevoked,
	models.EventOutgoingCertificateExpired,
}

func NewPublicationEventHandler(l *logrus.Entry, publish func(ctx context.Context) error) *eventhandling.CloudEventHandler {
	dispatch := map[string]func(context.Context, *event.Event) error{}
	for _, eventType := range RepositoryChangeEvents {
		dispatch[string(eventType)] = func(ctx context.Context, ev *event.Event) error {
			return repositoryChangedHandler(ctx, ev, publish, l)
		}
	}

	return &eventhandling.CloudEventHandler{
		Logger:      l,
		DispatchMap: dispatch,
	}
}

func repositoryChangedHandler(ctx context.Context, ev *event.Event, publish func(ctx context.Context) error, lMessaging *logrus.Entry) error {
	body, err := chelpers.GetEventBody[models.Event](ev)
	if err != nil {
		err = fmt.Errorf("could not decode cloud event: %s", err)
		lMessaging.Error(err)
		return err
	}

	lMessaging.Debugf("CA %d changed its repository content (%s). publishing", body.CAID, ev.Type())
	if err := publish(ctx); err != nil {
		return fmt.Errorf("could not publish after %s: %w", ev.Type(), err)
	}

	return nil
}
