package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/jakehl/goid"
	"github.com/lamassuiot/rpki-core/core"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

func BuildCloudEvent(ctx context.Context, payload interface{}) event.Event {
	event := cloudevents.NewEvent()

	event.SetSpecVersion("1.0")
	event.SetTime(time.Now())
	event.SetID(goid.NewV4UUID().String())
	event.SetData(cloudevents.ApplicationJSON, payload)

	eventSource, ok := ctx.Value(core.RPKIContextKeySource).(string)
	if ok {
		event.SetSource(fmt.Sprintf("source://rpki/%s", eventSource))
	} else {
		event.SetSource("source://unknown")
	}

	eventType, ok := ctx.Value(core.RPKIContextKeyEventType).(string)
	if ok {
		event.SetType(eventType)
	} else if typedEventType, ok := ctx.Value(core.RPKIContextKeyEventType).(models.EventType); ok {
		event.SetType(string(typedEventType))
	}

	eventSubject, ok := ctx.Value(core.RPKIContextKeyEventSubject).(string)
	if ok {
		event.SetSubject(eventSubject)
	}

	if caID, ok := ctx.Value(core.RPKIContextKeyCAID).(uint); ok {
		event.SetExtension("caid", fmt.Sprintf("%d", caID))
	}

	return event
}

// WithEvent stores the cloud event type and subject used by BuildCloudEvent.
func WithEvent(ctx context.Context, eventType models.EventType, subject string) context.Context {
	ctx = context.WithValue(ctx, core.RPKIContextKeyEventType, eventType)
	return context.WithValue(ctx, core.RPKIContextKeyEventSubject, subject)
}

func ParseCloudEvent(msg []byte) (*event.Event, error) {
	var event cloudevents.Event
	err := json.Unmarshal(msg, &event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func GetEventBody[E any](cloudEvent *event.Event) (*E, error) {
	var elem *E
	if cloudEvent == nil {
		return nil, fmt.Errorf("cloud event is null")
	}

	if cloudEvent.Data() == nil {
		return nil, fmt.Errorf("cloud event data is null")
	}

	eventDataBytes := cloudEvent.Data()
	err := json.Unmarshal(eventDataBytes, &elem)
	return elem, err
}
