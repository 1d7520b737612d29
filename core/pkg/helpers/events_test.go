package helpers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCloudEvent(t *testing.T) {
	ctx := WithSource(context.Background(), "reconciliation")
	ctx = WithCAID(ctx, 3)
	ctx = WithEvent(ctx, models.EventKeyPairActivated, "CN=child")
	payload := map[string]string{"key": "value"}

	event := BuildCloudEvent(ctx, payload)

	assert.Equal(t, "1.0", event.SpecVersion())
	assert.Equal(t, "source://rpki/reconciliation", event.Source())
	assert.Equal(t, string(models.EventKeyPairActivated), event.Type())
	assert.Equal(t, "CN=child", event.Subject())
	assert.Equal(t, "3", event.Extensions()["caid"])
	assert.WithinDuration(t, time.Now(), event.Time(), time.Second)
	assert.NotEmpty(t, event.ID())
	assert.Equal(t, cloudevents.ApplicationJSON, event.DataContentType())

	var eventData map[string]string
	err := json.Unmarshal(event.Data(), &eventData)
	require.NoError(t, err)
	assert.Equal(t, payload, eventData)
}

func TestBuildCloudEventUnknownSource(t *testing.T) {
	event := BuildCloudEvent(context.Background(), nil)
	assert.Equal(t, "source://unknown", event.Source())
}

func TestParseCloudEvent(t *testing.T) {
	ctx := WithEvent(WithSource(context.Background(), "test"), models.EventCACreated, "CN=root")
	payload := map[string]string{"key": "value"}

	originalEvent := BuildCloudEvent(ctx, payload)
	eventBytes, err := json.Marshal(originalEvent)
	require.NoError(t, err)

	parsedEvent, err := ParseCloudEvent(eventBytes)
	require.NoError(t, err)
	assert.Equal(t, originalEvent.Type(), parsedEvent.Type())
	assert.Equal(t, originalEvent.Source(), parsedEvent.Source())

	parsedPayload, err := GetEventBody[map[string]string](parsedEvent)
	require.NoError(t, err)
	assert.Equal(t, payload, *parsedPayload)
}

func TestGetEventBodyNilEvent(t *testing.T) {
	_, err := GetEventBody[map[string]string](nil)
	assert.Error(t, err)
}
