package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/core/pkg/services"
	svcmock "github.com/lamassuiot/rpki-core/core/pkg/services/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCommandInstrumentingMiddleware(t *testing.T) {
	cmd := services.InitiateKeyRollCommand{CA: models.VersionedID{ID: 2, Version: 5}, MaxAgeDays: 365}
	command := string(cmd.CommandType())
	created := models.NewEvent(models.EventKeyPairCreated, 2, "keypair/4", time.Now())

	var testcases = []struct {
		name    string
		result  *models.CommandResult
		err     error
		outcome string
		events  float64
	}{
		{
			name:    "OK/Applied",
			result:  &models.CommandResult{CommandType: cmd.CommandType(), HasEffect: true, Events: []models.Event{created}},
			outcome: OutcomeApplied,
			events:  1,
		},
		{
			name:    "OK/NoEffect",
			result:  &models.CommandResult{CommandType: cmd.CommandType()},
			outcome: OutcomeNoEffect,
		},
		{
			name:    "Err/ConcurrentModification",
			err:     errs.New("InitiateKeyRoll", errs.KindConcurrentModification, 2, errs.ErrConcurrentModification),
			outcome: "ConcurrentModification",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			registry := prometheus.NewRegistry()
			m, err := NewCommandMetrics(registry)
			require.NoError(t, err)

			next := new(svcmock.MockCommandService)
			if tc.err != nil {
				next.On("Handle", mock.Anything, cmd).Return(nil, tc.err)
			} else {
				next.On("Handle", mock.Anything, cmd).Return(tc.result, nil)
			}

			_, err = NewCommandInstrumentingMiddleware(m)(next).Handle(context.Background(), cmd)
			assert.Equal(t, tc.err, err)

			assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues(command, tc.outcome)))
			assert.Equal(t, tc.events, testutil.ToFloat64(m.events.WithLabelValues(string(models.EventKeyPairCreated))))
			assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
		})
	}
}

func TestNewCommandMetricsTwiceOnSameRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewCommandMetrics(registry)
	require.NoError(t, err)

	_, err = NewCommandMetrics(registry)
	assert.Error(t, err)
}
