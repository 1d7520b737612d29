package helpers

import (
	"context"
	"strings"
	"testing"

	"github.com/lamassuiot/rpki-core/core"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLoggerWithRequestID(t *testing.T) {
	testcases := []struct {
		name  string
		level logrus.Level
		ctx   context.Context
		check func(t *testing.T, in, out *logrus.Entry)
	}{
		{
			name:  "InfoLevelSkipsRequestID",
			level: logrus.InfoLevel,
			ctx:   context.Background(),
			check: func(t *testing.T, in, out *logrus.Entry) {
				assert.Same(t, in, out)
			},
		},
		{
			name:  "RequestIDFromContext",
			level: logrus.TraceLevel,
			ctx:   context.WithValue(context.Background(), core.RPKIContextKeyRequestID, "12345"),
			check: func(t *testing.T, in, out *logrus.Entry) {
				assert.Equal(t, "12345", out.Data["req-id"])
			},
		},
		{
			name:  "GeneratedRequestID",
			level: logrus.DebugLevel,
			ctx:   context.Background(),
			check: func(t *testing.T, in, out *logrus.Entry) {
				reqID, ok := out.Data["req-id"].(string)
				assert.True(t, ok)
				assert.True(t, strings.HasPrefix(reqID, "unset."))
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			logger := logrus.NewEntry(logrus.New())
			logger.Logger.Level = tc.level
			tc.check(t, logger, configureLoggerWithRequestID(tc.ctx, logger))
		})
	}
}

func TestConfigureLoggerAddsCAID(t *testing.T) {
	logger := logrus.NewEntry(logrus.New())
	ctx := WithCAID(WithSource(context.Background(), "job"), 7)

	out := ConfigureLogger(ctx, logger)
	assert.Equal(t, "job", out.Data["src"])
	assert.Equal(t, uint(7), out.Data["ca-id"])
}

func TestSetupLogger(t *testing.T) {
	lSvc := SetupLogger(config.Debug, "RPKI", "Service")
	assert.Equal(t, logrus.DebugLevel, lSvc.Logger.GetLevel())
	assert.Equal(t, "RPKI", lSvc.Data["service"])
	assert.Equal(t, "Service", lSvc.Data["subsystem"])

	lInvalid := SetupLogger(config.LogLevel("loud"), "RPKI", "Storage")
	assert.Equal(t, logrus.GetLevel(), lInvalid.Logger.GetLevel())
}

func TestInitContext(t *testing.T) {
	ctx := InitContext()
	reqID, ok := ctx.Value(core.RPKIContextKeyRequestID).(string)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(reqID, "internal."))
}
