package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

type EventBusEngine interface {
	Subscriber() (message.Subscriber, error)
	Publisher() (message.Publisher, error)
}

type EventBusBuilder func(eventBusProvider string, config interface{}, serviceId string, logger *logrus.Entry) (EventBusEngine, error)

var engines = map[string]EventBusBuilder{}

func RegisterEventBusEngine(provider string, builder EventBusBuilder) {
	engines[provider] = builder
}

// GetEventBusEngine returns nil without error when no builder is registered
// for the provider.
func GetEventBusEngine(provider string, config interface{}, serviceId string, logger *logrus.Entry) (EventBusEngine, error) {
	if builder, ok := engines[provider]; ok {
		return builder(provider, config, serviceId, logger)
	}
	return nil, nil
}

type messagingLogger struct {
	entry *logrus.Entry
}

func NewLoggerAdapter(l *logrus.Entry) watermill.LoggerAdapter {
	return &messagingLogger{
		entry: l,
	}
}

func (l *messagingLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l *messagingLogger) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *messagingLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *messagingLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *messagingLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &messagingLogger{
		entry: l.entry.WithFields(logrus.Fields(fields)),
	}
}
