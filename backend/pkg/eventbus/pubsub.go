package eventbus

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lamassuiot/rpki-core/backend/pkg/eventbus/builder"
	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
)

func NewEventBusSubscriber(conf cconfig.EventBusEngine, serviceID string, logger *logrus.Entry) (message.Subscriber, error) {
	engine, err := builder.BuildEventBusEngine(string(conf.Provider), conf.Config, serviceID, logger)
	if err != nil {
		logger.Errorf("could not generate Event Bus Subscriber: %s", err)
		return nil, err
	}

	return engine.Subscriber()
}

func NewEventBusPublisher(conf cconfig.EventBusEngine, serviceID string, logger *logrus.Entry) (message.Publisher, error) {
	engine, err := builder.BuildEventBusEngine(string(conf.Provider), conf.Config, serviceID, logger)
	if err != nil {
		logger.Errorf("could not generate Event Bus Publisher: %s", err)
		return nil, err
	}

	pub, err := engine.Publisher()
	if err != nil {
		logger.Errorf("could not generate Event Bus Publisher: %s", err)
		return nil, err
	}

	return pub, nil
}

// NewEventBusPubSub builds the publisher and subscriber from one engine. The
// channel provider only delivers between the two when they share an engine.
func NewEventBusPubSub(conf cconfig.EventBusEngine, serviceID string, logger *logrus.Entry) (message.Publisher, message.Subscriber, error) {
	engine, err := builder.BuildEventBusEngine(string(conf.Provider), conf.Config, serviceID, logger)
	if err != nil {
		logger.Errorf("could not generate Event Bus engine: %s", err)
		return nil, nil, err
	}

	pub, err := engine.Publisher()
	if err != nil {
		logger.Errorf("could not generate Event Bus Publisher: %s", err)
		return nil, nil, err
	}

	sub, err := engine.Subscriber()
	if err != nil {
		logger.Errorf("could not generate Event Bus Subscriber: %s", err)
		return nil, nil, err
	}

	return pub, sub, nil
}
