package builder

import (
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/eventbus"
	"github.com/lamassuiot/rpki-core/engines/eventbus/channel"
	"github.com/sirupsen/logrus"
)

func BuildEventBusEngine(provider string, config interface{}, serviceId string, logger *logrus.Entry) (eventbus.EventBusEngine, error) {
	engine, err := eventbus.GetEventBusEngine(provider, config, serviceId, logger)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("no event bus engine of type %s", provider)
	}
	return engine, nil
}

func init() {
	channel.Register()
}
