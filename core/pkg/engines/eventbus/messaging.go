package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"
)

const DeadLetterTopic = "rpki-dlq"

func NewMessageRouter(logger *logrus.Entry, dlqPub message.Publisher) (*message.Router, error) {
	lEventBus := NewLoggerAdapter(logger.WithField("subsystem-provider", "EventBus - Router"))

	router, err := message.NewRouter(message.RouterConfig{}, lEventBus)
	if err != nil {
		return nil, fmt.Errorf("could not create event bus router: %s", err)
	}

	middlewares := []message.HandlerMiddleware{
		middleware.Recoverer,
	}

	if dlqPub != nil {
		// messages still failing after the retries below end up in the dead letter topic
		dlqMw, err := middleware.PoisonQueue(dlqPub, DeadLetterTopic)
		if err != nil {
			return nil, fmt.Errorf("could not create poison queue middleware: %s", err)
		}
		middlewares = append(middlewares, dlqMw)
	}

	middlewares = append(middlewares,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second * 2,
			MaxInterval:     time.Second * 10,
			Multiplier:      3,
			Logger:          lEventBus,
		}.Middleware,
	)

	// applied in order, so the first one is the outermost
	router.AddMiddleware(middlewares...)

	return router, nil
}
