package eventbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

type EventHandler interface {
	HandleMessage(*message.Message) error
}

type EventSubscriptionHandler struct {
	router      *message.Router
	handlerName string
	handler     *message.Handler
}

func NewEventBusMessageHandler(handlerName string, topics []string, sub message.Subscriber, dlqPub message.Publisher, lMessaging *logrus.Entry, handler EventHandler) (*EventSubscriptionHandler, error) {
	router, err := NewMessageRouter(lMessaging, dlqPub)
	if err != nil {
		return nil, err
	}

	var mHandler *message.Handler
	for _, topic := range topics {
		mHandler = router.AddNoPublisherHandler(handlerName+"-"+topic, topic, sub, handler.HandleMessage)
	}

	return &EventSubscriptionHandler{
		router:      router,
		handlerName: handlerName,
		handler:     mHandler,
	}, nil
}

func (s *EventSubscriptionHandler) RunAsync() error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.router.Run(context.Background())
	}()

	select {
	case <-s.router.Running(): // closed once the router is running
		return nil
	case err := <-errChan:
		return err
	}
}

func (s *EventSubscriptionHandler) Stop() {
	s.router.Close()
}
