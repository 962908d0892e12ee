package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/himanalot/auteur-sub004/pkg/helpers"
)

// ChatEventHandler defines an interface for handling the different chat
// events, typically implemented by a UI or telemetry consumer.
type ChatEventHandler interface {
	HandleStart(ctx context.Context, e *EventStart) error
	HandleContentDelta(ctx context.Context, e *EventContentDelta) error
	HandleToolCallStart(ctx context.Context, e *EventToolCallStart) error
	HandleToolCallComplete(ctx context.Context, e *EventToolCallComplete) error
	HandleChatComplete(ctx context.Context, e *EventChatComplete) error
	HandleChatAborted(ctx context.Context, e *EventChatAborted) error
	HandleError(ctx context.Context, e *EventError) error
}

type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		r.logger = helpers.NewWatermill(log.Logger)
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	err := e.Publisher.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
		// not returning just yet
	}

	log.Debug().Msg("Closing router")
	err = e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}

	return nil
}

// AddHandler registers a no-publish handler for the given topic.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// RegisterChatEventHandler registers a dispatching handler that parses chat
// events from the topic and forwards them to the ChatEventHandler.
func (e *EventRouter) RegisterChatEventHandler(name string, topic string, handler ChatEventHandler) {
	e.AddHandler(name, topic, createChatDispatchHandler(handler))
}

func createChatDispatchHandler(handler ChatEventHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer msg.Ack()

		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Str("message_id", msg.UUID).Err(err).Msg("Failed to parse chat event from message payload")
			// Don't kill the handler for one bad message, just log and continue
			return nil
		}

		msgCtx := msg.Context()
		switch e := ev.(type) {
		case *EventStart:
			return handler.HandleStart(msgCtx, e)
		case *EventContentDelta:
			return handler.HandleContentDelta(msgCtx, e)
		case *EventToolCallStart:
			return handler.HandleToolCallStart(msgCtx, e)
		case *EventToolCallComplete:
			return handler.HandleToolCallComplete(msgCtx, e)
		case *EventChatComplete:
			return handler.HandleChatComplete(msgCtx, e)
		case *EventChatAborted:
			return handler.HandleChatAborted(msgCtx, e)
		case *EventError:
			return handler.HandleError(msgCtx, e)
		default:
			log.Warn().Str("event_type", string(ev.Type())).Msg("Unhandled chat event type")
		}

		return nil
	}
}

// DumpRawEvents is a debugging handler that prints each event payload as
// indented JSON.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()

	var s map[string]interface{}
	err := json.Unmarshal(msg.Payload, &s)
	if err != nil {
		return err
	}
	if !e.verbose {
		if meta, ok := s["meta"].(map[string]interface{}); ok {
			s["id"] = meta["message_id"]
		}
		delete(s, "meta")
	}
	s_, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(s_))
	return nil
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
