package events

import (
	"context"
	"strings"
	"time"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/paguro/pkg/logging"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings selects the transport of widget events.
type Settings struct {
	RedisEnabled bool
	RedisAddr    string
	Group        string
	Consumer     string
}

func DefaultSettings() Settings {
	return Settings{
		RedisAddr: "localhost:6379",
		Group:     "paguro-ui",
		Consumer:  "ui-1",
	}
}

// EventRouter bundles a publisher, a subscriber and the watermill router that
// dispatches subscribed messages to handlers.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	router *message.Router
	client *redis.Client
}

// NewEventRouter returns an in-memory router, or one backed by Redis Streams
// when enabled.
func NewEventRouter(s Settings) (*EventRouter, error) {
	logger := logging.NewWatermill(log.Logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create watermill router")
	}

	r := &EventRouter{router: router}
	if !s.RedisEnabled {
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		r.Publisher, r.Subscriber = ps, ps
		return r, nil
	}

	if s.RedisAddr == "" {
		return nil, errors.New("redis address is required for redis streams events")
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis streams publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis streams subscriber")
	}

	log.Debug().Str("component", "events").Str("addr", s.RedisAddr).Str("group", s.Group).Msg("using redis streams for widget events")
	r.Publisher, r.Subscriber, r.client = pub, sub, client
	return r, nil
}

// AddHandler subscribes f to topic. Handlers added after Run need RunHandlers.
func (r *EventRouter) AddHandler(name string, topic string, f func(*message.Message) error) {
	r.router.AddConsumerHandler(name, topic, r.Subscriber, f)
}

// Run blocks until the router is closed or ctx is done.
func (r *EventRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *EventRouter) RunHandlers(ctx context.Context) error {
	return r.router.RunHandlers(ctx)
}

func (r *EventRouter) IsRunning() bool {
	return r.router.IsRunning()
}

func (r *EventRouter) IsClosed() bool {
	return r.router.IsClosed()
}

// Running is closed once all handlers are subscribed.
func (r *EventRouter) Running() chan struct{} {
	return r.router.Running()
}

func (r *EventRouter) Close() error {
	var errs []string
	if err := r.router.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := r.Publisher.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if r.client != nil {
		// redis streams use a separate subscriber over a client owned here
		if err := r.Subscriber.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := r.client.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("closing event router: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnsureGroupAtTail creates the consumer group of a stream at its tail so a
// new consumer does not replay history. An existing group is left alone.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "could not create consumer group %s on %s", group, stream)
	}
	log.Info().Str("component", "events").Str("stream", stream).Str("group", group).Msg("created redis consumer group at tail")
	return nil
}

// EnsureGroup prepares the consumer group of topic when Redis Streams are in
// use. It is a no-op for the in-memory transport.
func (r *EventRouter) EnsureGroup(ctx context.Context, topic string, group string) error {
	if r.client == nil {
		return nil
	}
	return EnsureGroupAtTail(ctx, r.client, topic, group)
}
