package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/internal/infrastructure/persistence/redis"
	"github.com/satriyop/enteraksi/pkg/circuitbreaker"
	"github.com/satriyop/enteraksi/pkg/logger"
)

// Transport is the pub/sub channel the Redis bus fans events out on.
// *redis.PubSub implements it.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan redis.Message, error)
}

// RedisEventBus shares events between worker instances over Redis pub/sub.
//
// Published events are delivered to local subscribers right away and sent to
// the channel tagged with this instance's id; events received back with the
// same id are skipped. Events from other instances go to local subscribers,
// so one event can reach the listeners of every instance. Listeners are
// idempotent, which makes that harmless.
type RedisEventBus struct {
	transport   Transport
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	breaker     *circuitbreaker.CircuitBreaker
	logger      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	started bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Transport Transport

	// ChannelName defaults to redis.PubSubChannel("events").
	ChannelName string

	// InstanceID defaults to a random UUID.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger

	// Breaker guards the transport. Defaults to circuitbreaker.EventTransportBreaker.
	Breaker *circuitbreaker.CircuitBreaker
}

type eventEnvelope struct {
	InstanceID string       `json:"instance_id"`
	Event      shared.Event `json:"event"`
}

// NewRedisEventBus creates a new Redis-based event bus. Call Start to begin
// receiving events from other instances.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Transport == nil {
		return nil, errors.New("redis transport is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = redis.PubSubChannel("events")
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	log := config.Logger.With(logger.KeyComponent, "redis_event_bus", "instance_id", config.InstanceID)
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.EventTransportBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	return &RedisEventBus{
		transport:   config.Transport,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		breaker:     config.Breaker,
		logger:      log,
	}, nil
}

// Start subscribes to the channel and dispatches remote events until Close
// or until ctx is done.
func (b *RedisEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	if b.started {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.transport.Subscribe(subCtx, b.channelName)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", b.channelName, err)
	}

	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true
	go b.receive(subCtx, msgs)

	b.logger.Info("subscribed to event channel", "channel", b.channelName)
	return nil
}

func (b *RedisEventBus) receive(ctx context.Context, msgs <-chan redis.Message) {
	defer close(b.done)

	for msg := range msgs {
		if msg.Err != nil {
			b.logger.Error("pubsub receive failed", logger.KeyError, msg.Err)
			continue
		}

		var env eventEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Error("malformed event envelope", logger.KeyError, err)
			continue
		}
		if env.InstanceID == b.instanceID {
			continue
		}

		if err := b.localBus.Publish(ctx, env.Event); err != nil && !errors.Is(err, ErrEventBusClosed) {
			b.logger.Warn("remote event delivery failed",
				logger.KeyEvent, env.Event.Name,
				logger.KeyEventID, env.Event.ID,
				logger.KeyError, err,
			)
		}
	}
}

// Subscribe registers a handler for one event name.
func (b *RedisEventBus) Subscribe(name shared.EventName, handler shared.EventHandler) error {
	return b.localBus.Subscribe(name, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish delivers events locally and forwards them to other instances.
// A transport failure is logged; local delivery still happens.
func (b *RedisEventBus) Publish(ctx context.Context, events ...shared.Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrEventBusClosed
	}

	for _, event := range events {
		payload, err := json.Marshal(eventEnvelope{InstanceID: b.instanceID, Event: event})
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event.Name, err)
		}

		err = b.breaker.Execute(ctx, func(ctx context.Context) error {
			return b.transport.Publish(ctx, b.channelName, payload)
		})
		if err != nil {
			b.logger.Warn("event not forwarded to other instances",
				logger.KeyEvent, event.Name,
				logger.KeyEventID, event.ID,
				logger.KeyError, err,
			)
		}
	}

	return b.localBus.Publish(ctx, events...)
}

// Close stops the subscription and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return b.localBus.Close()
}

// InstanceID returns the id used to tag published events.
func (b *RedisEventBus) InstanceID() string { return b.instanceID }

// DeadLetters returns the local bus dead letter queue.
func (b *RedisEventBus) DeadLetters() *DeadLetterQueue { return b.localBus.DeadLetters() }

// Metrics returns the local bus metrics.
func (b *RedisEventBus) Metrics() *EventBusMetrics { return b.localBus.Metrics() }

// Drain waits for in-flight local deliveries.
func (b *RedisEventBus) Drain() { b.localBus.Drain() }
