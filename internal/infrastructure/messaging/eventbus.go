// Package messaging implements the event buses that carry domain events from
// committed units of work to their listeners: an in-process bus and a Redis
// pub/sub bus for multi-instance deployments.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/satriyop/enteraksi/internal/domain/shared"
	"github.com/satriyop/enteraksi/pkg/logger"
	"github.com/satriyop/enteraksi/pkg/retry"
	"github.com/satriyop/enteraksi/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
//
// Events of one Publish call reach each handler in order. Retryable handler
// errors are retried with backoff; deliveries that still fail are logged,
// counted and parked in the dead letter queue.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventName][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	retrier     *retry.Retrier
	deadLetters *DeadLetterQueue
	logger      *logger.Logger
	metrics     *EventBusMetrics
	now         func() time.Time
	closed      bool

	// inflight counts accepted Publish calls not yet delivered; idle is
	// signalled on b.mu when it drops to zero.
	inflight int
	idle     *sync.Cond
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers on a worker pool and makes Publish return at once.
	// In sync mode Publish returns the joined delivery errors.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async deliveries.
	WorkerPoolSize int

	// Retrier overrides the listener retry policy.
	Retrier *retry.Retrier

	// DeadLetterSize caps the dead letter queue.
	DeadLetterSize int

	Logger        *logger.Logger
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		DeadLetterSize: 1000,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	log := config.Logger.With(logger.KeyComponent, "event_bus")
	if config.Retrier == nil {
		config.Retrier = retry.ListenerRetrier(shared.IsRetryable, func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying listener", "attempt", attempt, "delay", delay, logger.KeyError, err)
		})
	}

	bus := &InMemoryEventBus{
		handlers:    make(map[shared.EventName][]shared.EventHandler),
		asyncMode:   config.AsyncMode,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		retrier:     config.Retrier,
		deadLetters: NewDeadLetterQueue(config.DeadLetterSize),
		logger:      log,
		now:         time.Now,
	}
	bus.idle = sync.NewCond(&bus.mu)
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe registers a handler for one event name.
func (b *InMemoryEventBus) Subscribe(name shared.EventName, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[name] = append(b.handlers[name], handler)
	b.logger.Debug("subscribed handler", logger.KeyEvent, name)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers events in order. Once Publish has accepted events they
// are delivered or dead-lettered, even if Close is called meanwhile.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEventBusClosed
	}
	if len(events) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.inflight++
	b.mu.Unlock()

	if !b.asyncMode {
		defer b.done()
		return b.deliverAll(ctx, events)
	}

	// The publisher's request may end before delivery does.
	detached := context.WithoutCancel(ctx)
	go func() {
		defer b.done()

		b.workerPool <- struct{}{}
		defer func() { <-b.workerPool }()
		_ = b.deliverAll(detached, events)
	}()
	return nil
}

func (b *InMemoryEventBus) done() {
	b.mu.Lock()
	b.inflight--
	if b.inflight == 0 {
		b.idle.Broadcast()
	}
	b.mu.Unlock()
}

// waitIdle blocks until no delivery is in flight. The caller holds b.mu.
func (b *InMemoryEventBus) waitIdle() {
	for b.inflight > 0 {
		b.idle.Wait()
	}
}

func (b *InMemoryEventBus) handlersFor(name shared.EventName) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]shared.EventHandler, 0, len(b.handlers[name])+len(b.allHandlers))
	out = append(out, b.handlers[name]...)
	out = append(out, b.allHandlers...)
	return out
}

func (b *InMemoryEventBus) deliverAll(ctx context.Context, events []shared.Event) error {
	var errs []error
	for _, event := range events {
		handlers := b.handlersFor(event.Name)
		if b.metrics != nil {
			b.metrics.RecordPublish(event.Name)
		}
		for _, h := range handlers {
			if err := b.deliver(ctx, event, h); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) deliver(ctx context.Context, event shared.Event, handler shared.EventHandler) (err error) {
	ctx, span := tracing.Start(ctx, "event.deliver",
		attribute.String("event.name", string(event.Name)),
		attribute.String("event.id", event.ID),
		attribute.String("event.aggregate_id", event.AggregateID),
	)
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	attempts := 0
	err = b.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		return invoke(ctx, handler, event)
	})
	span.SetAttributes(attribute.Int("event.attempts", attempts))
	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.Name, time.Since(start), err == nil)
	}
	if err == nil {
		return nil
	}

	b.logger.Error("listener failed",
		logger.KeyEvent, event.Name,
		logger.KeyEventID, event.ID,
		"aggregate_id", event.AggregateID,
		"attempts", attempts,
		logger.KeyError, err,
	)
	b.deadLetters.Add(DeadLetterEntry{
		Event:    event,
		Error:    err.Error(),
		Attempts: attempts,
		FailedAt: b.now(),
		handler:  handler,
	})
	return fmt.Errorf("deliver %s: %w", event.Name, err)
}

// invoke runs the handler, turning a panic into a permanent error.
func invoke(ctx context.Context, handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = retry.Permanent(fmt.Errorf("%w: %v", ErrHandlerPanic, p))
		}
	}()
	return handler(ctx, event)
}

// Close waits until every accepted event was delivered, then stops
// accepting events. Events that listeners publish while Close waits are
// accepted and delivered too, so a cascade runs to its end.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.waitIdle()
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("event bus closed")
	return nil
}

// Drain waits until every accepted event was delivered. New publishes
// during Drain are waited for too.
func (b *InMemoryEventBus) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitIdle()
}

// Metrics returns the current metrics, or nil when disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// DeadLetters returns the dead letter queue.
func (b *InMemoryEventBus) DeadLetters() *DeadLetterQueue {
	return b.deadLetters
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus throughput and listener outcomes.
type EventBusMetrics struct {
	mu sync.RWMutex

	PublishedTotal map[shared.EventName]int64

	HandlerExecutions    int64
	HandlerSuccesses     int64
	HandlerFailures      int64
	HandlerTotalDuration time.Duration
	FailuresByName       map[shared.EventName]int64
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		PublishedTotal: make(map[shared.EventName]int64),
		FailuresByName: make(map[shared.EventName]int64),
	}
}

// RecordPublish records a published event.
func (m *EventBusMetrics) RecordPublish(name shared.EventName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedTotal[name]++
}

// RecordHandlerExecution records one delivery including its retries.
func (m *EventBusMetrics) RecordHandlerExecution(name shared.EventName, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
		m.FailuresByName[name]++
	}
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerFailures        int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, v := range m.PublishedTotal {
		published += v
	}

	s := EventBusMetricsSnapshot{
		TotalPublished:     published,
		TotalHandlerExecs:  m.HandlerExecutions,
		HandlerFailures:    m.HandlerFailures,
		HandlerSuccessRate: 1.0,
	}
	if m.HandlerExecutions > 0 {
		s.AverageHandlerDuration = m.HandlerTotalDuration / time.Duration(m.HandlerExecutions)
		s.HandlerSuccessRate = float64(m.HandlerSuccesses) / float64(m.HandlerExecutions)
	}
	return s
}
