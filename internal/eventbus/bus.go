// Package eventbus provides an in-process pub/sub event bus for domain events.
// The state machine publishes events after commit; subscribers process them
// asynchronously.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/event"
	"github.com/matthewbaird/compliance/internal/metrics"
)

// Handler processes a domain event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in a single consumer goroutine,
// so subscribers see events in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler

	// sendMu guards closed and sends on events. It is separate from mu so
	// a blocked PublishWait never stalls dispatch.
	sendMu  sync.RWMutex
	events  chan event.DomainEvent
	done    chan struct{}
	closed  bool
	log     *zap.Logger
	metrics *metrics.Metrics
}

// ErrStopped is returned by PublishWait once Stop has been called.
var ErrStopped = errors.New("eventbus: stopped")

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int, log *zap.Logger, m *metrics.Metrics) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events:  make(chan event.DomainEvent, bufSize),
		done:    make(chan struct{}),
		log:     log,
		metrics: m,
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. Non-blocking: if the buffer is full
// or the bus is stopped the event is dropped and a warning is logged.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		b.drop(evt, "bus stopped")
		return
	}
	select {
	case b.events <- evt:
	default:
		b.drop(evt, "buffer full")
	}
}

// PublishWait blocks until the event is buffered. It fails with ErrStopped
// after Stop, or with the context error when ctx ends first. Use it for
// events that must not be dropped.
func (b *Bus) PublishWait(ctx context.Context, evt event.DomainEvent) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return ErrStopped
	}
	select {
	case b.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) drop(evt event.DomainEvent, reason string) {
	b.metrics.EventDropped()
	b.log.Warn("eventbus: dropping event",
		zap.String("reason", reason),
		zap.String("event_type", evt.EventType),
		zap.String("event_id", evt.ID))
}

// Start begins the consumer goroutine. It processes events until the
// context is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				// Drain remaining events before exiting.
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(ctx, evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop closes the bus and waits for the consumer goroutine to deliver
// buffered events and finish. Start must have been called.
func (b *Bus) Stop() {
	b.sendMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.sendMu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.log.Warn("eventbus: handler error",
				zap.String("handler", s.name),
				zap.String("event_type", evt.EventType),
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
	}
}
