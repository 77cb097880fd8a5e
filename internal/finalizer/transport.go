package finalizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"tixly/internal/checkout"
	"tixly/pkg/logger"
)

// MessageHandler processes one finalization message
type MessageHandler interface {
	ProcessMessage(ctx context.Context, msg checkout.FinalizationMessage) error
}

// Transport moves finalization messages from checkout to the finalizer
type Transport interface {
	Publish(ctx context.Context, msg checkout.FinalizationMessage) error
	Close() error
}

// ErrBusFull means the in-memory bus cannot accept more messages
var ErrBusFull = errors.New("finalization bus is full")

// DeadLetter is a message that exhausted its retries, kept with the final
// failure reason for manual inspection
type DeadLetter struct {
	Message checkout.FinalizationMessage
	Reason  string
}

// InMemoryBus is a channel backed transport for single-process
// deployments and tests. Messages that exhaust their retries land on an
// inspectable dead letter list instead of a broker topic.
type InMemoryBus struct {
	messages   chan checkout.FinalizationMessage
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger

	mu          sync.Mutex
	deadLetters []DeadLetter

	done      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryBus creates an in-memory finalization transport
func NewInMemoryBus(size, maxRetries int, log *logger.Logger) *InMemoryBus {
	if size <= 0 {
		size = 1024
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &InMemoryBus{
		messages:   make(chan checkout.FinalizationMessage, size),
		maxRetries: maxRetries,
		backoff:    100 * time.Millisecond,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Publish enqueues a message without blocking the checkout path
func (b *InMemoryBus) Publish(ctx context.Context, msg checkout.FinalizationMessage) error {
	select {
	case b.messages <- msg:
		return nil
	default:
		return ErrBusFull
	}
}

// Start consumes messages until the context ends or Close is called
func (b *InMemoryBus) Start(ctx context.Context, handler MessageHandler) {
	go func() {
		for {
			select {
			case msg := <-b.messages:
				b.deliver(ctx, handler, msg)
			case <-b.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// deliver runs the handler with exponential backoff, dead-lettering the
// message once the retry budget is spent.
func (b *InMemoryBus) deliver(ctx context.Context, handler MessageHandler, msg checkout.FinalizationMessage) {
	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		lastErr = handler.ProcessMessage(ctx, msg)
		if lastErr == nil {
			return
		}
	}

	b.log.ErrorWithContext(ctx, "Finalization message dead-lettered", lastErr, map[string]interface{}{
		"order_id":   msg.OrderID,
		"hold_token": msg.HoldToken,
		"attempts":   b.maxRetries,
	})

	b.mu.Lock()
	b.deadLetters = append(b.deadLetters, DeadLetter{Message: msg, Reason: lastErr.Error()})
	b.mu.Unlock()
}

// DeadLetters returns a copy of the messages that failed every retry
func (b *InMemoryBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// Close stops the consumer loop
func (b *InMemoryBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	return nil
}
