// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event queue full")
)

// Bus раздаёт события подписчикам. Publish ставит событие в очередь, один
// диспетчер доставляет их строго в порядке публикации: submitted всегда
// приходит раньше succeeded/failed той же попытки.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   []*subscriber
	closed bool

	queue chan Event
	done  chan struct{}
}

type subscriber struct {
	id    string
	types map[EventType]struct{} // пусто = все типы
	fn    HandlerFunc
}

func (s *subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func NewBus(logger *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1
	}
	b := &Bus{
		logger: logger.Named("event_bus"),
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe регистрирует fn на перечисленные типы; без типов на все события.
func (b *Bus) Subscribe(fn HandlerFunc, types ...EventType) Subscription {
	s := &subscriber{id: uuid.NewString(), fn: fn}
	if len(types) > 0 {
		s.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("subscription_id", s.id),
		zap.Int("types", len(types)))
	return &subscription{id: s.id, bus: b}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			b.logger.Debug("Handler unsubscribed", zap.String("subscription_id", id))
			return
		}
	}
}

// Publish не блокирует: при полной очереди событие отбрасывается.
func (b *Bus) Publish(event Event) error {
	err := b.enqueue(event)
	if errors.Is(err, ErrBusFull) {
		b.logger.Warn("Event queue full, dropping event", zap.String("event_type", string(event.Type())))
	}
	return err
}

// PublishWait ждёт места в очереди, пока жив ctx. Для событий, которые
// нельзя терять: по TradeSucceeded обновляются балансы.
func (b *Bus) PublishWait(ctx context.Context, event Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := b.enqueue(event)
		if err != nil && !errors.Is(err, ErrBusFull) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	if err != nil {
		b.logger.Warn("Event not published",
			zap.String("event_type", string(event.Type())),
			zap.Error(err))
	}
	return err
}

func (b *Bus) enqueue(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		return nil
	default:
		return ErrBusFull
	}
}

// PublishSync доставляет событие в вызывающей горутине, минуя очередь.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	return b.deliver(ctx, event)
}

func (b *Bus) deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(event.Type()) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := b.call(ctx, s, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("subscription_id", s.id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("handler %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

// call изолирует панику подписчика от диспетчера и остальных подписчиков.
func (b *Bus) call(ctx context.Context, s *subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panic recovered",
				zap.String("event_type", string(event.Type())),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.fn(ctx, event)
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		_ = b.deliver(context.Background(), event)
	}
}

// Shutdown закрывает очередь, дожидается доставки оставшихся событий или ctx.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
		b.logger.Info("Shutting down event bus", zap.Int("pending", len(b.queue)))
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

type BusStats struct {
	QueueSize     int
	PendingEvents int
	Subscribers   int
}

func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BusStats{
		QueueSize:     cap(b.queue),
		PendingEvents: len(b.queue),
		Subscribers:   len(b.subs),
	}
}
