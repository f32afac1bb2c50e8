// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// HandlerFunc вызывается диспетчером шины; не должна блокировать надолго,
// пока она работает, остальные события ждут.
type HandlerFunc func(ctx context.Context, event Event) error

type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id   string
	bus  *Bus
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id) })
}

// On подписывает fn на eventType с приведением к конкретному типу события.
// События другого конкретного типа пропускаются.
func On[T Event](b *Bus, eventType EventType, fn func(ctx context.Context, e T) error) Subscription {
	return b.Subscribe(func(ctx context.Context, event Event) error {
		e, ok := event.(T)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	}, eventType)
}
