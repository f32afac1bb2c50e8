// internal/quote/publish.go
package quote

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/events"
)

// Publisher is the event bus as seen by the poller.
type Publisher interface {
	Publish(event events.Event) error
}

// Broadcast wraps next so every successful poll result is also published as
// QuoteUpdated. Failed polls go to next only. next may be nil.
func Broadcast(bus Publisher, next func(Result), logger *zap.Logger) func(Result) {
	log := logger.Named("quote-broadcast")
	return func(res Result) {
		if res.Err == nil {
			q := res.Quote
			err := bus.Publish(&events.QuoteUpdatedEvent{
				BaseEvent:    events.NewBase(events.QuoteUpdated),
				Side:         q.Side,
				Mint:         q.Mint,
				InputAmount:  new(big.Int).Set(q.InputAmount),
				OutputAmount: new(big.Int).Set(q.OutputAmount),
			})
			if err != nil {
				log.Debug("QuoteUpdated not published", zap.Uint64("seq", res.Seq), zap.Error(err))
			}
		}
		if next != nil {
			next(res)
		}
	}
}
