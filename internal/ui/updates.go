package ui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
)

// UpdateSender forwards background updates to the UI without blocking the
// producer. When the channel is full the update is dropped; every producer
// here re-sends on its next cycle.
type UpdateSender struct {
	msgChan        chan tea.Msg
	droppedUpdates uint64
	sentUpdates    uint64
	logger         *zap.Logger
	statsInterval  time.Duration
	stopStats      chan struct{}
	closeOnce      sync.Once

	mu   sync.Mutex
	subs []events.Subscription
}

func NewUpdateSender(buffer int, logger *zap.Logger) *UpdateSender {
	us := &UpdateSender{
		msgChan:       make(chan tea.Msg, buffer),
		logger:        logger.Named("ui-updates"),
		statsInterval: 30 * time.Second,
		stopStats:     make(chan struct{}),
	}

	go us.logStats()

	return us
}

// C is the channel the program listens on.
func (us *UpdateSender) C() <-chan tea.Msg {
	return us.msgChan
}

// SendUpdate sends a message to UI without blocking
func (us *UpdateSender) SendUpdate(msg tea.Msg) {
	select {
	case us.msgChan <- msg:
		atomic.AddUint64(&us.sentUpdates, 1)
	default:
		atomic.AddUint64(&us.droppedUpdates, 1)
	}
}

// QuoteHandler adapts the sender to quote.Poller's onUpdate callback.
func (us *UpdateSender) QuoteHandler() func(quote.Result) {
	return func(r quote.Result) {
		us.SendUpdate(QuoteMsg{Result: r})
	}
}

// SlippageHandler adapts the sender to slippage.Settings.Subscribe.
func (us *UpdateSender) SlippageHandler() func(float64) {
	return func(v float64) {
		us.SendUpdate(SlippageMsg{Tolerance: v})
	}
}

// Attach forwards trade and balance events from bus.
func (us *UpdateSender) Attach(bus *events.Bus) {
	forward := func(_ context.Context, e events.Event) error {
		us.SendUpdate(TradeEventMsg{Event: e})
		return nil
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	us.subs = append(us.subs,
		bus.Subscribe(forward, events.TradeSubmitted, events.TradeSucceeded, events.TradeFailed),
		events.On(bus, events.BalancesRefreshed, func(_ context.Context, e *events.BalancesRefreshedEvent) error {
			us.SendUpdate(BalancesMsg{Event: e})
			return nil
		}),
	)
}

// GetStats returns current statistics
func (us *UpdateSender) GetStats() (sent, dropped uint64) {
	sent = atomic.LoadUint64(&us.sentUpdates)
	dropped = atomic.LoadUint64(&us.droppedUpdates)
	return sent, dropped
}

func (us *UpdateSender) logStats() {
	ticker := time.NewTicker(us.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, dropped := us.GetStats()
			if dropped > 0 {
				us.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		case <-us.stopStats:
			return
		}
	}
}

// Close unsubscribes from the bus and stops the stats loop. The message
// channel stays open; the program owns its lifetime.
func (us *UpdateSender) Close() {
	us.closeOnce.Do(func() {
		us.mu.Lock()
		subs := us.subs
		us.subs = nil
		us.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		close(us.stopStats)
	})
}
