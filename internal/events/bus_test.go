package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
)

func TestPublishDeliversToTypedHandler(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	got := make(chan *TradeSucceededEvent, 1)
	On(bus, TradeSucceeded, func(_ context.Context, e *TradeSucceededEvent) error {
		got <- e
		return nil
	})

	hash := common.HexToHash("0x01")
	require.NoError(t, bus.Publish(&TradeSucceededEvent{
		BaseEvent: NewBase(TradeSucceeded),
		Side:      model.Buy,
		Hash:      hash,
	}))

	select {
	case e := <-got:
		assert.Equal(t, hash, e.Hash)
		assert.Equal(t, model.Buy, e.Side)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishKeepsOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 64)

	var mu sync.Mutex
	var seen []EventType
	bus.Subscribe(func(_ context.Context, e Event) error {
		mu.Lock()
		seen = append(seen, e.Type())
		mu.Unlock()
		return nil
	}, TradeSubmitted, TradeSucceeded, TradeFailed)

	var want []EventType
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(&TradeSubmittedEvent{BaseEvent: NewBase(TradeSubmitted)}))
		require.NoError(t, bus.Publish(&TradeSucceededEvent{BaseEvent: NewBase(TradeSucceeded)}))
		want = append(want, TradeSubmitted, TradeSucceeded)
	}
	// не подписан
	require.NoError(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))

	require.NoError(t, bus.Shutdown(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestSubscribeAllTypes(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var calls int32
	bus.Subscribe(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, bus.PublishSync(context.Background(), &QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))
	require.NoError(t, bus.PublishSync(context.Background(), &SlippageChangedEvent{BaseEvent: NewBase(SlippageChanged)}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOnIgnoresOtherConcreteTypes(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var calls int32
	On(bus, TradeFailed, func(context.Context, *TradeFailedEvent) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	err := bus.PublishSync(context.Background(), &TradeSubmittedEvent{BaseEvent: NewBase(TradeFailed)})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	boom := errors.New("boom")
	bus.Subscribe(func(context.Context, Event) error { return boom }, QuoteUpdated)
	bus.Subscribe(func(context.Context, Event) error { panic("bad handler") }, QuoteUpdated)

	var reached int32
	bus.Subscribe(func(context.Context, Event) error {
		atomic.AddInt32(&reached, 1)
		return nil
	}, QuoteUpdated)

	err := bus.PublishSync(context.Background(), &QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "handler panic")
	assert.Equal(t, int32(1), atomic.LoadInt32(&reached), "a panicking handler does not stop the rest")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var calls int32
	sub := bus.Subscribe(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, SlippageChanged)
	assert.Equal(t, 1, bus.Stats().Subscribers)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), &SlippageChangedEvent{BaseEvent: NewBase(SlippageChanged)}))
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Zero(t, bus.Stats().Subscribers)
}

func TestPublishQueueFull(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	require.NoError(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))
	<-started // диспетчер занят первым событием
	require.NoError(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))
	assert.ErrorIs(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}), ErrBusFull)

	close(release)
	require.NoError(t, bus.Shutdown(context.Background()))
}

func TestPublishWaitBlocksUntilRoom(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var succeeded int32
	bus.Subscribe(func(_ context.Context, e Event) error {
		if e.Type() == TradeSucceeded {
			atomic.AddInt32(&succeeded, 1)
			return nil
		}
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	require.NoError(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))
	<-started
	require.NoError(t, bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)}))

	// очередь полна: короткий ctx истекает, событие не теряется молча
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.PublishWait(short, &TradeSucceededEvent{BaseEvent: NewBase(TradeSucceeded)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		done <- bus.PublishWait(context.Background(), &TradeSucceededEvent{BaseEvent: NewBase(TradeSucceeded)})
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("PublishWait never enqueued")
	}
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&succeeded))
}

func TestPublishWaitAfterShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	require.NoError(t, bus.Shutdown(context.Background()))

	err := bus.PublishWait(context.Background(), &TradeSucceededEvent{BaseEvent: NewBase(TradeSucceeded)})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestPublishAfterShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	require.NoError(t, bus.Shutdown(context.Background()))
	require.NoError(t, bus.Shutdown(context.Background()))

	err := bus.Publish(&QuoteUpdatedEvent{BaseEvent: NewBase(QuoteUpdated)})
	assert.ErrorIs(t, err, ErrBusClosed)
}
