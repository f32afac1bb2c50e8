package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShutdownHandler_ClosesInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"rpc", "settings", "journal", "background"} {
		sh.AddFunc(name, func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}
	require.Equal(t, 4, sh.Len())

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"background", "journal", "settings", "rpc"}, order)
}

func TestShutdownHandler_JoinsErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	sh.AddFunc("a", func() error { return errA })
	sh.AddFunc("ok", func() error { return nil })
	sh.AddFunc("b", func() error { return errB })

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "a: a failed")
}

func TestShutdownHandler_RunsOnce(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	calls := 0
	sh.Add("svc", CloseFunc(func() error {
		calls++
		return nil
	}))

	require.NoError(t, sh.Shutdown(context.Background()))
	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestShutdownHandler_Timeout(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	release := make(chan struct{})
	defer close(release)

	sh.AddFunc("fast", func() error { return nil })
	sh.AddFunc("stuck", func() error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sh.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck: shutdown timeout")
}

func TestShutdownHandler_HandleShutdownOnContext(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	closed := make(chan struct{})
	sh.AddFunc("svc", func() error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sh.HandleShutdown(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("HandleShutdown did not return")
	}
	select {
	case <-closed:
	default:
		t.Fatal("service was not closed")
	}
}

func TestNewShutdownHandler_DefaultTimeout(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 0)
	assert.Equal(t, DefaultShutdownTimeout, sh.timeout)
}
