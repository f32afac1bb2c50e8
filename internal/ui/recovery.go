// internal/ui/recovery.go
package ui

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ErrTooManyRestarts возвращается, когда панель падала чаще, чем разрешено.
var ErrTooManyRestarts = errors.New("trade panel crashed too many times")

// RecoveryHandler держит панель живой: паника внутри модели закрывает
// программу, после паузы модель создаётся заново. Исполнитель сделок и
// фоновые циклы живут вне программы и падение экрана их не задевает.
type RecoveryHandler struct {
	logger       *zap.Logger
	restartDelay time.Duration
	maxRestarts  int
	createUI     func() (tea.Model, []tea.ProgramOption)

	mu           sync.Mutex
	restartCount int
}

func NewRecoveryHandler(logger *zap.Logger, createUI func() (tea.Model, []tea.ProgramOption)) *RecoveryHandler {
	return &RecoveryHandler{
		logger:       logger.Named("recovery"),
		restartDelay: 2 * time.Second,
		maxRestarts:  3,
		createUI:     createUI,
	}
}

// Run запускает панель и перезапускает её после паники, пока ctx жив.
func (rh *RecoveryHandler) Run(ctx context.Context) error {
	for {
		crashed, err := rh.runOnce()
		if err != nil {
			return err
		}
		if !crashed {
			return nil
		}

		rh.mu.Lock()
		rh.restartCount++
		count := rh.restartCount
		rh.mu.Unlock()

		if count > rh.maxRestarts {
			rh.logger.Error("Giving up on trade panel", zap.Int("restarts", count-1))
			return ErrTooManyRestarts
		}
		rh.logger.Warn("Restarting trade panel",
			zap.Int("attempt", count),
			zap.Duration("delay", rh.restartDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rh.restartDelay):
		}
	}
}

func (rh *RecoveryHandler) runOnce() (crashed bool, err error) {
	model, opts := rh.createUI()
	safe := NewSafeUIWrapper(model, rh.logger)
	if _, err := tea.NewProgram(safe, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return false, nil
		}
		return false, fmt.Errorf("trade panel: %w", err)
	}
	return safe.Crashed(), nil
}

func (rh *RecoveryHandler) GetRestartCount() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.restartCount
}

// SafeUIWrapper перехватывает панику в Init/Update и завершает программу,
// паника во View заменяется текстом ошибки.
type SafeUIWrapper struct {
	model  tea.Model
	logger *zap.Logger

	mu      sync.Mutex
	crashed bool
}

func NewSafeUIWrapper(model tea.Model, logger *zap.Logger) *SafeUIWrapper {
	return &SafeUIWrapper{model: model, logger: logger}
}

// Crashed сообщает, была ли перехвачена паника в Init или Update.
func (sw *SafeUIWrapper) Crashed() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.crashed
}

func (sw *SafeUIWrapper) Init() (cmd tea.Cmd) {
	defer sw.recoverFromPanic("Init", &cmd)
	return sw.model.Init()
}

func (sw *SafeUIWrapper) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	model = sw
	defer sw.recoverFromPanic("Update", &cmd)
	next, cmd := sw.model.Update(msg)
	if next != nil {
		sw.model = next
	}
	return sw, cmd
}

func (sw *SafeUIWrapper) View() (view string) {
	defer func() {
		if r := recover(); r != nil {
			sw.logger.Error("View panic recovered",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			view = "UI error: the panel crashed. Press Ctrl+C to exit."
		}
	}()
	return sw.model.View()
}

func (sw *SafeUIWrapper) recoverFromPanic(method string, cmd *tea.Cmd) {
	if r := recover(); r != nil {
		sw.logger.Error("UI panic recovered",
			zap.String("method", method),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())))
		sw.mu.Lock()
		sw.crashed = true
		sw.mu.Unlock()
		*cmd = tea.Quit
	}
}
