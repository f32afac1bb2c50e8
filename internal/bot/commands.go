// internal/bot/commands.go
package bot

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/slippage"
)

// TradingCommand представляет команду, которую front-end отправляет ядру.
// Handlers write their result back into the command, so commands are sent
// as pointers.
type TradingCommand interface {
	GetType() string
	Validate() error
}

// TradeCommand покупка или продажа токена
type TradeCommand struct {
	Mint   string     `json:"mint"`
	Side   model.Side `json:"side"`
	Amount string     `json:"amount"`
	// Mining routes a graduated buy through the mining flow.
	Mining    bool               `json:"mining"`
	Callbacks executor.Callbacks `json:"-"`

	// Market skips resolution when already set.
	Market  Market            `json:"-"`
	Outcome *executor.Outcome `json:"-"`
}

func (c *TradeCommand) GetType() string {
	return "trade"
}

func (c *TradeCommand) Validate() error {
	if !common.IsHexAddress(c.Mint) {
		return fmt.Errorf("invalid token address %q", c.Mint)
	}
	if !c.Side.Valid() {
		return fmt.Errorf("%w: %d", model.ErrUnknownSide, int(c.Side))
	}
	if !amount.ValidateInput(c.Amount) || amount.ToBaseUnits(c.Amount, amount.DefaultDecimals).Sign() <= 0 {
		return fmt.Errorf("%w: %q", executor.ErrInvalidAmount, c.Amount)
	}
	if c.Mining && c.Side != model.Buy {
		return fmt.Errorf("%w: mining is buy-only", executor.ErrInvalidFlow)
	}
	return nil
}

// SetSlippageCommand сохраняет допуск проскальзывания
type SetSlippageCommand struct {
	Tolerance float64 `json:"tolerance"`
}

func (c *SetSlippageCommand) GetType() string {
	return "set_slippage"
}

func (c *SetSlippageCommand) Validate() error {
	if !slippage.Valid(c.Tolerance) {
		return fmt.Errorf("%w: %v", slippage.ErrInvalidTolerance, c.Tolerance)
	}
	return nil
}

// ReconcileCommand settles attempts a previous run left confirming.
type ReconcileCommand struct {
	PerTx time.Duration `json:"per_tx"`

	Settled []*HistoryEntry `json:"-"`
}

func (c *ReconcileCommand) GetType() string {
	return "reconcile"
}

func (c *ReconcileCommand) Validate() error {
	if c.PerTx < 0 {
		return fmt.Errorf("per_tx must not be negative, got: %s", c.PerTx)
	}
	return nil
}

// CommandHandler интерфейс для обработчиков команд
type CommandHandler interface {
	Handle(ctx context.Context, cmd TradingCommand) error
	CanHandle(cmd TradingCommand) bool
}

// CommandBus шина для обработки команд
type CommandBus struct {
	handlers map[reflect.Type]CommandHandler
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewCommandBus создает новую шину команд
func NewCommandBus(logger *zap.Logger) *CommandBus {
	return &CommandBus{
		handlers: make(map[reflect.Type]CommandHandler),
		logger:   logger.Named("command_bus"),
	}
}

// RegisterHandler регистрирует обработчик для типа команды
func (bus *CommandBus) RegisterHandler(cmdType TradingCommand, handler CommandHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.handlers[reflect.TypeOf(cmdType)] = handler

	bus.logger.Debug("Command handler registered",
		zap.String("command_type", cmdType.GetType()),
		zap.String("handler", reflect.TypeOf(handler).String()))
}

// Send validates cmd and runs its handler. Errors are returned unwrapped
// so callers can match executor rejections with errors.Is/As.
func (bus *CommandBus) Send(ctx context.Context, cmd TradingCommand) error {
	if err := cmd.Validate(); err != nil {
		bus.logger.Warn("Command validation failed",
			zap.String("command_type", cmd.GetType()),
			zap.Error(err))
		return err
	}

	bus.mu.RLock()
	handler, exists := bus.handlers[reflect.TypeOf(cmd)]
	bus.mu.RUnlock()

	if !exists || !handler.CanHandle(cmd) {
		return fmt.Errorf("no handler registered for command type: %s", cmd.GetType())
	}

	bus.logger.Debug("Executing command", zap.String("command_type", cmd.GetType()))

	if err := handler.Handle(ctx, cmd); err != nil {
		bus.logger.Warn("Command execution failed",
			zap.String("command_type", cmd.GetType()),
			zap.Error(err))
		return err
	}

	bus.logger.Debug("Command executed successfully", zap.String("command_type", cmd.GetType()))
	return nil
}

// GetRegisteredHandlers возвращает список зарегистрированных обработчиков
func (bus *CommandBus) GetRegisteredHandlers() []string {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	handlers := make([]string, 0, len(bus.handlers))
	for cmdType := range bus.handlers {
		var cmd TradingCommand
		if cmdType.Kind() == reflect.Ptr {
			cmd = reflect.New(cmdType.Elem()).Interface().(TradingCommand)
		} else {
			cmd = reflect.New(cmdType).Elem().Interface().(TradingCommand)
		}
		handlers = append(handlers, cmd.GetType())
	}
	return handlers
}

// runnerHandler serves every command against a Runner.
type runnerHandler struct {
	runner *Runner
}

func (h runnerHandler) CanHandle(cmd TradingCommand) bool {
	switch cmd.(type) {
	case *TradeCommand, *SetSlippageCommand, *ReconcileCommand:
		return true
	}
	return false
}

func (h runnerHandler) Handle(ctx context.Context, cmd TradingCommand) error {
	switch c := cmd.(type) {
	case *TradeCommand:
		if c.Market.Market == nil {
			_, m, err := h.runner.Market(ctx, common.HexToAddress(c.Mint))
			if err != nil {
				return err
			}
			c.Market = m
		}
		var err error
		c.Outcome, err = h.runner.Trade(ctx, c.Market, c.Side, c.Amount, c.Market.Flow(c.Mining), c.Callbacks)
		return err
	case *SetSlippageCommand:
		return h.runner.Slippage().Set(c.Tolerance)
	case *ReconcileCommand:
		settled, err := h.runner.Reconcile(ctx, c.PerTx)
		c.Settled = settled
		return err
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}

// Commands returns a bus with every runner command registered.
func (r *Runner) Commands() *CommandBus {
	bus := NewCommandBus(r.logger)
	h := runnerHandler{runner: r}
	bus.RegisterHandler(&TradeCommand{}, h)
	bus.RegisterHandler(&SetSlippageCommand{}, h)
	bus.RegisterHandler(&ReconcileCommand{}, h)
	return bus
}
