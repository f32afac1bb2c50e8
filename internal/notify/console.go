// internal/notify/console.go
package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
)

// Linker builds explorer links.
type Linker interface {
	TxURL(hash common.Hash) string
}

// Console prints trade lifecycle notifications for the terminal user.
// While a transaction is confirming a spinner runs on the same writer.
type Console struct {
	out    io.Writer
	links  Linker
	symbol string
	logger *zap.Logger

	mu      sync.Mutex
	spinner *spinner.Spinner
	subs    []events.Subscription

	ok   *color.Color
	warn *color.Color
	bad  *color.Color
	link *color.Color
}

func NewConsole(out io.Writer, links Linker, nativeSymbol string, logger *zap.Logger) *Console {
	var s *spinner.Spinner
	if f, ok := out.(*os.File); ok {
		// spinner only animates on a terminal
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(f))
	}
	return &Console{
		out:     out,
		links:   links,
		symbol:  nativeSymbol,
		logger:  logger.Named("notify"),
		spinner: s,
		ok:      color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed, color.Bold),
		link:    color.New(color.FgCyan),
	}
}

// Attach subscribes the console to trade events on bus.
func (c *Console) Attach(bus *events.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs,
		events.On(bus, events.TradeSubmitted, func(_ context.Context, e *events.TradeSubmittedEvent) error {
			c.Submitted(e.Hash, e.Side, e.Flow)
			return nil
		}),
		events.On(bus, events.TradeSucceeded, func(_ context.Context, e *events.TradeSucceededEvent) error {
			c.Succeeded(e.Hash, e.Side, e.Flow, e.FeeWei)
			return nil
		}),
		events.On(bus, events.TradeFailed, func(_ context.Context, e *events.TradeFailedEvent) error {
			c.Failed(e.Side, e.Flow, e.Reason, e.Hash)
			return nil
		}),
	)
}

// Detach drops bus subscriptions and stops the spinner.
func (c *Console) Detach() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
	c.stopSpinner()
}

func (c *Console) Submitted(hash common.Hash, side model.Side, flow string) {
	c.stopSpinner()
	c.warn.Fprintf(c.out, "⏳ %s submitted\n", label(side, flow))
	c.link.Fprintf(c.out, "   %s\n", c.links.TxURL(hash))

	c.mu.Lock()
	if c.spinner != nil {
		c.spinner.Suffix = " Waiting for confirmation..."
		c.spinner.Start()
	}
	c.mu.Unlock()
}

func (c *Console) Succeeded(hash common.Hash, side model.Side, flow string, feeWei *big.Int) {
	c.stopSpinner()
	c.ok.Fprintf(c.out, "✓ %s confirmed\n", label(side, flow))
	if feeWei != nil {
		fmt.Fprintf(c.out, "   Gas fee: %s %s\n", amount.Format(feeWei, amount.DefaultDecimals), c.symbol)
	}
	c.link.Fprintf(c.out, "   %s\n", c.links.TxURL(hash))
}

func (c *Console) Failed(side model.Side, flow, reason string, hash common.Hash) {
	c.stopSpinner()
	c.bad.Fprintf(c.out, "✗ %s failed: %s\n", label(side, flow), describe(reason))
	if hash != (common.Hash{}) {
		c.link.Fprintf(c.out, "   %s\n", c.links.TxURL(hash))
	}
}

// Quote prints an estimated output line.
func (c *Console) Quote(side model.Side, in, out, minOut *big.Int, tolerance float64) {
	fmt.Fprintf(c.out, "  %-10s %s\n", "Input:", amount.Format(in, amount.DefaultDecimals))
	fmt.Fprintf(c.out, "  %-10s %s\n", "Estimate:", c.ok.Sprint(amount.Format(out, amount.DefaultDecimals)))
	fmt.Fprintf(c.out, "  %-10s %s (%s%% slippage, %s)\n", "Minimum:", amount.Format(minOut, amount.DefaultDecimals),
		trimFloat(tolerance), side)
}

// Error prints a rejection or setup error.
func (c *Console) Error(err error) {
	c.stopSpinner()
	c.bad.Fprintf(c.out, "Error: %v\n", err)
}

func (c *Console) stopSpinner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinner != nil {
		c.spinner.Stop()
	}
}

func label(side model.Side, flow string) string {
	switch {
	case flow == "mining":
		return "Mining buy"
	case side == model.Buy:
		return "Buy"
	default:
		return "Sell"
	}
}

func describe(reason string) string {
	switch reason {
	case "approval_failed":
		return "token approval failed"
	case "action_failed":
		return "transaction failed"
	default:
		return reason
	}
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
