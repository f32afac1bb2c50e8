package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/ui"
	"github.com/rovshanmuradov/origin-trader/internal/ui/screen"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <token>",
	Short: "Open the interactive trade panel for a token",
	Long: `Open the buy/sell panel for one token. The quote refreshes while an amount
is entered, balances refresh in the background, and trade progress is shown
inline. Logs go to the log file only.

Keys: tab switches buy/sell, enter submits, ctrl+s cycles slippage presets,
ctrl+e edits a custom slippage, ctrl+t toggles mining, f1 shows help.`,
	Args: cobra.ExactArgs(1),
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mint, err := bot.ParseMint(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	s := newSpinner(" Loading market...")
	_, m, err := a.runner.Market(ctx, mint)
	s.Stop()
	if err != nil {
		return err
	}
	a.runner.Start(ctx)

	log := a.log.Logger
	updates := ui.NewUpdateSender(128, log)
	defer updates.Close()
	updates.Attach(a.runner.Bus())

	poller := quote.NewPoller(a.runner.Quotes(), m.Market, a.runner.QuoteInterval(),
		quote.Broadcast(a.runner.Bus(), updates.QuoteHandler(), log), log)
	defer poller.Stop()

	unsubscribe := a.runner.Slippage().Subscribe(updates.SlippageHandler())
	defer unsubscribe()

	chain := a.runner.Chain()
	deps := screen.TradeDeps{
		Context:      ctx,
		Session:      a.runner.Session(),
		Market:       m.Market,
		Symbol:       m.Symbol(),
		NativeSymbol: chain.Symbol,
		BaseSymbol:   chain.BaseSymbol,
		Trader:       a.runner.Executor(),
		Quotes:       poller,
		Slippage:     a.runner.Slippage(),
		Balances:     a.runner.Balances().Cache(),
		Refresh:      a.runner.Balances().Notify,
		Links:        chain,
		Updates:      updates.C(),
	}

	log.Info("Starting TUI", zap.String("token", mint.Hex()), zap.String("phase", m.Market.Phase().String()))
	panel := ui.NewRecoveryHandler(log, func() (tea.Model, []tea.ProgramOption) {
		return screen.NewTrade(deps), []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	})
	if err := panel.Run(ctx); err != nil {
		return err
	}
	sent, dropped := updates.GetStats()
	quotes, stale := poller.GetStats()
	entries, reads, writes := a.runner.Balances().Cache().GetStats()
	log.Info("TUI closed",
		zap.Uint64("updates_sent", sent),
		zap.Uint64("updates_dropped", dropped),
		zap.Uint64("quotes_delivered", quotes),
		zap.Uint64("quotes_dropped", stale),
		zap.Uint64("balance_entries", entries),
		zap.Uint64("balance_reads", reads),
		zap.Uint64("balance_writes", writes),
		zap.Int("panel_restarts", panel.GetRestartCount()))
	return nil
}
