package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/notify"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <buy|sell> <token> <amount>",
	Short: "Show the expected output of a trade",
	Long: `Ask the market contract what a trade would return right now. Nothing is
sent on chain. The minimum output uses the stored slippage tolerance.

Examples:
  origin-trader quote buy 0xToken 0.5
  origin-trader quote sell 0xToken 1000 --json`,
	Args: cobra.ExactArgs(3),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

type quoteResult struct {
	Token     string  `json:"token"`
	Symbol    string  `json:"symbol"`
	Phase     string  `json:"phase"`
	Side      string  `json:"side"`
	AmountIn  string  `json:"amount_in"`
	AmountOut string  `json:"amount_out"`
	MinOut    string  `json:"min_out"`
	Tolerance float64 `json:"tolerance"`
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	side, err := model.ParseSide(args[0])
	if err != nil {
		return err
	}
	mint, err := bot.ParseMint(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	s := newSpinner(" Fetching quote...")
	_, m, err := a.runner.Market(ctx, mint)
	if err != nil {
		s.Stop()
		return err
	}
	q, err := a.runner.Quote(ctx, m, side, args[2])
	s.Stop()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(quoteResult{
			Token:     mint.Hex(),
			Symbol:    m.Symbol(),
			Phase:     m.Market.Phase().String(),
			Side:      side.String(),
			AmountIn:  amount.Format(q.Quote.InputAmount, amount.DefaultDecimals),
			AmountOut: amount.Format(q.Quote.OutputAmount, amount.DefaultDecimals),
			MinOut:    amount.Format(q.MinOut, amount.DefaultDecimals),
			Tolerance: q.Tolerance,
		})
	}

	chain := a.runner.Chain()
	fmt.Printf("\n%s %s %s\n", color.CyanString("Quote"), m.Symbol(), color.New(color.Faint).Sprintf("(%s, %s)", m.Market.Phase(), side))
	notify.NewConsole(os.Stdout, chain, chain.Symbol, a.log.Logger).
		Quote(side, q.Quote.InputAmount, q.Quote.OutputAmount, q.MinOut, q.Tolerance)
	fmt.Println()
	return nil
}
