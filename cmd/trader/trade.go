package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/notify"
)

var buyCmd = &cobra.Command{
	Use:   "buy <token> <amount>",
	Short: "Buy a token",
	Long: `Buy a token with the chain coin (bonding curve) or the base token (router).
The amount is what you spend. Approval of the base token is sent first when
the router allowance is short.

Examples:
  origin-trader buy 0xToken 0.1
  origin-trader buy 0xToken 0.1 --yes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, args, model.Buy, false)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <token> <amount>",
	Short: "Sell a token",
	Long: `Sell an amount of a token. The token is approved to the market contract
first when the allowance is short.

Examples:
  origin-trader sell 0xToken 1500`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, args, model.Sell, false)
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine <token> <amount>",
	Short: "Buy a graduated token through the mining flow",
	Long: `Buy a graduated token through the router mining flow. The buy accrues a
mining share. Tokens still on the bonding curve cannot be mined.

Examples:
  origin-trader mine 0xToken 2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, args, model.Buy, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, sellCmd, mineCmd} {
		rootCmd.AddCommand(c)
		c.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	}
}

// tradeResult is the --json shape of a finished attempt.
type tradeResult struct {
	AttemptID    string  `json:"attempt_id"`
	Side         string  `json:"side"`
	Flow         string  `json:"flow"`
	State        string  `json:"state"`
	Reason       string  `json:"reason,omitempty"`
	AmountIn     string  `json:"amount_in"`
	QuotedOut    string  `json:"quoted_out"`
	MinOut       string  `json:"min_out"`
	Tolerance    float64 `json:"tolerance"`
	ApprovalHash string  `json:"approval_hash,omitempty"`
	TxHash       string  `json:"tx_hash,omitempty"`
	TxURL        string  `json:"tx_url,omitempty"`
	Fee          string  `json:"fee,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func runTrade(cmd *cobra.Command, args []string, side model.Side, mining bool) error {
	ctx := cmd.Context()
	mint, err := bot.ParseMint(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	chain := a.runner.Chain()
	console := notify.NewConsole(os.Stdout, chain, chain.Symbol, a.log.Logger)

	s := newSpinner(" Fetching quote...")
	_, m, err := a.runner.Market(ctx, mint)
	if err != nil {
		s.Stop()
		return err
	}
	if mining && !m.Graduated() {
		s.Stop()
		return fmt.Errorf("%s is still on the bonding curve; mining opens after graduation", m.Symbol())
	}
	preview, err := a.runner.Quote(ctx, m, side, args[1])
	s.Stop()
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Printf("\n%s %s (%s)\n", color.CyanString(sideTitle(side, mining)), m.Symbol(), m.Market.Phase())
		console.Quote(side, preview.Quote.InputAmount, preview.Quote.OutputAmount, preview.MinOut, preview.Tolerance)
	}
	if !confirm("Proceed with this trade?") {
		color.Yellow("Trade cancelled")
		return nil
	}

	tc := &bot.TradeCommand{
		Mint:   mint.Hex(),
		Side:   side,
		Amount: args[1],
		Mining: mining,
		Market: m,
	}
	if !jsonOutput {
		tc.Callbacks.OnSubmitted = func(hash common.Hash, side model.Side) {
			console.Submitted(hash, side, string(flowOf(tc)))
		}
	}

	err = a.runner.Commands().Send(ctx, tc)
	if jsonOutput {
		res := newTradeResult(tc, chain, err)
		res.Tolerance = preview.Tolerance
		if jerr := printJSON(res); jerr != nil {
			return jerr
		}
		if err != nil {
			return errReported
		}
		return nil
	}

	var tradeErr *executor.TradeError
	switch {
	case errors.As(err, &tradeErr):
		console.Failed(side, string(flowOf(tc)), string(tradeErr.Reason), tradeErr.Hash)
		return errReported
	case err != nil:
		printError(errors.New(executor.Summary(err)))
		return errReported
	}

	out := tc.Outcome
	console.Succeeded(out.Hash, out.Side, string(out.Flow), out.FeeWei)
	return nil
}

func flowOf(tc *bot.TradeCommand) executor.Flow {
	if tc.Outcome != nil {
		return tc.Outcome.Flow
	}
	if tc.Mining {
		return executor.FlowMining
	}
	if tc.Market.Market != nil && tc.Market.Graduated() {
		return executor.FlowSwap
	}
	return executor.FlowTrade
}

func sideTitle(side model.Side, mining bool) string {
	switch {
	case mining:
		return "Mining buy"
	case side == model.Buy:
		return "Buy"
	default:
		return "Sell"
	}
}

type chainLinks interface {
	TxURL(hash common.Hash) string
}

func newTradeResult(tc *bot.TradeCommand, links chainLinks, err error) tradeResult {
	r := tradeResult{
		Side: tc.Side.String(),
		Flow: string(flowOf(tc)),
	}
	if err != nil {
		r.Error = executor.Summary(err)
		r.State = "rejected"
		var tradeErr *executor.TradeError
		if errors.As(err, &tradeErr) {
			r.State = executor.Failed.String()
			r.Reason = string(tradeErr.Reason)
			if tradeErr.Hash != (common.Hash{}) {
				r.TxHash = tradeErr.Hash.Hex()
				r.TxURL = links.TxURL(tradeErr.Hash)
			}
		}
	}

	out := tc.Outcome
	if out == nil {
		return r
	}
	r.AttemptID = out.AttemptID
	r.State = out.State.String()
	r.Reason = string(out.Reason)
	r.AmountIn = amount.Format(out.Quote.InputAmount, amount.DefaultDecimals)
	r.QuotedOut = amount.Format(out.Quote.OutputAmount, amount.DefaultDecimals)
	r.MinOut = amount.Format(out.MinOut, amount.DefaultDecimals)
	if out.ApprovalHash != (common.Hash{}) {
		r.ApprovalHash = out.ApprovalHash.Hex()
	}
	if out.Hash != (common.Hash{}) {
		r.TxHash = out.Hash.Hex()
		r.TxURL = links.TxURL(out.Hash)
	}
	if out.FeeWei != nil {
		r.Fee = amount.Format(out.FeeWei, amount.DefaultDecimals)
	}
	return r
}
