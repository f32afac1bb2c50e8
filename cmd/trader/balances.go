package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/balance"
	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/notify"
)

var balancesCmd = &cobra.Command{
	Use:   "balances [token...]",
	Short: "Show wallet balances and estimated value",
	Long: `Fetch the native balance, the base token and every token the wallet holds
on the platform, plus any tokens given as arguments, and value them with the
latest platform prices.`,
	RunE: runBalances,
}

var watchCmd = &cobra.Command{
	Use:   "watch [token...]",
	Short: "Keep balances fresh and print trade events until interrupted",
	Long: `Run the background refresh loops and print every balance refresh and
trade event as it happens. Stops on Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(watchCmd)
}

type holdingResult struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Price   string `json:"price,omitempty"`
	Value   string `json:"value,omitempty"`
}

type balancesResult struct {
	Owner    string          `json:"owner"`
	Native   string          `json:"native"`
	Holdings []holdingResult `json:"holdings"`
	Total    string          `json:"total"`
	Unpriced int             `json:"unpriced"`
	Stale    bool            `json:"stale"`
}

func trackArgs(r *bot.Runner, args []string) error {
	for _, arg := range args {
		mint, err := bot.ParseMint(arg)
		if err != nil {
			return err
		}
		r.Balances().Track(mint)
	}
	return nil
}

func runBalances(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, ok := a.runner.Session().Address()
	if !ok {
		return executor.ErrLoginRequired
	}
	if err := trackArgs(a.runner, args); err != nil {
		return err
	}

	s := newSpinner(" Fetching balances...")
	err = a.runner.RefreshBalances(ctx)
	s.Stop()
	if err != nil {
		// partial results are still printed, entries that failed are missing
		a.log.Warn("Balance refresh incomplete", zap.Error(err))
	}

	res := buildBalances(a.runner.Balances().Cache(), owner)
	if jsonOutput {
		return printJSON(res)
	}
	printBalances(res, a.runner.Chain().Symbol)
	if err != nil {
		color.Yellow("Some balances could not be read: %v\n", err)
	}
	return nil
}

func buildBalances(cache *balance.Cache, owner common.Address) balancesResult {
	snap := cache.Snapshot(owner)
	res := balancesResult{
		Owner:  owner.Hex(),
		Native: amount.Format(snap.Native.Value, amount.DefaultDecimals),
	}
	agg, ok := cache.Aggregate(owner)
	if ok {
		res.Total = agg.Total.StringFixed(2)
		res.Unpriced = agg.Unpriced
		res.Stale = agg.Stale
	}

	priced := make(map[common.Address]balance.Holding, len(agg.Holdings))
	for _, h := range agg.Holdings {
		priced[h.Token] = h
	}
	for token, e := range snap.Tokens {
		if e.Value == nil || e.Value.Sign() == 0 {
			continue
		}
		h := holdingResult{
			Token:   token.Hex(),
			Balance: amount.FromBaseUnits(e.Value, amount.DefaultDecimals, amount.FormatOptions{Precision: amount.DefaultPrecision, Grouped: true}),
		}
		if p, ok := priced[token]; ok && p.Priced {
			h.Price = p.Price.String()
			h.Value = p.Value.StringFixed(2)
		}
		res.Holdings = append(res.Holdings, h)
	}
	sort.Slice(res.Holdings, func(i, j int) bool { return res.Holdings[i].Token < res.Holdings[j].Token })
	return res
}

func printBalances(res balancesResult, symbol string) {
	fmt.Printf("\n%s %s\n", color.CyanString("Wallet"), res.Owner)
	fmt.Printf("  %-14s %s %s\n", symbol+":", res.Native, symbol)
	for _, h := range res.Holdings {
		line := fmt.Sprintf("  %-14s %s", shortHex(h.Token)+":", h.Balance)
		if h.Value != "" {
			line += color.New(color.Faint).Sprintf("  ≈ $%s", h.Value)
		}
		fmt.Println(line)
	}
	if res.Total != "" {
		total := fmt.Sprintf("$%s", res.Total)
		if res.Unpriced > 0 {
			total += fmt.Sprintf(" (%d unpriced)", res.Unpriced)
		}
		fmt.Printf("  %-14s %s\n", "Total:", color.GreenString(total))
	}
	fmt.Println()
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := trackArgs(a.runner, args); err != nil {
		return err
	}

	chain := a.runner.Chain()
	console := notify.NewConsole(os.Stdout, chain, chain.Symbol, a.log.Logger)
	console.Attach(a.runner.Bus())
	defer console.Detach()

	sub := events.On(a.runner.Bus(), events.BalancesRefreshed, func(_ context.Context, e *events.BalancesRefreshedEvent) error {
		if jsonOutput {
			return printJSON(buildBalances(a.runner.Balances().Cache(), e.Owner))
		}
		fmt.Printf("%s %s %s\n", color.New(color.Faint).Sprint(e.Timestamp().Format("15:04:05")),
			chain.Symbol, amount.Format(e.Native, amount.DefaultDecimals))
		return nil
	})
	defer sub.Unsubscribe()

	a.runner.Start(ctx)
	color.Cyan("Watching %s on %s, Ctrl+C to stop\n", addressOrNone(a.runner), chain.Name)
	return a.runner.Wait(ctx)
}

func addressOrNone(r *bot.Runner) string {
	if owner, ok := r.Session().Address(); ok {
		return owner.Hex()
	}
	return "no wallet"
}
