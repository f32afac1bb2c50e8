package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/slippage"
)

var slippageCmd = &cobra.Command{
	Use:   "slippage",
	Short: "Show the stored slippage tolerance",
	Long: `Show the slippage tolerance applied to every trade. The minimum output of
a trade is the quoted output reduced by this percentage.`,
	Args: cobra.NoArgs,
	RunE: runSlippageGet,
}

var slippageSetCmd = &cobra.Command{
	Use:   "set <percent>",
	Short: "Store a new slippage tolerance",
	Long: `Store a slippage tolerance in percent. Any value above 0 and below 100 is
accepted; 1, 3 and 5 are the presets.

Examples:
  origin-trader slippage set 3
  origin-trader slippage set 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runSlippageSet,
}

func init() {
	rootCmd.AddCommand(slippageCmd)
	slippageCmd.AddCommand(slippageSetCmd)
}

type slippageResult struct {
	Tolerance float64   `json:"tolerance"`
	Preset    bool      `json:"preset"`
	Presets   []float64 `json:"presets"`
}

func runSlippageGet(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	printSlippage(a.runner.Slippage().Get())
	return nil
}

func runSlippageSet(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(args[0]), "%"), 64)
	if err != nil {
		return fmt.Errorf("%w: %q", slippage.ErrInvalidTolerance, args[0])
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.runner.Commands().Send(cmd.Context(), &bot.SetSlippageCommand{Tolerance: v}); err != nil {
		return err
	}
	if !jsonOutput {
		printSuccess(fmt.Sprintf("✓ Slippage set to %g%%", v))
		return nil
	}
	printSlippage(a.runner.Slippage().Get())
	return nil
}

func printSlippage(v float64) {
	if jsonOutput {
		_ = printJSON(slippageResult{Tolerance: v, Preset: slippage.IsPreset(v), Presets: slippage.Presets})
		return
	}
	kind := "custom"
	if slippage.IsPreset(v) {
		kind = "preset"
	}
	fmt.Printf("\nSlippage: %s %s\n\n", color.GreenString("%g%%", v), color.New(color.Faint).Sprint("("+kind+")"))
}
