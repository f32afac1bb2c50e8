package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/export"
	"github.com/rovshanmuradov/origin-trader/internal/ui/style"
)

var (
	historyLimit  int
	historyOffset int
	reconcilePer  time.Duration

	exportFormat  string
	exportDir     string
	exportToken   string
	exportSide    string
	exportSince   string
	exportSuccess bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journalled trade attempts of the wallet",
	Long: `List trade attempts recorded in the local journal, newest first. Every
attempt that reached a state worth keeping is there, including failures.

Examples:
  origin-trader history
  origin-trader history --limit 50 --offset 50 --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle attempts left confirming by an earlier run",
	Long: `Look up the receipt of every journalled attempt that has a transaction
hash but no final state, and record whether it succeeded or failed. Attempts
whose receipt does not appear within --per-tx are left as they are.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the trade journal to a CSV or JSON file",
	Long: `Write every journalled attempt of the wallet to a file, oldest first. The
JSON form carries a summary: counts by state and side, unique tokens, native
spent on successful buys and total fees.

Examples:
  origin-trader history export
  origin-trader history export --format json --side buy --success
  origin-trader history export --since 2026-01-01 --out ./reports`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reconcileCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of attempts to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of attempts to skip")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Output format: csv or json")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "exports", "Output directory")
	exportCmd.Flags().StringVar(&exportToken, "token", "", "Only attempts for this token")
	exportCmd.Flags().StringVar(&exportSide, "side", "", "Only buy or sell attempts")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only attempts on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().BoolVar(&exportSuccess, "success", false, "Only succeeded attempts")
	reconcileCmd.Flags().DurationVar(&reconcilePer, "per-tx", 30*time.Second, "Receipt wait per transaction")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.runner.History(cmd.Context(), historyLimit, historyOffset)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(list)
	}
	if len(list) == 0 {
		color.Yellow("\nNo trades recorded yet\n")
		return nil
	}
	fmt.Println(historyTable(list))
	return nil
}

const exportPageSize = 200

func runExport(cmd *cobra.Command, _ []string) error {
	opts, err := exportOptions()
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	var all []*bot.HistoryEntry
	for offset := 0; ; offset += exportPageSize {
		page, err := a.runner.History(cmd.Context(), exportPageSize, offset)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	path, err := export.NewTradeExporter(a.log.Logger).ExportTrades(all, opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"file": path})
	}
	printSuccess("✓ Exported to " + path)
	return nil
}

func exportOptions() (export.ExportOptions, error) {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return export.ExportOptions{}, err
	}
	opts := export.ExportOptions{
		Format:      format,
		OutputDir:   exportDir,
		OnlySuccess: exportSuccess,
	}
	if exportSide != "" {
		side, err := model.ParseSide(exportSide)
		if err != nil {
			return opts, err
		}
		opts.SideFilter = side.String()
	}
	if exportToken != "" {
		mint, err := bot.ParseMint(exportToken)
		if err != nil {
			return opts, err
		}
		opts.TokenFilter = mint.Hex()
	}
	if exportSince != "" {
		since, err := time.ParseInLocation(time.DateOnly, exportSince, time.Local)
		if err != nil {
			return opts, fmt.Errorf("invalid --since %q: want YYYY-MM-DD", exportSince)
		}
		opts.StartTime = since
	}
	return opts, nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	s := newSpinner(" Looking up receipts...")
	rc := &bot.ReconcileCommand{PerTx: reconcilePer}
	err = a.runner.Commands().Send(cmd.Context(), rc)
	s.Stop()

	if jsonOutput {
		if jerr := printJSON(rc.Settled); jerr != nil {
			return jerr
		}
		return err
	}
	if len(rc.Settled) == 0 && err == nil {
		printSuccess("Nothing to reconcile")
		return nil
	}
	if len(rc.Settled) > 0 {
		fmt.Println(historyTable(rc.Settled))
	}
	if err != nil {
		// some hashes are still pending
		color.Yellow("Some attempts are still unsettled: %v", err)
	}
	return nil
}

func historyTable(list []*bot.HistoryEntry) string {
	p := style.DefaultPalette()
	header := lipgloss.NewStyle().Bold(true).Foreground(p.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(list))
	for _, e := range list {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("01-02 15:04:05"),
			e.Side,
			e.Flow,
			shortHex(e.Mint),
			e.AmountIn,
			e.MinOut,
			fmt.Sprintf("%g%%", e.Tolerance),
			stateLabel(e),
			shortHex(e.TxHash),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(p.TextMuted)).
		Headers("TIME", "SIDE", "FLOW", "TOKEN", "IN", "MIN OUT", "SLIP", "STATE", "TX").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 7 && row >= 0 && row < len(list) {
				return cell.Foreground(stateColor(p, list[row].State))
			}
			return cell
		})
	return t.Render()
}

func stateLabel(e *bot.HistoryEntry) string {
	if e.Reason != "" {
		return e.State + " (" + e.Reason + ")"
	}
	return e.State
}

func stateColor(p style.Palette, state string) lipgloss.TerminalColor {
	switch state {
	case "succeeded":
		return p.Success
	case "failed":
		return p.Error
	default:
		return p.Warning
	}
}

func shortHex(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}
