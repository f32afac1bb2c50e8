// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat принимает "csv" или "json" в любом регистре.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (csv or json)", s)
	}
}

// ExportOptions задаёт формат, каталог и фильтры выгрузки.
type ExportOptions struct {
	Format      ExportFormat
	StartTime   time.Time
	EndTime     time.Time
	TokenFilter string // адрес токена, без учёта регистра
	SideFilter  string // buy / sell
	OnlySuccess bool
	OutputDir   string
}

// TradeExporter выгружает журнал попыток сделок в CSV или JSON.
type TradeExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{logger: logger.Named("export"), now: time.Now}
}

// ExportTrades фильтрует записи, сортирует по времени и пишет файл.
// Возвращает путь к созданному файлу.
func (te *TradeExporter) ExportTrades(entries []*bot.HistoryEntry, options ExportOptions) (string, error) {
	filtered := te.filterTrades(entries, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	if options.OutputDir == "" {
		options.OutputDir = "."
	}
	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = te.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

func (te *TradeExporter) filterTrades(entries []*bot.HistoryEntry, options ExportOptions) []*bot.HistoryEntry {
	var filtered []*bot.HistoryEntry
	for _, e := range entries {
		if e == nil {
			continue
		}
		if !options.StartTime.IsZero() && e.CreatedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && e.CreatedAt.After(options.EndTime) {
			continue
		}
		if options.TokenFilter != "" && !strings.EqualFold(e.Mint, options.TokenFilter) {
			continue
		}
		if options.SideFilter != "" && e.Side != options.SideFilter {
			continue
		}
		if options.OnlySuccess && e.State != "succeeded" {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	prefix := "trades_all"
	if options.SideFilter != "" {
		prefix = "trades_" + options.SideFilter
	}
	if token := strings.TrimPrefix(strings.ToLower(options.TokenFilter), "0x"); token != "" {
		if len(token) > 8 {
			token = token[:8]
		}
		prefix += "_" + token
	}
	return fmt.Sprintf("%s_%s.%s", prefix, te.now().Format("20060102_150405"), options.Format)
}

// CSVHeaders порядок колонок совпадает с csvRow.
func CSVHeaders() []string {
	return []string{
		"time", "id", "side", "flow", "phase", "token", "amount_in", "min_out",
		"slippage", "state", "reason", "tx_hash", "fee", "tx_url",
	}
}

func csvRow(e *bot.HistoryEntry) []string {
	return []string{
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.ID,
		e.Side,
		e.Flow,
		e.Phase,
		e.Mint,
		e.AmountIn,
		e.MinOut,
		strconv.FormatFloat(e.Tolerance, 'f', -1, 64),
		e.State,
		e.Reason,
		e.TxHash,
		e.FeeBNB,
		e.TxURL,
	}
}

func (te *TradeExporter) exportToCSV(entries []*bot.HistoryEntry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, e := range entries {
		if err := writer.Write(csvRow(e)); err != nil {
			return fmt.Errorf("failed to write trade %s: %w", e.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

type exportData struct {
	ExportTime time.Time           `json:"export_time"`
	TradeCount int                 `json:"trade_count"`
	Trades     []*bot.HistoryEntry `json:"trades"`
	Summary    ExportSummary       `json:"summary"`
}

func (te *TradeExporter) exportToJSON(entries []*bot.HistoryEntry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData{
		ExportTime: te.now().UTC(),
		TradeCount: len(entries),
		Trades:     entries,
		Summary:    CalculateSummary(entries),
	}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary сводка по выгруженным попыткам. Суммы в нативной монете,
// NativeSpent учитывает только успешные покупки.
type ExportSummary struct {
	TotalTrades  int             `json:"total_trades"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	Unsettled    int             `json:"unsettled"`
	BuyCount     int             `json:"buy_count"`
	SellCount    int             `json:"sell_count"`
	MiningCount  int             `json:"mining_count"`
	UniqueTokens int             `json:"unique_tokens"`
	NativeSpent  decimal.Decimal `json:"native_spent"`
	TotalFees    decimal.Decimal `json:"total_fees"`
	SuccessRate  float64         `json:"success_rate"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
}

// CalculateSummary ожидает записи, отсортированные по времени.
func CalculateSummary(entries []*bot.HistoryEntry) ExportSummary {
	summary := ExportSummary{TotalTrades: len(entries)}
	if len(entries) == 0 {
		return summary
	}
	summary.StartDate = entries[0].CreatedAt
	summary.EndDate = entries[len(entries)-1].CreatedAt

	tokens := make(map[string]struct{})
	for _, e := range entries {
		tokens[strings.ToLower(e.Mint)] = struct{}{}

		switch e.State {
		case "succeeded":
			summary.Succeeded++
		case "failed":
			summary.Failed++
		default:
			summary.Unsettled++
		}
		switch e.Side {
		case "buy":
			summary.BuyCount++
			if e.State == "succeeded" {
				summary.NativeSpent = summary.NativeSpent.Add(parseDecimal(e.AmountIn))
			}
		case "sell":
			summary.SellCount++
		}
		if e.Flow == "mining" {
			summary.MiningCount++
		}
		summary.TotalFees = summary.TotalFees.Add(parseDecimal(e.FeeBNB))
	}

	summary.UniqueTokens = len(tokens)
	if settled := summary.Succeeded + summary.Failed; settled > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(settled) * 100
	}
	return summary
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}
