package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
)

const (
	tokenA = "0xAaAa000000000000000000000000000000000001"
	tokenB = "0xbBbB000000000000000000000000000000000002"
)

func generateTestTrades() []*bot.HistoryEntry {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*bot.HistoryEntry{
		{ID: "3", Side: "sell", Flow: "swap", Phase: "graduated", Mint: tokenB, AmountIn: "500", MinOut: "0.2", Tolerance: 3, State: "failed", Reason: "approval_failed", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "1", Side: "buy", Flow: "trade", Phase: "bonding", Mint: tokenA, AmountIn: "0.5", MinOut: "990", Tolerance: 1, State: "succeeded", TxHash: "0x01", FeeBNB: "0.0001", CreatedAt: base},
		{ID: "2", Side: "buy", Flow: "mining", Phase: "graduated", Mint: tokenB, AmountIn: "1.25", MinOut: "100", Tolerance: 5, State: "succeeded", TxHash: "0x02", FeeBNB: "0.0002", CreatedAt: base.Add(time.Hour)},
		{ID: "4", Side: "sell", Flow: "trade", Phase: "bonding", Mint: tokenA, AmountIn: "10", MinOut: "0.01", Tolerance: 1, State: "confirming", TxHash: "0x04", CreatedAt: base.Add(3 * time.Hour)},
	}
}

func newExporter(t *testing.T) *TradeExporter {
	te := NewTradeExporter(zaptest.NewLogger(t))
	te.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }
	return te
}

func TestTradeExportCSV(t *testing.T) {
	te := newExporter(t)
	dir := t.TempDir()

	path, err := te.ExportTrades(generateTestTrades(), ExportOptions{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trades_all_20260302_083000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 5)
	assert.Equal(t, CSVHeaders(), records[0])
	// по времени, а не в порядке входа
	assert.Equal(t, "1", records[1][1])
	assert.Equal(t, "4", records[4][1])
	assert.Equal(t, "approval_failed", records[3][10])
	assert.Equal(t, "2026-03-01T12:00:00Z", records[1][0])
}

func TestTradeExportJSON(t *testing.T) {
	te := newExporter(t)
	path, err := te.ExportTrades(generateTestTrades(), ExportOptions{Format: FormatJSON, OutputDir: t.TempDir()})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		TradeCount int `json:"trade_count"`
		Trades     []struct {
			ID    string `json:"id"`
			Token string `json:"token"`
		} `json:"trades"`
		Summary struct {
			TotalTrades int    `json:"total_trades"`
			TotalFees   string `json:"total_fees"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 4, got.TradeCount)
	assert.Equal(t, 4, got.Summary.TotalTrades)
	assert.Equal(t, "0.0003", got.Summary.TotalFees)
	assert.Equal(t, tokenA, got.Trades[0].Token)
}

func TestTradeExportFilters(t *testing.T) {
	te := newExporter(t)
	trades := generateTestTrades()

	tests := []struct {
		name    string
		options ExportOptions
		want    []string
	}{
		{"side", ExportOptions{SideFilter: "buy"}, []string{"1", "2"}},
		{"token case-insensitive", ExportOptions{TokenFilter: "0xaaaa000000000000000000000000000000000001"}, []string{"1", "4"}},
		{"only success", ExportOptions{OnlySuccess: true}, []string{"1", "2"}},
		{"time window", ExportOptions{
			StartTime: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
		}, []string{"2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, e := range te.filterTrades(trades, tt.options) {
				ids = append(ids, e.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestTradeExportNoMatch(t *testing.T) {
	te := newExporter(t)
	_, err := te.ExportTrades(generateTestTrades(), ExportOptions{Format: FormatCSV, SideFilter: "none", OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestTradeExportUnsupportedFormat(t *testing.T) {
	te := newExporter(t)
	_, err := te.ExportTrades(generateTestTrades(), ExportOptions{Format: "xml", OutputDir: t.TempDir()})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestGenerateFilename(t *testing.T) {
	te := newExporter(t)
	assert.Equal(t, "trades_sell_aaaa0000_20260302_083000.json",
		te.generateFilename(ExportOptions{Format: FormatJSON, SideFilter: "sell", TokenFilter: tokenA}))
}

func TestCalculateSummary(t *testing.T) {
	sorted := generateTestTrades()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	s := CalculateSummary(sorted)
	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Unsettled)
	assert.Equal(t, 2, s.BuyCount)
	assert.Equal(t, 2, s.SellCount)
	assert.Equal(t, 1, s.MiningCount)
	assert.Equal(t, 2, s.UniqueTokens)
	assert.Equal(t, "1.75", s.NativeSpent.String())
	assert.Equal(t, "0.0003", s.TotalFees.String())
	assert.InDelta(t, 66.67, s.SuccessRate, 0.01)
	assert.Equal(t, "1", sorted[0].ID)
	assert.Equal(t, sorted[0].CreatedAt, s.StartDate)
	assert.Equal(t, sorted[3].CreatedAt, s.EndDate)
}

func TestCalculateSummaryEmpty(t *testing.T) {
	s := CalculateSummary(nil)
	assert.Zero(t, s.TotalTrades)
	assert.True(t, s.NativeSpent.IsZero())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
