package screen

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/origin-trader/internal/amount"
	"github.com/rovshanmuradov/origin-trader/internal/balance"
	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/notify"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/slippage"
	"github.com/rovshanmuradov/origin-trader/internal/ui"
	"github.com/rovshanmuradov/origin-trader/internal/ui/component"
	"github.com/rovshanmuradov/origin-trader/internal/ui/style"
	"github.com/rovshanmuradov/origin-trader/internal/wallet"
)

// Trader runs attempts and exposes their state. Reset fails with
// executor.ErrAttemptInFlight while the attempt is still running.
type Trader interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Outcome, error)
	State(owner common.Address, side model.Side) executor.State
	Reset(owner common.Address, side model.Side) error
}

// QuoteFeed is the display-only quote poller.
type QuoteFeed interface {
	Update(side model.Side, amountIn *big.Int) uint64
}

// SlippageStore is the persisted tolerance.
type SlippageStore interface {
	Get() float64
	Set(v float64) error
}

// BalanceView reads cached balances.
type BalanceView interface {
	Get(owner, token common.Address) (balance.Entry, bool)
}

// TradeDeps wires the trade screen. Balances, Refresh and Updates may be nil.
type TradeDeps struct {
	Context      context.Context
	Session      wallet.Session
	Market       model.Market
	Symbol       string
	NativeSymbol string
	BaseSymbol   string
	Trader       Trader
	Quotes       QuoteFeed
	Slippage     SlippageStore
	Balances     BalanceView
	Refresh      func()
	Links        notify.Linker
	Updates      <-chan tea.Msg
}

// Trade is the buy/sell panel for one token.
type Trade struct {
	deps    TradeDeps
	keys    ui.KeyMap
	palette style.Palette
	styles  style.Styles
	help    *component.HelpBar

	amount  textinput.Model
	custom  textinput.Model
	editing bool

	side      model.Side
	mining    bool
	tolerance float64

	seq        uint64
	latest     *quote.Result
	submitting bool

	status      string
	statusStyle lipgloss.Style
	link        string
	width       int
}

func NewTrade(deps TradeDeps) *Trade {
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	palette := style.DefaultPalette()
	keys := ui.DefaultKeyMap()

	amt := textinput.New()
	amt.Placeholder = "0.0"
	amt.CharLimit = 32
	amt.Prompt = ""
	amt.Focus()

	custom := textinput.New()
	custom.Placeholder = "0.5"
	custom.CharLimit = 6
	custom.Prompt = ""

	t := &Trade{
		deps:      deps,
		keys:      keys,
		palette:   palette,
		styles:    style.NewStyles(palette),
		help:      component.NewHelpBar().SetKeyBindings(keys.ShortHelp(), keys.FullHelp()),
		amount:    amt,
		custom:    custom,
		side:      model.Buy,
		tolerance: deps.Slippage.Get(),
	}
	t.statusStyle = t.styles.Muted
	return t
}

func (t *Trade) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, t.listen())
}

func (t *Trade) listen() tea.Cmd {
	if t.deps.Updates == nil {
		return nil
	}
	return ui.Listen(t.deps.Updates)
}

func (t *Trade) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.help.SetWidth(msg.Width)
		return t, nil

	case tea.KeyMsg:
		return t.handleKey(msg)

	case ui.QuoteMsg:
		// results for a superseded input are ignored
		if msg.Result.Seq == t.seq {
			r := msg.Result
			t.latest = &r
		}
		return t, t.listen()

	case ui.SlippageMsg:
		t.tolerance = msg.Tolerance
		return t, t.listen()

	case ui.BalancesMsg:
		return t, t.listen()

	case ui.TradeEventMsg:
		t.onEvent(msg.Event)
		return t, t.listen()

	case ui.ExecutedMsg:
		t.onExecuted(msg)
		return t, nil
	}
	return t, nil
}

func (t *Trade) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, t.keys.Quit) {
		if t.busy() {
			t.setStatus(t.styles.Warning, "A trade is still running, wait for it to finish before quitting", "")
			return t, nil
		}
		return t, tea.Quit
	}
	if t.editing {
		return t.handleSlippageKey(msg)
	}

	switch {
	case key.Matches(msg, t.keys.Help):
		t.help.ToggleFull()

	case key.Matches(msg, t.keys.ToggleSide):
		t.resetAttempt(t.side)
		if t.side == model.Buy {
			t.side = model.Sell
		} else {
			t.side = model.Buy
		}
		t.mining = false
		t.requote()

	case key.Matches(msg, t.keys.ToggleMining):
		if t.canMine() {
			t.mining = !t.mining
		}

	case key.Matches(msg, t.keys.NextPreset):
		t.setTolerance(nextPreset(t.tolerance))

	case key.Matches(msg, t.keys.EditSlippage):
		t.editing = true
		t.custom.SetValue("")
		t.amount.Blur()
		return t, t.custom.Focus()

	case key.Matches(msg, t.keys.Refresh):
		t.requote()
		if t.deps.Refresh != nil {
			t.deps.Refresh()
		}

	case key.Matches(msg, t.keys.Cancel):
		if t.amount.Value() != "" {
			t.amount.SetValue("")
			t.requote()
		}

	case key.Matches(msg, t.keys.Submit):
		return t, t.submit()

	default:
		prev := t.amount.Value()
		var cmd tea.Cmd
		t.amount, cmd = t.amount.Update(msg)
		if !amount.ValidateInput(t.amount.Value()) {
			t.amount.SetValue(prev)
			t.amount.CursorEnd()
		}
		if t.amount.Value() != prev {
			t.requote()
		}
		return t, cmd
	}
	return t, nil
}

func (t *Trade) handleSlippageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, t.keys.Cancel):
		t.closeEditor()
		return t, nil
	case key.Matches(msg, t.keys.Submit):
		v, err := strconv.ParseFloat(strings.TrimSpace(t.custom.Value()), 64)
		if err != nil {
			t.setStatus(t.styles.Error, "Enter a number between 0 and 100", "")
			return t, nil
		}
		if t.setTolerance(v) {
			t.closeEditor()
		}
		return t, nil
	}
	var cmd tea.Cmd
	t.custom, cmd = t.custom.Update(msg)
	return t, cmd
}

func (t *Trade) closeEditor() {
	t.editing = false
	t.custom.Blur()
	t.amount.Focus()
}

// setTolerance stores v; on rejection the previous value stays.
func (t *Trade) setTolerance(v float64) bool {
	if err := t.deps.Slippage.Set(v); err != nil {
		t.setStatus(t.styles.Error, "Slippage must be between 0 and 100%", "")
		return false
	}
	t.tolerance = t.deps.Slippage.Get()
	t.setStatus(t.styles.Muted, fmt.Sprintf("Slippage set to %s%%", formatPercent(t.tolerance)), "")
	return true
}

func (t *Trade) requote() {
	t.latest = nil
	t.seq = t.deps.Quotes.Update(t.side, t.scaled())
}

func (t *Trade) scaled() *big.Int {
	return amount.ToBaseUnits(t.amount.Value(), amount.DefaultDecimals)
}

func (t *Trade) canMine() bool {
	return t.side == model.Buy && t.deps.Market != nil && t.deps.Market.Phase() == model.PhaseGraduated
}

func (t *Trade) flow() executor.Flow {
	if t.mining && t.canMine() {
		return executor.FlowMining
	}
	return ""
}

// minOut for the current display quote; nil when there is none.
func (t *Trade) minOut() *big.Int {
	if t.latest == nil || t.latest.Err != nil {
		return nil
	}
	if !t.latest.Quote.ValidFor(t.side, t.scaled()) {
		return nil
	}
	return slippage.ComputeMinOutput(t.latest.Quote.OutputAmount, t.tolerance)
}

// action reports whether submit is enabled and the button label.
func (t *Trade) action() (bool, string) {
	owner, ok := t.deps.Session.Address()
	if !ok {
		return false, "Log in to trade"
	}
	if t.submitting {
		return false, "Submitting..."
	}
	if st := t.deps.Trader.State(owner, t.side); st.InFlight() {
		return false, inFlightLabel(st)
	}
	if t.scaled().Sign() <= 0 {
		return false, "Enter an amount"
	}
	if t.deps.Market == nil || t.deps.Market.Validate() != nil {
		return false, "Market unavailable"
	}
	minOut := t.minOut()
	if minOut == nil {
		return false, "Quote unavailable"
	}
	if minOut.Sign() <= 0 {
		return false, "Amount too small"
	}
	switch {
	case t.flow() == executor.FlowMining:
		return true, "Mine"
	case t.side == model.Buy:
		return true, "Buy"
	default:
		return true, "Sell"
	}
}

func (t *Trade) submit() tea.Cmd {
	if ok, _ := t.action(); !ok {
		return nil
	}
	req := executor.Request{
		Side:      t.side,
		Amount:    t.scaled(),
		Market:    t.deps.Market,
		Tolerance: t.tolerance,
		Flow:      t.flow(),
	}
	t.submitting = true
	t.setStatus(t.styles.Warning, "Waiting for wallet...", "")

	ctx, trader := t.deps.Context, t.deps.Trader
	return func() tea.Msg {
		out, err := trader.Execute(ctx, req)
		return ui.ExecutedMsg{Side: req.Side, Outcome: out, Err: err}
	}
}

// busy reports whether an attempt of this wallet may still reach the chain.
func (t *Trade) busy() bool {
	if t.submitting {
		return true
	}
	owner, ok := t.deps.Session.Address()
	if !ok {
		return false
	}
	return t.deps.Trader.State(owner, model.Buy).InFlight() ||
		t.deps.Trader.State(owner, model.Sell).InFlight()
}

// resetAttempt returns a finished attempt for side to Idle. A running one is
// left alone.
func (t *Trade) resetAttempt(side model.Side) {
	owner, ok := t.deps.Session.Address()
	if !ok {
		return
	}
	// ErrAttemptInFlight: попытка дойдёт до конца сама
	_ = t.deps.Trader.Reset(owner, side)
}

func (t *Trade) onExecuted(msg ui.ExecutedMsg) {
	t.submitting = false
	var tradeErr *executor.TradeError
	// результат показан, завершённая попытка возвращается в Idle
	if errors.As(msg.Err, &tradeErr) || (msg.Outcome != nil && msg.Outcome.State.Terminal()) {
		defer t.resetAttempt(msg.Side)
	}

	switch {
	case msg.Err == nil && msg.Outcome != nil:
		t.setStatus(t.styles.Success, "✓ Trade confirmed", t.txURL(msg.Outcome.Hash))
		if msg.Outcome.ClearInput {
			t.amount.SetValue("")
			t.requote()
		}
	case errors.As(msg.Err, &tradeErr):
		text := "✗ Transaction failed"
		if tradeErr.Reason == executor.ReasonApprovalFailed {
			text = "✗ Token approval failed"
		}
		t.setStatus(t.styles.Error, text, t.txURL(tradeErr.Hash))
	case executor.IsRejection(msg.Err):
		t.setStatus(t.styles.Warning, rejectionText(msg.Err), "")
	default:
		t.setStatus(t.styles.Error, "✗ Transaction failed", "")
	}
}

func (t *Trade) onEvent(ev events.Event) {
	e, ok := ev.(*events.TradeSubmittedEvent)
	if !ok {
		return
	}
	if owner, ok := t.deps.Session.Address(); !ok || owner != e.Owner {
		return
	}
	t.setStatus(t.styles.Warning, "⏳ Transaction submitted, waiting for confirmation", t.txURL(e.Hash))
}

func (t *Trade) txURL(hash common.Hash) string {
	if hash == (common.Hash{}) || t.deps.Links == nil {
		return ""
	}
	return t.deps.Links.TxURL(hash)
}

func (t *Trade) setStatus(st lipgloss.Style, text, link string) {
	t.statusStyle = st
	t.status = text
	t.link = link
}

// Status returns the last status line; used by tests and the log pane.
func (t *Trade) Status() string {
	return t.status
}

func (t *Trade) View() string {
	var b strings.Builder

	title := t.deps.Symbol
	if t.deps.Market != nil {
		title = fmt.Sprintf("%s · %s", title, phaseLabel(t.deps.Market.Phase()))
	}
	b.WriteString(t.styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(t.renderTabs())
	b.WriteString("\n\n")

	b.WriteString(t.row("Balance", t.balanceText()))
	b.WriteString(t.row("Amount", t.amount.View()+" "+t.styles.Muted.Render(t.spendSymbol())))
	b.WriteString(t.row("You receive", t.outputText()))
	b.WriteString(t.row("Minimum", t.minText()))
	b.WriteString(t.row("Slippage", t.slippageText()))
	if t.canMine() {
		mining := "off"
		if t.mining {
			mining = "on"
		}
		b.WriteString(t.row("Mining", mining))
	}
	b.WriteString("\n")
	b.WriteString(t.renderButton())

	if t.status != "" {
		b.WriteString("\n\n")
		b.WriteString(t.statusStyle.Render(t.status))
		if t.link != "" {
			b.WriteString("\n")
			b.WriteString(t.styles.Link.Render(t.link))
		}
	}

	panel := t.styles.Panel.BorderForeground(t.palette.SideColor(t.side == model.Buy))
	if t.width > 0 {
		panel = panel.Width(style.AdaptiveWidth(t.width, 60))
	}

	help := t.help.View()
	if t.editing {
		help = t.help.ViewContextual(t.keys.EditingHelp())
	}
	return lipgloss.JoinVertical(lipgloss.Left, panel.Render(b.String()), help)
}

func (t *Trade) renderTabs() string {
	buy, sell := t.styles.Tab, t.styles.Tab
	if t.side == model.Buy {
		buy = t.styles.TabActive.Foreground(t.palette.Buy)
	} else {
		sell = t.styles.TabActive.Foreground(t.palette.Sell)
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, buy.Render("Buy"), sell.Render("Sell"))
}

func (t *Trade) renderButton() string {
	enabled, label := t.action()
	if !enabled {
		return t.styles.ButtonOff.Render(label)
	}
	return t.styles.Button.Background(t.palette.SideColor(t.side == model.Buy)).Render(label)
}

func (t *Trade) row(label, value string) string {
	return t.styles.Label.Render(label) + t.styles.Value.Render(value) + "\n"
}

func (t *Trade) balanceText() string {
	owner, ok := t.deps.Session.Address()
	if !ok || t.deps.Balances == nil || t.deps.Market == nil {
		return "-"
	}
	token := balance.Native
	if spend := t.deps.Market.Spend(t.side); !spend.Native {
		token = spend.Token
	}
	e, ok := t.deps.Balances.Get(owner, token)
	if !ok {
		return "-"
	}
	text := amount.FromBaseUnits(e.Value, amount.DefaultDecimals,
		amount.FormatOptions{Precision: amount.DefaultPrecision, Grouped: true})
	if e.Stale {
		text += t.styles.Muted.Render(" (updating)")
	}
	return text + " " + t.spendSymbol()
}

func (t *Trade) outputText() string {
	if t.scaled().Sign() <= 0 {
		return "-"
	}
	if t.latest == nil {
		return t.styles.Muted.Render("fetching...")
	}
	if t.latest.Err != nil {
		return t.styles.Muted.Render("unavailable")
	}
	return amount.Format(t.latest.Quote.OutputAmount, amount.DefaultDecimals) + " " + t.receiveSymbol()
}

func (t *Trade) minText() string {
	minOut := t.minOut()
	if minOut == nil {
		return "-"
	}
	return amount.Format(minOut, amount.DefaultDecimals) + " " + t.receiveSymbol()
}

func (t *Trade) slippageText() string {
	if t.editing {
		return t.custom.View() + "%"
	}
	var parts []string
	for _, p := range slippage.Presets {
		label := formatPercent(p) + "%"
		if p == t.tolerance {
			label = t.styles.Success.Render("[" + label + "]")
		}
		parts = append(parts, label)
	}
	if !slippage.IsPreset(t.tolerance) {
		parts = append(parts, t.styles.Success.Render("["+formatPercent(t.tolerance)+"%]"))
	}
	return strings.Join(parts, " ")
}

func (t *Trade) spendSymbol() string {
	if t.side == model.Sell {
		return t.deps.Symbol
	}
	return t.quoteSymbol()
}

func (t *Trade) receiveSymbol() string {
	if t.side == model.Buy {
		return t.deps.Symbol
	}
	return t.quoteSymbol()
}

// quoteSymbol is what the token trades against in its current phase.
func (t *Trade) quoteSymbol() string {
	if t.deps.Market != nil && t.deps.Market.Phase() == model.PhaseGraduated {
		return t.deps.BaseSymbol
	}
	return t.deps.NativeSymbol
}

func nextPreset(current float64) float64 {
	for _, p := range slippage.Presets {
		if p > current {
			return p
		}
	}
	return slippage.Presets[0]
}

func inFlightLabel(st executor.State) string {
	switch st {
	case executor.Approving:
		return "Approving..."
	case executor.Confirming:
		return "Confirming..."
	default:
		return "Submitting..."
	}
}

func rejectionText(err error) string {
	switch {
	case errors.Is(err, executor.ErrLoginRequired):
		return "Log in to trade"
	case errors.Is(err, executor.ErrInvalidAmount):
		return "Enter an amount"
	case errors.Is(err, executor.ErrMarketUnresolved):
		return "Market unavailable"
	case errors.Is(err, executor.ErrAttemptInFlight):
		return "A trade is already in progress"
	case errors.Is(err, executor.ErrZeroMinOutput):
		return "Amount too small"
	case errors.Is(err, executor.ErrInvalidFlow):
		return "Mining is only available for graduated buys"
	default:
		return "Quote unavailable, try again"
	}
}

func phaseLabel(p model.Phase) string {
	if p == model.PhaseGraduated {
		return "graduated"
	}
	return "bonding curve"
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
