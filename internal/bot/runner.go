// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/origin-trader/internal/allowance"
	"github.com/rovshanmuradov/origin-trader/internal/balance"
	"github.com/rovshanmuradov/origin-trader/internal/blockchain/evm"
	"github.com/rovshanmuradov/origin-trader/internal/config"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/executor"
	"github.com/rovshanmuradov/origin-trader/internal/license"
	"github.com/rovshanmuradov/origin-trader/internal/marketdata"
	"github.com/rovshanmuradov/origin-trader/internal/quote"
	"github.com/rovshanmuradov/origin-trader/internal/slippage"
	"github.com/rovshanmuradov/origin-trader/internal/storage"
	"github.com/rovshanmuradov/origin-trader/internal/storage/journal"
	"github.com/rovshanmuradov/origin-trader/internal/storage/settings"
	"github.com/rovshanmuradov/origin-trader/internal/utils/logger"
	"github.com/rovshanmuradov/origin-trader/internal/wallet"
)

const (
	eventBufferSize = 256
	// holdingsPageSize bounds how many held tokens are tracked at start.
	holdingsPageSize = 50
)

// Runner owns every long-lived service of the trader and the order they are
// opened and closed in.
type Runner struct {
	logger   *zap.Logger
	config   *config.Config
	chain    config.Chain
	shutdown *ShutdownHandler

	session   *wallet.StaticSession
	client    *evm.Client
	bus       *events.Bus
	journal   storage.Journal
	store     *settings.Store
	slippage  *slippage.Settings
	quotes    *quote.Source
	executor  *executor.Executor
	api       *marketdata.Client
	prices    *marketdata.PriceFeed
	balances  *balance.Coordinator
	heartbeat func(ctx context.Context) error

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// NewRunner NewRunner: принимает cfg и logger
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:   logger,
		config:   cfg,
		chain:    cfg.Chain(),
		shutdown: NewShutdownHandler(logger, DefaultShutdownTimeout),
	}
}

// Initialize validates the license and opens every service bottom-up.
// On error everything opened so far is closed again.
func (r *Runner) Initialize(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if err := r.validateLicense(ctx); err != nil {
		return err
	}

	w, err := loadWallet(r.config)
	if err != nil {
		return err
	}
	r.session = wallet.NewSession(w)

	// a typed nil wallet would defeat the client's no-signer check
	var signer evm.Signer
	if w != nil {
		signer = w
		r.logger = logger.WithWallet(r.logger, w.Address().Hex())
		r.logger.Info("💼 Wallet loaded")
	} else {
		r.logger.Warn("No wallet configured, trading is disabled")
	}

	r.client, err = evm.Dial(ctx, r.config.RPCURL, signer, evm.Options{
		ChainID:             r.config.ChainID,
		ReceiptPoll:         r.config.ReceiptPoll(),
		ConfirmationTimeout: r.config.ConfirmationTimeout(),
	}, r.logger)
	if err != nil {
		return err
	}
	r.shutdown.Add("rpc", r.client)

	r.bus = events.NewBus(r.logger, eventBufferSize)
	r.shutdown.AddFunc("event-bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st := r.bus.Stats()
		r.logger.Debug("Closing event bus",
			zap.Int("pending", st.PendingEvents),
			zap.Int("subscribers", st.Subscribers))
		return r.bus.Shutdown(ctx)
	})

	r.store, err = settings.Open(settings.OpenOptions{Path: r.config.SettingsDir})
	if err != nil {
		return err
	}
	r.shutdown.Add("settings", r.store)

	r.slippage, err = slippage.NewSettings(r.store, r.logger)
	if err != nil {
		return err
	}
	unsubscribe := r.slippage.Subscribe(func(v float64) {
		_ = r.bus.Publish(&events.SlippageChangedEvent{
			BaseEvent: events.NewBase(events.SlippageChanged),
			Tolerance: v,
		})
	})
	r.shutdown.AddFunc("slippage-subscription", func() error {
		unsubscribe()
		return nil
	})

	r.journal, err = journal.Open(ctx, r.config.JournalPath, r.logger)
	if err != nil {
		return err
	}
	r.shutdown.Add("journal", r.journal)

	r.quotes = quote.NewSource(r.client, r.logger)
	r.executor, err = executor.New(executor.Dependencies{
		Session:   r.session,
		Chain:     r.client,
		Quotes:    r.quotes,
		Allowance: allowance.NewManager(r.client, r.logger),
		Bus:       r.bus,
		Journal:   r.journal,
	}, r.logger)
	if err != nil {
		return err
	}
	// закрывается раньше журнала и RPC: попытки в полёте доходят до конца
	r.shutdown.AddFunc("executor", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), r.shutdown.timeout)
		defer cancel()
		return r.executor.Wait(ctx)
	})

	opts := marketdata.DefaultOptions()
	opts.RequestsPerSecond = r.config.APIRateLimit
	r.api = marketdata.NewClient(r.config.APIBaseURL, opts, r.logger)
	r.prices = marketdata.NewPriceFeed(r.api, r.chain.WrappedNative, r.config.PriceInterval(), r.logger)

	r.balances = balance.NewCoordinator(r.client, r.session, r.prices, balance.Options{
		TokenInterval:  r.config.BalanceInterval(),
		NativeInterval: r.config.NativeBalanceInterval(),
		BaseToken:      r.chain.Contracts.BaseToken,
	}, r.logger)
	sub := r.balances.Attach(r.bus)
	r.shutdown.AddFunc("balance-subscription", func() error {
		sub.Unsubscribe()
		return nil
	})

	r.logger.Info("✅ Trader initialized",
		zap.String("chain", r.chain.Name),
		zap.Int64("chain_id", r.chain.ID))
	return nil
}

func (r *Runner) validateLicense(ctx context.Context) error {
	v := license.NewKeygenValidator(license.Config{
		Key:     r.config.License,
		Account: r.config.Keygen.Account,
		Product: r.config.Keygen.Product,
		Token:   r.config.Keygen.Token,
	}, r.logger)
	if err := v.ValidateLicense(ctx); err != nil {
		return fmt.Errorf("license validation failed: %w", err)
	}
	if r.config.License != "" {
		r.heartbeat = v.HeartbeatLicense
	}
	return nil
}

// loadWallet returns nil without error when no key material is configured.
func loadWallet(cfg *config.Config) (*wallet.Wallet, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKey) != "":
		w, err := wallet.NewWallet(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load wallet: %w", err)
		}
		return w, nil
	case strings.TrimSpace(cfg.Mnemonic) != "":
		w, err := wallet.FromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
		if err != nil {
			return nil, fmt.Errorf("derive wallet: %w", err)
		}
		return w, nil
	case strings.TrimSpace(cfg.WalletsFile) != "":
		return pickWallet(cfg.WalletsFile, cfg.WalletName)
	default:
		return nil, nil
	}
}

// pickWallet берёт кошелёк по имени из CSV; имя можно опустить, если кошелёк один.
func pickWallet(path, name string) (*wallet.Wallet, error) {
	wallets, err := wallet.LoadWallets(path)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		if len(wallets) == 1 {
			for _, w := range wallets {
				return w, nil
			}
		}
		return nil, fmt.Errorf("%s holds %d wallets, set wallet_name", path, len(wallets))
	}
	w, ok := wallets[name]
	if !ok {
		return nil, fmt.Errorf("wallet %q not found in %s", name, path)
	}
	return w, nil
}

// Start launches the background loops: price feed, balance coordinator and
// the license heartbeat. They stop on Close or when ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.trackHoldings(ctx)

	r.bg.Add(2)
	go func() {
		defer r.bg.Done()
		r.prices.Run(ctx)
	}()
	go func() {
		defer r.bg.Done()
		if err := r.balances.Run(ctx); err != nil {
			r.logger.Error("Balance coordinator stopped", zap.Error(err))
		}
	}()
	if r.heartbeat != nil {
		r.bg.Add(1)
		go func() {
			defer r.bg.Done()
			r.runHeartbeat(ctx)
		}()
	}

	r.shutdown.AddFunc("background", func() error {
		r.cancel()
		r.bg.Wait()
		return nil
	})
}

func (r *Runner) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.heartbeat(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("License heartbeat failed", zap.Error(err))
			}
		}
	}
}

// trackHoldings adds the first page of tokens the wallet holds to the
// balance set. Failure only means fewer balances are polled.
func (r *Runner) trackHoldings(ctx context.Context) {
	owner, ok := r.session.Address()
	if !ok {
		return
	}
	page, err := r.api.HolderCoins(ctx, owner, marketdata.ListParams{PageSize: holdingsPageSize})
	if err != nil {
		r.logger.Warn("Holdings not loaded", zap.Error(err))
		return
	}
	tokens := make([]common.Address, 0, len(page.List))
	for _, c := range page.List {
		if a := c.Address(); a != (common.Address{}) {
			tokens = append(tokens, a)
		}
	}
	r.balances.Track(tokens...)
	r.logger.Debug("Tracking holdings", zap.Int("tokens", len(tokens)))
}

// Market loads the coin record and resolves its market variant. The token
// joins the tracked balance set.
func (r *Runner) Market(ctx context.Context, mint common.Address) (marketdata.Coin, Market, error) {
	coin, m, err := r.api.FetchMarket(ctx, mint, r.chain.Contracts)
	if err != nil {
		return coin, Market{}, fmt.Errorf("resolve market %s: %w", mint.Hex(), err)
	}
	r.balances.Track(mint)
	return coin, Market{Coin: coin, Market: m}, nil
}

// Quote returns the contract quote for a display amount together with the
// minimum output at the current tolerance.
func (r *Runner) Quote(ctx context.Context, m Market, side Side, display string) (QuoteView, error) {
	amountIn, err := parseAmount(display)
	if err != nil {
		return QuoteView{}, err
	}
	q, err := r.quotes.GetQuote(ctx, side, amountIn, m.Market)
	if err != nil {
		return QuoteView{}, err
	}
	tol := r.slippage.Get()
	return QuoteView{
		Quote:     q,
		MinOut:    slippage.ComputeMinOutput(q.OutputAmount, tol),
		Tolerance: tol,
	}, nil
}

// Trade executes one attempt at the stored tolerance.
func (r *Runner) Trade(ctx context.Context, m Market, side Side, display string, flow executor.Flow, cb executor.Callbacks) (*executor.Outcome, error) {
	amountIn, err := parseAmount(display)
	if err != nil {
		return nil, err
	}
	return r.executor.Execute(ctx, executor.Request{
		Side:      side,
		Amount:    amountIn,
		Market:    m.Market,
		Tolerance: r.slippage.Get(),
		Flow:      flow,
		Callbacks: cb,
	})
}

// History lists journalled attempts of the logged-in wallet, newest first.
func (r *Runner) History(ctx context.Context, limit, offset int) ([]*HistoryEntry, error) {
	owner, ok := r.session.Address()
	if !ok {
		return nil, executor.ErrLoginRequired
	}
	list, err := r.journal.ListAttempts(ctx, owner.Hex(), limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoryEntry, 0, len(list))
	for _, a := range list {
		out = append(out, newHistoryEntry(a, r.chain))
	}
	return out, nil
}

// Reconcile settles attempts left in Confirming by a previous run. Each
// unsettled hash gets perTx to produce a receipt.
func (r *Runner) Reconcile(ctx context.Context, perTx time.Duration) ([]*HistoryEntry, error) {
	defer logger.TrackPerformance(r.logger, "reconcile")()
	list, err := r.executor.Reconcile(ctx, perTx)
	out := make([]*HistoryEntry, 0, len(list))
	for _, a := range list {
		out = append(out, newHistoryEntry(a, r.chain))
	}
	return out, err
}

// RefreshBalances fetches native and tracked balances once, together with
// prices, so the aggregate value is current.
func (r *Runner) RefreshBalances(ctx context.Context) error {
	defer logger.TrackPerformance(r.logger, "refresh_balances")()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.prices.Refresh(gctx); err != nil {
			// balances are still useful without prices
			r.logger.Warn("Price refresh failed", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return r.balances.Refresh(gctx)
	})
	return g.Wait()
}

// Close stops background loops and closes services in reverse order.
func (r *Runner) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdown.timeout)
	defer cancel()
	return r.shutdown.Shutdown(ctx)
}

// Wait blocks until a shutdown signal or ctx is done, then closes everything.
func (r *Runner) Wait(ctx context.Context) error {
	return r.shutdown.HandleShutdown(ctx)
}

func (r *Runner) Chain() config.Chain { return r.chain }
func (r *Runner) Session() *wallet.StaticSession { return r.session }
func (r *Runner) Bus() *events.Bus { return r.bus }
func (r *Runner) Executor() *executor.Executor { return r.executor }
func (r *Runner) Quotes() *quote.Source { return r.quotes }
func (r *Runner) Slippage() *slippage.Settings { return r.slippage }
func (r *Runner) Balances() *balance.Coordinator { return r.balances }
func (r *Runner) Logger() *zap.Logger { return r.logger }
func (r *Runner) QuoteInterval() time.Duration { return r.config.QuoteInterval() }
func (r *Runner) ConfirmationTimeout() time.Duration { return r.config.ConfirmationTimeout() }

// ErrNoMint is returned when a command is given no token address.
var ErrNoMint = errors.New("token address is required")

// ParseMint validates a token address argument.
func ParseMint(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, ErrNoMint
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid token address %q", s)
	}
	return common.HexToAddress(s), nil
}
