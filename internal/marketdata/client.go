// internal/marketdata/client.go
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pathCoinShow    = "/originfun/coin_show"
	pathCoinList    = "/originfun/coin_list"
	pathAssetConfig = "/originfun/query/chain_asset_config"
	pathHolderCoins = "/originfun/holder/coins"
)

var (
	// ErrAPI is returned when the API answers with a non-success code.
	ErrAPI = errors.New("market data api error")
	// ErrNotFound is returned by CoinShow for an unknown mint.
	ErrNotFound = errors.New("coin not found")
)

// Options configure the HTTP client.
type Options struct {
	Timeout    time.Duration
	RetryCount int
	// RequestsPerSecond caps outgoing calls; 0 disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// DefaultOptions returns sane client settings.
func DefaultOptions() Options {
	return Options{
		Timeout:           15 * time.Second,
		RetryCount:        3,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// Client is the read-only platform API client.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts Options, logger *zap.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{logger: logger.Named("marketdata")}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	c.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if c.limiter == nil {
				return nil
			}
			return c.limiter.Wait(r.Context())
		})
	return c
}

func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var (
		env  envelope[T]
		zero T
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		Post(path)
	if err != nil {
		c.logger.Debug("Request failed", zap.String("path", path), zap.Error(err))
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	if resp.IsError() {
		return zero, fmt.Errorf("%w: %s: http %d", ErrAPI, path, resp.StatusCode())
	}
	if !env.ok() {
		return zero, fmt.Errorf("%w: %s: code %d: %s", ErrAPI, path, env.Code, env.Msg)
	}
	return env.Data, nil
}

// CoinShow returns the record of one token.
func (c *Client) CoinShow(ctx context.Context, mint common.Address) (Coin, error) {
	coin, err := post[*Coin](ctx, c, pathCoinShow, map[string]string{"mint": mint.Hex()})
	if err != nil {
		return Coin{}, err
	}
	if coin == nil || coin.Mint == "" {
		return Coin{}, fmt.Errorf("%w: %s", ErrNotFound, mint.Hex())
	}
	return *coin, nil
}

// CoinList returns a page of listed tokens.
func (c *Client) CoinList(ctx context.Context, p ListParams) (CoinPage, error) {
	return post[CoinPage](ctx, c, pathCoinList, withDefaults(p))
}

// HolderCoins returns the tokens owner holds.
func (c *Client) HolderCoins(ctx context.Context, owner common.Address, p ListParams) (CoinPage, error) {
	p.User = owner.Hex()
	return post[CoinPage](ctx, c, pathHolderCoins, withDefaults(p))
}

// Prices returns the chain asset price table.
func (c *Client) Prices(ctx context.Context) ([]AssetPrice, error) {
	return post[[]AssetPrice](ctx, c, pathAssetConfig, struct{}{})
}

func withDefaults(p ListParams) ListParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	return p
}
