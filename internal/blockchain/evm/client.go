// internal/blockchain/evm/client.go
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	// DefaultReceiptPoll is how often WaitForReceipt asks for the receipt.
	DefaultReceiptPoll = time.Second

	gasBufferNumerator   = 120
	gasBufferDenominator = 100
)

// Options tune a Client.
type Options struct {
	ChainID     int64
	ReceiptPoll time.Duration
	// ConfirmationTimeout bounds WaitForReceipt; zero leaves it to ctx.
	ConfirmationTimeout time.Duration
}

// Client implements Chain and BalanceReader over an Ethereum JSON-RPC backend.
type Client struct {
	backend Backend
	signer  Signer
	chainID *big.Int
	opts    Options
	logger  *zap.Logger

	// serialises nonce lookup and broadcast for one account
	sendMu sync.Mutex
}

// Dial connects to rpcURL. The chain id is read from the node when opts.ChainID is zero.
func Dial(ctx context.Context, rpcURL string, signer Signer, opts Options, logger *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c, err := NewClient(ctx, ec, signer, opts, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(ctx context.Context, backend Backend, signer Signer, opts Options, logger *zap.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = DefaultReceiptPoll
	}

	chainID := big.NewInt(opts.ChainID)
	if opts.ChainID == 0 {
		id, err := backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		chainID = id
	}

	return &Client{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		opts:    opts,
		logger:  logger.Named("evm-client"),
	}, nil
}

// Close releases the backend connection when it holds one.
func (c *Client) Close() error {
	if cl, ok := c.backend.(interface{ Close() }); ok {
		cl.Close()
	}
	return nil
}

// ChainID returns the id used for signing.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// ReadContract packs the call, executes eth_call at the latest block and unpacks the outputs.
func (c *Client) ReadContract(ctx context.Context, call Call) ([]interface{}, error) {
	data, err := pack(call)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{To: &call.To, Data: data}
	if c.signer != nil {
		msg.From = c.signer.Address()
	}

	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		c.logger.Debug("CallContract error",
			zap.String("contract", call.To.Hex()),
			zap.String("method", call.Method),
			zap.Error(err))
		return nil, newCallError(err, call)
	}
	if len(raw) == 0 {
		return nil, newCallError(ErrEmptyResult, call)
	}

	out, err := call.ABI.Unpack(call.Method, raw)
	if err != nil {
		return nil, newCallError(fmt.Errorf("unpack: %w", err), call)
	}
	return out, nil
}

// WriteContract signs and broadcasts a transaction for call and returns its hash.
// Gas is estimated and padded by 20%.
func (c *Client) WriteContract(ctx context.Context, call Call) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	data, err := pack(call)
	if err != nil {
		return common.Hash{}, err
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	tx, err := c.buildSignedTx(ctx, call.To, data, value)
	if err != nil {
		return common.Hash{}, newCallError(err, call)
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		c.logger.Error("SendTransaction error",
			zap.String("contract", call.To.Hex()),
			zap.String("method", call.Method),
			zap.Error(err))
		return common.Hash{}, newCallError(fmt.Errorf("send transaction: %w", err), call)
	}

	c.logger.Info("Transaction sent",
		zap.String("method", call.Method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("gas", tx.Gas()))
	return tx.Hash(), nil
}

func (c *Client) buildSignedTx(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	from := c.signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	estimated, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit := estimated * gasBufferNumerator / gasBufferDenominator

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// WaitForReceipt polls until the transaction is included or ctx ends.
// The receipt is returned whatever its status; callers check Status.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.opts.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConfirmationTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			c.logger.Debug("Receipt received",
				zap.String("tx_hash", hash.Hex()),
				zap.Uint64("status", receipt.Status),
				zap.Uint64("gas_used", receipt.GasUsed))
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		default:
			return nil, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// NativeBalance returns the BNB balance of owner at the latest block.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", owner.Hex(), err)
	}
	return bal, nil
}

// TokenBalance returns the ERC20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return ReadBigInt(ctx, c, BalanceOfCall(token, owner))
}

func pack(call Call) ([]byte, error) {
	if call.ABI == nil || call.Method == "" {
		return nil, newCallError(ErrInvalidCall, call)
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, newCallError(fmt.Errorf("pack: %w", err), call)
	}
	return data, nil
}
