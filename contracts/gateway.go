// Package contracts implements the typed, retry-safe gateway over the
// protocol's on-chain contracts and the exchange account precompile.
package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the slice of the RPC client the gateway needs. *ethclient.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

var _ Backend = (*ethclient.Client)(nil)

// TxResult is the terminal receipt every successful write returns.
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Gateway wraps the agent registry, copy vault and reputation-limits
// contracts. Safe for concurrent reads; writes are serialized internally so
// nonces stay monotonic.
type Gateway struct {
	backend Backend
	net     NetworkConfig

	key  *ecdsa.PrivateKey
	from common.Address

	maxAttempts int
	retryDelay  time.Duration
	receiptPoll time.Duration
	nonceMu     sync.Mutex
}

// Option tweaks gateway construction.
type Option func(*Gateway)

// WithSigner attaches an EOA private key (hex, with or without 0x prefix)
// used for all writes.
func WithSigner(hexKey string) Option {
	return func(g *Gateway) {
		if len(hexKey) >= 2 && hexKey[:2] == "0x" {
			hexKey = hexKey[2:]
		}
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			log.Printf("[Gateway] Ignoring invalid signer key: %v", err)
			return
		}
		g.key = key
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}
}

// WithRetry overrides the send policy: attempts is the total number of send
// attempts for transient transport errors, delay the linear backoff unit.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(g *Gateway) {
		if attempts > 0 {
			g.maxAttempts = attempts
		}
		if delay > 0 {
			g.retryDelay = delay
		}
	}
}

// Dial connects an RPC backend and builds a gateway for cfg.
func Dial(ctx context.Context, cfg NetworkConfig, opts ...Option) (*Gateway, error) {
	cfg = ResolveNetwork(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, wrapError(ErrTransactionFailed, err, "dial %s", cfg.RPCURL)
	}
	return NewGateway(client, cfg, opts...)
}

// NewGateway builds a gateway over an existing backend. cfg must already be
// resolved and valid when the backend is injected directly.
func NewGateway(backend Backend, cfg NetworkConfig, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gateway{
		backend:     backend,
		net:         cfg,
		maxAttempts: 3,
		retryDelay:  time.Second,
		receiptPoll: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Network returns the resolved network configuration in use.
func (g *Gateway) Network() NetworkConfig { return g.net }

// Backend exposes the underlying chain backend for log subscriptions.
func (g *Gateway) Backend() Backend { return g.backend }

// Signer returns the connected signing address, or the zero address when the
// gateway is read-only.
func (g *Gateway) Signer() common.Address { return g.from }

var agentNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

func validAgentName(name string) bool { return agentNameRe.MatchString(name) }

// call performs a read with the bounded retry policy and returns the raw
// return data.
func (g *Gateway) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		out, err := g.backend.CallContract(ctx, msg, nil)
		if err == nil {
			return out, nil
		}
		if !isTransient(err) {
			return nil, wrapError(ErrTransactionFailed, err, "call %s", to.Hex())
		}
		lastErr = err
	}
	return nil, wrapError(ErrTransactionFailed, lastErr, "call %s: retries exhausted", to.Hex())
}

// transact signs, sends and awaits a write. Transient transport failures are
// retried with linearly increasing backoff; validation and revert failures
// surface immediately. The receipt is awaited to terminal state with no
// implicit deadline beyond ctx.
func (g *Gateway) transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if g.key == nil {
		return nil, newError(ErrNoSigner, "write to %s requires a connected signer", to.Hex())
	}
	if value == nil {
		value = big.NewInt(0)
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("[Gateway] Retrying write to %s (attempt %d/%d): %v", to.Hex(), attempt, g.maxAttempts, lastErr)
			if err := g.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		receipt, err := g.sendOnce(ctx, to, data, value)
		if err == nil {
			return receipt, nil
		}
		if isTransient(err) {
			lastErr = err
			continue
		}
		var ge *Error
		if errors.As(err, &ge) {
			return nil, ge
		}
		return nil, wrapError(ErrTransactionFailed, err, "write to %s", to.Hex())
	}
	return nil, wrapError(ErrTransactionFailed, lastErr, "write to %s: retries exhausted", to.Hex())
}

func (g *Gateway) sendOnce(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	g.nonceMu.Lock()
	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		g.nonceMu.Unlock()
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		g.nonceMu.Unlock()
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: g.from, To: &to, Value: value, Data: data,
	})
	if err != nil {
		g.nonceMu.Unlock()
		// Estimation failure on a revert is a business rejection, not noise.
		if !isTransient(err) {
			return nil, wrapError(ErrTransactionFailed, err, "transaction would revert")
		}
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(g.net.ChainID)), g.key)
	if err != nil {
		g.nonceMu.Unlock()
		return nil, wrapError(ErrTransactionFailed, err, "sign transaction")
	}

	err = g.backend.SendTransaction(ctx, signed)
	g.nonceMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := g.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, wrapError(ErrTransactionFailed, nil, "transaction %s reverted on-chain", signed.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the receipt until it lands or ctx is cancelled. Every
// write is awaited to a terminal receipt; callers needing a deadline wrap ctx.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.receiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, wrapError(ErrTransactionFailed, ctx.Err(), "awaiting receipt for %s", hash.Hex())
		case <-ticker.C:
		}
	}
}

func (g *Gateway) backoff(ctx context.Context, attempt int) error {
	delay := g.retryDelay * time.Duration(attempt-1)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return wrapError(ErrTransactionFailed, ctx.Err(), "cancelled during retry backoff")
	case <-time.After(delay):
		return nil
	}
}

func txResult(receipt *types.Receipt) *TxResult {
	res := &TxResult{Hash: receipt.TxHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res
}
