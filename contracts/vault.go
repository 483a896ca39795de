package contracts

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"copyvault/models"
)

// Protocol bounds enforced client-side before any network call.
const (
	MinReturnBpsBound = -10000
	MaxReturnBpsBound = 10000
	MinLockSeconds    = 86400       // one day
	MaxLockSeconds    = 365 * 86400 // one year
)

// PositionOpened is the result of a successful position open, including the
// id the contract generated for it.
type PositionOpened struct {
	TxResult
	PositionID uint64
	Depositor  common.Address
	Agent      common.Address
	Deposit    *big.Int
}

// DisputeFiled is the result of filing a dispute, fee included.
type DisputeFiled struct {
	TxResult
	DisputeID  uint64
	PositionID uint64
	FeePaid    *big.Int
}

// OpenPosition deposits capital copying agent with a guaranteed minimum
// return and a fixed lock. The generated position id is read back from the
// PositionOpened event in the receipt; an absent event is a TransactionFailed
// and is never retried.
func (g *Gateway) OpenPosition(ctx context.Context, agent common.Address, minReturnBps int64, lockSeconds uint64, deposit *big.Int) (*PositionOpened, error) {
	if agent == (common.Address{}) {
		return nil, newError(ErrInvalidAddress, "agent address is the zero address")
	}
	if minReturnBps < MinReturnBpsBound || minReturnBps > MaxReturnBpsBound {
		return nil, newError(ErrInvalidParameters, "minimum return %d bps outside [%d, %d]", minReturnBps, MinReturnBpsBound, MaxReturnBpsBound)
	}
	if lockSeconds < MinLockSeconds || lockSeconds > MaxLockSeconds {
		return nil, newError(ErrInvalidParameters, "lock duration %ds outside [%d, %d]", lockSeconds, MinLockSeconds, MaxLockSeconds)
	}
	if deposit == nil || deposit.Sign() <= 0 {
		return nil, newError(ErrInsufficientDeposit, "deposit must be positive")
	}
	minDeposit, err := g.MinimumDeposit(ctx)
	if err != nil {
		return nil, err
	}
	if deposit.Cmp(minDeposit) < 0 {
		return nil, newError(ErrInsufficientDeposit, "deposit %s below protocol minimum %s", deposit, minDeposit)
	}

	data, packErr := VaultABI.Pack("openPosition", agent, big.NewInt(minReturnBps), new(big.Int).SetUint64(lockSeconds))
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack openPosition")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.CopyVault, data, deposit)
	if err != nil {
		return nil, err
	}

	positionID, found := g.positionIDFromReceipt(receipt)
	if !found {
		return nil, newError(ErrTransactionFailed, "transaction %s mined but PositionOpened event missing", receipt.TxHash.Hex())
	}
	log.Printf("[Gateway] Opened position %d on agent %s, deposit %s (tx %s)", positionID, agent.Hex(), deposit, receipt.TxHash.Hex())
	return &PositionOpened{
		TxResult:   *txResult(receipt),
		PositionID: positionID,
		Depositor:  g.from,
		Agent:      agent,
		Deposit:    deposit,
	}, nil
}

func (g *Gateway) positionIDFromReceipt(receipt *types.Receipt) (uint64, bool) {
	topic := VaultABI.Events["PositionOpened"].ID
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != g.net.Addresses.CopyVault {
			continue
		}
		if len(lg.Topics) >= 2 && lg.Topics[0] == topic {
			return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), true
		}
	}
	return 0, false
}

// ClosePosition withdraws a position after its lock expires. A disputed
// position cannot be closed until the dispute resolves.
func (g *Gateway) ClosePosition(ctx context.Context, positionID uint64) (*TxResult, error) {
	data, packErr := VaultABI.Pack("closePosition", new(big.Int).SetUint64(positionID))
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack closePosition")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.CopyVault, data, nil)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// FileDispute reads the current dispute fee and submits payment atomically
// with the filing.
func (g *Gateway) FileDispute(ctx context.Context, positionID uint64) (*DisputeFiled, error) {
	fee, err := g.DisputeFee(ctx)
	if err != nil {
		return nil, err
	}
	data, packErr := VaultABI.Pack("fileDispute", new(big.Int).SetUint64(positionID))
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack fileDispute")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.CopyVault, data, fee)
	if err != nil {
		return nil, err
	}

	result := &DisputeFiled{TxResult: *txResult(receipt), PositionID: positionID, FeePaid: fee}
	topic := VaultABI.Events["DisputeFiled"].ID
	for _, lg := range receipt.Logs {
		if lg != nil && lg.Address == g.net.Addresses.CopyVault && len(lg.Topics) >= 2 && lg.Topics[0] == topic {
			result.DisputeID = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64()
			break
		}
	}
	log.Printf("[Gateway] Filed dispute %d on position %d, fee %s (tx %s)", result.DisputeID, positionID, fee, receipt.TxHash.Hex())
	return result, nil
}

// ResolveDispute submits the oracle's resolution for a dispute.
func (g *Gateway) ResolveDispute(ctx context.Context, disputeID uint64, depositorWins bool) (*TxResult, error) {
	data, packErr := VaultABI.Pack("resolveDispute", new(big.Int).SetUint64(disputeID), depositorWins)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack resolveDispute")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.CopyVault, data, nil)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// UpdatePositionValues writes recomputed values for the given position ids in
// a single batched transaction.
func (g *Gateway) UpdatePositionValues(ctx context.Context, positionIDs []uint64, values []*big.Int) (*TxResult, error) {
	if len(positionIDs) == 0 || len(positionIDs) != len(values) {
		return nil, newError(ErrInvalidParameters, "update requires matched non-empty id/value slices (%d ids, %d values)", len(positionIDs), len(values))
	}
	ids := make([]*big.Int, len(positionIDs))
	for i, id := range positionIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	for i, v := range values {
		if v == nil || v.Sign() < 0 {
			return nil, newError(ErrInvalidParameters, "value for position %d must be non-negative", positionIDs[i])
		}
	}
	data, packErr := VaultABI.Pack("updatePositionValues", ids, values)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack updatePositionValues")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.CopyVault, data, nil)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// GetPosition reads a position record by id.
func (g *Gateway) GetPosition(ctx context.Context, positionID uint64) (*models.Position, error) {
	out, err := g.vaultRead(ctx, "getPosition", new(big.Int).SetUint64(positionID))
	if err != nil {
		return nil, err
	}
	return decodePosition(positionID, out)
}

// GetDispute reads a dispute record by id.
func (g *Gateway) GetDispute(ctx context.Context, disputeID uint64) (*models.Dispute, error) {
	out, err := g.vaultRead(ctx, "getDispute", new(big.Int).SetUint64(disputeID))
	if err != nil {
		return nil, err
	}
	return decodeDispute(disputeID, out)
}

// GetVaultStats reads the aggregate vault counters.
func (g *Gateway) GetVaultStats(ctx context.Context) (*models.VaultStats, error) {
	out, err := g.vaultRead(ctx, "getVaultStats")
	if err != nil {
		return nil, err
	}
	return decodeVaultStats(out)
}

// PositionCount returns the total number of positions ever opened.
func (g *Gateway) PositionCount(ctx context.Context) (uint64, error) {
	return g.vaultCounter(ctx, "positionCount")
}

// DisputeCount returns the total number of disputes ever filed.
func (g *Gateway) DisputeCount(ctx context.Context) (uint64, error) {
	return g.vaultCounter(ctx, "disputeCount")
}

// MinimumDeposit reads the protocol's minimum position deposit.
func (g *Gateway) MinimumDeposit(ctx context.Context) (*big.Int, error) {
	out, err := g.vaultRead(ctx, "minimumDeposit")
	if err != nil {
		return nil, err
	}
	v, derr := asBig(out, 0, "minimumDeposit", "value")
	if derr != nil {
		return nil, derr
	}
	return v, nil
}

// DisputeFee reads the fee required to file a dispute.
func (g *Gateway) DisputeFee(ctx context.Context) (*big.Int, error) {
	out, err := g.vaultRead(ctx, "disputeFee")
	if err != nil {
		return nil, err
	}
	v, derr := asBig(out, 0, "disputeFee", "value")
	if derr != nil {
		return nil, derr
	}
	return v, nil
}

func (g *Gateway) vaultCounter(ctx context.Context, method string) (uint64, error) {
	out, err := g.vaultRead(ctx, method)
	if err != nil {
		return 0, err
	}
	v, derr := asBig(out, 0, method, "value")
	if derr != nil {
		return 0, derr
	}
	return v.Uint64(), nil
}

func (g *Gateway) vaultRead(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, packErr := VaultABI.Pack(method, args...)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack %s", method)
	}
	raw, err := g.call(ctx, g.net.Addresses.CopyVault, data)
	if err != nil {
		return nil, err
	}
	out, unpackErr := VaultABI.Unpack(method, raw)
	if unpackErr != nil {
		return nil, wrapError(ErrTransactionFailed, unpackErr, "decode %s", method)
	}
	return out, nil
}
