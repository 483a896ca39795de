package contracts

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// RegisterAgent stakes collateral and registers the signer as a trading
// agent. The display name must be 3-32 alphanumeric/underscore characters and
// the stake must meet the protocol minimum.
func (g *Gateway) RegisterAgent(ctx context.Context, name string, stake *big.Int) (*TxResult, error) {
	if !validAgentName(name) {
		return nil, newError(ErrInvalidParameters, "agent name %q must be 3-32 alphanumeric/underscore characters", name)
	}
	if stake == nil || stake.Sign() <= 0 {
		return nil, newError(ErrInsufficientStake, "stake must be positive")
	}
	minStake, err := g.MinimumStake(ctx)
	if err != nil {
		return nil, err
	}
	if stake.Cmp(minStake) < 0 {
		return nil, newError(ErrInsufficientStake, "stake %s below protocol minimum %s", stake, minStake)
	}

	data, packErr := RegistryABI.Pack("registerAgent", name)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack registerAgent")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.AgentRegistry, data, stake)
	if err != nil {
		return nil, err
	}
	log.Printf("[Gateway] Registered agent %q with stake %s (tx %s)", name, stake, receipt.TxHash.Hex())
	return txResult(receipt), nil
}

// AddStake tops up the signer's agent collateral.
func (g *Gateway) AddStake(ctx context.Context, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, newError(ErrInvalidParameters, "stake amount must be positive")
	}
	data, packErr := RegistryABI.Pack("addStake")
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack addStake")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.AgentRegistry, data, amount)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// WithdrawStake releases collateral back to the signer.
func (g *Gateway) WithdrawStake(ctx context.Context, amount *big.Int) (*TxResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, newError(ErrInvalidParameters, "withdraw amount must be positive")
	}
	data, packErr := RegistryABI.Pack("withdrawStake", amount)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack withdrawStake")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.AgentRegistry, data, nil)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// DeactivateAgent retires the signer's agent. Records are never deleted, only
// flagged inactive.
func (g *Gateway) DeactivateAgent(ctx context.Context) (*TxResult, error) {
	data, packErr := RegistryABI.Pack("deactivateAgent")
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack deactivateAgent")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.AgentRegistry, data, nil)
	if err != nil {
		return nil, err
	}
	return txResult(receipt), nil
}

// MinimumStake reads the protocol's minimum registration stake.
func (g *Gateway) MinimumStake(ctx context.Context) (*big.Int, error) {
	data, packErr := RegistryABI.Pack("minimumStake")
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack minimumStake")
	}
	raw, err := g.call(ctx, g.net.Addresses.AgentRegistry, data)
	if err != nil {
		return nil, err
	}
	out, unpackErr := RegistryABI.Unpack("minimumStake", raw)
	if unpackErr != nil {
		return nil, wrapError(ErrTransactionFailed, unpackErr, "decode minimumStake")
	}
	v, derr := asBig(out, 0, "minimumStake", "value")
	if derr != nil {
		return nil, derr
	}
	return v, nil
}

// GetAgent reads the full agent record for addr.
func (g *Gateway) GetAgent(ctx context.Context, addr common.Address) (*models.Agent, error) {
	if addr == (common.Address{}) {
		return nil, newError(ErrInvalidAddress, "agent address is the zero address")
	}
	data, packErr := RegistryABI.Pack("getAgent", addr)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack getAgent")
	}
	raw, err := g.call(ctx, g.net.Addresses.AgentRegistry, data)
	if err != nil {
		return nil, err
	}
	out, unpackErr := RegistryABI.Unpack("getAgent", raw)
	if unpackErr != nil {
		return nil, wrapError(ErrTransactionFailed, unpackErr, "decode getAgent")
	}
	return decodeAgent(addr, out)
}
