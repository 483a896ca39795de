package contracts

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// The reputation gate resolves an agent's proved tier and the admission
// limits derived from it. All reads are evaluated against current chain
// state; nothing here is cached across decisions.

// GetAgentTier reads the proved tier for agent. An agent with no accepted
// proof comes back Unverified with a zero threshold.
func (g *Gateway) GetAgentTier(ctx context.Context, agent common.Address) (*models.TierInfo, error) {
	if agent == (common.Address{}) {
		return nil, newError(ErrInvalidAddress, "agent address is the zero address")
	}
	out, err := g.reputationRead(ctx, "getAgentTier", agent)
	if err != nil {
		return nil, err
	}
	tier, derr := asUint8(out, 0, "getAgentTier", "tier")
	if derr != nil {
		return nil, derr
	}
	verifiedAt, derr := asBig(out, 1, "getAgentTier", "verifiedAt")
	if derr != nil {
		return nil, derr
	}
	commitment, derr := asBytes32(out, 2, "getAgentTier", "commitment")
	if derr != nil {
		return nil, derr
	}
	threshold, derr := asBig(out, 3, "getAgentTier", "threshold")
	if derr != nil {
		return nil, derr
	}
	return &models.TierInfo{
		Tier:       models.Tier(tier),
		VerifiedAt: unixTime(verifiedAt),
		Commitment: commitment,
		Threshold:  threshold,
	}, nil
}

// GetCopyLimits reads the admission limits for a tier. Unverified always maps
// to zero limits.
func (g *Gateway) GetCopyLimits(ctx context.Context, tier models.Tier) (*models.CopyLimits, error) {
	if !tier.Verified() {
		return &models.CopyLimits{MaxTotalValue: big.NewInt(0)}, nil
	}
	out, err := g.reputationRead(ctx, "getCopyLimits", uint8(tier))
	if err != nil {
		return nil, err
	}
	maxValue, derr := asBig(out, 0, "getCopyLimits", "maxTotalValue")
	if derr != nil {
		return nil, derr
	}
	maxFollowers, derr := asBig(out, 1, "getCopyLimits", "maxFollowers")
	if derr != nil {
		return nil, derr
	}
	maxLeverage, derr := asBig(out, 2, "getCopyLimits", "maxLeverage")
	if derr != nil {
		return nil, derr
	}
	return &models.CopyLimits{
		MaxTotalValue: maxValue,
		MaxFollowers:  maxFollowers.Uint64(),
		MaxLeverage:   maxLeverage.Uint64(),
	}, nil
}

// CanAcceptDeposit simulates whether agent may take newDeposit given the
// exposure the caller observed right now. Simulate-only; never submits.
func (g *Gateway) CanAcceptDeposit(ctx context.Context, agent common.Address, currentAUM *big.Int, currentFollowers uint64, newDeposit *big.Int) (bool, error) {
	if agent == (common.Address{}) {
		return false, newError(ErrInvalidAddress, "agent address is the zero address")
	}
	if currentAUM == nil || newDeposit == nil || currentAUM.Sign() < 0 || newDeposit.Sign() < 0 {
		return false, newError(ErrInvalidParameters, "aum and deposit must be non-negative")
	}
	out, err := g.reputationRead(ctx, "canAcceptDeposit", agent, currentAUM, new(big.Int).SetUint64(currentFollowers), newDeposit)
	if err != nil {
		return false, err
	}
	ok, derr := asBool(out, 0, "canAcceptDeposit", "value")
	if derr != nil {
		return false, derr
	}
	return ok, nil
}

// ProveReputation submits an externally generated zero-knowledge proof for a
// tier. The proof itself is opaque to this client.
func (g *Gateway) ProveReputation(ctx context.Context, tier models.Tier, commitment [32]byte, proof []byte) (*TxResult, error) {
	if !tier.Verified() {
		return nil, newError(ErrInvalidParameters, "tier %d outside the provable range [%d, %d]", tier, models.TierBronze, models.TierPlatinum)
	}
	if len(proof) == 0 {
		return nil, newError(ErrInvalidParameters, "proof payload is empty")
	}
	data, packErr := ReputationABI.Pack("proveReputation", uint8(tier), commitment, proof)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack proveReputation")
	}
	receipt, err := g.transact(ctx, g.net.Addresses.ReputationLimits, data, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("[Gateway] Submitted %s tier proof (tx %s)", tier, receipt.TxHash.Hex())
	return txResult(receipt), nil
}

func (g *Gateway) reputationRead(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, packErr := ReputationABI.Pack(method, args...)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack %s", method)
	}
	raw, err := g.call(ctx, g.net.Addresses.ReputationLimits, data)
	if err != nil {
		return nil, err
	}
	out, unpackErr := ReputationABI.Unpack(method, raw)
	if unpackErr != nil {
		return nil, wrapError(ErrTransactionFailed, unpackErr, "decode %s", method)
	}
	return out, nil
}
