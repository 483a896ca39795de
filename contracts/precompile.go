package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// The perp-info precompile exposes the exchange's account state to the chain
// itself. It shares the exchange HTTP API's shape, so either source can feed
// the oracle.

var (
	perpInput  abi.Arguments
	perpOutput abi.Arguments
)

func init() {
	addressT := mustType("address")
	uint256T := mustType("uint256")
	int256T := mustType("int256")
	perpInput = abi.Arguments{{Name: "account", Type: addressT}}
	perpOutput = abi.Arguments{
		{Name: "accountValue", Type: uint256T},
		{Name: "marginUsed", Type: uint256T},
		{Name: "availableMargin", Type: uint256T},
		{Name: "totalPnl", Type: int256T},
		{Name: "positionCount", Type: uint256T},
	}
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("contracts: bad precompile type " + t + ": " + err.Error())
	}
	return typ
}

// AccountSummary reads the perp account summary for account straight from the
// chain's read-only precompile. Values arrive already scaled to micro-USD.
func (g *Gateway) AccountSummary(ctx context.Context, account common.Address) (*models.AccountSummary, error) {
	if account == (common.Address{}) {
		return nil, newError(ErrInvalidAddress, "account is the zero address")
	}
	data, packErr := perpInput.Pack(account)
	if packErr != nil {
		return nil, wrapError(ErrInvalidParameters, packErr, "pack precompile input")
	}
	raw, err := g.call(ctx, PerpInfoPrecompile, data)
	if err != nil {
		return nil, err
	}
	out, unpackErr := perpOutput.Unpack(raw)
	if unpackErr != nil {
		return nil, wrapError(ErrTransactionFailed, unpackErr, "decode precompile output")
	}

	const m = "perpAccountSummary"
	accountValue, derr := asBig(out, 0, m, "accountValue")
	if derr != nil {
		return nil, derr
	}
	marginUsed, derr := asBig(out, 1, m, "marginUsed")
	if derr != nil {
		return nil, derr
	}
	available, derr := asBig(out, 2, m, "availableMargin")
	if derr != nil {
		return nil, derr
	}
	totalPnl, derr := asBig(out, 3, m, "totalPnl")
	if derr != nil {
		return nil, derr
	}
	positions, derr := asBig(out, 4, m, "positionCount")
	if derr != nil {
		return nil, derr
	}
	return &models.AccountSummary{
		Account:         account,
		AccountValue:    accountValue,
		MarginUsed:      marginUsed,
		AvailableMargin: available,
		TotalPnl:        totalPnl,
		PositionCount:   positions.Uint64(),
	}, nil
}
