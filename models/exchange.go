package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// USD monetary values are carried as integer micro-USD (1e6 units) so ratio
// math stays exact. The vault settles in a 6-decimal token, so on-chain
// amounts (deposits, stakes, limits) and exchange amounts share this scale.
const UsdScale = 1_000_000

// AccountSummary is the exchange's view of one account: the margin summary
// the oracle reconciles position values against.
type AccountSummary struct {
	Account         common.Address
	AccountValue    *big.Int // micro-USD
	MarginUsed      *big.Int // micro-USD
	AvailableMargin *big.Int // micro-USD
	TotalPnl        *big.Int // micro-USD, signed
	PositionCount   uint64
}

// PnlRatioBps returns totalPnl/accountValue in basis points, exactly zero
// when the account value is zero.
func (s *AccountSummary) PnlRatioBps() *big.Int {
	if s == nil || s.AccountValue == nil || s.AccountValue.Sign() == 0 {
		return big.NewInt(0)
	}
	ratio := new(big.Int).Mul(s.TotalPnl, big.NewInt(10000))
	return ratio.Quo(ratio, s.AccountValue)
}

// AssetPosition is the exchange's per-asset view of an account.
type AssetPosition struct {
	Asset         string
	Size          *big.Int // micro-units, signed (short < 0)
	EntryPrice    *big.Int // micro-USD
	MarkPrice     *big.Int // micro-USD
	UnrealizedPnl *big.Int // micro-USD, signed
	Leverage      uint64
}
