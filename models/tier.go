package models

import (
	"math/big"
	"time"
)

// Tier is the reputation level an agent has proved via zero-knowledge proof.
type Tier uint8

const (
	TierUnverified Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "unverified"
	}
}

// Verified reports whether the tier carries any admission capacity at all.
func (t Tier) Verified() bool {
	return t > TierUnverified && t <= TierPlatinum
}

// TierInfo is the proved reputation state read from the reputation contract.
type TierInfo struct {
	Tier       Tier
	VerifiedAt time.Time
	Commitment [32]byte
	Threshold  *big.Int
}

// CopyLimits are the admission limits derived from a tier.
type CopyLimits struct {
	MaxTotalValue *big.Int // max copied notional, micro-USD
	MaxFollowers  uint64
	MaxLeverage   uint64
}
