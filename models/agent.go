// Package models defines the domain records shared across the engine.
package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Agent is the on-chain record of a registered trading agent.
// Agents are never deleted, only deactivated.
type Agent struct {
	Address       common.Address
	Owner         common.Address
	Name          string
	Stake         *big.Int
	RegisteredAt  time.Time
	TotalTrades   uint64
	TotalPnl      *big.Int // signed, cumulative
	FollowerCount uint64
	SuccessCount  uint64
	Active        bool
}

// VaultStats is the aggregate view the copy vault exposes.
type VaultStats struct {
	TotalPositions  uint64
	ActivePositions uint64
	TotalDeposits   *big.Int
	TotalDisputes   uint64
}
