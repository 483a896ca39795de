package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is a depositor's capital copying one agent for a fixed lock
// period with a guaranteed minimum return.
type Position struct {
	ID           uint64
	Depositor    common.Address
	Agent        common.Address
	Deposit      *big.Int
	CurrentValue *big.Int
	MinReturnBps int64 // signed basis points
	StartTime    time.Time
	LockDuration time.Duration
	EndTime      time.Time
	Active       bool
	Disputed     bool
}

// Dispute is a depositor's claim that a position underperformed its
// guaranteed minimum return. Terminal once resolved.
type Dispute struct {
	ID           uint64
	PositionID   uint64
	Depositor    common.Address
	Agent        common.Address
	FiledAt      time.Time
	ActualBps    int64
	ExpectedBps  int64
	Resolved     bool
	DepositorWon bool
}
