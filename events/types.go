// Package events provides typed live subscriptions and historical queries
// over the protocol's four on-chain event families.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// AgentEventType enumerates the agent lifecycle family.
type AgentEventType string

const (
	AgentRegistered  AgentEventType = "registered"
	AgentStakeAdded  AgentEventType = "stake_added"
	AgentStakeOut    AgentEventType = "stake_withdrawn"
	AgentDeactivated AgentEventType = "deactivated"
)

// AgentEvent is one decoded agent lifecycle log.
type AgentEvent struct {
	Type        AgentEventType
	Agent       common.Address
	Name        string   // registered only
	Amount      *big.Int // stake movements
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// PositionEventType enumerates the position lifecycle family.
type PositionEventType string

const (
	PositionOpened       PositionEventType = "opened"
	PositionClosed       PositionEventType = "closed"
	PositionValueUpdated PositionEventType = "value_updated"
)

// PositionEvent is one decoded position lifecycle log.
type PositionEvent struct {
	Type         PositionEventType
	PositionID   uint64
	Depositor    common.Address // opened, closed
	Agent        common.Address // opened only
	Deposit      *big.Int       // opened only
	MinReturnBps int64          // opened only
	LockSeconds  uint64         // opened only
	Value        *big.Int       // closed final value / updated new value
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

// DisputeEventType enumerates the dispute lifecycle family.
type DisputeEventType string

const (
	DisputeFiled    DisputeEventType = "filed"
	DisputeResolved DisputeEventType = "resolved"
)

// DisputeEvent is one decoded dispute lifecycle log.
type DisputeEvent struct {
	Type         DisputeEventType
	DisputeID    uint64
	PositionID   uint64
	Depositor    common.Address // filed only
	DepositorWon bool           // resolved only
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

// TierEvent is one decoded tier verification log.
type TierEvent struct {
	Agent       common.Address
	Tier        models.Tier
	Commitment  [32]byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// AgentFilter narrows agent lifecycle queries by indexed fields.
type AgentFilter struct {
	Agent *common.Address
}

// PositionFilter narrows position lifecycle queries by indexed fields. The
// depositor filter only matches opened/closed logs and the agent filter only
// opened logs, since those are the events that index them.
type PositionFilter struct {
	PositionID *uint64
	Depositor  *common.Address
	Agent      *common.Address
}

// DisputeFilter narrows dispute lifecycle queries by indexed fields.
type DisputeFilter struct {
	DisputeID  *uint64
	PositionID *uint64
	Depositor  *common.Address
}

// TierFilter narrows tier verification queries by indexed fields.
type TierFilter struct {
	Agent *common.Address
}
