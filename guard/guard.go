// Package guard pre-flight-checks copy trades against an agent's proved tier
// limits before anything is submitted for execution.
package guard

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// TierSource resolves tier and limits. Consulted fresh on every decision;
// the guard never caches limits across decisions.
type TierSource interface {
	GetAgentTier(ctx context.Context, agent common.Address) (*models.TierInfo, error)
	GetCopyLimits(ctx context.Context, tier models.Tier) (*models.CopyLimits, error)
}

// AgentStats is a snapshot of the guard's view of one agent's exposure.
type AgentStats struct {
	Followers  int     `json:"followers"`
	TotalValue float64 `json:"total_value"` // USD notional currently copying the agent
}

type agentExposure struct {
	followers  map[common.Address]struct{}
	totalValue float64
}

// State is the in-memory admission mirror: per-agent follower sets and
// running notional. It is session-local and never authoritative; on-chain
// state is the truth it approximates. Safe for concurrent use.
type State struct {
	mu     sync.Mutex
	agents map[common.Address]*agentExposure
}

// NewState builds an empty admission state.
func NewState() *State {
	return &State{agents: make(map[common.Address]*agentExposure)}
}

func (s *State) exposure(agent common.Address) *agentExposure {
	exp, ok := s.agents[agent]
	if !ok {
		exp = &agentExposure{followers: make(map[common.Address]struct{})}
		s.agents[agent] = exp
	}
	return exp
}

// Guard evaluates copy-trade admission for agents.
type Guard struct {
	tiers TierSource
	state *State
}

// New builds a guard. A nil state gets a fresh empty one; injecting a state
// lets a process share one mirror across guards it owns.
func New(tiers TierSource, state *State) *Guard {
	if state == nil {
		state = NewState()
	}
	return &Guard{tiers: tiers, state: state}
}

// Decision is the outcome of a pre-flight check.
type Decision struct {
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
	Tier    models.Tier       `json:"tier"`
	Limits  models.CopyLimits `json:"limits"`
}

func deny(tier models.Tier, limits models.CopyLimits, format string, args ...interface{}) *Decision {
	return &Decision{Allowed: false, Reason: fmt.Sprintf(format, args...), Tier: tier, Limits: limits}
}

// CheckCopyTrade decides whether follower may copy tradeValueUSD at leverage
// on agent. Limits are re-read from the tier source for this one decision.
// Callers must serialize check/record flows per agent; the state itself is
// lock-protected but the check-then-record window is theirs to manage.
func (g *Guard) CheckCopyTrade(ctx context.Context, agent, follower common.Address, tradeValueUSD float64, leverage uint64) (*Decision, error) {
	info, err := g.tiers.GetAgentTier(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("resolve tier for %s: %w", agent.Hex(), err)
	}
	if !info.Tier.Verified() {
		return deny(info.Tier, models.CopyLimits{}, "agent %s has no verified reputation tier", agent.Hex()), nil
	}
	limits, err := g.tiers.GetCopyLimits(ctx, info.Tier)
	if err != nil {
		return nil, fmt.Errorf("resolve limits for tier %s: %w", info.Tier, err)
	}

	if tradeValueUSD <= 0 {
		return deny(info.Tier, *limits, "trade value must be positive"), nil
	}
	if limits.MaxLeverage > 0 && leverage > limits.MaxLeverage {
		return deny(info.Tier, *limits, "leverage %dx exceeds tier %s max %dx", leverage, info.Tier, limits.MaxLeverage), nil
	}

	stats := g.GetAgentStats(agent)
	isNewFollower := !g.hasFollower(agent, follower)
	if isNewFollower && uint64(stats.Followers) >= limits.MaxFollowers {
		return deny(info.Tier, *limits, "agent %s is at its tier %s follower limit (%d)", agent.Hex(), info.Tier, limits.MaxFollowers), nil
	}
	// On-chain limits are micro-USD like every other vault amount.
	maxValue := bigToUSD(limits.MaxTotalValue) / models.UsdScale
	if stats.TotalValue+tradeValueUSD > maxValue {
		return deny(info.Tier, *limits, "copied value $%.2f + $%.2f would exceed tier %s limit $%.2f",
			stats.TotalValue, tradeValueUSD, info.Tier, maxValue), nil
	}

	return &Decision{Allowed: true, Tier: info.Tier, Limits: *limits}, nil
}

// RecordCopyTrade mirrors a confirmed external execution into the admission
// state. Call only after the trade actually went through; this mutation is
// not transactional with on-chain submission.
func (g *Guard) RecordCopyTrade(agent, follower common.Address, valueUSD float64) {
	followers, total := g.record(agent, follower, valueUSD)
	log.Printf("[Guard] Recorded $%.2f copy on agent %s (%d followers, $%.2f total)",
		valueUSD, agent.Hex(), followers, total)
}

func (g *Guard) record(agent, follower common.Address, valueUSD float64) (int, float64) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	exp := g.state.exposure(agent)
	exp.followers[follower] = struct{}{}
	exp.totalValue += valueUSD
	return len(exp.followers), exp.totalValue
}

// RemoveCopier unwinds a recorded copy. The running notional clamps at zero
// when the removal exceeds what was recorded.
func (g *Guard) RemoveCopier(agent, follower common.Address, valueUSD float64) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	exp, ok := g.state.agents[agent]
	if !ok {
		return
	}
	delete(exp.followers, follower)
	exp.totalValue -= valueUSD
	if exp.totalValue < 0 {
		exp.totalValue = 0
	}
}

// GetAgentStats snapshots the guard's current view of one agent.
func (g *Guard) GetAgentStats(agent common.Address) AgentStats {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	exp, ok := g.state.agents[agent]
	if !ok {
		return AgentStats{}
	}
	return AgentStats{Followers: len(exp.followers), TotalValue: exp.totalValue}
}

func (g *Guard) hasFollower(agent, follower common.Address) bool {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	exp, ok := g.state.agents[agent]
	if !ok {
		return false
	}
	_, ok = exp.followers[follower]
	return ok
}

func bigToUSD(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
