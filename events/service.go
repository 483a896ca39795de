package events

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"copyvault/contracts"
	"copyvault/models"
)

// Service decodes protocol logs into typed events, both live and historical.
// Callbacks fire on the transport's delivery goroutine and must not block.
type Service struct {
	backend contracts.Backend
	addrs   contracts.ContractAddresses
}

// NewService builds an event service over the gateway's backend.
func NewService(backend contracts.Backend, addrs contracts.ContractAddresses) *Service {
	return &Service{backend: backend, addrs: addrs}
}

// Subscription is the idempotent unsubscribe handle every live registration
// returns. After Unsubscribe returns, the callback is never invoked again;
// calling it more than once is safe.
type Subscription struct {
	once sync.Once
	quit chan struct{}
	mu   sync.RWMutex
	dead bool
	sub  ethereum.Subscription
}

// Unsubscribe tears the subscription down. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.dead = true
		s.mu.Unlock()
		close(s.quit)
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
	})
}

// deliver runs fn unless the subscription is already dead. Holding the read
// lock across fn makes Unsubscribe wait out an in-flight callback.
func (s *Subscription) deliver(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dead {
		return
	}
	fn()
}

func (s *Service) subscribe(ctx context.Context, q ethereum.FilterQuery, decode func(types.Log, *Subscription)) (*Subscription, error) {
	logs := make(chan types.Log, 128)
	ethSub, err := s.backend.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe filter logs: %w", err)
	}
	handle := &Subscription{quit: make(chan struct{}), sub: ethSub}

	go func() {
		for {
			select {
			case <-handle.quit:
				return
			case err := <-ethSub.Err():
				if err != nil {
					log.Printf("[Events] Subscription terminated: %v", err)
				}
				return
			case lg := <-logs:
				if lg.Removed {
					continue
				}
				decode(lg, handle)
			}
		}
	}()
	return handle, nil
}

// SubscribeAgentEvents delivers live agent lifecycle events matching filter.
func (s *Service) SubscribeAgentEvents(ctx context.Context, filter AgentFilter, handler func(AgentEvent)) (*Subscription, error) {
	return s.subscribe(ctx, s.agentQuery(filter, nil, nil), func(lg types.Log, handle *Subscription) {
		if ev, ok := decodeAgentLog(lg); ok {
			handle.deliver(func() { handler(ev) })
		}
	})
}

// SubscribePositionEvents delivers live position lifecycle events.
func (s *Service) SubscribePositionEvents(ctx context.Context, filter PositionFilter, handler func(PositionEvent)) (*Subscription, error) {
	return s.subscribe(ctx, s.positionQuery(filter, nil, nil), func(lg types.Log, handle *Subscription) {
		if ev, ok := decodePositionLog(lg); ok {
			handle.deliver(func() { handler(ev) })
		}
	})
}

// SubscribeDisputeEvents delivers live dispute lifecycle events.
func (s *Service) SubscribeDisputeEvents(ctx context.Context, filter DisputeFilter, handler func(DisputeEvent)) (*Subscription, error) {
	return s.subscribe(ctx, s.disputeQuery(filter, nil, nil), func(lg types.Log, handle *Subscription) {
		if ev, ok := decodeDisputeLog(lg); ok {
			handle.deliver(func() { handler(ev) })
		}
	})
}

// SubscribeTierEvents delivers live tier verification events.
func (s *Service) SubscribeTierEvents(ctx context.Context, filter TierFilter, handler func(TierEvent)) (*Subscription, error) {
	return s.subscribe(ctx, s.tierQuery(filter, nil, nil), func(lg types.Log, handle *Subscription) {
		if ev, ok := decodeTierLog(lg); ok {
			handle.deliver(func() { handler(ev) })
		}
	})
}

// AgentHistory returns historical agent events in (block, log index) order.
func (s *Service) AgentHistory(ctx context.Context, filter AgentFilter, fromBlock, toBlock uint64) ([]AgentEvent, error) {
	logs, err := s.history(ctx, s.agentQuery(filter, blockPtr(fromBlock), blockPtr(toBlock)))
	if err != nil {
		return nil, err
	}
	events := make([]AgentEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := decodeAgentLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// PositionHistory returns historical position events in (block, log index)
// order. Callers must never assume wall-clock ordering.
func (s *Service) PositionHistory(ctx context.Context, filter PositionFilter, fromBlock, toBlock uint64) ([]PositionEvent, error) {
	logs, err := s.history(ctx, s.positionQuery(filter, blockPtr(fromBlock), blockPtr(toBlock)))
	if err != nil {
		return nil, err
	}
	events := make([]PositionEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := decodePositionLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// DisputeHistory returns historical dispute events in (block, log index) order.
func (s *Service) DisputeHistory(ctx context.Context, filter DisputeFilter, fromBlock, toBlock uint64) ([]DisputeEvent, error) {
	logs, err := s.history(ctx, s.disputeQuery(filter, blockPtr(fromBlock), blockPtr(toBlock)))
	if err != nil {
		return nil, err
	}
	events := make([]DisputeEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := decodeDisputeLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// TierHistory returns historical tier verification events in (block, log
// index) order.
func (s *Service) TierHistory(ctx context.Context, filter TierFilter, fromBlock, toBlock uint64) ([]TierEvent, error) {
	logs, err := s.history(ctx, s.tierQuery(filter, blockPtr(fromBlock), blockPtr(toBlock)))
	if err != nil {
		return nil, err
	}
	events := make([]TierEvent, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := decodeTierLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *Service) history(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := s.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

func blockPtr(b uint64) *big.Int {
	if b == 0 {
		return nil
	}
	return new(big.Int).SetUint64(b)
}

func (s *Service) agentQuery(filter AgentFilter, from, to *big.Int) ethereum.FilterQuery {
	topics := [][]common.Hash{{
		contracts.RegistryABI.Events["AgentRegistered"].ID,
		contracts.RegistryABI.Events["StakeAdded"].ID,
		contracts.RegistryABI.Events["StakeWithdrawn"].ID,
		contracts.RegistryABI.Events["AgentDeactivated"].ID,
	}}
	if filter.Agent != nil {
		topics = append(topics, []common.Hash{addressTopic(*filter.Agent)})
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.addrs.AgentRegistry},
		Topics:    topics,
		FromBlock: from,
		ToBlock:   to,
	}
}

func (s *Service) positionQuery(filter PositionFilter, from, to *big.Int) ethereum.FilterQuery {
	topics := [][]common.Hash{{
		contracts.VaultABI.Events["PositionOpened"].ID,
		contracts.VaultABI.Events["PositionClosed"].ID,
		contracts.VaultABI.Events["PositionValueUpdated"].ID,
	}}
	if filter.PositionID != nil || filter.Depositor != nil || filter.Agent != nil {
		topics = append(topics, idTopics(filter.PositionID))
	}
	if filter.Depositor != nil || filter.Agent != nil {
		topics = append(topics, addrTopics(filter.Depositor))
	}
	if filter.Agent != nil {
		topics = append(topics, []common.Hash{addressTopic(*filter.Agent)})
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.addrs.CopyVault},
		Topics:    topics,
		FromBlock: from,
		ToBlock:   to,
	}
}

func (s *Service) disputeQuery(filter DisputeFilter, from, to *big.Int) ethereum.FilterQuery {
	topics := [][]common.Hash{{
		contracts.VaultABI.Events["DisputeFiled"].ID,
		contracts.VaultABI.Events["DisputeResolved"].ID,
	}}
	if filter.DisputeID != nil || filter.PositionID != nil || filter.Depositor != nil {
		topics = append(topics, idTopics(filter.DisputeID))
	}
	if filter.PositionID != nil || filter.Depositor != nil {
		topics = append(topics, idTopics(filter.PositionID))
	}
	if filter.Depositor != nil {
		topics = append(topics, []common.Hash{addressTopic(*filter.Depositor)})
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.addrs.CopyVault},
		Topics:    topics,
		FromBlock: from,
		ToBlock:   to,
	}
}

func (s *Service) tierQuery(filter TierFilter, from, to *big.Int) ethereum.FilterQuery {
	topics := [][]common.Hash{{contracts.ReputationABI.Events["TierVerified"].ID}}
	if filter.Agent != nil {
		topics = append(topics, []common.Hash{addressTopic(*filter.Agent)})
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.addrs.ReputationLimits},
		Topics:    topics,
		FromBlock: from,
		ToBlock:   to,
	}
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func idTopics(id *uint64) []common.Hash {
	if id == nil {
		return nil // wildcard position
	}
	return []common.Hash{common.BigToHash(new(big.Int).SetUint64(*id))}
}

func addrTopics(addr *common.Address) []common.Hash {
	if addr == nil {
		return nil
	}
	return []common.Hash{addressTopic(*addr)}
}

func topicID(lg types.Log, i int) uint64 {
	if i >= len(lg.Topics) {
		return 0
	}
	return new(big.Int).SetBytes(lg.Topics[i].Bytes()).Uint64()
}

func topicAddr(lg types.Log, i int) common.Address {
	if i >= len(lg.Topics) {
		return common.Address{}
	}
	return common.BytesToAddress(lg.Topics[i].Bytes())
}

func decodeAgentLog(lg types.Log) (AgentEvent, bool) {
	if len(lg.Topics) == 0 {
		return AgentEvent{}, false
	}
	ev := AgentEvent{
		Agent:       topicAddr(lg, 1),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}
	switch lg.Topics[0] {
	case contracts.RegistryABI.Events["AgentRegistered"].ID:
		ev.Type = AgentRegistered
		out, err := contracts.RegistryABI.Events["AgentRegistered"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(out) < 2 {
			return AgentEvent{}, false
		}
		name, _ := out[0].(string)
		amount, _ := out[1].(*big.Int)
		ev.Name = name
		ev.Amount = amount
	case contracts.RegistryABI.Events["StakeAdded"].ID:
		ev.Type = AgentStakeAdded
		ev.Amount = unpackSingleBig(contracts.RegistryABI.Events["StakeAdded"].Inputs.NonIndexed(), lg.Data)
	case contracts.RegistryABI.Events["StakeWithdrawn"].ID:
		ev.Type = AgentStakeOut
		ev.Amount = unpackSingleBig(contracts.RegistryABI.Events["StakeWithdrawn"].Inputs.NonIndexed(), lg.Data)
	case contracts.RegistryABI.Events["AgentDeactivated"].ID:
		ev.Type = AgentDeactivated
	default:
		return AgentEvent{}, false
	}
	return ev, true
}

func decodePositionLog(lg types.Log) (PositionEvent, bool) {
	if len(lg.Topics) == 0 {
		return PositionEvent{}, false
	}
	ev := PositionEvent{
		PositionID:  topicID(lg, 1),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}
	switch lg.Topics[0] {
	case contracts.VaultABI.Events["PositionOpened"].ID:
		ev.Type = PositionOpened
		ev.Depositor = topicAddr(lg, 2)
		ev.Agent = topicAddr(lg, 3)
		out, err := contracts.VaultABI.Events["PositionOpened"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(out) < 3 {
			return PositionEvent{}, false
		}
		deposit, _ := out[0].(*big.Int)
		minReturn, _ := out[1].(*big.Int)
		lock, _ := out[2].(*big.Int)
		ev.Deposit = deposit
		if minReturn != nil {
			ev.MinReturnBps = minReturn.Int64()
		}
		if lock != nil {
			ev.LockSeconds = lock.Uint64()
		}
	case contracts.VaultABI.Events["PositionClosed"].ID:
		ev.Type = PositionClosed
		ev.Depositor = topicAddr(lg, 2)
		ev.Value = unpackSingleBig(contracts.VaultABI.Events["PositionClosed"].Inputs.NonIndexed(), lg.Data)
	case contracts.VaultABI.Events["PositionValueUpdated"].ID:
		ev.Type = PositionValueUpdated
		ev.Value = unpackSingleBig(contracts.VaultABI.Events["PositionValueUpdated"].Inputs.NonIndexed(), lg.Data)
	default:
		return PositionEvent{}, false
	}
	return ev, true
}

func decodeDisputeLog(lg types.Log) (DisputeEvent, bool) {
	if len(lg.Topics) == 0 {
		return DisputeEvent{}, false
	}
	ev := DisputeEvent{
		DisputeID:   topicID(lg, 1),
		PositionID:  topicID(lg, 2),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}
	switch lg.Topics[0] {
	case contracts.VaultABI.Events["DisputeFiled"].ID:
		ev.Type = DisputeFiled
		ev.Depositor = topicAddr(lg, 3)
	case contracts.VaultABI.Events["DisputeResolved"].ID:
		ev.Type = DisputeResolved
		out, err := contracts.VaultABI.Events["DisputeResolved"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(out) < 1 {
			return DisputeEvent{}, false
		}
		won, _ := out[0].(bool)
		ev.DepositorWon = won
	default:
		return DisputeEvent{}, false
	}
	return ev, true
}

func decodeTierLog(lg types.Log) (TierEvent, bool) {
	if len(lg.Topics) == 0 || lg.Topics[0] != contracts.ReputationABI.Events["TierVerified"].ID {
		return TierEvent{}, false
	}
	out, err := contracts.ReputationABI.Events["TierVerified"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(out) < 2 {
		return TierEvent{}, false
	}
	tier, _ := out[0].(uint8)
	commitment, _ := out[1].([32]byte)
	return TierEvent{
		Agent:       topicAddr(lg, 1),
		Tier:        models.Tier(tier),
		Commitment:  commitment,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}, true
}

func unpackSingleBig(args abi.Arguments, data []byte) *big.Int {
	out, err := args.Unpack(data)
	if err != nil || len(out) < 1 {
		return nil
	}
	v, _ := out[0].(*big.Int)
	return v
}
