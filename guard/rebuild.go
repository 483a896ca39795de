package guard

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/events"
	"copyvault/models"
)

// PositionHistorian is the slice of the event service the rebuild needs.
type PositionHistorian interface {
	PositionHistory(ctx context.Context, filter events.PositionFilter, fromBlock, toBlock uint64) ([]events.PositionEvent, error)
}

// RebuildFromEvents reconstructs the admission mirror from historical
// position events. The mirror starts empty on every restart; replaying
// opened/closed events closes that gap before the guard takes decisions.
// Values are approximated by the opening deposit, which is the notional the
// tier limits gate on at admission time.
func (g *Guard) RebuildFromEvents(ctx context.Context, hist PositionHistorian, fromBlock, toBlock uint64) error {
	evs, err := hist.PositionHistory(ctx, events.PositionFilter{}, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("position history: %w", err)
	}

	type opened struct {
		agent     common.Address
		depositor common.Address
		usd       float64
	}
	open := make(map[uint64]opened)

	g.state.mu.Lock()
	g.state.agents = make(map[common.Address]*agentExposure)
	g.state.mu.Unlock()

	rebuilt := 0
	for _, ev := range evs {
		switch ev.Type {
		case events.PositionOpened:
			usd := bigToUSD(ev.Deposit) / models.UsdScale
			open[ev.PositionID] = opened{agent: ev.Agent, depositor: ev.Depositor, usd: usd}
			g.record(ev.Agent, ev.Depositor, usd)
			rebuilt++
		case events.PositionClosed:
			op, ok := open[ev.PositionID]
			if !ok {
				continue // opened before the queried range
			}
			g.RemoveCopier(op.agent, op.depositor, op.usd)
			delete(open, ev.PositionID)
		}
	}
	log.Printf("[Guard] Rebuilt admission state from %d events (%d positions replayed)", len(evs), rebuilt)
	return nil
}
