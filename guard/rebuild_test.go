package guard

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"copyvault/events"
	"copyvault/models"
)

type fakeHistorian struct {
	events []events.PositionEvent
	err    error
}

func (f *fakeHistorian) PositionHistory(context.Context, events.PositionFilter, uint64, uint64) ([]events.PositionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func microUSD(usd int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(usd), big.NewInt(models.UsdScale))
}

func TestRebuildFromEvents(t *testing.T) {
	agent := addr(1)
	hist := &fakeHistorian{events: []events.PositionEvent{
		{Type: events.PositionOpened, PositionID: 1, Depositor: addr(2), Agent: agent, Deposit: microUSD(500), BlockNumber: 10},
		{Type: events.PositionOpened, PositionID: 2, Depositor: addr(3), Agent: agent, Deposit: microUSD(250), BlockNumber: 11},
		{Type: events.PositionOpened, PositionID: 3, Depositor: addr(4), Agent: agent, Deposit: microUSD(100), BlockNumber: 12},
		{Type: events.PositionClosed, PositionID: 3, Depositor: addr(4), BlockNumber: 20},
		// Value updates do not change admission exposure.
		{Type: events.PositionValueUpdated, PositionID: 1, Value: microUSD(600), BlockNumber: 21},
	}}

	g := New(bronzeTiers(agent), nil)
	if err := g.RebuildFromEvents(context.Background(), hist, 0, 0); err != nil {
		t.Fatalf("RebuildFromEvents: %v", err)
	}

	stats := g.GetAgentStats(agent)
	if stats.Followers != 2 {
		t.Errorf("Followers = %d, want 2", stats.Followers)
	}
	if stats.TotalValue != 750 {
		t.Errorf("TotalValue = %.2f, want 750", stats.TotalValue)
	}
}

func TestRebuildReplacesExistingState(t *testing.T) {
	agent := addr(1)
	g := New(bronzeTiers(agent), nil)
	g.RecordCopyTrade(agent, addr(9), 1_000_000)

	hist := &fakeHistorian{events: []events.PositionEvent{
		{Type: events.PositionOpened, PositionID: 1, Depositor: addr(2), Agent: agent, Deposit: microUSD(100)},
	}}
	if err := g.RebuildFromEvents(context.Background(), hist, 0, 0); err != nil {
		t.Fatalf("RebuildFromEvents: %v", err)
	}

	stats := g.GetAgentStats(agent)
	if stats.Followers != 1 || stats.TotalValue != 100 {
		t.Errorf("stale state survived rebuild: %+v", stats)
	}
}

func TestRebuildCloseWithoutOpenIgnored(t *testing.T) {
	agent := addr(1)
	hist := &fakeHistorian{events: []events.PositionEvent{
		// Opened before the queried range; only its close is visible.
		{Type: events.PositionClosed, PositionID: 7, Depositor: addr(2)},
		{Type: events.PositionOpened, PositionID: 8, Depositor: addr(3), Agent: agent, Deposit: microUSD(40)},
	}}

	g := New(bronzeTiers(agent), nil)
	if err := g.RebuildFromEvents(context.Background(), hist, 0, 0); err != nil {
		t.Fatalf("RebuildFromEvents: %v", err)
	}
	stats := g.GetAgentStats(agent)
	if stats.Followers != 1 || stats.TotalValue != 40 {
		t.Errorf("stats = %+v, want 1 follower / $40", stats)
	}
}

func TestRebuildExposureSharesAdmissionScale(t *testing.T) {
	agent := addr(1)
	// One rebuilt $9,000 deposit against the bronze $10,000 cap.
	hist := &fakeHistorian{events: []events.PositionEvent{
		{Type: events.PositionOpened, PositionID: 1, Depositor: addr(2), Agent: agent, Deposit: microUSD(9_000)},
	}}

	g := New(bronzeTiers(agent), nil)
	if err := g.RebuildFromEvents(context.Background(), hist, 0, 0); err != nil {
		t.Fatalf("RebuildFromEvents: %v", err)
	}

	d, err := g.CheckCopyTrade(context.Background(), agent, addr(2), 1_000, 1)
	if err != nil {
		t.Fatalf("CheckCopyTrade: %v", err)
	}
	if !d.Allowed {
		t.Errorf("headroom trade denied after rebuild: %q", d.Reason)
	}

	d, err = g.CheckCopyTrade(context.Background(), agent, addr(2), 1_001, 1)
	if err != nil {
		t.Fatalf("CheckCopyTrade: %v", err)
	}
	if d.Allowed {
		t.Error("trade past the cap admitted after rebuild")
	}
}

func TestRebuildHistoryError(t *testing.T) {
	g := New(bronzeTiers(addr(1)), nil)
	hist := &fakeHistorian{err: errors.New("filter range too large")}
	if err := g.RebuildFromEvents(context.Background(), hist, 0, 0); err == nil {
		t.Fatal("expected error when history read fails")
	}
}
