package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"copyvault/models"
)

func dispute(id, positionID uint64, actual, expected int64) *models.Dispute {
	return &models.Dispute{
		ID:          id,
		PositionID:  positionID,
		ActualBps:   actual,
		ExpectedBps: expected,
	}
}

func TestEvaluateDispute(t *testing.T) {
	tests := []struct {
		name       string
		actual     int64
		expected   int64
		userWins   bool
		reasonPart string
	}{
		{"underperformed", -150, 200, true, "below the guaranteed minimum"},
		{"exactly at minimum goes to agent", 200, 200, false, "meets or exceeds"},
		{"overperformed", 500, 200, false, "meets or exceeds"},
		{"negative minimum still enforced", -600, -500, true, "below the guaranteed minimum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vault := newFakeVault()
			vault.disputes[1] = dispute(1, 7, tt.actual, tt.expected)

			o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
			ev, err := o.EvaluateDispute(context.Background(), 1)
			if err != nil {
				t.Fatalf("EvaluateDispute: %v", err)
			}
			if ev.UserShouldWin != tt.userWins {
				t.Errorf("UserShouldWin = %v, want %v", ev.UserShouldWin, tt.userWins)
			}
			if ev.PositionID != 7 {
				t.Errorf("PositionID = %d, want 7", ev.PositionID)
			}
			if !strings.Contains(ev.Reason, tt.reasonPart) {
				t.Errorf("Reason = %q, want it to contain %q", ev.Reason, tt.reasonPart)
			}
		})
	}
}

func TestEvaluateDisputeJudgesOnLiveReturn(t *testing.T) {
	agent := agentAddr(1)
	vault := newFakeVault()
	// Snapshot at filing time looked healthy.
	vault.disputes[1] = dispute(1, 7, 500, 0)
	vault.positions[7] = position(7, agent, 1000, 1000)

	// The agent has since lost half the account: -5000 bps live.
	accounts := newFakeAccounts()
	accounts.set(agent, 2000, -1000)

	o := New(vault, accounts, Config{}, WithClock(newFakeClock()))
	ev, err := o.EvaluateDispute(context.Background(), 1)
	if err != nil {
		t.Fatalf("EvaluateDispute: %v", err)
	}
	if !ev.UserShouldWin {
		t.Error("stale filing snapshot overrode the live return")
	}
	if ev.ActualReturnBps != -5000 {
		t.Errorf("ActualReturnBps = %d, want -5000", ev.ActualReturnBps)
	}
	accounts.mu.Lock()
	calls := accounts.calls
	accounts.mu.Unlock()
	if calls != 1 {
		t.Errorf("exchange reads = %d, want 1", calls)
	}
}

func TestEvaluateDisputeFallsBackToSnapshot(t *testing.T) {
	agent := agentAddr(1)

	t.Run("position unreadable", func(t *testing.T) {
		vault := newFakeVault()
		vault.disputes[1] = dispute(1, 7, -150, 200)
		vault.readErrs[7] = errors.New("rpc down")
		vault.positions[7] = position(7, agent, 1000, 1000)

		o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
		ev, err := o.EvaluateDispute(context.Background(), 1)
		if err != nil {
			t.Fatalf("EvaluateDispute: %v", err)
		}
		if !ev.UserShouldWin || ev.ActualReturnBps != -150 {
			t.Errorf("evaluation = %+v, want snapshot verdict", ev)
		}
	})

	t.Run("exchange unreadable", func(t *testing.T) {
		vault := newFakeVault()
		vault.disputes[1] = dispute(1, 7, -150, 200)
		vault.positions[7] = position(7, agent, 1000, 1000)

		accounts := newFakeAccounts()
		accounts.errs[agent] = errors.New("exchange 503")

		o := New(vault, accounts, Config{}, WithClock(newFakeClock()))
		ev, err := o.EvaluateDispute(context.Background(), 1)
		if err != nil {
			t.Fatalf("EvaluateDispute: %v", err)
		}
		if !ev.UserShouldWin || ev.ActualReturnBps != -150 {
			t.Errorf("evaluation = %+v, want snapshot verdict", ev)
		}
	})
}

func TestEvaluateDisputeResolvedUsesRecordedReturn(t *testing.T) {
	agent := agentAddr(1)
	vault := newFakeVault()
	d := dispute(1, 7, -150, 200)
	d.Resolved = true
	vault.disputes[1] = d
	vault.positions[7] = position(7, agent, 1000, 1000)

	accounts := newFakeAccounts()
	accounts.set(agent, 2000, 1000)

	o := New(vault, accounts, Config{}, WithClock(newFakeClock()))
	ev, err := o.EvaluateDispute(context.Background(), 1)
	if err != nil {
		t.Fatalf("EvaluateDispute: %v", err)
	}
	if ev.ActualReturnBps != -150 || !ev.AlreadyResolved {
		t.Errorf("evaluation = %+v, want the recorded return", ev)
	}
	accounts.mu.Lock()
	calls := accounts.calls
	accounts.mu.Unlock()
	if calls != 0 {
		t.Errorf("exchange consulted for a settled dispute (%d reads)", calls)
	}
}

func TestEvaluateDisputeReadError(t *testing.T) {
	vault := newFakeVault()
	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	if _, err := o.EvaluateDispute(context.Background(), 99); err == nil {
		t.Fatal("expected error for unknown dispute")
	}
}

func TestResolveDisputeSubmitsVerdict(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 7, -150, 200)

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	res := o.ResolveDispute(context.Background(), 1)
	if !res.Success || res.Err != nil {
		t.Fatalf("ResolveDispute = %+v", res)
	}
	won, ok := vault.resolved[1]
	if !ok || !won {
		t.Errorf("verdict submitted = %v/%v, want depositor win", won, ok)
	}
}

func TestResolveDisputeAlreadyResolvedIsNoOp(t *testing.T) {
	vault := newFakeVault()
	d := dispute(1, 7, -150, 200)
	d.Resolved = true
	vault.disputes[1] = d

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	res := o.ResolveDispute(context.Background(), 1)
	if !res.Success || res.Err != nil {
		t.Fatalf("ResolveDispute = %+v, want successful no-op", res)
	}
	if _, submitted := vault.resolved[1]; submitted {
		t.Error("verdict submitted for an already-resolved dispute")
	}
}

func TestResolveDisputeLostRaceStillSucceeds(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 7, -150, 200)
	vault.resolveErr = errors.New("execution reverted: already resolved")
	// Another resolver landed first.
	vault.disputes[1].Resolved = true

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	res := o.ResolveDispute(context.Background(), 1)
	if !res.Success || res.Err != nil {
		t.Fatalf("ResolveDispute = %+v, want success after re-read", res)
	}
}

func TestResolveDisputeSubmitFailure(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 7, -150, 200)
	vault.resolveErr = errors.New("rpc timeout")

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	res := o.ResolveDispute(context.Background(), 1)
	if res.Success || res.Err == nil {
		t.Fatalf("ResolveDispute = %+v, want failure", res)
	}
}

type fakeSink struct {
	mu       sync.Mutex
	cycles   []CycleStats
	verdicts []Evaluation
}

func (s *fakeSink) SaveCycle(_ context.Context, stats CycleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, stats)
	return nil
}

func (s *fakeSink) SaveVerdict(_ context.Context, ev Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, ev)
	return nil
}

func TestResolveDisputePersistsVerdict(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 7, -150, 200)
	sink := &fakeSink{}

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()), WithHistory(sink))
	res := o.ResolveDispute(context.Background(), 1)
	if !res.Success {
		t.Fatalf("ResolveDispute = %+v", res)
	}

	if len(sink.verdicts) != 1 {
		t.Fatalf("verdicts persisted = %d, want 1", len(sink.verdicts))
	}
	v := sink.verdicts[0]
	if v.DisputeID != 1 || v.PositionID != 7 || !v.UserShouldWin {
		t.Errorf("persisted verdict = %+v", v)
	}

	// Re-resolving a settled dispute must not write a second verdict.
	if res := o.ResolveDispute(context.Background(), 1); !res.Success {
		t.Fatalf("second ResolveDispute = %+v", res)
	}
	if len(sink.verdicts) != 1 {
		t.Errorf("verdicts persisted = %d after no-op resolve", len(sink.verdicts))
	}
}

func TestAutoResolveDisputes(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 10, -100, 0) // pending, depositor wins
	resolved := dispute(2, 11, 300, 0)
	resolved.Resolved = true
	vault.disputes[2] = resolved // already settled
	vault.disputes[3] = dispute(3, 12, 300, 0) // pending, agent wins

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	gotResolved, gotAttempted := o.AutoResolveDisputes(context.Background())
	if gotAttempted != 2 {
		t.Errorf("attempted = %d, want 2", gotAttempted)
	}
	if gotResolved != 2 {
		t.Errorf("resolved = %d, want 2", gotResolved)
	}
	if won := vault.resolved[1]; !won {
		t.Error("dispute 1 should be resolved for the depositor")
	}
	if won, ok := vault.resolved[3]; !ok || won {
		t.Errorf("dispute 3 resolved = %v/%v, want agent win", won, ok)
	}
	if _, submitted := vault.resolved[2]; submitted {
		t.Error("dispute 2 resubmitted despite being resolved")
	}
}

func TestAutoResolveDisputesSurvivesSubmitFailures(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 10, -100, 0)
	vault.resolveErr = errors.New("rpc down")

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	resolved, attempted := o.AutoResolveDisputes(context.Background())
	if attempted != 1 || resolved != 0 {
		t.Errorf("attempted/resolved = %d/%d, want 1/0", attempted, resolved)
	}
}

func TestRunCycleResolvesDisputes(t *testing.T) {
	vault := newFakeVault()
	vault.disputes[1] = dispute(1, 10, -100, 0)

	o := New(vault, newFakeAccounts(), Config{}, WithClock(newFakeClock()))
	stats, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.DisputesAttempted != 1 || stats.DisputesResolved != 1 {
		t.Errorf("disputes attempted/resolved = %d/%d, want 1/1", stats.DisputesAttempted, stats.DisputesResolved)
	}
}
