package oracle

import (
	"context"
	"fmt"
	"log"

	"copyvault/models"
)

// Evaluation is the oracle's verdict on a dispute, computed from the
// on-chain record and the agent's live exchange performance.
type Evaluation struct {
	DisputeID         uint64 `json:"dispute_id"`
	PositionID        uint64 `json:"position_id"`
	ActualReturnBps   int64  `json:"actual_return_bps"`
	ExpectedReturnBps int64  `json:"expected_return_bps"`
	UserShouldWin     bool   `json:"user_should_win"`
	Reason            string `json:"reason"`
	AlreadyResolved   bool   `json:"already_resolved"`
}

// ResolveResult reports the outcome of a resolution attempt.
type ResolveResult struct {
	Success    bool
	Evaluation *Evaluation
	Err        error
}

// EvaluateDispute inspects a dispute without submitting anything. A pending
// dispute is judged on the agent's current exchange performance, re-read at
// evaluation time; the snapshot recorded at filing is used only when the
// live reads fail, and verbatim for disputes that are already resolved. The
// depositor wins only when the realized return is strictly below the
// guaranteed minimum; a tie goes to the agent.
func (o *Oracle) EvaluateDispute(ctx context.Context, disputeID uint64) (*Evaluation, error) {
	d, err := o.vault.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("read dispute %d: %w", disputeID, err)
	}

	ev := &Evaluation{
		DisputeID:         d.ID,
		PositionID:        d.PositionID,
		ActualReturnBps:   d.ActualBps,
		ExpectedReturnBps: d.ExpectedBps,
		AlreadyResolved:   d.Resolved,
	}
	if !d.Resolved {
		ev.ActualReturnBps = o.currentReturnBps(ctx, d)
	}
	if ev.ActualReturnBps < ev.ExpectedReturnBps {
		ev.UserShouldWin = true
		ev.Reason = fmt.Sprintf("realized return %d bps is below the guaranteed minimum %d bps", ev.ActualReturnBps, ev.ExpectedReturnBps)
	} else {
		ev.Reason = fmt.Sprintf("realized return %d bps meets or exceeds the guaranteed minimum %d bps", ev.ActualReturnBps, ev.ExpectedReturnBps)
	}
	return ev, nil
}

// currentReturnBps re-reads the disputed position and the agent's exchange
// account and recomputes the realized return, the same ratio the scan uses.
// Falls back to the return recorded at filing time when either read fails.
func (o *Oracle) currentReturnBps(ctx context.Context, d *models.Dispute) int64 {
	pos, err := o.vault.GetPosition(ctx, d.PositionID)
	if err != nil {
		log.Printf("[Oracle] Dispute %d: position %d read failed, judging on the filed snapshot: %v", d.ID, d.PositionID, err)
		return d.ActualBps
	}
	summary, err := o.accounts.AccountSummary(ctx, pos.Agent)
	if err != nil {
		log.Printf("[Oracle] Dispute %d: exchange read for agent %s failed, judging on the filed snapshot: %v", d.ID, pos.Agent.Hex(), err)
		return d.ActualBps
	}
	return summary.PnlRatioBps().Int64()
}

// ResolveDispute evaluates a dispute and submits the verdict. Resolution is
// idempotent: an already-resolved dispute is a successful no-op, and a submit
// failure is re-checked in case another resolver won the race.
func (o *Oracle) ResolveDispute(ctx context.Context, disputeID uint64) ResolveResult {
	ev, err := o.EvaluateDispute(ctx, disputeID)
	if err != nil {
		return ResolveResult{Err: err}
	}
	if ev.AlreadyResolved {
		return ResolveResult{Success: true, Evaluation: ev}
	}

	res, err := o.vault.ResolveDispute(ctx, disputeID, ev.UserShouldWin)
	if err != nil {
		if again, rerr := o.EvaluateDispute(ctx, disputeID); rerr == nil && again.AlreadyResolved {
			return ResolveResult{Success: true, Evaluation: again}
		}
		return ResolveResult{Evaluation: ev, Err: fmt.Errorf("resolve dispute %d: %w", disputeID, err)}
	}
	log.Printf("[Oracle] Resolved dispute %d (position %d, depositor wins: %v, tx %s)",
		disputeID, ev.PositionID, ev.UserShouldWin, res.Hash.Hex())
	if o.history != nil {
		if herr := o.history.SaveVerdict(ctx, *ev); herr != nil {
			log.Printf("[Oracle] Failed to persist verdict for dispute %d: %v", disputeID, herr)
		}
	}
	return ResolveResult{Success: true, Evaluation: ev}
}

// AutoResolveDisputes walks every filed dispute and resolves the pending
// ones. Returns how many were resolved this call and how many were
// attempted. Per-dispute failures are logged and skipped.
func (o *Oracle) AutoResolveDisputes(ctx context.Context) (resolved, attempted int) {
	total, err := o.vault.DisputeCount(ctx)
	if err != nil {
		log.Printf("[Oracle] Failed to enumerate disputes: %v", err)
		return 0, 0
	}
	for id := uint64(1); id <= total; id++ {
		d, err := o.vault.GetDispute(ctx, id)
		if err != nil {
			log.Printf("[Oracle] Skipping dispute %d, read failed: %v", id, err)
			continue
		}
		if d.Resolved {
			continue
		}
		attempted++
		r := o.ResolveDispute(ctx, id)
		if r.Err != nil {
			log.Printf("[Oracle] Dispute %d left pending: %v", id, r.Err)
			continue
		}
		if r.Success && r.Evaluation != nil && !r.Evaluation.AlreadyResolved {
			resolved++
		}
	}
	return resolved, attempted
}
