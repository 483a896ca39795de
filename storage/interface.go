// Package storage persists reconciliation history: oracle cycles, dispute
// resolutions and admission decisions.
package storage

import (
	"context"
	"time"

	"copyvault/oracle"
)

// CycleRecord is one persisted reconciliation cycle.
type CycleRecord struct {
	ID                int64     `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	DurationMs        int64     `json:"duration_ms"`
	Scanned           int       `json:"scanned"`
	Skipped           int       `json:"skipped"`
	Changed           int       `json:"changed"`
	WriteTx           string    `json:"write_tx,omitempty"`
	WriteFailed       bool      `json:"write_failed"`
	DisputesAttempted int       `json:"disputes_attempted"`
	DisputesResolved  int       `json:"disputes_resolved"`
}

// ResolutionRecord is one persisted dispute verdict.
type ResolutionRecord struct {
	ID                int64     `json:"id"`
	DisputeID         uint64    `json:"dispute_id"`
	PositionID        uint64    `json:"position_id"`
	ActualReturnBps   int64     `json:"actual_return_bps"`
	ExpectedReturnBps int64     `json:"expected_return_bps"`
	DepositorWon      bool      `json:"depositor_won"`
	Reason            string    `json:"reason"`
	ResolvedAt        time.Time `json:"resolved_at"`
}

// AdmissionRecord is one persisted copy-trade admission decision.
type AdmissionRecord struct {
	ID        int64     `json:"id"`
	Agent     string    `json:"agent"`
	Copier    string    `json:"copier"`
	ValueUSD  float64   `json:"value_usd"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Tier      string    `json:"tier"`
	DecidedAt time.Time `json:"decided_at"`
}

// HistoryStore defines the interface for history backends
type HistoryStore interface {
	Close() error

	// Cycle history
	SaveCycle(ctx context.Context, stats oracle.CycleStats) error
	ListCycles(ctx context.Context, limit int) ([]CycleRecord, error)

	// Dispute resolutions
	SaveResolution(ctx context.Context, rec ResolutionRecord) error
	SaveVerdict(ctx context.Context, ev oracle.Evaluation) error
	ListResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error)

	// Admission decisions
	SaveAdmission(ctx context.Context, rec AdmissionRecord) error
	ListAdmissions(ctx context.Context, agent string, limit int) ([]AdmissionRecord, error)
}

// resolutionFromVerdict maps an oracle evaluation onto a stored verdict.
func resolutionFromVerdict(ev oracle.Evaluation) ResolutionRecord {
	return ResolutionRecord{
		DisputeID:         ev.DisputeID,
		PositionID:        ev.PositionID,
		ActualReturnBps:   ev.ActualReturnBps,
		ExpectedReturnBps: ev.ExpectedReturnBps,
		DepositorWon:      ev.UserShouldWin,
		Reason:            ev.Reason,
	}
}

// Ensure both implementations satisfy the interface
var _ HistoryStore = (*MemoryStore)(nil)
var _ HistoryStore = (*PostgresStore)(nil)

// Both also serve as the oracle's cycle sink
var _ oracle.HistorySink = (*MemoryStore)(nil)
var _ oracle.HistorySink = (*PostgresStore)(nil)
