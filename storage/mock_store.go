package storage

import (
	"context"
	"sync"

	"copyvault/oracle"
)

// MemoryStore is an in-memory HistoryStore for tests and local runs without
// a database.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	cycles      []CycleRecord
	resolutions []ResolutionRecord
	admissions  []AdmissionRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// SaveCycle appends one finished reconciliation cycle.
func (s *MemoryStore) SaveCycle(ctx context.Context, stats oracle.CycleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, CycleRecord{
		ID:                s.id(),
		StartedAt:         stats.StartedAt,
		DurationMs:        stats.DurationMs,
		Scanned:           stats.Scanned,
		Skipped:           stats.Skipped,
		Changed:           stats.Changed,
		WriteTx:           stats.WriteTx,
		WriteFailed:       stats.WriteFailed,
		DisputesAttempted: stats.DisputesAttempted,
		DisputesResolved:  stats.DisputesResolved,
	})
	return nil
}

// ListCycles returns the most recent cycles, newest first.
func (s *MemoryStore) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CycleRecord, 0, limit)
	for i := len(s.cycles) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.cycles[i])
	}
	return out, nil
}

// SaveVerdict records an oracle evaluation as a dispute verdict.
func (s *MemoryStore) SaveVerdict(ctx context.Context, ev oracle.Evaluation) error {
	return s.SaveResolution(ctx, resolutionFromVerdict(ev))
}

// SaveResolution records one dispute verdict, first write wins per dispute.
func (s *MemoryStore) SaveResolution(ctx context.Context, rec ResolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resolutions {
		if r.DisputeID == rec.DisputeID {
			return nil
		}
	}
	rec.ID = s.id()
	rec.ResolvedAt = nonZeroTime(rec.ResolvedAt)
	s.resolutions = append(s.resolutions, rec)
	return nil
}

// ListResolutions returns the most recent dispute verdicts, newest first.
func (s *MemoryStore) ListResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ResolutionRecord, 0, limit)
	for i := len(s.resolutions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.resolutions[i])
	}
	return out, nil
}

// SaveAdmission appends one admission decision.
func (s *MemoryStore) SaveAdmission(ctx context.Context, rec AdmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id()
	rec.DecidedAt = nonZeroTime(rec.DecidedAt)
	s.admissions = append(s.admissions, rec)
	return nil
}

// ListAdmissions returns recent admission decisions, newest first, optionally
// filtered to one agent.
func (s *MemoryStore) ListAdmissions(ctx context.Context, agent string, limit int) ([]AdmissionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AdmissionRecord, 0, limit)
	for i := len(s.admissions) - 1; i >= 0 && len(out) < limit; i-- {
		if agent != "" && s.admissions[i].Agent != agent {
			continue
		}
		out = append(out, s.admissions[i])
	}
	return out, nil
}
