package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"copyvault/oracle"
)

// PostgresStore persists history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL store with connection pooling.
// Connection parameters come from POSTGRES_* environment variables.
func NewPostgres(ctx context.Context) (*PostgresStore, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "copyvault")
	password := getEnv("POSTGRES_PASSWORD", "copyvault")
	dbname := getEnv("POSTGRES_DB", "copyvault")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	// Cap slow queries so a stuck statement cannot stall the oracle loop
	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "10000"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}
	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS oracle_cycles (
			id                 BIGSERIAL PRIMARY KEY,
			started_at         TIMESTAMPTZ NOT NULL,
			duration_ms        BIGINT NOT NULL,
			scanned            INT NOT NULL,
			skipped            INT NOT NULL,
			changed            INT NOT NULL,
			write_tx           TEXT NOT NULL DEFAULT '',
			write_failed       BOOLEAN NOT NULL DEFAULT FALSE,
			disputes_attempted INT NOT NULL DEFAULT 0,
			disputes_resolved  INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS dispute_resolutions (
			id                  BIGSERIAL PRIMARY KEY,
			dispute_id          BIGINT NOT NULL,
			position_id         BIGINT NOT NULL,
			actual_return_bps   BIGINT NOT NULL,
			expected_return_bps BIGINT NOT NULL,
			depositor_won       BOOLEAN NOT NULL,
			reason              TEXT NOT NULL DEFAULT '',
			resolved_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (dispute_id)
		);
		CREATE TABLE IF NOT EXISTS admission_decisions (
			id         BIGSERIAL PRIMARY KEY,
			agent      TEXT NOT NULL,
			copier     TEXT NOT NULL,
			value_usd  DOUBLE PRECISION NOT NULL,
			allowed    BOOLEAN NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			tier       TEXT NOT NULL DEFAULT '',
			decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_admission_agent ON admission_decisions (agent, decided_at DESC);
	`)
	return err
}

// Close releases database connections
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// SaveCycle appends one finished reconciliation cycle.
func (s *PostgresStore) SaveCycle(ctx context.Context, stats oracle.CycleStats) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle_cycles (started_at, duration_ms, scanned, skipped, changed, write_tx, write_failed, disputes_attempted, disputes_resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, stats.StartedAt, stats.DurationMs, stats.Scanned, stats.Skipped, stats.Changed,
		stats.WriteTx, stats.WriteFailed, stats.DisputesAttempted, stats.DisputesResolved)
	return err
}

// ListCycles returns the most recent cycles, newest first.
func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, duration_ms, scanned, skipped, changed, write_tx, write_failed, disputes_attempted, disputes_resolved
		FROM oracle_cycles
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(&c.ID, &c.StartedAt, &c.DurationMs, &c.Scanned, &c.Skipped,
			&c.Changed, &c.WriteTx, &c.WriteFailed, &c.DisputesAttempted, &c.DisputesResolved); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// SaveVerdict records an oracle evaluation as a dispute verdict.
func (s *PostgresStore) SaveVerdict(ctx context.Context, ev oracle.Evaluation) error {
	return s.SaveResolution(ctx, resolutionFromVerdict(ev))
}

// SaveResolution records one dispute verdict. Re-recording the same dispute
// keeps the first row.
func (s *PostgresStore) SaveResolution(ctx context.Context, rec ResolutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispute_resolutions (dispute_id, position_id, actual_return_bps, expected_return_bps, depositor_won, reason, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dispute_id) DO NOTHING
	`, rec.DisputeID, rec.PositionID, rec.ActualReturnBps, rec.ExpectedReturnBps,
		rec.DepositorWon, rec.Reason, nonZeroTime(rec.ResolvedAt))
	return err
}

// ListResolutions returns the most recent dispute verdicts, newest first.
func (s *PostgresStore) ListResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dispute_id, position_id, actual_return_bps, expected_return_bps, depositor_won, reason, resolved_at
		FROM dispute_resolutions
		ORDER BY resolved_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ResolutionRecord
	for rows.Next() {
		var r ResolutionRecord
		if err := rows.Scan(&r.ID, &r.DisputeID, &r.PositionID, &r.ActualReturnBps,
			&r.ExpectedReturnBps, &r.DepositorWon, &r.Reason, &r.ResolvedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SaveAdmission appends one admission decision.
func (s *PostgresStore) SaveAdmission(ctx context.Context, rec AdmissionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admission_decisions (agent, copier, value_usd, allowed, reason, tier, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Agent, rec.Copier, rec.ValueUSD, rec.Allowed, rec.Reason, rec.Tier, nonZeroTime(rec.DecidedAt))
	return err
}

// ListAdmissions returns recent admission decisions, newest first, optionally
// filtered to one agent.
func (s *PostgresStore) ListAdmissions(ctx context.Context, agent string, limit int) ([]AdmissionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, agent, copier, value_usd, allowed, reason, tier, decided_at
		FROM admission_decisions`
	args := []interface{}{limit}
	if agent != "" {
		query += ` WHERE agent = $2`
		args = append(args, agent)
	}
	query += `
		ORDER BY decided_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []AdmissionRecord
	for rows.Next() {
		var r AdmissionRecord
		if err := rows.Scan(&r.ID, &r.Agent, &r.Copier, &r.ValueUSD, &r.Allowed,
			&r.Reason, &r.Tier, &r.DecidedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
