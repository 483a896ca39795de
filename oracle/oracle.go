// Package oracle runs the recurring reconciliation loop: scan positions,
// recompute value from exchange performance, batch-write changes on-chain and
// adjudicate pending disputes.
package oracle

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/contracts"
	"copyvault/models"
)

// VaultSource is the slice of the contract gateway the oracle drives.
type VaultSource interface {
	PositionCount(ctx context.Context) (uint64, error)
	GetPosition(ctx context.Context, positionID uint64) (*models.Position, error)
	DisputeCount(ctx context.Context) (uint64, error)
	GetDispute(ctx context.Context, disputeID uint64) (*models.Dispute, error)
	UpdatePositionValues(ctx context.Context, positionIDs []uint64, values []*big.Int) (*contracts.TxResult, error)
	ResolveDispute(ctx context.Context, disputeID uint64, depositorWins bool) (*contracts.TxResult, error)
}

// AccountSource supplies external exchange account summaries. Best-effort:
// one failed read must never abort a scan.
type AccountSource interface {
	AccountSummary(ctx context.Context, account common.Address) (*models.AccountSummary, error)
}

// Feed is an optional live exchange connection wired up on Start.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
}

// Config tunes the reconciliation loop.
type Config struct {
	Interval        time.Duration // cycle cadence, default 60s
	ScanConcurrency int           // parallel external reads per scan, default 4
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = 4
	}
	return c
}

// CycleStats summarizes one reconciliation cycle.
type CycleStats struct {
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

// Oracle is the dispute oracle. One logical worker per instance; Start and
// Stop manage its lifecycle.
type Oracle struct {
	vault    VaultSource
	accounts AccountSource
	clock    Clock
	cfg      Config

	feed    Feed          // optional
	metrics *MetricsStore // optional
	history HistorySink   // optional

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// HistorySink receives finished cycle stats and submitted dispute verdicts
// for out-of-band reconciliation.
type HistorySink interface {
	SaveCycle(ctx context.Context, stats CycleStats) error
	SaveVerdict(ctx context.Context, ev Evaluation) error
}

// Option tweaks oracle construction.
type Option func(*Oracle)

// WithFeed attaches a live exchange connection started alongside the loop.
func WithFeed(feed Feed) Option { return func(o *Oracle) { o.feed = feed } }

// WithMetrics attaches the Redis cycle metrics store.
func WithMetrics(m *MetricsStore) Option { return func(o *Oracle) { o.metrics = m } }

// WithHistory attaches a persistent cycle history sink.
func WithHistory(h HistorySink) Option { return func(o *Oracle) { o.history = h } }

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) Option { return func(o *Oracle) { o.clock = c } }

// New builds an oracle over the given vault gateway and account source.
func New(vault VaultSource, accounts AccountSource, cfg Config, opts ...Option) *Oracle {
	o := &Oracle{
		vault:    vault,
		accounts: accounts,
		clock:    RealClock(),
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the loop: one immediate reconciliation pass, then a fixed
// interval. Idempotent; a second Start while running is a no-op.
func (o *Oracle) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}
	if o.feed != nil {
		if err := o.feed.Start(ctx); err != nil {
			log.Printf("[Oracle] Exchange feed unavailable, continuing without it: %v", err)
		}
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.wg.Add(1)
	go o.run(ctx)
	log.Printf("[Oracle] Started with interval %s", o.cfg.Interval)
	return nil
}

// Stop prevents further cycles and waits for an in-flight cycle to finish.
// Safe to call even if Start never ran, and safe to call twice.
func (o *Oracle) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()
	if o.feed != nil {
		o.feed.Stop()
	}
	log.Printf("[Oracle] Stopped")
}

func (o *Oracle) run(ctx context.Context) {
	defer o.wg.Done()

	o.cycle(ctx)

	ticker := o.clock.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.cycle(ctx)
		}
	}
}

// cycle runs one pass and never lets a scan failure kill the loop.
func (o *Oracle) cycle(ctx context.Context) {
	stats, err := o.RunCycle(ctx)
	if err != nil {
		log.Printf("[Oracle] Cycle failed, will retry next interval: %v", err)
	}
	if o.metrics != nil {
		if merr := o.metrics.SaveCycle(ctx, stats); merr != nil {
			log.Printf("[Oracle] Failed to save cycle metrics: %v", merr)
		}
	}
	if o.history != nil {
		if herr := o.history.SaveCycle(ctx, stats); herr != nil {
			log.Printf("[Oracle] Failed to persist cycle history: %v", herr)
		}
	}
}

type valueChange struct {
	id    uint64
	value *big.Int
}

// RunCycle performs one full reconciliation pass: scan every position,
// recompute values from exchange data, submit one batched update for the
// changed ones, then auto-resolve pending disputes. Only a failure to
// enumerate the position count aborts the pass.
func (o *Oracle) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{StartedAt: o.clock.Now()}
	defer func() {
		stats.DurationMs = o.clock.Now().Sub(stats.StartedAt).Milliseconds()
	}()

	total, err := o.vault.PositionCount(ctx)
	if err != nil {
		return stats, fmt.Errorf("enumerate positions: %w", err)
	}
	if total == 0 {
		resolved, attempted := o.AutoResolveDisputes(ctx)
		stats.DisputesResolved, stats.DisputesAttempted = resolved, attempted
		return stats, nil
	}

	changes := o.scan(ctx, total, &stats)

	if len(changes) > 0 {
		sort.Slice(changes, func(i, j int) bool { return changes[i].id < changes[j].id })
		ids := make([]uint64, len(changes))
		values := make([]*big.Int, len(changes))
		for i, ch := range changes {
			ids[i] = ch.id
			values[i] = ch.value
		}
		res, werr := o.vault.UpdatePositionValues(ctx, ids, values)
		if werr != nil {
			// Value writes are advisory. A revert here (e.g. a position that
			// became disputed mid-scan) is skipped, not retried.
			log.Printf("[Oracle] Batch update of %d positions rejected: %v", len(ids), werr)
			stats.WriteFailed = true
		} else {
			stats.WriteTx = res.Hash.Hex()
			log.Printf("[Oracle] Updated %d position values (tx %s)", len(ids), res.Hash.Hex())
		}
	}
	stats.Changed = len(changes)

	resolved, attempted := o.AutoResolveDisputes(ctx)
	stats.DisputesResolved, stats.DisputesAttempted = resolved, attempted
	return stats, nil
}

// scan reads every position and recomputes values. Per-position failures are
// logged and skipped; one bad read never aborts the batch.
func (o *Oracle) scan(ctx context.Context, total uint64, stats *CycleStats) []valueChange {
	var (
		mu      sync.Mutex
		changes []valueChange
		wg      sync.WaitGroup
		sem     = make(chan struct{}, o.cfg.ScanConcurrency)
	)

	for id := uint64(1); id <= total; id++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(id uint64) {
			defer wg.Done()
			defer func() { <-sem }()

			pos, err := o.vault.GetPosition(ctx, id)
			mu.Lock()
			stats.Scanned++
			mu.Unlock()
			if err != nil {
				log.Printf("[Oracle] Skipping position %d, read failed: %v", id, err)
				o.markSkipped(&mu, stats)
				return
			}
			if !pos.Active || pos.Disputed {
				o.markSkipped(&mu, stats)
				return
			}

			summary, err := o.accounts.AccountSummary(ctx, pos.Agent)
			if err != nil {
				log.Printf("[Oracle] Skipping position %d, exchange read for agent %s failed: %v", id, pos.Agent.Hex(), err)
				o.markSkipped(&mu, stats)
				return
			}

			newValue := ComputeValue(pos.Deposit, summary)
			if pos.CurrentValue != nil && newValue.Cmp(pos.CurrentValue) == 0 {
				return
			}
			mu.Lock()
			changes = append(changes, valueChange{id: id, value: newValue})
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return changes
}

func (o *Oracle) markSkipped(mu *sync.Mutex, stats *CycleStats) {
	mu.Lock()
	stats.Skipped++
	mu.Unlock()
}

// ComputeValue recomputes a position's value from its deposit and the
// agent's exchange performance: deposit + deposit*pnlRatio/10000, with the
// ratio exactly zero for an empty account and the result floored at zero for
// a severely underwater agent.
func ComputeValue(deposit *big.Int, summary *models.AccountSummary) *big.Int {
	ratio := summary.PnlRatioBps()
	delta := new(big.Int).Mul(deposit, ratio)
	delta.Quo(delta, big.NewInt(10000))
	value := new(big.Int).Add(deposit, delta)
	if value.Sign() < 0 {
		return big.NewInt(0)
	}
	return value
}
