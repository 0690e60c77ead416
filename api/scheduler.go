/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically repairs invoice paid caches and measures cash drift, so the
  denormalized invoice columns converge on the payment rows and operators
  can see how far the cash journal has strayed from the credit ledgers.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass repairs invoices (InvoiceLedger.ReconcilePaidCache) and
    counts cash drift (Reporter.CashDrift); drift is reported, never fixed
  - Records reconciliation runs for audit and UI display
  - Passes never overlap; RunNow waits for an in-flight pass

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(invoices, reporter, runs)
  scheduler.Start(ctx)
  // ... later, or cancel ctx
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconcile endpoint (manual reconciliation)
  - ledger/invoice.go: ReconcilePaidCache
  - ledger/reconcile.go: DetectCashDrift
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
)

// ReconciliationScheduler handles automated reconciliation.
type ReconciliationScheduler struct {
	Invoices      *ledger.InvoiceLedger
	Reporter      *ledger.Reporter
	Runs          ledger.RunStore
	CheckInterval time.Duration
	Enabled       bool

	// Actor is stamped on the request context of scheduled passes.
	Actor string
	Clock func() time.Time

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	pass   sync.Mutex
	log    zerolog.Logger
}

// NewReconciliationScheduler creates a new scheduler. runs may be nil, in
// which case passes are logged but not recorded.
func NewReconciliationScheduler(invoices *ledger.InvoiceLedger, reporter *ledger.Reporter, runs ledger.RunStore) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Invoices:      invoices,
		Reporter:      reporter,
		Runs:          runs,
		CheckInterval: time.Hour,
		Enabled:       true,
		Actor:         "system:reconciler",
		Clock:         time.Now,
		log:           logger.WithComponent("scheduler"),
	}
}

// Start begins the scheduler. Scheduled passes run under ctx, and cancelling
// it ends the loop as Stop does.
func (rs *ReconciliationScheduler) Start(ctx context.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.log.Info().Msg("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run(runCtx, rs.ticker)

	rs.log.Info().Dur("interval", rs.CheckInterval).Msg("started")
}

// Stop stops the scheduler and waits for an in-flight pass.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.cancel()
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info().Msg("stopped")
	}
}

func (rs *ReconciliationScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one reconciliation pass and returns its run record. The
// returned error is also recorded on the run.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) (ledger.ReconciliationRun, error) {
	rs.pass.Lock()
	defer rs.pass.Unlock()

	if _, ok := ledger.ActorFrom(ctx); !ok {
		ctx = ledger.WithActor(ctx, rs.Actor)
	}

	run := ledger.ReconciliationRun{Status: ledger.RunRunning, StartedAt: rs.Clock().UTC()}
	run = rs.save(ctx, run)

	repairs, err := rs.Invoices.ReconcilePaidCache(ctx)
	run.InvoicesRepaired = len(repairs)
	if err != nil {
		return rs.fail(ctx, run, err), err
	}

	drift, err := rs.Reporter.CashDrift(ctx)
	if err != nil {
		return rs.fail(ctx, run, err), err
	}
	run.CashDrifts = len(drift)

	completed := rs.Clock().UTC()
	run.Status = ledger.RunCompleted
	run.CompletedAt = &completed
	run = rs.save(ctx, run)

	ev := rs.log.Info()
	if run.CashDrifts > 0 {
		ev = rs.log.Warn()
	}
	ev.Str("run_id", run.ID).Int("invoices_repaired", run.InvoicesRepaired).
		Int("cash_drifts", run.CashDrifts).Msg("reconciliation completed")
	return run, nil
}

func (rs *ReconciliationScheduler) fail(ctx context.Context, run ledger.ReconciliationRun, err error) ledger.ReconciliationRun {
	completed := rs.Clock().UTC()
	run.Status = ledger.RunFailed
	run.Error = err.Error()
	run.CompletedAt = &completed
	rs.log.Error().Err(err).Str("run_id", run.ID).Msg("reconciliation failed")
	return rs.save(ctx, run)
}

// save records the run. A failure to record is logged; it does not fail the
// pass.
func (rs *ReconciliationScheduler) save(ctx context.Context, run ledger.ReconciliationRun) ledger.ReconciliationRun {
	if rs.Runs == nil {
		return run
	}
	saved, err := rs.Runs.SaveReconciliationRun(ctx, run)
	if err != nil {
		rs.log.Error().Err(err).Str("run_id", run.ID).Msg("failed to record reconciliation run")
		return run
	}
	return saved
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *ReconciliationScheduler) NextRunTime() time.Time {
	return rs.Clock().Add(rs.CheckInterval)
}
