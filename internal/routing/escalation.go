package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// escalationTiers is urgencyDefaultPriority's value set in ascending
// priority order (lower number = higher priority), used to bump a job's
// priority one tier when it blows through its escalation deadline
// (§4.6 step 5).
var escalationTiers = []int{
	urgencyDefaultPriority[models.UrgencyEmergency],
	urgencyDefaultPriority[models.UrgencyUrgent],
	urgencyDefaultPriority[models.UrgencyNormal],
	urgencyDefaultPriority[models.UrgencyRoutine],
}

// raisePriorityTier returns the closest tier below current (numerically
// smaller, i.e. higher priority), or current unchanged if it's already
// at or past the top tier.
func raisePriorityTier(current int) int {
	best := -1
	for _, tier := range escalationTiers {
		if tier < current && tier > best {
			best = tier
		}
	}
	if best == -1 {
		return current
	}
	return best
}

// EscalationStore is the persistence surface the Escalator needs, a
// narrow slice of storage.Postgres.
type EscalationStore interface {
	JobsPastEscalationDeadline(ctx context.Context, asOf time.Time) ([]*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	AppendJobHistory(ctx context.Context, jobID, actor, action string, detail map[string]any) error
}

// Escalator periodically raises the priority of jobs that blew through
// their routing-rule escalation deadline while still sitting in
// new/assigned, per §4.6 step 5. It is a separate, stateful sibling to
// the stateless Engine, grounded on session.Supervisor's ticker/sweep
// loop (StartSweep/sweep) rather than Engine's pure-function shape,
// since a timer needs somewhere to live between ticks.
type Escalator struct {
	store    EscalationStore
	ledger   *audit.Ledger
	log      *zap.Logger
	interval time.Duration

	stop chan struct{}
}

// NewEscalator constructs an Escalator; interval defaults to 30s if <= 0.
func NewEscalator(store EscalationStore, ledger *audit.Ledger, log *zap.Logger, interval time.Duration) *Escalator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Escalator{store: store, ledger: ledger, log: log, interval: interval, stop: make(chan struct{})}
}

// Start launches the periodic sweep goroutine. Call once per process;
// Stop halts it.
func (e *Escalator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

func (e *Escalator) Stop() { close(e.stop) }

// sweep finds jobs past their escalation deadline still in new/assigned,
// raises their priority a tier, clears the deadline, and records both a
// job history row and an audit "escalated" entry.
func (e *Escalator) sweep(ctx context.Context) {
	jobs, err := e.store.JobsPastEscalationDeadline(ctx, time.Now().UTC())
	if err != nil {
		if e.log != nil {
			e.log.Error("escalation sweep: could not load overdue jobs", zap.Error(err))
		}
		return
	}
	for _, job := range jobs {
		if job.Status != models.JobNew && job.Status != models.JobAssigned {
			continue
		}
		oldPriority := job.RoutingPriority
		job.RoutingPriority = raisePriorityTier(job.RoutingPriority)
		job.EscalationAt = nil

		if err := e.store.UpdateJob(ctx, job); err != nil {
			if e.log != nil {
				e.log.Error("escalation sweep: could not update job", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		if err := e.store.AppendJobHistory(ctx, job.ID, "system", "escalated", map[string]any{
			"old_priority": oldPriority, "new_priority": job.RoutingPriority,
		}); err != nil && e.log != nil {
			e.log.Error("escalation sweep: could not append job history", zap.String("job_id", job.ID), zap.Error(err))
		}
		if _, err := e.ledger.Append(ctx, job.TenantID, "system", "escalated", "job", job.ID, map[string]any{
			"old_priority": oldPriority, "new_priority": job.RoutingPriority,
		}); err != nil && e.log != nil {
			e.log.Error("escalation sweep: audit append failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
