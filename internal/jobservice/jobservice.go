// Package jobservice materializes Conversation outcomes into persisted
// Jobs (§4.10): allocates a job number, persists the Job, hands it to
// the Routing Engine and (profile-dependent) the Scheduling Engine,
// dispatches notifications, and enforces the Job status machine on
// updates.
//
// Grounded on expotoworld's order-service create/update flow (atomic
// creation + history row + notification side effect inside one
// service method) — re-targeted at the spec's Job/Routing/Scheduling
// contracts instead of order-service's order lifecycle.
package jobservice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/matcher"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/routing"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
)

// Store is the persistence surface jobservice needs from
// storage.Postgres.
type Store interface {
	NextJobNumber(ctx context.Context, tenantID string, year int) (string, error)
	CreateJob(ctx context.Context, job *models.Job, historyActor string) error
	DeleteJob(ctx context.Context, tenantID, jobID string) error
	GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	AppendJobHistory(ctx context.Context, jobID, actor, action string, detail map[string]any) error
	ListWorkersByDepartment(ctx context.Context, tenantID, departmentID string) ([]*models.Worker, error)
	ListWorkers(ctx context.Context, tenantID string) ([]*models.Worker, error)
	ActiveRoutingRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error)
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	BookedIntervals(ctx context.Context, tenantID, workerID string, dayStart, dayEnd time.Time) ([]scheduling.BookedInterval, error)
	BookSlot(ctx context.Context, tenantID, workerID, jobID string, start, end time.Time) error
}

// Notifier dispatches a routing-requested notification through a
// channel adapter (internal/notify). jobservice depends on the
// interface only, per §9's dependency-injection design note.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, channels []string, job *models.Job, reason string) error
}

// Draft is the Conversation SM's intake output handed to Create.
type Draft struct {
	ContactID       string
	Title           string
	Description     string
	TradeCategory   models.TradeCategory
	Urgency         models.Urgency
	Source          models.Source
	Address         models.Address
	Geo             models.GeoPoint
	DistanceFromHQKM float64
	AccessNotes     string
	RecordingFlag   bool
	PreferredWindow *models.TimeWindow
}

type Service struct {
	store    Store
	ledger   *audit.Ledger
	router   *routing.Engine
	sched    *scheduling.Engine
	notifier Notifier
	log      *zap.Logger
}

func New(store Store, ledger *audit.Ledger, router *routing.Engine, sched *scheduling.Engine, notifier Notifier, log *zap.Logger) *Service {
	return &Service{store: store, ledger: ledger, router: router, sched: sched, notifier: notifier, log: log}
}

// Create implements §4.10 steps 1-7.
func (s *Service) Create(ctx context.Context, tenantID, sessionID string, draft Draft, triageBucket models.Urgency) (*models.Job, error) {
	year := time.Now().UTC().Year()
	jobNumber, err := s.store.NextJobNumber(ctx, tenantID, year)
	if err != nil {
		return nil, err
	}

	urgency := draft.Urgency
	if urgency == "" {
		urgency = triageBucket
	}

	job := &models.Job{
		TenantID:         tenantID,
		JobNumber:        jobNumber,
		ContactID:        draft.ContactID,
		Title:            draft.Title,
		Description:      draft.Description,
		TradeCategory:    draft.TradeCategory,
		Urgency:          urgency,
		Status:           models.JobNew,
		Source:           draft.Source,
		AddressSnapshot:  draft.Address,
		Geo:              draft.Geo,
		DistanceFromHQKM: draft.DistanceFromHQKM,
		AccessNotes:      draft.AccessNotes,
		RecordingFlag:    draft.RecordingFlag,
		PreferredWindow:  draft.PreferredWindow,
	}

	if err := s.store.CreateJob(ctx, job, sessionID); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, tenantID, sessionID, "job_created", "job", job.ID, map[string]any{
		"job_number": job.JobNumber, "source": string(job.Source),
	}); err != nil {
		return nil, s.rollbackJobCreate(ctx, tenantID, job.ID, err)
	}

	rules, err := s.store.ActiveRoutingRules(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "routing_rules_load_failed", "could not load routing rules", err)
	}
	decision, err := s.router.Route(job, rules)
	if err != nil {
		return nil, err
	}
	job.DepartmentID = decision.DepartmentID
	job.RoutingPriority = decision.Priority
	job.RoutingReason = decision.Reason
	if decision.EscalationDeadline > 0 {
		deadline := time.Now().UTC().Add(decision.EscalationDeadline)
		job.EscalationAt = &deadline
	}

	if decision.WorkerID == "" && decision.DepartmentID != "" {
		if w, err := s.bestWorker(ctx, tenantID, decision.DepartmentID, job); err == nil && w != nil {
			job.WorkerID = w.ID
		} else if err != nil && !isNoneAvailable(err) {
			return nil, err
		}
	} else {
		job.WorkerID = decision.WorkerID
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.store.AppendJobHistory(ctx, job.ID, sessionID, "routed", map[string]any{
		"department_id": job.DepartmentID, "worker_id": job.WorkerID, "reason": job.RoutingReason,
	}); err != nil {
		return nil, err
	}

	if job.WorkerID != "" && (job.Urgency == models.UrgencyEmergency || job.Urgency == models.UrgencyUrgent) {
		if err := s.autoBook(ctx, tenantID, job); err != nil && apperr.KindOf(err) != apperr.Conflict {
			s.log.Warn("auto-book failed, leaving job unscheduled", zap.Error(err), zap.String("job_id", job.ID))
		}
	}

	if decision.SendNotification && s.notifier != nil {
		if err := s.notifier.Notify(ctx, tenantID, decision.NotificationChannels, job, decision.Reason); err != nil {
			s.log.Warn("notification dispatch failed", zap.Error(err), zap.String("job_id", job.ID))
		}
	}

	return job, nil
}

func (s *Service) bestWorker(ctx context.Context, tenantID, departmentID string, job *models.Job) (*models.Worker, error) {
	workers, err := s.store.ListWorkersByDepartment(ctx, tenantID, departmentID)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		workers, err = s.store.ListWorkers(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}
	candidates, err := matcher.Rank(matcher.DefaultWeights, matcher.Criteria{Job: job}, workers, matcher.WallClock{})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0].Worker, nil
}

func (s *Service) autoBook(ctx context.Context, tenantID string, job *models.Job) error {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	worker, err := s.workerByID(ctx, tenantID, job.WorkerID)
	if err != nil {
		return err
	}
	slots, err := s.sched.FindSlots(ctx, scheduling.Criteria{
		TenantID:      tenantID,
		Job:           job,
		Worker:        worker,
		BusinessHours: tenant.Settings.BusinessHours,
	})
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return apperr.New(apperr.NotFound, "no_slot_available", "no open slot within urgency deadline")
	}
	if err := s.sched.Book(ctx, tenantID, slots[0], job.ID); err != nil {
		return err
	}
	job.Status = models.JobAssigned
	job.ScheduledAt = &slots[0].Start
	return nil
}

func (s *Service) workerByID(ctx context.Context, tenantID, workerID string) (*models.Worker, error) {
	workers, err := s.store.ListWorkers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, w := range workers {
		if w.ID == workerID {
			return w, nil
		}
	}
	return nil, apperr.NotFoundf("worker_not_found", "worker %s not found", workerID)
}

func isNoneAvailable(err error) bool {
	_, ok := err.(matcher.ErrNoneAvailable)
	return ok
}

// validTransitions is the Job status machine, per §3 Job and §8's
// status-machine property.
var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobNew:        {models.JobAssigned, models.JobCancelled},
	models.JobAssigned:   {models.JobInProgress, models.JobCancelled},
	models.JobInProgress: {models.JobCompleted, models.JobCancelled},
	models.JobCompleted:  {},
	models.JobCancelled:  {},
}

// UpdateStatus implements §4.10's update_status: validates the
// transition, cascades timestamps, and appends an audit row.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, jobID, actor string, newStatus models.JobStatus, reason string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if newStatus == job.Status {
		return job, nil
	}
	if !canTransition(job.Status, newStatus) {
		return nil, apperr.Conflictf("illegal_transition", "cannot transition job from %s to %s", job.Status, newStatus)
	}

	prev := *job
	now := time.Now().UTC()
	job.Status = newStatus
	switch newStatus {
	case models.JobInProgress:
		job.StartedAt = &now
	case models.JobCompleted:
		job.CompletedAt = &now
	case models.JobCancelled:
		job.CancelReason = reason
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.store.AppendJobHistory(ctx, job.ID, actor, "status_changed", map[string]any{
		"new_status": string(newStatus), "reason": reason,
	}); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, tenantID, actor, "job_status_changed", "job", job.ID, map[string]any{
		"new_status": string(newStatus),
	}); err != nil {
		return nil, s.rollbackJobUpdate(&prev, "job_status_changed", err)
	}
	return job, nil
}

// rollbackJobUpdate restores a job's pre-mutation field values after a
// failing audit append, per §7's "the offending request is rolled back"
// rule. Uses a fresh background context so an already-cancelled caller
// context doesn't also sink the compensating write. If the rollback
// itself fails, the returned error says so plainly instead of claiming a
// rollback that didn't happen.
func (s *Service) rollbackJobUpdate(prev *models.Job, action string, auditErr error) error {
	restored := *prev
	if err := s.store.UpdateJob(context.Background(), &restored); err != nil {
		if s.log != nil {
			s.log.Error("audit append failed and compensating rollback also failed; job left inconsistent",
				zap.String("job_id", prev.ID), zap.Error(auditErr), zap.Error(err))
		}
		return apperr.Wrap(apperr.Internal, "audit_required",
			fmt.Sprintf("audit write for %q failed and rollback also failed; job may be inconsistent", action), auditErr)
	}
	return audit.Fatal(action, auditErr)
}

// rollbackJobCreate deletes a just-created job when its "job_created"
// audit row could not be written, so no user-visible job survives
// without a durable audit trail (§7). Only safe to call before any
// routing/booking/notification side effect has happened for the job.
func (s *Service) rollbackJobCreate(ctx context.Context, tenantID, jobID string, auditErr error) error {
	if err := s.store.DeleteJob(context.Background(), tenantID, jobID); err != nil {
		if s.log != nil {
			s.log.Error("audit append failed and compensating job delete also failed; job left orphaned without an audit row",
				zap.String("job_id", jobID), zap.Error(auditErr), zap.Error(err))
		}
		return apperr.Wrap(apperr.Internal, "audit_required",
			"audit write for \"job_created\" failed and rollback also failed; job may be orphaned", auditErr)
	}
	return audit.Fatal("job_created", auditErr)
}

func canTransition(from, to models.JobStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AssignWorker implements PATCH /jobs/{id}/assign (§6): sets the job's
// worker directly and re-runs the Routing Engine so department/priority
// stay consistent with the new assignment, per the endpoint's "triggers
// Routing re-check" contract.
func (s *Service) AssignWorker(ctx context.Context, tenantID, jobID, actor, workerID string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, apperr.Conflictf("illegal_transition", "cannot assign a worker to a %s job", job.Status)
	}
	worker, err := s.workerByID(ctx, tenantID, workerID)
	if err != nil {
		return nil, err
	}

	prev := *job
	job.WorkerID = worker.ID
	job.DepartmentID = worker.DepartmentID
	if job.Status == models.JobNew {
		job.Status = models.JobAssigned
	}

	rules, err := s.store.ActiveRoutingRules(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "routing_rules_load_failed", "could not load routing rules", err)
	}
	if decision, err := s.router.Route(job, rules); err == nil {
		job.RoutingPriority = decision.Priority
		job.RoutingReason = decision.Reason
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.store.AppendJobHistory(ctx, job.ID, actor, "worker_assigned", map[string]any{
		"worker_id": worker.ID, "department_id": worker.DepartmentID,
	}); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, tenantID, actor, "job_worker_assigned", "job", job.ID, map[string]any{
		"worker_id": worker.ID,
	}); err != nil {
		return nil, s.rollbackJobUpdate(&prev, "job_worker_assigned", err)
	}
	return job, nil
}
