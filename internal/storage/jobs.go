package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// NextJobNumber atomically allocates the next job number for
// (tenant, year), implementing §4.10 step 1's "atomic per tenant/year
// counter" and the job-number-monotonicity property (§8).
func (p *Postgres) NextJobNumber(ctx context.Context, tenantID string, year int) (string, error) {
	row := p.Pool.QueryRow(ctx,
		`INSERT INTO job_counters (tenant_id, year, next_seq) VALUES ($1, $2, 2)
		 ON CONFLICT (tenant_id, year) DO UPDATE SET next_seq = job_counters.next_seq + 1
		 RETURNING next_seq - 1`, tenantID, year)
	var seq int
	if err := row.Scan(&seq); err != nil {
		return "", apperr.Wrap(apperr.Internal, "job_number_alloc_failed", "could not allocate job number", err)
	}
	return models.FormatJobNumber(year, seq), nil
}

// CreateJob inserts a new Job and its "created" history row atomically
// (§4.10: "writes of related entities ... MUST be atomic").
func (p *Postgres) CreateJob(ctx context.Context, job *models.Job, historyActor string) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now

	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	addr, err := toJSON(job.AddressSnapshot)
	if err != nil {
		return err
	}
	geo, err := toJSON(job.Geo)
	if err != nil {
		return err
	}
	window, err := toJSON(job.PreferredWindow)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, tenant_id, job_number, contact_id, title, description, trade_category, urgency,
			status, source, address_snapshot, geo, distance_from_hq_km, routing_priority, routing_reason, escalation_at,
			department_id, worker_id, preferred_window, access_notes, recording_flag, recording_url, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		job.ID, job.TenantID, job.JobNumber, job.ContactID, job.Title, job.Description, job.TradeCategory,
		job.Urgency, job.Status, job.Source, addr, geo, job.DistanceFromHQKM, job.RoutingPriority, job.RoutingReason, job.EscalationAt,
		job.DepartmentID, job.WorkerID, window, job.AccessNotes, job.RecordingFlag, job.RecordingURL, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return err
	}

	if err := insertJobHistory(ctx, tx, job.ID, historyActor, "created", map[string]any{"source": string(job.Source)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteJob hard-deletes a job and its history rows. Used only as a
// compensating action when the audit write for a just-created job
// fails (§7: no user-visible job may survive without a durable audit
// row), never as a general-purpose delete.
func (p *Postgres) DeleteJob(ctx context.Context, tenantID, jobID string) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM job_history WHERE job_id=$1`, jobID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id=$1 AND tenant_id=$2`, jobID, tenantID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertJobHistory(ctx context.Context, tx pgx.Tx, jobID, actor, action string, detail map[string]any) error {
	detailJSON, err := toJSON(detail)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO job_history (id, job_id, actor, action, timestamp, detail_json) VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), jobID, actor, action, time.Now().UTC(), detailJSON)
	return err
}

// AppendJobHistory appends a standalone history row outside a Create
// transaction (e.g. for status-update flows in jobservice).
func (p *Postgres) AppendJobHistory(ctx context.Context, jobID, actor, action string, detail map[string]any) error {
	detailJSON, err := toJSON(detail)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO job_history (id, job_id, actor, action, timestamp, detail_json) VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), jobID, actor, action, time.Now().UTC(), detailJSON)
	return err
}

func (p *Postgres) GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	row := p.Pool.QueryRow(ctx, jobSelectColumns()+` FROM jobs WHERE tenant_id=$1 AND id=$2`, tenantID, jobID)
	return scanJob(row)
}

func (p *Postgres) GetJobHistory(ctx context.Context, jobID string) ([]*models.JobHistoryEntry, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, job_id, actor, action, timestamp, detail_json FROM job_history WHERE job_id=$1 ORDER BY timestamp ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.JobHistoryEntry
	for rows.Next() {
		var h models.JobHistoryEntry
		var detail []byte
		if err := rows.Scan(&h.ID, &h.JobID, &h.Actor, &h.Action, &h.Timestamp, &detail); err != nil {
			return nil, err
		}
		if err := fromJSON(detail, &h.Detail); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// JobFilters narrows GET /jobs listing, per §6's REST table.
type JobFilters struct {
	Status   models.JobStatus
	Urgency  models.Urgency
	Trade    models.TradeCategory
	Source   models.Source
	FromDate time.Time
	ToDate   time.Time
	FullText string
	Page     int
	Limit    int
}

// ListJobs returns a tenant-scoped, filtered, paginated job list plus
// the total matching row count.
func (p *Postgres) ListJobs(ctx context.Context, tenantID string, f JobFilters) ([]*models.Job, int, error) {
	where := `WHERE tenant_id = $1`
	args := []any{tenantID}
	idx := 2

	add := func(clause string, val any) {
		where += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, val)
		idx++
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if f.Urgency != "" {
		add("urgency =", f.Urgency)
	}
	if f.Trade != "" {
		add("trade_category =", f.Trade)
	}
	if f.Source != "" {
		add("source =", f.Source)
	}
	if !f.FromDate.IsZero() {
		add("created_at >=", f.FromDate)
	}
	if !f.ToDate.IsZero() {
		add("created_at <=", f.ToDate)
	}
	if f.FullText != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.FullText+"%")
		idx++
	}

	var total int
	if err := p.Pool.QueryRow(ctx, `SELECT count(*) FROM jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 25
	}
	offset := (page - 1) * limit
	args = append(args, limit, offset)
	query := jobSelectColumns() + ` ` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)

	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

// UpdateJob persists the full mutable field set of a Job.
func (p *Postgres) UpdateJob(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	addr, err := toJSON(job.AddressSnapshot)
	if err != nil {
		return err
	}
	geo, err := toJSON(job.Geo)
	if err != nil {
		return err
	}
	window, err := toJSON(job.PreferredWindow)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`UPDATE jobs SET title=$3, description=$4, trade_category=$5, urgency=$6, status=$7, address_snapshot=$8,
			geo=$9, distance_from_hq_km=$10, routing_priority=$11, routing_reason=$12, department_id=$13, worker_id=$14,
			preferred_window=$15, scheduled_at=$16, access_notes=$17, recording_flag=$18, cancel_reason=$19,
			updated_at=$20, started_at=$21, completed_at=$22, recording_url=$23, escalation_at=$24
		 WHERE tenant_id=$1 AND id=$2`,
		job.TenantID, job.ID, job.Title, job.Description, job.TradeCategory, job.Urgency, job.Status, addr,
		geo, job.DistanceFromHQKM, job.RoutingPriority, job.RoutingReason, job.DepartmentID, job.WorkerID,
		window, job.ScheduledAt, job.AccessNotes, job.RecordingFlag, job.CancelReason,
		job.UpdatedAt, job.StartedAt, job.CompletedAt, job.RecordingURL, job.EscalationAt)
	return err
}

// SetJobRecordingURL persists the storage location of a finished call
// recording once the upload completes (§4.6/§4.10's recording_flag /
// recording_url pair) — a narrow, single-column update kept separate
// from UpdateJob since it runs from a background upload goroutine well
// after the request that closed the job has already returned.
func (p *Postgres) SetJobRecordingURL(ctx context.Context, tenantID, jobID, url string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE jobs SET recording_url=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, jobID, url)
	return err
}

// JobStats is the aggregated-counts payload for GET /jobs/stats (§6).
type JobStats struct {
	Total       int                       `json:"total"`
	ByStatus    map[models.JobStatus]int  `json:"by_status"`
	ByUrgency   map[models.Urgency]int    `json:"by_urgency"`
	Unassigned  int                       `json:"unassigned"`
}

// JobStats aggregates counts across every non-terminal filter dimension
// the dashboard needs; a handful of small grouped queries beats one
// giant CASE-WHEN projection for readability.
func (p *Postgres) JobStats(ctx context.Context, tenantID string) (*JobStats, error) {
	stats := &JobStats{ByStatus: map[models.JobStatus]int{}, ByUrgency: map[models.Urgency]int{}}

	if err := p.Pool.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE tenant_id=$1`, tenantID).Scan(&stats.Total); err != nil {
		return nil, err
	}

	statusRows, err := p.Pool.Query(ctx, `SELECT status, count(*) FROM jobs WHERE tenant_id=$1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status models.JobStatus
		var n int
		if err := statusRows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	if err := statusRows.Err(); err != nil {
		return nil, err
	}

	urgencyRows, err := p.Pool.Query(ctx, `SELECT urgency, count(*) FROM jobs WHERE tenant_id=$1 GROUP BY urgency`, tenantID)
	if err != nil {
		return nil, err
	}
	defer urgencyRows.Close()
	for urgencyRows.Next() {
		var urgency models.Urgency
		var n int
		if err := urgencyRows.Scan(&urgency, &n); err != nil {
			return nil, err
		}
		stats.ByUrgency[urgency] = n
	}
	if err := urgencyRows.Err(); err != nil {
		return nil, err
	}

	if err := p.Pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE tenant_id=$1 AND worker_id='' AND status NOT IN ('completed','cancelled')`,
		tenantID).Scan(&stats.Unassigned); err != nil {
		return nil, err
	}
	return stats, nil
}

// JobsByContact returns every job a contact has ever filed, used by the
// compliance export (§8 scenario 6 / GET /export/{contact_id}).
func (p *Postgres) JobsByContact(ctx context.Context, tenantID, contactID string) ([]*models.Job, error) {
	rows, err := p.Pool.Query(ctx, jobSelectColumns()+` FROM jobs WHERE tenant_id=$1 AND contact_id=$2 ORDER BY created_at ASC`, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// AnonymizeJobsForContact scrubs the address/access-note fields a Job
// snapshotted from its Contact at creation time, without touching status
// or history (§8 scenario 6: "anonymized ... keys retained").
func (p *Postgres) AnonymizeJobsForContact(ctx context.Context, tenantID, contactID string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE jobs SET address_snapshot='{}'::jsonb, access_notes='' WHERE tenant_id=$1 AND contact_id=$2`,
		tenantID, contactID)
	return err
}

// JobsPastEscalationDeadline returns every job, across all tenants, whose
// escalation deadline has passed while it is still sitting in new/assigned
// (§4.6 step 5). Cross-tenant by design: the escalation sweep runs on a
// single ticker for the whole deployment rather than iterating tenants.
func (p *Postgres) JobsPastEscalationDeadline(ctx context.Context, asOf time.Time) ([]*models.Job, error) {
	rows, err := p.Pool.Query(ctx,
		jobSelectColumns()+` FROM jobs WHERE escalation_at IS NOT NULL AND escalation_at <= $1 AND status IN ('new','assigned')`,
		asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func jobSelectColumns() string {
	return `SELECT id, tenant_id, job_number, contact_id, title, description, trade_category, urgency, status,
		source, address_snapshot, geo, distance_from_hq_km, routing_priority, routing_reason, escalation_at, department_id,
		worker_id, preferred_window, scheduled_at, access_notes, recording_flag, recording_url, cancel_reason,
		created_at, updated_at, started_at, completed_at`
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var addr, geo, window []byte
	if err := row.Scan(&j.ID, &j.TenantID, &j.JobNumber, &j.ContactID, &j.Title, &j.Description, &j.TradeCategory,
		&j.Urgency, &j.Status, &j.Source, &addr, &geo, &j.DistanceFromHQKM, &j.RoutingPriority, &j.RoutingReason, &j.EscalationAt,
		&j.DepartmentID, &j.WorkerID, &window, &j.ScheduledAt, &j.AccessNotes, &j.RecordingFlag, &j.RecordingURL, &j.CancelReason,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("job_not_found", "job not found")
		}
		return nil, err
	}
	if err := fromJSON(addr, &j.AddressSnapshot); err != nil {
		return nil, err
	}
	if len(geo) > 0 {
		if err := fromJSON(geo, &j.Geo); err != nil {
			return nil, err
		}
	}
	if len(window) > 0 {
		if err := fromJSON(window, &j.PreferredWindow); err != nil {
			return nil, err
		}
	}
	return &j, nil
}
