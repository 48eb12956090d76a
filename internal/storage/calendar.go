package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
)

// BookedIntervals returns existing bookings for a technician on the
// given day, used by the Scheduling Engine's slot search (§4.8 step 3).
// The return type satisfies scheduling.Store directly.
func (p *Postgres) BookedIntervals(ctx context.Context, tenantID, workerID string, dayStart, dayEnd time.Time) ([]scheduling.BookedInterval, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT start_at, end_at FROM calendar_entries
		 WHERE tenant_id=$1 AND worker_id=$2 AND start_at < $4 AND end_at > $3`,
		tenantID, workerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []scheduling.BookedInterval
	for rows.Next() {
		var iv scheduling.BookedInterval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// BookSlot atomically books (technician, date, start) inside a single
// transaction: inserts the calendar entry under
// the UNIQUE(tenant_id, worker_id, start_at) constraint, updates the
// Job, and appends a "scheduled" history row. On conflict it returns
// apperr.Conflict with code "slot_unavailable" so the caller can retry
// with a fresh search — this is the at-most-one-booking guarantee from
// §4.8 and §8, enforced by the database, not by an in-process lock
// (see §9's "Scheduling lock granularity" design note).
func (p *Postgres) BookSlot(ctx context.Context, tenantID, workerID, jobID string, start, end time.Time) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO calendar_entries (id, tenant_id, worker_id, job_id, start_at, end_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), tenantID, workerID, jobID, start, end)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return apperr.Conflictf("slot_unavailable", "slot already booked")
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET scheduled_at=$3, worker_id=$2, status='assigned', updated_at=now() WHERE tenant_id=$1 AND id=$4`,
		tenantID, workerID, start, jobID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflictf("slot_unavailable", "slot already booked")
		}
		return err
	}

	if err := insertJobHistory(ctx, tx, jobID, "system", "scheduled", map[string]any{
		"worker_id": workerID, "start": start.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
