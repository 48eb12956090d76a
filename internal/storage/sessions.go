package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// SaveSessionSummary persists the end-of-session record; the live
// Session itself is never stored (§3 Session lifecycle).
func (p *Postgres) SaveSessionSummary(ctx context.Context, s *models.SessionSummary) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	transcript, err := toJSON(s.Transcript)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO session_summaries (id, tenant_id, contact_id, channel, job_id, end_status, turn_count, transcript_json, started_at, ended_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.TenantID, s.ContactID, s.Channel, s.JobID, s.EndStatus, s.TurnCount, transcript, s.StartedAt, s.EndedAt)
	return err
}

// SessionSummariesByContact returns every persisted session summary for
// a contact, used by the compliance export.
func (p *Postgres) SessionSummariesByContact(ctx context.Context, tenantID, contactID string) ([]*models.SessionSummary, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, contact_id, channel, job_id, end_status, turn_count, transcript_json, started_at, ended_at
		 FROM session_summaries WHERE tenant_id=$1 AND contact_id=$2 ORDER BY started_at ASC`, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.SessionSummary
	for rows.Next() {
		var s models.SessionSummary
		var transcript []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ContactID, &s.Channel, &s.JobID, &s.EndStatus, &s.TurnCount, &transcript, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		if err := fromJSON(transcript, &s.Transcript); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// AnonymizeSessionSummariesForContact scrubs stored transcripts for a
// contact, keeping the summary row (channel, timestamps, job link) for
// referential integrity, per §8 scenario 6.
func (p *Postgres) AnonymizeSessionSummariesForContact(ctx context.Context, tenantID, contactID string) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE session_summaries SET transcript_json='[]'::jsonb WHERE tenant_id=$1 AND contact_id=$2`,
		tenantID, contactID)
	return err
}
