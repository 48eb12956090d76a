package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// The methods below satisfy audit.Store.

func (p *Postgres) LastAuditEntry(ctx context.Context, tenantID string) (*models.AuditEntry, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, tenant_id, sequence, actor, action, entity_kind, entity_id, detail_json, timestamp, prev_checksum, checksum
		 FROM audit_log WHERE tenant_id=$1 ORDER BY sequence DESC LIMIT 1`, tenantID)
	e, err := scanAuditEntry(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (p *Postgres) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	detail, err := toJSON(entry.Detail)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO audit_log (id, tenant_id, sequence, actor, action, entity_kind, entity_id, detail_json, timestamp, prev_checksum, checksum)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID, entry.TenantID, entry.Sequence, entry.Actor, entry.Action, entry.EntityKind, entry.EntityID,
		detail, entry.Timestamp, entry.PrevChecksum, entry.Checksum)
	return err
}

func (p *Postgres) AllAuditEntries(ctx context.Context, tenantID string) ([]*models.AuditEntry, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, sequence, actor, action, entity_kind, entity_id, detail_json, timestamp, prev_checksum, checksum
		 FROM audit_log WHERE tenant_id=$1 ORDER BY sequence ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryAuditLog implements the GET /audit admin listing (§6).
func (p *Postgres) QueryAuditLog(ctx context.Context, tenantID string, limit int) ([]*models.AuditEntry, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, sequence, actor, action, entity_kind, entity_id, detail_json, timestamp, prev_checksum, checksum
		 FROM audit_log WHERE tenant_id=$1 ORDER BY sequence DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAuditEntry(row pgx.Row) (*models.AuditEntry, error) {
	var e models.AuditEntry
	var detail []byte
	if err := row.Scan(&e.ID, &e.TenantID, &e.Sequence, &e.Actor, &e.Action, &e.EntityKind, &e.EntityID,
		&detail, &e.Timestamp, &e.PrevChecksum, &e.Checksum); err != nil {
		return nil, err
	}
	if err := fromJSON(detail, &e.Detail); err != nil {
		return nil, err
	}
	return &e, nil
}
