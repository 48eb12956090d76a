package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// GrantConsent appends a new active consent record. Consent records are
// append-only — this never updates a prior row (§3 Consent Record).
func (p *Postgres) GrantConsent(ctx context.Context, c *models.Consent) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	now := time.Now().UTC()
	if c.GrantedAt == nil {
		c.GrantedAt = &now
	}
	_, err := p.Pool.Exec(ctx,
		`INSERT INTO consents (id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.TenantID, c.ContactID, c.Kind, c.GrantedAt, c.RevokedAt, c.Method, c.CallID, c.ExpiresAt, c.CreatedAt)
	return err
}

// RevokeConsent appends a new revocation record for (contact, kind); the
// prior grant row is untouched, per the append-only invariant.
func (p *Postgres) RevokeConsent(ctx context.Context, tenantID, contactID string, kind models.ConsentKind) error {
	now := time.Now().UTC()
	revoke := &models.Consent{
		TenantID:  tenantID,
		ContactID: contactID,
		Kind:      kind,
		RevokedAt: &now,
		Method:    models.ConsentDigital,
	}
	return p.GrantConsent(ctx, revoke) // append-only: a revocation is just a new row
}

// ActiveConsent returns the most recent record for (contact, kind),
// which determines whether consent is currently active — "at most one
// active record per (contact, kind)" is enforced by recency, not by a
// unique constraint, since history must be retained.
func (p *Postgres) ActiveConsent(ctx context.Context, tenantID, contactID string, kind models.ConsentKind) (*models.Consent, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at, created_at
		 FROM consents WHERE tenant_id=$1 AND contact_id=$2 AND kind=$3
		 ORDER BY created_at DESC LIMIT 1`, tenantID, contactID, kind)
	c, err := scanConsent(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (p *Postgres) ConsentHistory(ctx context.Context, tenantID, contactID string) ([]*models.Consent, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at, created_at
		 FROM consents WHERE tenant_id=$1 AND contact_id=$2 ORDER BY created_at ASC`, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConsent(row pgx.Row) (*models.Consent, error) {
	var c models.Consent
	if err := row.Scan(&c.ID, &c.TenantID, &c.ContactID, &c.Kind, &c.GrantedAt, &c.RevokedAt,
		&c.Method, &c.CallID, &c.ExpiresAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
