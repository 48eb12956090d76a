package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// CreateContact inserts a new Contact, assigning an id if absent.
func (p *Postgres) CreateContact(ctx context.Context, c *models.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	addr, err := toJSON(c.Address)
	if err != nil {
		return err
	}
	geo, err := toJSON(c.Geo)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO contacts (id, tenant_id, name, phone, email, address, geo, property_type, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.TenantID, c.Name, c.Phone, c.Email, addr, geo, c.PropertyType, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetContact fetches a single tenant-scoped Contact. Tenant isolation:
// the WHERE clause always filters by tenant_id (§3, §8 property).
func (p *Postgres) GetContact(ctx context.Context, tenantID, contactID string) (*models.Contact, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, phone, email, address, geo, property_type, created_at, updated_at, soft_deleted_at
		 FROM contacts WHERE tenant_id = $1 AND id = $2`, tenantID, contactID)
	return scanContact(row)
}

func (p *Postgres) FindContactByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, phone, email, address, geo, property_type, created_at, updated_at, soft_deleted_at
		 FROM contacts WHERE tenant_id = $1 AND phone = $2 AND soft_deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, tenantID, phone)
	return scanContact(row)
}

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	var addr, geo []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &addr, &geo,
		&c.PropertyType, &c.CreatedAt, &c.UpdatedAt, &c.SoftDeletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("contact_not_found", "contact not found")
		}
		return nil, err
	}
	if err := fromJSON(addr, &c.Address); err != nil {
		return nil, err
	}
	if err := fromJSON(geo, &c.Geo); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateContact persists mutable contact fields (address/name/phone/email).
func (p *Postgres) UpdateContact(ctx context.Context, c *models.Contact) error {
	c.UpdatedAt = time.Now().UTC()
	addr, err := toJSON(c.Address)
	if err != nil {
		return err
	}
	geo, err := toJSON(c.Geo)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`UPDATE contacts SET name=$3, phone=$4, email=$5, address=$6, geo=$7, property_type=$8, updated_at=$9
		 WHERE tenant_id=$1 AND id=$2`,
		c.TenantID, c.ID, c.Name, c.Phone, c.Email, addr, geo, c.PropertyType, c.UpdatedAt)
	return err
}

// EraseContact implements the right-to-erasure scrub: identifying fields
// are blanked, the row (and its foreign keys) are retained for
// referential integrity in the audit trail, per §8 scenario 6.
func (p *Postgres) EraseContact(ctx context.Context, tenantID, contactID string) error {
	now := time.Now().UTC()
	_, err := p.Pool.Exec(ctx,
		`UPDATE contacts SET name='', phone='', email='', address='{}'::jsonb, soft_deleted_at=$3, updated_at=$3
		 WHERE tenant_id=$1 AND id=$2`, tenantID, contactID, now)
	return err
}
