package storage

import (
	"context"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

func (p *Postgres) CreateTenant(ctx context.Context, t *models.Tenant) error {
	settings, err := toJSON(t.Settings)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO tenants (id, status, settings_json) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET status = $2, settings_json = $3`,
		t.ID, t.Status, settings)
	return err
}

func (p *Postgres) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	row := p.Pool.QueryRow(ctx, `SELECT id, status, settings_json FROM tenants WHERE id = $1`, tenantID)
	var t models.Tenant
	var settings []byte
	if err := row.Scan(&t.ID, &t.Status, &settings); err != nil {
		return nil, apperr.NotFoundf("tenant_not_found", "tenant %s not found", tenantID)
	}
	if err := fromJSON(settings, &t.Settings); err != nil {
		return nil, err
	}
	return &t, nil
}
