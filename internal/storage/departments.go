package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

func (p *Postgres) CreateDepartment(ctx context.Context, d *models.Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	trades, err := toJSON(d.AcceptedTrades)
	if err != nil {
		return err
	}
	urgency, err := toJSON(d.AcceptedUrgency)
	if err != nil {
		return err
	}
	hours, err := toJSON(d.WorkingHours)
	if err != nil {
		return err
	}
	channels, err := toJSON(d.ContactChannels)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO departments (id, tenant_id, name, accepted_trades, accepted_urgency, working_hours, contact_channels, fallback_contact)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.TenantID, d.Name, trades, urgency, hours, channels, d.FallbackContact)
	return err
}

func (p *Postgres) GetDepartment(ctx context.Context, tenantID, id string) (*models.Department, error) {
	row := p.Pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, accepted_trades, accepted_urgency, working_hours, contact_channels, fallback_contact
		 FROM departments WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanDepartment(row)
}

func (p *Postgres) ListDepartments(ctx context.Context, tenantID string) ([]*models.Department, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, name, accepted_trades, accepted_urgency, working_hours, contact_channels, fallback_contact
		 FROM departments WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDepartment(row pgx.Row) (*models.Department, error) {
	var d models.Department
	var trades, urgency, hours, channels []byte
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &trades, &urgency, &hours, &channels, &d.FallbackContact); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("department_not_found", "department not found")
		}
		return nil, err
	}
	if err := fromJSON(trades, &d.AcceptedTrades); err != nil {
		return nil, err
	}
	if err := fromJSON(urgency, &d.AcceptedUrgency); err != nil {
		return nil, err
	}
	if err := fromJSON(hours, &d.WorkingHours); err != nil {
		return nil, err
	}
	if err := fromJSON(channels, &d.ContactChannels); err != nil {
		return nil, err
	}
	return &d, nil
}
