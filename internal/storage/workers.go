package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

func (p *Postgres) CreateWorker(ctx context.Context, w *models.Worker) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	trades, err := toJSON(w.TradeCategories)
	if err != nil {
		return err
	}
	certs, err := toJSON(w.Certifications)
	if err != nil {
		return err
	}
	hours, err := toJSON(w.WorkingHours)
	if err != nil {
		return err
	}
	geo, err := toJSON(w.Geo)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO workers (id, tenant_id, department_id, name, role, trade_categories, certifications,
			working_hours, max_jobs_per_day, current_jobs_today, active, geo, service_radius_km)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		w.ID, w.TenantID, w.DepartmentID, w.Name, w.Role, trades, certs, hours,
		w.MaxJobsPerDay, w.CurrentJobsToday, w.Active, geo, w.ServiceRadiusKM)
	return err
}

func (p *Postgres) GetWorker(ctx context.Context, tenantID, id string) (*models.Worker, error) {
	row := p.Pool.QueryRow(ctx, workerSelectColumns()+` WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanWorker(row)
}

// ListWorkersByDepartment returns active/inactive workers for a
// department, used by the Technician Matcher (§4.7).
func (p *Postgres) ListWorkersByDepartment(ctx context.Context, tenantID, departmentID string) ([]*models.Worker, error) {
	rows, err := p.Pool.Query(ctx, workerSelectColumns()+` WHERE tenant_id=$1 AND department_id=$2`, tenantID, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkers(rows)
}

// ListWorkers returns every worker for a tenant, used when the chosen
// department has no eligible candidates (§4.7: "across departments if
// department has none").
func (p *Postgres) ListWorkers(ctx context.Context, tenantID string) ([]*models.Worker, error) {
	rows, err := p.Pool.Query(ctx, workerSelectColumns()+` WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkers(rows)
}

// IncrementWorkerLoad bumps current_jobs_today after an assignment.
func (p *Postgres) IncrementWorkerLoad(ctx context.Context, tenantID, workerID string, delta int) error {
	_, err := p.Pool.Exec(ctx,
		`UPDATE workers SET current_jobs_today = GREATEST(0, current_jobs_today + $3) WHERE tenant_id=$1 AND id=$2`,
		tenantID, workerID, delta)
	return err
}

func collectWorkers(rows pgx.Rows) ([]*models.Worker, error) {
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func workerSelectColumns() string {
	return `SELECT id, tenant_id, department_id, name, role, trade_categories, certifications,
		working_hours, max_jobs_per_day, current_jobs_today, active, geo, service_radius_km FROM workers`
}

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var w models.Worker
	var trades, certs, hours, geo []byte
	if err := row.Scan(&w.ID, &w.TenantID, &w.DepartmentID, &w.Name, &w.Role, &trades, &certs,
		&hours, &w.MaxJobsPerDay, &w.CurrentJobsToday, &w.Active, &geo, &w.ServiceRadiusKM); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("worker_not_found", "worker not found")
		}
		return nil, err
	}
	if err := fromJSON(trades, &w.TradeCategories); err != nil {
		return nil, err
	}
	if err := fromJSON(certs, &w.Certifications); err != nil {
		return nil, err
	}
	if err := fromJSON(hours, &w.WorkingHours); err != nil {
		return nil, err
	}
	if err := fromJSON(geo, &w.Geo); err != nil {
		return nil, err
	}
	return &w, nil
}
