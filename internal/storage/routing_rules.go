package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

func (p *Postgres) CreateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cond, err := toJSON(r.Conditions)
	if err != nil {
		return err
	}
	action, err := toJSON(r.Action)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO routing_rules (id, tenant_id, name, priority, conditions_json, action_json,
			escalation_deadline_minutes, notification_flag, active, is_fallback)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.TenantID, r.Name, r.Priority, cond, action, r.EscalationDeadlineMin, r.NotificationFlag, r.Active, r.IsFallback)
	return err
}

// ActiveRoutingRules returns every active rule for a tenant ordered by
// ascending priority, per §4.6 step 1. The caller (routing.Engine) is
// responsible for ensuring a fallback rule exists.
func (p *Postgres) ActiveRoutingRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT id, tenant_id, name, priority, conditions_json, action_json, escalation_deadline_minutes,
			notification_flag, active, is_fallback
		 FROM routing_rules WHERE tenant_id=$1 AND active = true ORDER BY priority ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.RoutingRule
	for rows.Next() {
		r, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRoutingRule(row pgx.Row) (*models.RoutingRule, error) {
	var r models.RoutingRule
	var cond, action []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Priority, &cond, &action, &r.EscalationDeadlineMin,
		&r.NotificationFlag, &r.Active, &r.IsFallback); err != nil {
		return nil, err
	}
	if err := fromJSON(cond, &r.Conditions); err != nil {
		return nil, err
	}
	if err := fromJSON(action, &r.Action); err != nil {
		return nil, err
	}
	return &r, nil
}
