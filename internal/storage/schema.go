package storage

import (
	"context"
	"fmt"
)

// InitSchema creates the tables the Storage Adapter needs if they don't
// already exist, mirroring the gentle ALTER-TABLE-IF-NOT-EXISTS style of
// order-service/internal/db/database.go's InitSchema — safe to run on
// every start-up, never drops or destructively alters existing columns.
func (p *Postgres) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'active',
			settings_json JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address JSONB NOT NULL DEFAULT '{}'::jsonb,
			geo JSONB NOT NULL DEFAULT '{}'::jsonb,
			property_type TEXT NOT NULL DEFAULT 'residential',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			soft_deleted_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_tenant ON contacts(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS consents (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			contact_id TEXT NOT NULL REFERENCES contacts(id),
			kind TEXT NOT NULL,
			granted_at TIMESTAMPTZ,
			revoked_at TIMESTAMPTZ,
			method TEXT NOT NULL DEFAULT 'digital',
			call_id TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_consents_contact ON consents(tenant_id, contact_id, kind)`,
		`CREATE TABLE IF NOT EXISTS departments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			accepted_trades JSONB NOT NULL DEFAULT '[]'::jsonb,
			accepted_urgency JSONB NOT NULL DEFAULT '[]'::jsonb,
			working_hours JSONB NOT NULL DEFAULT '{}'::jsonb,
			contact_channels JSONB NOT NULL DEFAULT '[]'::jsonb,
			fallback_contact TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS workers (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			department_id TEXT NOT NULL REFERENCES departments(id),
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'worker',
			trade_categories JSONB NOT NULL DEFAULT '[]'::jsonb,
			certifications JSONB NOT NULL DEFAULT '[]'::jsonb,
			working_hours JSONB NOT NULL DEFAULT '{}'::jsonb,
			max_jobs_per_day INT NOT NULL DEFAULT 8,
			current_jobs_today INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			geo JSONB NOT NULL DEFAULT '{}'::jsonb,
			service_radius_km DOUBLE PRECISION NOT NULL DEFAULT 25
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workers_department ON workers(tenant_id, department_id)`,
		`CREATE TABLE IF NOT EXISTS routing_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 100,
			conditions_json JSONB NOT NULL DEFAULT '{}'::jsonb,
			action_json JSONB NOT NULL DEFAULT '{}'::jsonb,
			escalation_deadline_minutes INT NOT NULL DEFAULT 0,
			notification_flag BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			is_fallback BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_rules_tenant_priority ON routing_rules(tenant_id, priority)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			job_number TEXT NOT NULL,
			contact_id TEXT NOT NULL REFERENCES contacts(id),
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			trade_category TEXT NOT NULL DEFAULT 'general',
			urgency TEXT NOT NULL DEFAULT 'normal',
			status TEXT NOT NULL DEFAULT 'new',
			source TEXT NOT NULL DEFAULT 'phone',
			address_snapshot JSONB NOT NULL DEFAULT '{}'::jsonb,
			geo JSONB NOT NULL DEFAULT '{}'::jsonb,
			distance_from_hq_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			routing_priority INT NOT NULL DEFAULT 100,
			routing_reason TEXT NOT NULL DEFAULT '',
			escalation_at TIMESTAMPTZ,
			department_id TEXT NOT NULL DEFAULT '',
			worker_id TEXT NOT NULL DEFAULT '',
			preferred_window JSONB,
			scheduled_at TIMESTAMPTZ,
			access_notes TEXT NOT NULL DEFAULT '',
			recording_flag BOOLEAN NOT NULL DEFAULT false,
			recording_url TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			UNIQUE(tenant_id, job_number),
			UNIQUE(tenant_id, worker_id, scheduled_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_status ON jobs(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_created ON jobs(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS job_history (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			detail_json JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_job ON job_history(job_id)`,
		`CREATE TABLE IF NOT EXISTS job_counters (
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			year INT NOT NULL,
			next_seq INT NOT NULL DEFAULT 1,
			PRIMARY KEY (tenant_id, year)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			sequence BIGINT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail_json JSONB NOT NULL DEFAULT '{}'::jsonb,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			prev_checksum TEXT NOT NULL,
			checksum TEXT NOT NULL,
			UNIQUE(tenant_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_seq ON audit_log(tenant_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			contact_id TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			job_id TEXT NOT NULL DEFAULT '',
			end_status TEXT NOT NULL,
			turn_count INT NOT NULL DEFAULT 0,
			transcript_json JSONB NOT NULL DEFAULT '[]'::jsonb,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_entries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			worker_id TEXT NOT NULL REFERENCES workers(id),
			job_id TEXT NOT NULL REFERENCES jobs(id),
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NOT NULL,
			UNIQUE(tenant_id, worker_id, start_at)
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: init schema: %w", err)
		}
	}
	return nil
}
