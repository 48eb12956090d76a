// Package compliance implements the two GDPR-style endpoints §8 scenario
// 6 describes: data export (portability) and right-to-erasure. Neither
// operation is part of the core Job/Conversation flow, so it lives
// outside jobservice as its own thin service over the Storage Adapter
// and the Audit Ledger.
//
// Grounded on the Storage Adapter's existing soft-delete convention for
// Contact (internal/storage/contacts.go's EraseContact scrub-fields-
// keep-keys pattern), generalized here to jobs and session summaries.
package compliance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// Store is the persistence surface compliance needs from storage.Postgres.
type Store interface {
	GetContact(ctx context.Context, tenantID, contactID string) (*models.Contact, error)
	ConsentHistory(ctx context.Context, tenantID, contactID string) ([]*models.Consent, error)
	JobsByContact(ctx context.Context, tenantID, contactID string) ([]*models.Job, error)
	SessionSummariesByContact(ctx context.Context, tenantID, contactID string) ([]*models.SessionSummary, error)
	EraseContact(ctx context.Context, tenantID, contactID string) error
	AnonymizeJobsForContact(ctx context.Context, tenantID, contactID string) error
	AnonymizeSessionSummariesForContact(ctx context.Context, tenantID, contactID string) error
}

// Export is the full data-portability bundle for one contact.
type Export struct {
	Contact  *models.Contact          `json:"contact"`
	Consents []*models.Consent        `json:"consents"`
	Jobs     []*models.Job            `json:"jobs"`
	Sessions []*models.SessionSummary `json:"sessions"`
	ExportedAt time.Time              `json:"exported_at"`
}

type Service struct {
	store  Store
	ledger *audit.Ledger
	log    *zap.Logger
}

func New(store Store, ledger *audit.Ledger, log *zap.Logger) *Service {
	return &Service{store: store, ledger: ledger, log: log}
}

// Export implements GET /export/{contact_id} (§6).
func (s *Service) Export(ctx context.Context, tenantID, contactID string) (*Export, error) {
	contact, err := s.store.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	consents, err := s.store.ConsentHistory(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.JobsByContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.SessionSummariesByContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	return &Export{Contact: contact, Consents: consents, Jobs: jobs, Sessions: sessions, ExportedAt: time.Now().UTC()}, nil
}

// Erase implements DELETE /erasure/{contact_id} (§8 scenario 6): scrubs
// identifying fields on the contact, its jobs, and its session
// transcripts, keeps every row's key for referential integrity, then
// records an `erasure_executed` audit entry. If the audit write fails
// the caller must treat the whole operation as failed, per §7's
// "audit log writes failing is fatal" rule — but the scrub itself has
// already happened, so a failed audit write here means an operator must
// re-run verify-audit and investigate rather than silently retry the
// scrub (idempotent, but the audit gap needs a human).
func (s *Service) Erase(ctx context.Context, tenantID, actor, contactID string) error {
	if _, err := s.store.GetContact(ctx, tenantID, contactID); err != nil {
		return err
	}
	if err := s.store.EraseContact(ctx, tenantID, contactID); err != nil {
		return apperr.Wrap(apperr.Internal, "erasure_contact_failed", "could not scrub contact", err)
	}
	if err := s.store.AnonymizeJobsForContact(ctx, tenantID, contactID); err != nil {
		return apperr.Wrap(apperr.Internal, "erasure_jobs_failed", "could not scrub jobs", err)
	}
	if err := s.store.AnonymizeSessionSummariesForContact(ctx, tenantID, contactID); err != nil {
		return apperr.Wrap(apperr.Internal, "erasure_sessions_failed", "could not scrub session transcripts", err)
	}
	if _, err := s.ledger.Append(ctx, tenantID, actor, "erasure_executed", "contact", contactID, map[string]any{}); err != nil {
		s.log.Error("erasure audit write failed after scrub completed", zap.String("contact_id", contactID), zap.Error(err))
		return apperr.Wrap(apperr.Internal, "audit_required", "audit write for \"erasure_executed\" failed after the scrub completed", err)
	}
	return nil
}
