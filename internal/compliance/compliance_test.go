package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

type fakeStore struct {
	contact  *models.Contact
	getErr   error
	eraseErr error
	jobsErr  error
	sessErr  error

	erased        bool
	jobsAnon      bool
	sessionsAnon  bool
}

func (f *fakeStore) GetContact(ctx context.Context, tenantID, contactID string) (*models.Contact, error) {
	return f.contact, f.getErr
}
func (f *fakeStore) ConsentHistory(ctx context.Context, tenantID, contactID string) ([]*models.Consent, error) {
	return nil, nil
}
func (f *fakeStore) JobsByContact(ctx context.Context, tenantID, contactID string) ([]*models.Job, error) {
	return nil, nil
}
func (f *fakeStore) SessionSummariesByContact(ctx context.Context, tenantID, contactID string) ([]*models.SessionSummary, error) {
	return nil, nil
}
func (f *fakeStore) EraseContact(ctx context.Context, tenantID, contactID string) error {
	f.erased = true
	return f.eraseErr
}
func (f *fakeStore) AnonymizeJobsForContact(ctx context.Context, tenantID, contactID string) error {
	f.jobsAnon = true
	return f.jobsErr
}
func (f *fakeStore) AnonymizeSessionSummariesForContact(ctx context.Context, tenantID, contactID string) error {
	f.sessionsAnon = true
	return f.sessErr
}

type fakeAuditStore struct {
	appended []*models.AuditEntry
	appendErr error
}

func (f *fakeAuditStore) LastAuditEntry(ctx context.Context, tenantID string) (*models.AuditEntry, error) {
	if len(f.appended) == 0 {
		return nil, nil
	}
	return f.appended[len(f.appended)-1], nil
}
func (f *fakeAuditStore) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, entry)
	return nil
}
func (f *fakeAuditStore) AllAuditEntries(ctx context.Context, tenantID string) ([]*models.AuditEntry, error) {
	return f.appended, nil
}

func newTestService(t *testing.T, store *fakeStore, auditStore *fakeAuditStore) *Service {
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return New(store, audit.New(auditStore, log), log)
}

func TestExport_GathersEveryCollaborator(t *testing.T) {
	store := &fakeStore{contact: &models.Contact{ID: "contact-1"}}
	svc := newTestService(t, store, &fakeAuditStore{})

	export, err := svc.Export(context.Background(), "tenant-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "contact-1", export.Contact.ID)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestExport_ContactLookupFailure_PropagatesError(t *testing.T) {
	wantErr := assert.AnError
	store := &fakeStore{getErr: wantErr}
	svc := newTestService(t, store, &fakeAuditStore{})

	_, err := svc.Export(context.Background(), "tenant-1", "contact-1")
	assert.ErrorIs(t, err, wantErr)
}

func TestErase_ScrubsAllThreeAndAppendsAuditEntry(t *testing.T) {
	store := &fakeStore{contact: &models.Contact{ID: "contact-1"}}
	auditStore := &fakeAuditStore{}
	svc := newTestService(t, store, auditStore)

	err := svc.Erase(context.Background(), "tenant-1", "operator-1", "contact-1")
	require.NoError(t, err)

	assert.True(t, store.erased)
	assert.True(t, store.jobsAnon)
	assert.True(t, store.sessionsAnon)
	require.Len(t, auditStore.appended, 1)
	assert.Equal(t, "erasure_executed", auditStore.appended[0].Action)
	assert.Equal(t, "contact-1", auditStore.appended[0].EntityID)
}

func TestErase_ContactNotFound_SkipsScrub(t *testing.T) {
	store := &fakeStore{getErr: assert.AnError}
	auditStore := &fakeAuditStore{}
	svc := newTestService(t, store, auditStore)

	err := svc.Erase(context.Background(), "tenant-1", "operator-1", "contact-1")
	assert.Error(t, err)
	assert.False(t, store.erased)
	assert.Empty(t, auditStore.appended)
}

func TestErase_AuditWriteFails_ReturnsFatalDespiteCompletedScrub(t *testing.T) {
	store := &fakeStore{contact: &models.Contact{ID: "contact-1"}}
	auditStore := &fakeAuditStore{appendErr: assert.AnError}
	svc := newTestService(t, store, auditStore)

	err := svc.Erase(context.Background(), "tenant-1", "operator-1", "contact-1")
	require.Error(t, err)
	assert.True(t, store.erased)
	assert.True(t, store.sessionsAnon)
}

func TestErase_JobAnonymizationFailure_StopsBeforeAudit(t *testing.T) {
	store := &fakeStore{contact: &models.Contact{ID: "contact-1"}, jobsErr: assert.AnError}
	auditStore := &fakeAuditStore{}
	svc := newTestService(t, store, auditStore)

	err := svc.Erase(context.Background(), "tenant-1", "operator-1", "contact-1")
	require.Error(t, err)
	assert.False(t, store.sessionsAnon)
	assert.Empty(t, auditStore.appended)
}
