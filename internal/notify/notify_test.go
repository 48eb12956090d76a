package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

type fakeDeptStore struct {
	dept *models.Department
	err  error
}

func (f *fakeDeptStore) GetDepartment(ctx context.Context, tenantID, id string) (*models.Department, error) {
	return f.dept, f.err
}

func testJob() *models.Job {
	return &models.Job{
		ID:            "job-1",
		JobNumber:     "JOB-2026-0001",
		DepartmentID:  "dept-1",
		TradeCategory: models.TradeElectrical,
		Urgency:       models.UrgencyEmergency,
		Description:   "Stromausfall im gesamten Haus",
		AddressSnapshot: models.Address{
			Street: "Musterstraße", Number: "12", PostalCode: "10115", City: "Berlin",
		},
	}
}

func TestNotify_NoChannelsRequested_NoOp(t *testing.T) {
	d := New(Config{}, &fakeDeptStore{}, nil)
	err := d.Notify(context.Background(), "tenant-1", nil, testJob(), "escalation")
	assert.NoError(t, err)
}

func TestNotify_NoFallbackContact_SkipsSilently(t *testing.T) {
	d := New(Config{}, &fakeDeptStore{dept: &models.Department{ID: "dept-1"}}, nil)
	err := d.Notify(context.Background(), "tenant-1", []string{"sms", "email"}, testJob(), "escalation")
	assert.NoError(t, err)
}

func TestNotify_DepartmentLookupFailure_WrapsInternal(t *testing.T) {
	d := New(Config{}, &fakeDeptStore{err: apperr.NotFoundf("department_not_found", "no such department")}, nil)
	err := d.Notify(context.Background(), "tenant-1", []string{"sms"}, testJob(), "escalation")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Internal, appErr.Kind)
}

func TestLooksLikePhone(t *testing.T) {
	assert.True(t, looksLikePhone("+491701234567"))
	assert.False(t, looksLikePhone("dispatch@example.com"))
}

func TestLooksLikeEmail(t *testing.T) {
	assert.True(t, looksLikeEmail("dispatch@example.com"))
	assert.False(t, looksLikeEmail("+491701234567"))
}

func TestRenderMessage_IncludesJobNumberAndReason(t *testing.T) {
	subject, body := renderMessage(testJob(), "no available technician")
	assert.Contains(t, subject, "JOB-2026-0001")
	assert.Contains(t, body, "no available technician")
	assert.Contains(t, body, "Musterstraße")
}
