package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// blockingDriver runs until its context is cancelled, then reports the
// summary the test configured, mimicking conversation.Controller.Run.
type blockingDriver struct {
	summary *models.SessionSummary
}

func (d *blockingDriver) Run(ctx context.Context, sess *Session) (*models.SessionSummary, error) {
	<-ctx.Done()
	return d.summary, nil
}

type fakeSummaryStore struct {
	mu    sync.Mutex
	saved []*models.SessionSummary
}

func (f *fakeSummaryStore) SaveSessionSummary(ctx context.Context, s *models.SessionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeSummaryStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestOpen_RejectsOnceAtCapacity(t *testing.T) {
	store := &fakeSummaryStore{}
	sup := New(Limits{MaxConcurrent: 1}, &blockingDriver{summary: &models.SessionSummary{}}, store, zap.NewNop())

	_, err := sup.Open(context.Background(), Descriptor{ID: "s1", TenantID: "t1", Channel: models.ChannelPhone})
	require.NoError(t, err)
	assert.Equal(t, 1, sup.Count())

	_, err = sup.Open(context.Background(), Descriptor{ID: "s2", TenantID: "t1", Channel: models.ChannelPhone})
	assert.Error(t, err)
}

func TestClose_DecrementsCountAndPersistsSummary(t *testing.T) {
	store := &fakeSummaryStore{}
	sup := New(Limits{MaxConcurrent: 5}, &blockingDriver{summary: &models.SessionSummary{ID: "sum-1"}}, store, zap.NewNop())

	_, err := sup.Open(context.Background(), Descriptor{ID: "s1", TenantID: "t1", Channel: models.ChannelChat})
	require.NoError(t, err)
	require.Equal(t, 1, sup.Count())

	sup.Close("s1", "test_close")

	assert.Eventually(t, func() bool { return sup.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClose_UnknownSessionIsANoOp(t *testing.T) {
	sup := New(Limits{MaxConcurrent: 5}, &blockingDriver{}, &fakeSummaryStore{}, zap.NewNop())
	assert.NotPanics(t, func() { sup.Close("does-not-exist", "reason") })
}

func TestSweep_ClosesSessionsPastPhoneIdleLimit(t *testing.T) {
	store := &fakeSummaryStore{}
	sup := New(Limits{MaxConcurrent: 5, PhoneIdle: 10 * time.Millisecond, ChatIdle: time.Hour}, &blockingDriver{summary: &models.SessionSummary{}}, store, zap.NewNop())

	_, err := sup.Open(context.Background(), Descriptor{ID: "phone-1", TenantID: "t1", Channel: models.ChannelPhone})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	sup.sweep(context.Background())

	assert.Eventually(t, func() bool { return sup.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSweep_LeavesActiveSessionsAlone(t *testing.T) {
	store := &fakeSummaryStore{}
	sup := New(Limits{MaxConcurrent: 5, PhoneIdle: time.Hour, ChatIdle: time.Hour}, &blockingDriver{summary: &models.SessionSummary{}}, store, zap.NewNop())

	_, err := sup.Open(context.Background(), Descriptor{ID: "phone-1", TenantID: "t1", Channel: models.ChannelPhone})
	require.NoError(t, err)

	sup.sweep(context.Background())
	assert.Equal(t, 1, sup.Count())
	sup.Close("phone-1", "cleanup")
}

func TestTouch_ResetsIdleClock(t *testing.T) {
	sess := &Session{lastActivity: time.Now().UTC().Add(-time.Hour)}
	before := sess.idleSince(time.Now().UTC())
	sess.Touch()
	after := sess.idleSince(time.Now().UTC())
	assert.Less(t, after, before)
}
