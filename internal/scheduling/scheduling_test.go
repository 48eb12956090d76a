package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// lockingStore mimics storage.Postgres.BookSlot's unique-constraint
// enforcement (tenant, worker, start) with an in-memory mutex-guarded
// map, so Engine.Book's at-most-one-booking guarantee can be exercised
// without a database.
type lockingStore struct {
	mu     sync.Mutex
	booked map[string]bool
}

func newLockingStore() *lockingStore {
	return &lockingStore{booked: make(map[string]bool)}
}

func (s *lockingStore) BookedIntervals(ctx context.Context, tenantID, workerID string, dayStart, dayEnd time.Time) ([]BookedInterval, error) {
	return nil, nil
}

func (s *lockingStore) BookSlot(ctx context.Context, tenantID, workerID, jobID string, start, end time.Time) error {
	key := tenantID + "|" + workerID + "|" + start.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booked[key] {
		return apperr.Conflictf("slot_unavailable", "slot already booked")
	}
	s.booked[key] = true
	return nil
}

func TestBook_AtMostOneBookingUnderConcurrentAttempts(t *testing.T) {
	store := newLockingStore()
	e := New(store, zap.NewNop())
	slot := Slot{
		Start:    time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		WorkerID: "worker-1",
	}

	const attempts = 50
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Book(context.Background(), "tenant-1", slot, "job-1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	}
	assert.Equal(t, 1, successes)
}

func TestBook_DifferentSlotsBothSucceed(t *testing.T) {
	store := newLockingStore()
	e := New(store, zap.NewNop())

	err1 := e.Book(context.Background(), "tenant-1", Slot{
		Start: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC), WorkerID: "worker-1",
	}, "job-1")
	err2 := e.Book(context.Background(), "tenant-1", Slot{
		Start: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC), WorkerID: "worker-1",
	}, "job-2")

	require.NoError(t, err1)
	require.NoError(t, err2)
}

func TestFindSlots_ReturnsNoneWhenWorkerHasNoWorkingHoursThatDay(t *testing.T) {
	store := newLockingStore()
	e := New(store, zap.NewNop())

	job := &models.Job{Urgency: models.UrgencyNormal}
	worker := &models.Worker{ID: "worker-1", WorkingHours: map[string]models.DayHours{}}

	slots, err := e.FindSlots(context.Background(), Criteria{
		TenantID:      "tenant-1",
		Job:           job,
		Worker:        worker,
		BusinessHours: map[string]models.DayHours{"Monday": {Open: "08:00", Close: "17:00"}},
		Now:           time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}
