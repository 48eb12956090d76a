// Package scheduling implements the Scheduling Engine (§4.8): finds
// open appointment slots for a technician and books them under a
// database-enforced at-most-one-booking guarantee.
//
// The interval-intersection/subtraction shape over tenant business
// hours, technician working hours, and existing bookings is grounded
// on the Department/Worker working-hours model in §3 and the booking
// contract already implemented by storage.Postgres.BookSlot/
// BookedIntervals (itself grounded on expotoworld's transactional
// unique-constraint-as-lock pattern, see internal/storage/calendar.go).
package scheduling

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// BookedInterval is a booked appointment's [Start, End) window, as
// persisted by storage.Postgres's calendar_entries table.
type BookedInterval struct {
	Start time.Time
	End   time.Time
}

// Store is the persistence surface the Scheduling Engine needs.
type Store interface {
	BookedIntervals(ctx context.Context, tenantID, workerID string, dayStart, dayEnd time.Time) ([]BookedInterval, error)
	BookSlot(ctx context.Context, tenantID, workerID, jobID string, start, end time.Time) error
}

// Criteria is the slot-search input, per §4.8 step 1.
type Criteria struct {
	TenantID        string
	Job             *models.Job
	Worker          *models.Worker
	BusinessHours   map[string]models.DayHours
	Earliest        time.Time
	Latest          time.Time
	PreferredWindow *models.TimeWindow
	SlotDurationMin int // default 30
	MaxResults      int // default 10
	Now             time.Time
}

// Slot is one candidate appointment window returned by FindSlots.
type Slot struct {
	Start     time.Time
	End       time.Time
	WorkerID  string
	Preferred bool
	Emergency bool
}

// Engine is a pure function of its inputs plus the Store it's given;
// it holds no session state of its own.
type Engine struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

const (
	defaultSlotMinutes = 30
	defaultMaxResults  = 10
)

// interval is a half-open [Start, End) time range.
type interval struct {
	Start, End time.Time
}

// FindSlots implements §4.8 steps 1-6.
func (e *Engine) FindSlots(ctx context.Context, c Criteria) ([]Slot, error) {
	now := c.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	earliest := c.Earliest
	if earliest.Before(now) {
		earliest = now
	}
	deadline := now.Add(c.Job.Urgency.MaxWait())
	latest := c.Latest
	if latest.IsZero() || latest.After(deadline) {
		latest = deadline
	}
	if !earliest.Before(latest) {
		return nil, nil
	}

	slotMin := c.SlotDurationMin
	if slotMin <= 0 {
		slotMin = defaultSlotMinutes
	}
	maxResults := c.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	emergency := c.Job.Urgency == models.UrgencyEmergency

	var candidates []Slot
	for day := earliest.Truncate(24 * time.Hour); day.Before(latest); day = day.Add(24 * time.Hour) {
		dayStart, dayEnd := day, day.Add(24*time.Hour)
		open := e.openIntervals(c, day)
		if len(open) == 0 {
			continue
		}

		booked, err := e.store.BookedIntervals(ctx, c.TenantID, c.Worker.ID, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "booked_intervals_query_failed", "could not load existing bookings", err)
		}
		free := subtractAll(open, toStoreIntervals(booked))

		if emergency {
			for _, f := range free {
				f = clamp(f, earliest, latest)
				if f.Start.Before(f.End) {
					candidates = append(candidates, Slot{Start: f.Start, End: f.End, WorkerID: c.Worker.ID, Emergency: true})
				}
			}
			continue
		}

		for _, f := range free {
			f = clamp(f, earliest, latest)
			for slotStart := f.Start; slotStart.Add(time.Duration(slotMin) * time.Minute).Compare(f.End) <= 0; slotStart = slotStart.Add(time.Duration(slotMin) * time.Minute) {
				slotEnd := slotStart.Add(time.Duration(slotMin) * time.Minute)
				candidates = append(candidates, Slot{
					Start:     slotStart,
					End:       slotEnd,
					WorkerID:  c.Worker.ID,
					Preferred: isPreferred(slotStart, c.PreferredWindow),
				})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].Start.Truncate(24*time.Hour), candidates[j].Start.Truncate(24*time.Hour)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if candidates[i].Preferred != candidates[j].Preferred {
			return candidates[i].Preferred
		}
		return candidates[i].Start.Before(candidates[j].Start)
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

// Book implements §4.8's book(slot, job): persists the booking under
// the Store's transactional uniqueness guarantee. Returns an
// apperr.Conflict (code "slot_unavailable") if the slot was taken
// between search and book — the caller should re-run FindSlots.
func (e *Engine) Book(ctx context.Context, tenantID string, slot Slot, jobID string) error {
	if err := e.store.BookSlot(ctx, tenantID, slot.WorkerID, jobID, slot.Start, slot.End); err != nil {
		return err
	}
	if e.log != nil {
		e.log.Info("slot booked", zap.String("tenant_id", tenantID), zap.String("worker_id", slot.WorkerID),
			zap.String("job_id", jobID), zap.Time("start", slot.Start))
	}
	return nil
}

// openIntervals intersects tenant business hours with the worker's
// working hours for the given day, per §4.8 step 2.
func (e *Engine) openIntervals(c Criteria, day time.Time) []interval {
	weekday := day.Weekday().String()
	biz, ok := c.BusinessHours[weekday]
	if !ok {
		return nil
	}
	wh, ok := c.Worker.WorkingHours[weekday]
	if !ok {
		return nil
	}
	bizStart, bizEnd, err := dayRange(day, biz)
	if err != nil {
		return nil
	}
	whStart, whEnd, err := dayRange(day, wh)
	if err != nil {
		return nil
	}
	start := maxTime(bizStart, whStart)
	end := minTime(bizEnd, whEnd)
	if !start.Before(end) {
		return nil
	}
	return []interval{{Start: start, End: end}}
}

func dayRange(day time.Time, h models.DayHours) (time.Time, time.Time, error) {
	open, err := time.Parse("15:04", h.Open)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	close, err := time.Parse("15:04", h.Close)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	base := day.Truncate(24 * time.Hour)
	return base.Add(time.Duration(open.Hour())*time.Hour + time.Duration(open.Minute())*time.Minute),
		base.Add(time.Duration(close.Hour())*time.Hour + time.Duration(close.Minute())*time.Minute), nil
}

func toStoreIntervals(rows []BookedInterval) []interval {
	out := make([]interval, len(rows))
	for i, r := range rows {
		out[i] = interval{Start: r.Start, End: r.End}
	}
	return out
}

// subtractAll removes every interval in busy from open, per §4.8
// step 3. open and busy are each assumed to be within a single day.
func subtractAll(open []interval, busy []interval) []interval {
	free := open
	for _, b := range busy {
		var next []interval
		for _, f := range free {
			next = append(next, subtractOne(f, b)...)
		}
		free = next
	}
	return free
}

func subtractOne(f, b interval) []interval {
	if !b.Start.Before(f.End) || !f.Start.Before(b.End) {
		return []interval{f}
	}
	var out []interval
	if f.Start.Before(b.Start) {
		out = append(out, interval{Start: f.Start, End: b.Start})
	}
	if b.End.Before(f.End) {
		out = append(out, interval{Start: b.End, End: f.End})
	}
	return out
}

func clamp(i interval, lo, hi time.Time) interval {
	if i.Start.Before(lo) {
		i.Start = lo
	}
	if i.End.After(hi) {
		i.End = hi
	}
	return i
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// isPreferred reports whether slotStart falls inside the customer's
// preferred window, per §4.8 step 5.
func isPreferred(slotStart time.Time, window *models.TimeWindow) bool {
	if window == nil {
		return false
	}
	sameDay := slotStart.Weekday() == window.Start.Weekday()
	startMin := slotStart.Hour()*60 + slotStart.Minute()
	fromMin := window.Start.Hour()*60 + window.Start.Minute()
	toMin := window.End.Hour()*60 + window.End.Minute()
	return sameDay && startMin >= fromMin && startMin < toMin
}
