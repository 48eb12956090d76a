package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

func baseWorker(id string, trade models.TradeCategory) *models.Worker {
	return &models.Worker{
		ID:               id,
		TradeCategories:  []models.TradeCategory{trade},
		MaxJobsPerDay:    8,
		CurrentJobsToday: 2,
		Active:           true,
		Geo:              models.GeoPoint{Lat: 52.52, Lon: 13.405},
		ServiceRadiusKM:  25,
		WorkingHours: map[string]models.DayHours{
			"Monday": {Open: "08:00", Close: "17:00"},
		},
	}
}

func jobFor(trade models.TradeCategory, urgency models.Urgency) *models.Job {
	return &models.Job{TradeCategory: trade, Urgency: urgency, Geo: models.GeoPoint{Lat: 52.52, Lon: 13.405}}
}

// fixedClock pins WallClock's notion of "now" to a Monday within
// working hours, so ranking tests don't depend on wall-clock time.
func fixedClock(t time.Time) WallClock {
	return WallClock{Now: func() time.Time { return t }}
}

var monday0900 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // a Monday

func TestRank_PrefersExactTradeMatchOverPartial(t *testing.T) {
	exact := baseWorker("exact", models.TradeElectrical)
	partial := baseWorker("partial", models.TradePlumbingHeating) // 0.3 similarity to electrical

	candidates, err := Rank(DefaultWeights, Criteria{Job: jobFor(models.TradeElectrical, models.UrgencyNormal)},
		[]*models.Worker{partial, exact}, fixedClock(monday0900))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "exact", candidates[0].Worker.ID)
}

func TestRank_EmergencyExcludesUnavailableWorkers(t *testing.T) {
	unavailable := baseWorker("unavailable", models.TradePlumbingHeating)
	unavailable.WorkingHours = map[string]models.DayHours{"Tuesday": {Open: "08:00", Close: "17:00"}}
	available := baseWorker("available", models.TradePlumbingHeating)

	candidates, err := Rank(DefaultWeights, Criteria{Job: jobFor(models.TradePlumbingHeating, models.UrgencyEmergency)},
		[]*models.Worker{unavailable, available}, fixedClock(monday0900))
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, "unavailable", c.Worker.ID)
	}
}

func TestRank_EmergencyWithNoneAvailableReturnsErrNoneAvailable(t *testing.T) {
	unavailable := baseWorker("unavailable", models.TradePlumbingHeating)
	unavailable.WorkingHours = map[string]models.DayHours{"Tuesday": {Open: "08:00", Close: "17:00"}}

	_, err := Rank(DefaultWeights, Criteria{Job: jobFor(models.TradePlumbingHeating, models.UrgencyEmergency)},
		[]*models.Worker{unavailable}, fixedClock(monday0900))
	assert.IsType(t, ErrNoneAvailable{}, err)
}

func TestRank_InactiveWorkerNeverQualifies(t *testing.T) {
	inactive := baseWorker("inactive", models.TradeElectrical)
	inactive.Active = false

	candidates, err := Rank(DefaultWeights, Criteria{Job: jobFor(models.TradeElectrical, models.UrgencyNormal)},
		[]*models.Worker{inactive}, fixedClock(monday0900))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRank_OutOfRadiusWorkerGetsNoProximityCredit(t *testing.T) {
	far := baseWorker("far", models.TradeGeneral)
	far.Geo = models.GeoPoint{Lat: 48.13, Lon: 11.58} // Munich, far from a Berlin job
	far.ServiceRadiusKM = 5

	job := jobFor(models.TradeGeneral, models.UrgencyNormal)
	candidates, err := Rank(DefaultWeights, Criteria{Job: job}, []*models.Worker{far}, fixedClock(monday0900))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// trade 0.35 + certs 0.15 + availability 0.20 + workload 0.75*0.15 + proximity 0
	assert.InDelta(t, 0.8125, candidates[0].Score, 1e-9)
}

func TestWallClock_IsWithinWorkingHours(t *testing.T) {
	w := baseWorker("w", models.TradeGeneral)

	inHours := WallClock{Now: func() time.Time { return monday0900 }}
	assert.True(t, inHours.IsWithinWorkingHours(w))

	afterHours := WallClock{Now: func() time.Time { return monday0900.Add(10 * time.Hour) }}
	assert.False(t, afterHours.IsWithinWorkingHours(w))

	wrongDay := WallClock{Now: func() time.Time { return monday0900.Add(24 * time.Hour) }}
	assert.False(t, wrongDay.IsWithinWorkingHours(w))
}

func TestWallClock_DefaultsToTimeNowWhenUnset(t *testing.T) {
	var c WallClock
	assert.NotPanics(t, func() { c.IsWithinWorkingHours(baseWorker("w", models.TradeGeneral)) })
}
