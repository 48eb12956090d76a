// Package matcher implements the Technician Matcher (§4.7): ranks
// candidate workers for a Job by a weighted multi-factor score.
//
// The weighted-sum shape is grounded on
// original_source/src/phone_agent/industry/handwerk/technician.py's
// _score_technician (skills/availability/workload/distance weighted
// sum, Haversine distance) — the weights themselves follow the spec's
// own §4.7 values (0.35/0.15/0.20/0.15/0.15), which differ from the
// original and are authoritative here, per the spec's Open Questions
// note that implementers may retune as long as the weighted-sum
// contract holds.
package matcher

import (
	"math"
	"sort"
	"time"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// Weights are the §4.7 scoring weights, exposed for per-deployment
// tuning without code changes (per spec's Open Questions allowance).
type Weights struct {
	TradeFit     float64
	Certification float64
	Availability float64
	Workload     float64
	Proximity    float64
}

// DefaultWeights are exactly the spec §4.7 values.
var DefaultWeights = Weights{
	TradeFit:      0.35,
	Certification: 0.15,
	Availability:  0.20,
	Workload:      0.15,
	Proximity:     0.15,
}

// tradeSimilarity is the partial-credit table for related-but-not-exact
// trade matches, per §4.7 ("plumbing-heating ↔ sanitary = 0.6").
var tradeSimilarity = map[[2]models.TradeCategory]float64{
	{models.TradePlumbingHeating, models.TradeSanitary}: 0.6,
	{models.TradeSanitary, models.TradePlumbingHeating}: 0.6,
	{models.TradeElectrical, models.TradePlumbingHeating}: 0.3,
	{models.TradePlumbingHeating, models.TradeElectrical}: 0.3,
}

// Criteria is the matcher's input: the Job plus any required
// certifications not already implied by the job itself.
type Criteria struct {
	Job                  *models.Job
	RequiredCertifications []string
	ServiceRadiusKM      float64
}

// Candidate is one scored worker in the output list.
type Candidate struct {
	Worker *models.Worker
	Score  float64
}

// threshold is the minimum score for inclusion, per §4.7 "sorted list
// with score ≥ 0.4 threshold".
const threshold = 0.4

// ErrNoneAvailable signals the §4.7 emergency-override contract: the
// matcher must never silently return a zero-score match.
type ErrNoneAvailable struct{}

func (ErrNoneAvailable) Error() string { return "no technician available" }

// Rank scores and sorts candidate workers for criteria.Job. Emergency
// jobs are filtered to availability_today=true candidates only; if none
// qualify, Rank returns ErrNoneAvailable so the caller can escalate to
// the department fallback contact (§4.7).
func Rank(w Weights, criteria Criteria, workers []*models.Worker, now TimeProvider) ([]Candidate, error) {
	job := criteria.Job
	emergencyMode := job.Urgency == models.UrgencyEmergency

	var out []Candidate
	for _, worker := range workers {
		if !worker.Active {
			continue
		}
		available := isAvailableToday(worker, now)
		if emergencyMode && !available {
			continue
		}
		score := score(w, criteria, worker, available)
		if score >= threshold {
			out = append(out, Candidate{Worker: worker, Score: score})
		}
	}

	if emergencyMode && len(out) == 0 {
		return nil, ErrNoneAvailable{}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ai, aj := isAvailableToday(out[i].Worker, now), isAvailableToday(out[j].Worker, now)
		if ai != aj {
			return ai
		}
		wi, wj := out[i].Worker.WorkloadHeadroom(), out[j].Worker.WorkloadHeadroom()
		if wi != wj {
			return wi > wj
		}
		return out[i].Worker.ID < out[j].Worker.ID
	})
	return out, nil
}

func score(w Weights, criteria Criteria, worker *models.Worker, available bool) float64 {
	job := criteria.Job

	tradeFit := tradeFitScore(worker, job.TradeCategory)
	certCoverage := worker.CertificationCoverage(criteria.RequiredCertifications)
	availabilityScore := 0.0
	if available {
		availabilityScore = 1.0
	}
	workload := worker.WorkloadHeadroom()

	radius := criteria.ServiceRadiusKM
	if radius <= 0 {
		radius = worker.ServiceRadiusKM
	}
	proximity := proximityScore(worker.Geo, job.Geo, radius)

	return tradeFit*w.TradeFit +
		certCoverage*w.Certification +
		availabilityScore*w.Availability +
		workload*w.Workload +
		proximity*w.Proximity
}

func tradeFitScore(worker *models.Worker, category models.TradeCategory) float64 {
	for _, t := range worker.TradeCategories {
		if t == category {
			return 1.0
		}
	}
	best := 0.0
	for _, t := range worker.TradeCategories {
		if sim, ok := tradeSimilarity[[2]models.TradeCategory{t, category}]; ok && sim > best {
			best = sim
		}
	}
	return best
}

// proximityScore is 1 - min(distance, radius)/radius using the
// great-circle formula, per §4.7.
func proximityScore(workerGeo, jobGeo models.GeoPoint, radiusKM float64) float64 {
	if radiusKM <= 0 {
		return 0
	}
	distance := haversineKM(workerGeo, jobGeo)
	capped := distance
	if capped > radiusKM {
		capped = radiusKM
	}
	score := 1 - capped/radiusKM
	if score < 0 {
		return 0
	}
	return score
}

const earthRadiusKM = 6371.0

func haversineKM(a, b models.GeoPoint) float64 {
	lat1, lon1 := degToRad(a.Lat), degToRad(a.Lon)
	lat2, lon2 := degToRad(b.Lat), degToRad(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

// TimeProvider abstracts "now" so availability checks are deterministic
// in tests.
type TimeProvider interface {
	IsWithinWorkingHours(w *models.Worker) bool
}

func isAvailableToday(w *models.Worker, now TimeProvider) bool {
	if !w.CanAcceptMore() {
		return false
	}
	if now == nil {
		return true
	}
	return now.IsWithinWorkingHours(w)
}

// WallClock is the production TimeProvider: it checks a Worker's own
// WorkingHours (per §4.7's "within working hours" factor) against a
// clock, so callers outside tests should always pass one instead of
// nil. Grounded on internal/scheduling.Engine.openIntervals/dayRange's
// weekday-keyed map + "15:04" HH:MM parsing, generalized from a
// business-hours/working-hours intersection to a single worker check.
type WallClock struct {
	// Now defaults to time.Now when nil, overridable in tests.
	Now func() time.Time
}

func (c WallClock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// IsWithinWorkingHours implements TimeProvider.
func (c WallClock) IsWithinWorkingHours(w *models.Worker) bool {
	now := c.now()
	hours, ok := w.WorkingHours[now.Weekday().String()]
	if !ok {
		return false
	}
	open, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return false
	}
	closeT, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return false
	}
	base := now.Truncate(24 * time.Hour)
	start := base.Add(time.Duration(open.Hour())*time.Hour + time.Duration(open.Minute())*time.Minute)
	end := base.Add(time.Duration(closeT.Hour())*time.Hour + time.Duration(closeT.Minute())*time.Minute)
	return !now.Before(start) && now.Before(end)
}
