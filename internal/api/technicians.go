package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/matcher"
	"github.com/fieldopsvoice/dispatch/internal/matcher/cache"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// hydrate re-attaches full Worker records to a cached ranking, dropping
// any worker that no longer appears in the fresh list (left the
// department, deactivated) rather than serving a stale candidate.
func hydrate(rankings []cache.Ranking, workers []*models.Worker) []matcher.Candidate {
	byID := make(map[string]*models.Worker, len(workers))
	for _, w := range workers {
		byID[w.ID] = w
	}
	candidates := make([]matcher.Candidate, 0, len(rankings))
	for _, r := range rankings {
		w, ok := byID[r.WorkerID]
		if !ok {
			continue
		}
		candidates = append(candidates, matcher.Candidate{Worker: w, Score: r.Score})
	}
	return candidates
}

type technicianHandlers struct{ d *Deps }

type technicianSearchRequest struct {
	JobID                  string   `json:"job_id" binding:"required"`
	RequiredCertifications []string `json:"required_certifications"`
	ServiceRadiusKM        float64  `json:"service_radius_km"`
	DepartmentID           string   `json:"department_id"`
}

// search implements POST /technicians/search (§6, §4.7): ranks the
// tenant's workers (optionally narrowed to a department) against an
// existing Job. A ranking computed for the same job/department is
// served from cache for a short window so repeated searches (dashboard
// polling, a retried webhook) skip the weighted-sum scoring pass.
func (h *technicianHandlers) search(c *gin.Context) {
	var req technicianSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	ctx := c.Request.Context()
	tid := tenantID(c)

	job, err := h.d.Store.GetJob(ctx, tid, req.JobID)
	if err != nil {
		writeError(c, err)
		return
	}

	workers, err := h.d.Store.ListWorkers(ctx, tid)
	if req.DepartmentID != "" {
		workers, err = h.d.Store.ListWorkersByDepartment(ctx, tid, req.DepartmentID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if cached, ok := h.d.Matcher.Get(ctx, tid, req.JobID, req.DepartmentID); ok {
		candidates := hydrate(cached, workers)
		c.JSON(http.StatusOK, gin.H{"candidates": candidates, "none_available": len(candidates) == 0})
		return
	}

	candidates, err := matcher.Rank(matcher.DefaultWeights, matcher.Criteria{
		Job:                    job,
		RequiredCertifications: req.RequiredCertifications,
		ServiceRadiusKM:        req.ServiceRadiusKM,
	}, workers, matcher.WallClock{})
	if err != nil {
		if _, ok := err.(matcher.ErrNoneAvailable); ok {
			c.JSON(http.StatusOK, gin.H{"candidates": []matcher.Candidate{}, "none_available": true})
			return
		}
		writeError(c, err)
		return
	}
	h.d.Matcher.Set(ctx, tid, req.JobID, req.DepartmentID, candidates)
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "none_available": false})
}
