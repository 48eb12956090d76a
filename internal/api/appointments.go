package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
)

type appointmentHandlers struct{ d *Deps }

type slotsRequest struct {
	JobID           string             `json:"job_id" binding:"required"`
	WorkerID        string             `json:"worker_id" binding:"required"`
	Earliest        time.Time          `json:"earliest"`
	Latest          time.Time          `json:"latest"`
	PreferredWindow *models.TimeWindow `json:"preferred_window"`
	SlotDurationMin int                `json:"slot_duration_minutes"`
	MaxResults      int                `json:"max_results"`
}

// slots implements POST /appointments/slots (§6, §4.8).
func (h *appointmentHandlers) slots(c *gin.Context) {
	var req slotsRequest
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
	worker, err := h.d.Store.GetWorker(ctx, tid, req.WorkerID)
	if err != nil {
		writeError(c, err)
		return
	}
	tenant, err := h.d.Store.GetTenant(ctx, tid)
	if err != nil {
		writeError(c, err)
		return
	}

	slots, err := h.d.Scheduler.FindSlots(ctx, scheduling.Criteria{
		TenantID:        tid,
		Job:             job,
		Worker:          worker,
		BusinessHours:   tenant.Settings.BusinessHours,
		Earliest:        req.Earliest,
		Latest:          req.Latest,
		PreferredWindow: req.PreferredWindow,
		SlotDurationMin: req.SlotDurationMin,
		MaxResults:      req.MaxResults,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

type bookRequest struct {
	JobID    string    `json:"job_id" binding:"required"`
	WorkerID string    `json:"worker_id" binding:"required"`
	Start    time.Time `json:"start" binding:"required"`
	End      time.Time `json:"end" binding:"required"`
}

// book implements POST /appointments/book (§6, §4.8's book(slot, job)).
func (h *appointmentHandlers) book(c *gin.Context) {
	var req bookRequest
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

	slot := scheduling.Slot{Start: req.Start, End: req.End, WorkerID: req.WorkerID}
	if err := h.d.Scheduler.Book(ctx, tid, slot, req.JobID); err != nil {
		writeError(c, err)
		return
	}

	job.Status = models.JobAssigned
	job.WorkerID = req.WorkerID
	job.ScheduledAt = &req.Start
	if err := h.d.Store.UpdateJob(ctx, job); err != nil {
		writeError(c, err)
		return
	}
	if err := h.d.Store.AppendJobHistory(ctx, job.ID, actor(c), "slot_booked", map[string]any{
		"worker_id": req.WorkerID, "start": req.Start, "end": req.End,
	}); err != nil {
		writeError(c, err)
		return
	}
	h.d.Matcher.Invalidate(ctx, tid, req.JobID, job.DepartmentID)
	c.JSON(http.StatusOK, job)
}
