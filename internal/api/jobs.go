package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/jobservice"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/storage"
)

type jobHandlers struct{ d *Deps }

// createJobRequest is the POST /jobs body, for manual/back-office job
// creation outside a conversation (§6).
type createJobRequest struct {
	ContactID       string               `json:"contact_id" binding:"required"`
	Title           string               `json:"title" binding:"required"`
	Description     string               `json:"description"`
	TradeCategory   models.TradeCategory `json:"trade_category" binding:"required"`
	Urgency         models.Urgency       `json:"urgency"`
	Source          models.Source        `json:"source"`
	Address         models.Address       `json:"address"`
	AccessNotes     string               `json:"access_notes"`
	RecordingFlag   bool                 `json:"recording_flag"`
	PreferredWindow *models.TimeWindow   `json:"preferred_window"`
}

func (h *jobHandlers) create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	draft := jobservice.Draft{
		ContactID:       req.ContactID,
		Title:           req.Title,
		Description:     req.Description,
		TradeCategory:   req.TradeCategory,
		Urgency:         req.Urgency,
		Source:          req.Source,
		Address:         req.Address,
		AccessNotes:     req.AccessNotes,
		RecordingFlag:   req.RecordingFlag,
		PreferredWindow: req.PreferredWindow,
	}
	job, err := h.d.Jobs.Create(c.Request.Context(), tenantID(c), actor(c), draft, req.Urgency)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *jobHandlers) list(c *gin.Context) {
	f := storage.JobFilters{
		Status:  models.JobStatus(c.Query("status")),
		Urgency: models.Urgency(c.Query("urgency")),
		Trade:   models.TradeCategory(c.Query("trade")),
		Source:  models.Source(c.Query("source")),
		FullText: c.Query("q"),
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.FromDate = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.ToDate = t
		}
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "25"))

	jobs, total, err := h.d.Store.ListJobs(c.Request.Context(), tenantID(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total, "page": f.Page, "limit": f.Limit})
}

func (h *jobHandlers) get(c *gin.Context) {
	job, err := h.d.Store.GetJob(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *jobHandlers) stats(c *gin.Context) {
	stats, err := h.d.Store.JobStats(c.Request.Context(), tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type updateStatusRequest struct {
	Status models.JobStatus `json:"status" binding:"required"`
	Reason string           `json:"reason"`
}

func (h *jobHandlers) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	job, err := h.d.Jobs.UpdateStatus(c.Request.Context(), tenantID(c), c.Param("id"), actor(c), req.Status, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type assignRequest struct {
	WorkerID string `json:"worker_id" binding:"required"`
}

func (h *jobHandlers) assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	job, err := h.d.Jobs.AssignWorker(c.Request.Context(), tenantID(c), c.Param("id"), actor(c), req.WorkerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// cancel implements DELETE /jobs/{id}: Jobs are never hard-deleted
// (§3 Job History Entry is append-only and references job_id), so this
// is UpdateStatus(cancelled) under the hood.
func (h *jobHandlers) cancel(c *gin.Context) {
	job, err := h.d.Jobs.UpdateStatus(c.Request.Context(), tenantID(c), c.Param("id"), actor(c), models.JobCancelled, "cancelled via API")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *jobHandlers) history(c *gin.Context) {
	// GetJob first to enforce tenant isolation before exposing history
	// rows, which are keyed only by job_id.
	if _, err := h.d.Store.GetJob(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	hist, err := h.d.Store.GetJobHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, apperr.Wrap(apperr.Internal, "job_history_load_failed", "could not load job history", err))
		return
	}
	c.JSON(http.StatusOK, hist)
}
