package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/triage"
)

type triageHandlers struct{ d *Deps }

type triageRequest struct {
	Description string `json:"description" binding:"required"`
	Context     struct {
		VeryYoung     bool                 `json:"very_young"`
		VeryOld       bool                 `json:"very_old"`
		Pregnancy     bool                 `json:"pregnancy"`
		Commercial    bool                 `json:"commercial"`
		Vulnerability bool                 `json:"vulnerability"`
		OutOfHours    bool                 `json:"out_of_hours"`
		PreferredCategory models.TradeCategory `json:"preferred_category"`
	} `json:"context"`
}

// assess implements POST /triage/assess (§6): a pure evaluation with no
// side effects, exposed standalone so a dashboard can preview a triage
// bucket before a Job exists.
func (h *triageHandlers) assess(c *gin.Context) {
	var req triageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	result := triage.Assess(h.d.TriageVersion, req.Description, triage.Context{
		VeryYoung:               req.Context.VeryYoung,
		VeryOld:                 req.Context.VeryOld,
		Pregnancy:               req.Context.Pregnancy,
		Commercial:              req.Context.Commercial,
		Vulnerability:           req.Context.Vulnerability,
		OutOfHours:              req.Context.OutOfHours,
		TenantPreferredCategory: req.Context.PreferredCategory,
	})
	c.JSON(http.StatusOK, result)
}
