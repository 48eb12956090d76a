package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

type consentHandlers struct{ d *Deps }

// list implements GET /consent/{contact_id} (§6): full append-only
// history plus the currently active record per kind.
func (h *consentHandlers) list(c *gin.Context) {
	ctx := c.Request.Context()
	tid := tenantID(c)
	contactID := c.Param("contact_id")

	history, err := h.d.Store.ConsentHistory(ctx, tid, contactID)
	if err != nil {
		writeError(c, err)
		return
	}
	active := map[models.ConsentKind]*models.Consent{}
	for _, kind := range []models.ConsentKind{models.ConsentDataProcessing, models.ConsentCallRecording, models.ConsentReminders, models.ConsentMarketing} {
		rec, err := h.d.Store.ActiveConsent(ctx, tid, contactID, kind)
		if err != nil {
			writeError(c, err)
			return
		}
		if rec != nil {
			active[kind] = rec
		}
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "active": active})
}

type grantConsentRequest struct {
	Kind   models.ConsentKind   `json:"kind" binding:"required"`
	Method models.ConsentMethod `json:"method" binding:"required"`
	CallID string               `json:"call_id"`
}

// grant implements POST /consent/{contact_id} (§6, §3 Consent Record).
func (h *consentHandlers) grant(c *gin.Context) {
	var req grantConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	consent := &models.Consent{
		TenantID:  tenantID(c),
		ContactID: c.Param("contact_id"),
		Kind:      req.Kind,
		Method:    req.Method,
		CallID:    req.CallID,
	}
	if err := h.d.Store.GrantConsent(c.Request.Context(), consent); err != nil {
		writeError(c, apperr.Wrap(apperr.Internal, "consent_grant_failed", "could not record consent", err))
		return
	}
	c.JSON(http.StatusCreated, consent)
}

// revoke implements DELETE /consent/{contact_id}/{kind}: appends a
// revocation row, never mutates the grant (§3 invariant).
func (h *consentHandlers) revoke(c *gin.Context) {
	kind := models.ConsentKind(c.Param("kind"))
	if err := h.d.Store.RevokeConsent(c.Request.Context(), tenantID(c), c.Param("contact_id"), kind); err != nil {
		writeError(c, apperr.Wrap(apperr.Internal, "consent_revoke_failed", "could not record revocation", err))
		return
	}
	c.Status(http.StatusNoContent)
}
