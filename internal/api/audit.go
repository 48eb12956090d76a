package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type auditHandlers struct{ d *Deps }

// list implements GET /audit (§6), admin-only.
func (h *auditHandlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.d.Store.QueryAuditLog(c.Request.Context(), tenantID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// integrity implements GET /audit/integrity (§6, §8's audit chain
// property): recomputes the checksum chain from genesis.
func (h *auditHandlers) integrity(c *gin.Context) {
	ok, failedAt, err := h.d.Ledger.VerifyChain(c.Request.Context(), tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok, "failed_at_sequence": failedAt})
}
