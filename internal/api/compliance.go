package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type complianceHandlers struct{ d *Deps }

// export implements GET /export/{contact_id} (§6, §8 scenario 6).
func (h *complianceHandlers) export(c *gin.Context) {
	bundle, err := h.d.Compliance.Export(c.Request.Context(), tenantID(c), c.Param("contact_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// erase implements DELETE /erasure/{contact_id} (§6, §8 scenario 6).
func (h *complianceHandlers) erase(c *gin.Context) {
	if err := h.d.Compliance.Erase(c.Request.Context(), tenantID(c), actor(c), c.Param("contact_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
