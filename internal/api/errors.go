package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
)

// errorResponse is the {detail, code, field?} envelope §7's error
// table mandates every non-2xx response carry.
type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
}

// writeError maps err through apperr.HTTPStatus and writes the
// envelope, following the same "one place maps kind to status" pattern
// as apperr.Kind.HTTPStatus documents.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if e, ok := apperr.As(err); ok {
		c.JSON(status, errorResponse{Detail: e.Message, Code: e.Code, Field: e.Field})
		return
	}
	c.JSON(status, errorResponse{Detail: "internal error", Code: "internal_error"})
}

func badRequest(c *gin.Context, code, detail string) {
	c.JSON(http.StatusBadRequest, errorResponse{Detail: detail, Code: code})
}
