package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Clients match on these exact strings; keep them stable.
const (
	msgBadRequest   = "Bad request"
	msgUnauthorized = "Unauthorized access"
	msgNotFound     = "Not found"
	msgConflict     = "Conflict"
	msgTooLarge     = "Payload too large"
	msgInternal     = "Internal server error"
)

type APIError struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func RespondError(ctx *gin.Context, status int, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, APIError{
		Error:   message,
		Details: details,
	})
}

func RespondBadRequest(ctx *gin.Context, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, msgBadRequest, details)
}

func RespondUnauthorized(ctx *gin.Context) {
	ctx.Header("WWW-Authenticate", `Basic realm="Centinel"`)
	RespondError(ctx, http.StatusUnauthorized, msgUnauthorized, nil)
}

func RespondNotFound(ctx *gin.Context) {
	RespondError(ctx, http.StatusNotFound, msgNotFound, nil)
}

func RespondConflict(ctx *gin.Context) {
	RespondError(ctx, http.StatusConflict, msgConflict, nil)
}

func RespondTooLarge(ctx *gin.Context) {
	RespondError(ctx, http.StatusRequestEntityTooLarge, msgTooLarge, nil)
}

func RespondInternal(ctx *gin.Context) {
	RespondError(ctx, http.StatusInternalServerError, msgInternal, nil)
}
