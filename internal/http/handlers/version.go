package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type VersionHandler struct {
	recommended string
}

func NewVersionHandler(recommended string) *VersionHandler {
	return &VersionHandler{recommended: recommended}
}

// Version tells clients which release they should be running.
func (h *VersionHandler) Version(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"version": h.recommended})
}
