package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/centinel/internal/auth"
	"github.com/geocoder89/centinel/internal/domain/client"
	"github.com/gin-gonic/gin"
)

type ClientRegistrar interface {
	Register(ctx context.Context, username, password string) (client.Client, error)
}

type ClientLister interface {
	ListClients(ctx context.Context) ([]string, error)
}

type ClientsHandler struct {
	registrar ClientRegistrar
	lister    ClientLister
}

func NewClientsHandler(registrar ClientRegistrar, lister ClientLister) *ClientsHandler {
	return &ClientsHandler{registrar: registrar, lister: lister}
}

func (h *ClientsHandler) Register(ctx *gin.Context) {
	var req client.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// bcrypt plus one transaction
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	_, err := h.registrar.Register(cctx, req.Username, req.Password)

	switch {
	case err == nil:
		ctx.JSON(http.StatusCreated, gin.H{"status": "success"})
	case errors.Is(err, auth.ErrBadRequest):
		RespondBadRequest(ctx, nil)
	case errors.Is(err, auth.ErrConflict):
		RespondConflict(ctx)
	default:
		slog.Default().ErrorContext(cctx, "registration failed", "err", err)
		RespondInternal(ctx)
	}
}

func (h *ClientsHandler) ListClients(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	names, err := h.lister.ListClients(cctx)
	if err != nil {
		slog.Default().ErrorContext(cctx, "list clients failed", "err", err)
		RespondInternal(ctx)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"clients": names})
}
