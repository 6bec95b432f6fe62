package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/geocoder89/centinel/internal/artifacts"
	"github.com/geocoder89/centinel/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// resultField is the multipart field carrying the uploaded result file.
const resultField = "result"

type ResultStore interface {
	SubmitResult(ctx context.Context, username, fileName string, content io.Reader) (string, error)
	ListResults(ctx context.Context, username string) (map[string]json.RawMessage, error)
}

type ResultsHandler struct {
	store ResultStore
}

func NewResultsHandler(store ResultStore) *ResultsHandler {
	return &ResultsHandler{store: store}
}

func (h *ResultsHandler) Submit(ctx *gin.Context) {
	username, ok := middlewares.UsernameFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx)
		return
	}

	fh, err := ctx.FormFile(resultField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondTooLarge(ctx)
			return
		}
		RespondBadRequest(ctx, gin.H{"field": resultField})
		return
	}

	f, err := fh.Open()
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "open uploaded result failed", "err", err)
		RespondInternal(ctx)
		return
	}
	defer f.Close()

	_, err = h.store.SubmitResult(ctx.Request.Context(), username, fh.Filename, f)

	switch {
	case err == nil:
		ctx.JSON(http.StatusCreated, gin.H{"status": "success"})
	case errors.Is(err, artifacts.ErrBadFileName),
		errors.Is(err, artifacts.ErrUnsafePath):
		RespondBadRequest(ctx, nil)
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), "store result failed", "err", err)
		RespondInternal(ctx)
	}
}

func (h *ResultsHandler) List(ctx *gin.Context) {
	username, ok := middlewares.UsernameFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx)
		return
	}

	results, err := h.store.ListResults(ctx.Request.Context(), username)
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "list results failed", "err", err)
		RespondInternal(ctx)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"results": results})
}
