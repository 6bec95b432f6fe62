package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/geocoder89/centinel/internal/artifacts"
	"github.com/geocoder89/centinel/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type ExperimentStore interface {
	ListExperiments(username string) ([]string, error)
	FetchExperiment(username, name string) ([]byte, string, error)
}

type ExperimentsHandler struct {
	store ExperimentStore
}

func NewExperimentsHandler(store ExperimentStore) *ExperimentsHandler {
	return &ExperimentsHandler{store: store}
}

// List answers with an empty list when no username was sent or it names no
// experiments directory.
func (h *ExperimentsHandler) List(ctx *gin.Context) {
	names := []string{}

	if username, ok := middlewares.UsernameFromContext(ctx); ok {
		found, err := h.store.ListExperiments(username)

		switch {
		case err == nil:
			names = found
		case errors.Is(err, artifacts.ErrNotFound):
		default:
			slog.Default().ErrorContext(ctx.Request.Context(), "list experiments failed", "err", err)
			RespondInternal(ctx)
			return
		}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"experiments": names})
}

func (h *ExperimentsHandler) Fetch(ctx *gin.Context) {
	username, ok := middlewares.UsernameFromContext(ctx)
	if !ok {
		RespondNotFound(ctx)
		return
	}

	body, fileName, err := h.store.FetchExperiment(username, ctx.Param("name"))
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			RespondNotFound(ctx)
			return
		}
		slog.Default().ErrorContext(ctx.Request.Context(), "fetch experiment failed", "err", err)
		RespondInternal(ctx)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(fileName))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	ctx.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": fileName}))
	ctx.Data(http.StatusOK, ctype, body)
}
