package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler takes the dependencies readiness depends on, keyed by the
// name reported when one fails. Nil checks are ignored.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	live := make(map[string]Pinger, len(checks))
	for name, fn := range checks {
		if fn != nil {
			live[name] = fn
		}
	}

	return &HealthHandler{checks: live}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
	defer cancel()

	failing := make([]string, 0)

	for name, ping := range h.checks {
		if err := ping(cctx); err != nil {
			slog.Default().WarnContext(cctx, "readiness check failed", "check", name, "err", err)
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		sort.Strings(failing)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failing": failing})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
