package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/centinel/internal/auth"
	"github.com/geocoder89/centinel/internal/domain/client"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/gin-gonic/gin"
)

const basicRealm = `Basic realm="Centinel"`

// Keep this small interface so tests can fake it easily.
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (client.Client, error)
	RecordActivity(ctx context.Context, c client.Client, remoteIP string)
}

type BasicAuth struct {
	auth ClientAuthenticator
}

func NewBasicAuth(a ClientAuthenticator) *BasicAuth {
	return &BasicAuth{auth: a}
}

// RequireClient verifies HTTP Basic credentials on every request. The failure
// response does not say whether the username or the password was wrong.
func (m *BasicAuth) RequireClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			abortUnauthorized(c)
			return
		}

		reqCtx := c.Request.Context()

		found, err := m.auth.Authenticate(reqCtx, username, password)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				abortUnauthorized(c)
				return
			}

			slog.Default().ErrorContext(reqCtx, "credential check failed", "request_id", RequestIDFrom(c), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		reqCtx = observability.WithUsername(reqCtx, found.Username)
		c.Request = c.Request.WithContext(reqCtx)

		c.Set(CtxUsername, found.Username)

		m.auth.RecordActivity(reqCtx, found, c.ClientIP())

		c.Next()
	}
}

// OptionalUsername takes the username from the Basic header without checking
// the password. Experiment routes are keyed by it but stay open.
func OptionalUsername() gin.HandlerFunc {
	return func(c *gin.Context) {
		if username, _, ok := c.Request.BasicAuth(); ok && username != "" {
			c.Set(CtxUsername, username)
			c.Request = c.Request.WithContext(observability.WithUsername(c.Request.Context(), username))
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", basicRealm)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized access"})
}

// UsernameFromContext returns the username set by RequireClient or
// OptionalUsername.
func UsernameFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUsername)
	if !ok {
		return "", false
	}
	username, ok := v.(string)
	return username, ok && username != ""
}
