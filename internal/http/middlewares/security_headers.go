package middlewares

import "github.com/gin-gonic/gin"

// Every response is JSON or a raw experiment file; nothing is meant to render.
const defaultCSP = "default-src 'none'; frame-ancestors 'none'"

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-cache")
		c.Header("Content-Security-Policy", defaultCSP)
		c.Next()
	}
}
