package handlers

import (
	"net/http"

	"github.com/geocoder89/centinel/internal/geo"
	"github.com/gin-gonic/gin"
)

type CountryResolver interface {
	CountryFor(ip string) string
}

type GeolocationHandler struct {
	resolver CountryResolver
}

func NewGeolocationHandler(resolver CountryResolver) *GeolocationHandler {
	return &GeolocationHandler{resolver: resolver}
}

// Geolocate reports the caller's address truncated to its network along with
// the resolved country. The full address is never echoed.
func (h *GeolocationHandler) Geolocate(ctx *gin.Context) {
	ip := ctx.ClientIP()

	ctx.JSON(http.StatusOK, gin.H{
		"ip":      geo.AggregateIP(ip),
		"country": h.resolver.CountryFor(ip),
	})
}
