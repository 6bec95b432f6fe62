package http

import (
	"log/slog"

	"github.com/geocoder89/centinel/internal/auth"
	"github.com/geocoder89/centinel/internal/config"
	"github.com/geocoder89/centinel/internal/geo"
	"github.com/geocoder89/centinel/internal/http/handlers"
	"github.com/geocoder89/centinel/internal/http/middlewares"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Artifacts is everything the routes need from the artifact repository.
type Artifacts interface {
	handlers.ResultStore
	handlers.ExperimentStore
}

type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Gateway  *auth.Gateway
	Store    Artifacts
	Resolver *geo.Resolver

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	// ReadyChecks feed /readyz, keyed by dependency name.
	ReadyChecks map[string]handlers.Pinger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// geolocation and last_ip must describe the peer, not a forwarded header
	_ = r.SetTrustedProxies(nil)

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("centinel"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	health := handlers.NewHealthHandler(d.ReadyChecks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	r.GET("/version", handlers.NewVersionHandler(d.Config.RecommendedVersion).Version)
	r.GET("/geolocation", handlers.NewGeolocationHandler(d.Resolver).Geolocate)

	clients := handlers.NewClientsHandler(d.Gateway, d.Gateway)
	results := handlers.NewResultsHandler(d.Store)
	experiments := handlers.NewExperimentsHandler(d.Store)

	basic := middlewares.NewBasicAuth(d.Gateway)
	requireClient := basic.RequireClient()

	notJSON := func(c *gin.Context) {
		handlers.RespondBadRequest(c, gin.H{"json": "content_type_not_json"})
	}

	r.POST("/register", middlewares.RequireJSON(notJSON), middlewares.MaxBodyBytes(1<<20), clients.Register)

	r.GET("/clients", requireClient, clients.ListClients)

	r.POST("/results", middlewares.MaxBodyBytes(d.Config.MaxResultBytes), requireClient, results.Submit)
	r.GET("/results", requireClient, results.List)

	exp := r.Group("/experiments", middlewares.OptionalUsername())
	{
		exp.GET("", experiments.List)
		exp.GET("/:name", experiments.Fetch)
	}

	r.NoRoute(handlers.RespondNotFound)

	return r
}
