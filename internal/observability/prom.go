package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Artifacts
	ResultsWritten     prometheus.Counter
	ResultParseErrors  prometheus.Counter
	ResultDirsRepaired prometheus.Counter
	ResultsCacheHits   *prometheus.CounterVec

	// Auth + geo
	AuthAttempts *prometheus.CounterVec
	GeoLookups   *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "centinel",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "centinel",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "centinel",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		ResultsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "results",
				Name:      "written_total",
				Help:      "Result files accepted and written to disk.",
			},
		),
		ResultParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "results",
				Name:      "parse_errors_total",
				Help:      "Result files skipped during listing because they were not valid JSON.",
			},
		),
		ResultDirsRepaired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "results",
				Name:      "dirs_repaired_total",
				Help:      "Missing per-client results directories recreated on submit.",
			},
		),
		ResultsCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "results",
				Name:      "cache_lookups_total",
				Help:      "Results listing cache lookups by outcome.",
			},
			[]string{"outcome"}, // outcome=hit|miss|error
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Basic credential checks by result.",
			},
			[]string{"result"}, // result=ok|invalid|error
		),
		GeoLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "centinel",
				Subsystem: "geo",
				Name:      "lookups_total",
				Help:      "Country lookups by outcome.",
			},
			[]string{"outcome"}, // outcome=found|unknown|disabled
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.ResultsWritten, p.ResultParseErrors, p.ResultDirsRepaired, p.ResultsCacheHits,
		p.AuthAttempts, p.GeoLookups,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
