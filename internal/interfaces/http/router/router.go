// Package router assembles the ops HTTP engine.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/utilitybill/backend/internal/infrastructure/config"
	"github.com/utilitybill/backend/internal/infrastructure/logger"
	"github.com/utilitybill/backend/internal/interfaces/http/handler"
	"github.com/utilitybill/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Probe and scrape paths
const (
	HealthPath  = "/health"
	ReadyPath   = "/ready"
	MetricsPath = "/metrics"
)

// Deps are the collaborators of the ops engine
type Deps struct {
	Logger         *zap.Logger
	Health         *handler.HealthHandler
	Registry       *prometheus.Registry
	ServiceName    string
	TracingEnabled bool
	TracerProvider trace.TracerProvider
}

// NewEngine builds the gin engine serving health, readiness and metrics.
func NewEngine(deps Deps) (*gin.Engine, error) {
	httpMetrics, err := middleware.NewHTTPMetrics(deps.Registry)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(
		logger.Recovery(deps.Logger),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    deps.ServiceName,
			Enabled:        deps.TracingEnabled,
			TracerProvider: deps.TracerProvider,
			SkipPaths:      []string{HealthPath, MetricsPath},
		}),
		logger.GinMiddleware(deps.Logger, HealthPath, ReadyPath, MetricsPath),
		middleware.SpanEnricher(),
		httpMetrics.Handler(),
	)

	engine.GET(HealthPath, deps.Health.Health)
	engine.GET(ReadyPath, deps.Health.Ready)
	engine.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{
		Registry: deps.Registry,
	})))
	return engine, nil
}

// NewServer wraps engine in an http.Server bound to cfg.Port.
func NewServer(engine http.Handler, cfg config.OpsConfig) *http.Server {
	readTimeout, writeTimeout := cfg.ReadTimeout, cfg.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
