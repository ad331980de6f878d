package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/laadstock/internal/intake"
	"github.com/odyssey-erp/laadstock/internal/observability"
	"github.com/odyssey-erp/laadstock/internal/platform/httpx"
	"github.com/odyssey-erp/laadstock/internal/sales"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	StockHandler  *stock.Handler
	SalesHandler  *sales.Handler
	IntakeHandler *intake.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
	// Ready reports dependency health for /healthz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with laadstock defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.StockHandler != nil {
			params.StockHandler.MountRoutes(r)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.IntakeHandler != nil {
			params.IntakeHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
