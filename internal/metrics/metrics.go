package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "structuremap_requests_total",
		Help: "Total HTTP requests by route pattern and status code",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "structuremap_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	StyleAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "structuremap_style_applied_total",
		Help: "Base style applications by style name",
	}, []string{"style"})
	PanelShownTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "structuremap_panel_shown_total",
		Help: "Info panel renders by feature kind",
	}, []string{"kind"})
	PanelClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "structuremap_panel_closed_total",
		Help: "Info panel close transitions",
	})
	RouteSelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "structuremap_route_selections_total",
		Help: "Route selector changes, split into route and none",
	}, []string{"selection"})
	RoutesLoadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "structuremap_routes_loaded_total",
		Help: "Station route documents loaded into the selector",
	})
	RoutesFetchFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "structuremap_routes_fetch_fail_total",
		Help: "Station route fetches that failed and were dropped",
	})
	IconLoadFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "structuremap_icon_load_fail_total",
		Help: "Marker icon loads that failed and aborted the station layer",
	})
	HandlerErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "structuremap_handler_errors_total",
		Help: "Map event handlers that returned an error",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(StyleAppliedTotal)
	prometheus.MustRegister(PanelShownTotal)
	prometheus.MustRegister(PanelClosedTotal)
	prometheus.MustRegister(RouteSelectionsTotal)
	prometheus.MustRegister(RoutesLoadedTotal)
	prometheus.MustRegister(RoutesFetchFailTotal)
	prometheus.MustRegister(IconLoadFailTotal)
	prometheus.MustRegister(HandlerErrorsTotal)
}

// Handler exposes the registered metrics for scraping at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
