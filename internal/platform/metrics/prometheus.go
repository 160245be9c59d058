package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	encountersBooked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_encounters_booked_total",
			Help: "Total number of encounters booked",
		},
		[]string{"type"},
	)

	encounterStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_encounter_status_changed_total",
			Help: "Total number of encounter status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	importSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_record_import_searches_total",
			Help: "Total number of record import searches by outcome",
		},
		[]string{"outcome"},
	)

	recordsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_records_imported_total",
			Help: "Total number of encounters cloned by record import",
		},
	)

	importFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_record_import_failures_total",
			Help: "Total number of record imports rolled back",
		},
	)

	accountsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_accounts_registered_total",
			Help: "Total number of accounts registered",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency labeled by the matched echo
// route, so path parameters do not multiply series.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if appErr, ok := apperr.As(err); ok {
					status = appErr.HTTPStatus
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			httpRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RegisterPoolStats exposes pgx pool gauges. Call once per process.
func RegisterPoolStats(pool *pgxpool.Pool) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_pool_acquired_connections",
		Help: "Connections currently acquired from the pool",
	}, func() float64 { return float64(pool.Stat().AcquiredConns()) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_pool_idle_connections",
		Help: "Idle connections in the pool",
	}, func() float64 { return float64(pool.Stat().IdleConns()) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_pool_total_connections",
		Help: "Total connections in the pool",
	}, func() float64 { return float64(pool.Stat().TotalConns()) })
}

// --- Business metric helpers ---

func RecordEncounterBooked(encounterType string) {
	encountersBooked.WithLabelValues(encounterType).Inc()
}

func RecordStatusChange(from, to string) {
	encounterStatusChanged.WithLabelValues(from, to).Inc()
}

// RecordImportSearch records a search outcome: "found", "none" or "error".
func RecordImportSearch(outcome string) {
	importSearches.WithLabelValues(outcome).Inc()
}

func RecordImported(n int) {
	recordsImported.Add(float64(n))
}

func RecordImportFailure() {
	importFailures.Inc()
}

func RecordAccountRegistered() {
	accountsRegistered.Inc()
}
