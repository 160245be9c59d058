package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/encounters/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/encounters/:id", "204"))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/encounters/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/encounters/:id", "204"))
	assert.Equal(t, 2.0, after-before)
}

func TestMiddleware_HTTPErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "no")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "418"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "418"))

	assert.Equal(t, 1.0, after-before)
}

func TestBusinessCounters(t *testing.T) {
	before := testutil.ToFloat64(recordsImported)
	RecordImported(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(recordsImported)-before)

	beforeChange := testutil.ToFloat64(encounterStatusChanged.WithLabelValues("Pending", "Approved"))
	RecordStatusChange("Pending", "Approved")
	assert.Equal(t, 1.0, testutil.ToFloat64(encounterStatusChanged.WithLabelValues("Pending", "Approved"))-beforeChange)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordAccountRegistered()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "clinic_accounts_registered_total"))
}
