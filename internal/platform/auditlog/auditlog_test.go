package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
)

type fakeLister struct {
	entries []*Entry
	got     Filter
	limit   int
	offset  int
	err     error
}

func (f *fakeLister) List(_ context.Context, filter Filter, limit, offset int) ([]*Entry, int, error) {
	f.got, f.limit, f.offset = filter, limit, offset
	return f.entries, len(f.entries), f.err
}

func serve(t *testing.T, lister Lister, role auth.Role, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := auth.Requester{AccountID: uuid.New(), Role: role}
			c.SetRequest(c.Request().WithContext(auth.WithRequester(c.Request().Context(), r)))
			return next(c)
		}
	})
	NewHandler(lister).RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	id := uuid.New()
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args = buildFilter(Filter{AccountID: &id, Resource: "record-import", Action: "import", Since: since})
	assert.Equal(t, " WHERE account_id = $1 AND resource = $2 AND action = $3 AND recorded_at >= $4", where)
	assert.Equal(t, []any{id, "record-import", "import", since}, args)
}

func TestHandler_List(t *testing.T) {
	id := uuid.New()
	lister := &fakeLister{entries: []*Entry{{ID: uuid.New(), AccountID: &id, Resource: "record-import", Action: "import", StatusCode: 200}}}

	rec := serve(t, lister, auth.RoleAdmin, "/api/v1/access-log?resource=record-import&account_id="+id.String()+"&since=2024-03-01T00:00:00Z&limit=5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
		Limit int     `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 5, body.Limit)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "import", body.Data[0].Action)

	require.NotNil(t, lister.got.AccountID)
	assert.Equal(t, id, *lister.got.AccountID)
	assert.Equal(t, "record-import", lister.got.Resource)
	assert.False(t, lister.got.Since.IsZero())
	assert.Equal(t, 5, lister.limit)
}

func TestHandler_List_AdminOnly(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleGuardian, auth.RoleClinician, auth.RoleFrontdesk} {
		rec := serve(t, &fakeLister{}, role, "/api/v1/access-log")
		assert.Equal(t, http.StatusForbidden, rec.Code, role)
	}
}

func TestHandler_List_BadFilter(t *testing.T) {
	rec := serve(t, &fakeLister{}, auth.RoleAdmin, "/api/v1/access-log?account_id=nope&since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "account_id") && strings.Contains(rec.Body.String(), "since"))
}

func TestHandler_List_StoreError(t *testing.T) {
	rec := serve(t, &fakeLister{err: errors.New("relation does not exist")}, auth.RoleAdmin, "/api/v1/access-log")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}
