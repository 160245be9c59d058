package auditlog

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/pkg/pagination"
)

// Lister is the read side of Store.
type Lister interface {
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}

type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/access-log", h.List)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	details := map[string]string{}
	if v := c.QueryParam("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			details["account_id"] = "must be a UUID"
		} else {
			f.AccountID = &id
		}
	}
	f.Resource = c.QueryParam("resource")
	f.Action = c.QueryParam("action")
	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := c.QueryParam(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			details[key] = "must be an RFC 3339 timestamp"
			continue
		}
		*dst = t
	}
	if len(details) > 0 {
		return Filter{}, apperr.Validation("invalid access log filter", details)
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.store.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}
