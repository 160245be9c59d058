package encounter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any authenticated account; ownership is enforced by the service.
	api.POST("/encounters", h.Book)
	api.GET("/encounters", h.List)
	api.GET("/encounters/export", h.Export)
	api.GET("/encounters/:id", h.Get)
	api.GET("/encounters/:id/record", h.GetRecord)

	staff := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleFrontdesk))
	staff.PATCH("/encounters/:id/status", h.UpdateStatus)
	staff.GET("/encounters/:id/status-history", h.GetStatusHistory)

	clinical := api.Group("", auth.RequireRole(auth.RoleClinician))
	clinical.PUT("/encounters/:id/record", h.SaveRecord)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/encounters/:id", h.Delete)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id", map[string]string{"id": "must be a UUID"})
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	enc, err := h.svc.Book(c.Request().Context(), requester, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, enc)
}

func (h *Handler) Get(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	enc, err := h.svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, enc)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if raw := c.QueryParam("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid account_id", map[string]string{"account_id": "must be a UUID"})
		}
		f.AccountID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return f, apperr.Validation(err.Error(), nil)
		}
		f.Status = &st
	}
	for param, dst := range map[string]*Date{"from": &f.From, "to": &f.To} {
		if raw := c.QueryParam(param); raw != "" {
			d, err := ParseDate(raw)
			if err != nil {
				return f, apperr.Validation(err.Error(), map[string]string{param: "must be YYYY-MM-DD"})
			}
			*dst = d
		}
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	encs, total, err := h.svc.List(c.Request().Context(), requester, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(encs, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	enc, err := h.svc.TransitionStatus(c.Request().Context(), requester, id, body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	history, err := h.svc.StatusHistory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if history == nil {
		history = []*StatusHistory{}
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) SaveRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	rec, err := h.svc.SaveRecord(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), requester, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Export streams the visit history as a spreadsheet. Staff may pass
// account_id to export a patient's history.
func (h *Handler) Export(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	accountID := requester.AccountID
	if raw := c.QueryParam("account_id"); raw != "" {
		if accountID, err = uuid.Parse(raw); err != nil {
			return apperr.Validation("invalid account_id", map[string]string{"account_id": "must be a UUID"})
		}
	}

	rows, err := h.svc.History(c.Request().Context(), requester, accountID)
	if err != nil {
		return err
	}
	data, err := HistoryWorkbook(rows)
	if err != nil {
		return apperr.Internal(err)
	}

	filename := fmt.Sprintf("visit-history-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
