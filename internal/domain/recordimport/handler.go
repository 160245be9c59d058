package recordimport

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/record-import/search", h.Search)
	api.POST("/record-import/commit", h.Commit)
}

type searchRequest struct {
	MotherName string `json:"motherName"`
	FatherName string `json:"fatherName"`
}

func (h *Handler) Search(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	var body searchRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	candidates, err := h.svc.FindImportCandidates(c.Request().Context(), requester, body.MotherName, body.FatherName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

type commitRequest struct {
	EncounterIDs []uuid.UUID `json:"encounterIds"`
}

func (h *Handler) Commit(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	var body commitRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", map[string]string{"encounterIds": "must be a list of UUIDs"})
	}
	res, err := h.svc.ImportRecords(c.Request().Context(), requester, body.EncounterIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
