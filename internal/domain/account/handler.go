package account

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the unauthenticated /auth endpoints on public and the
// account endpoints on api.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/verify", h.Verify)
	public.POST("/auth/verify/resend", h.ResendVerification)
	public.POST("/auth/login", h.Login)

	api.GET("/accounts/me", h.Me)
	api.PUT("/accounts/me/profile", h.SaveProfile)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/accounts", h.List)
	admin.PATCH("/accounts/:id", h.Update)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	a, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Verify(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	if err := h.svc.Verify(c.Request().Context(), body.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) ResendVerification(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	if err := h.svc.ResendVerification(c.Request().Context(), body.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	res, err := h.svc.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	me, err := h.svc.Me(c.Request().Context(), requester)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, me)
}

func (h *Handler) SaveProfile(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	var p GuardianProfile
	if err := c.Bind(&p); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	saved, err := h.svc.SaveProfile(c.Request().Context(), requester, &p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	accounts, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(accounts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	requester, err := auth.MustRequester(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id", map[string]string{"id": "must be a UUID"})
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body", nil)
	}
	a, err := h.svc.Update(c.Request().Context(), requester, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
