package submission

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medcoding/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinician := api.Group("", auth.RequireRole(auth.RoleClinician))
	clinician.POST("/submissions", h.Submit)
}

// Submit takes the clinician from the authenticated principal, never from
// the body.
func (h *Handler) Submit(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	d.ClinicianID = auth.UserIDFromContext(ctx)

	out, err := h.svc.Submit(ctx, d)
	switch {
	case errors.Is(err, ErrInvalidDraft):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindOf(err) == KindEncounterPersistFailed:
		return c.JSON(http.StatusBadGateway, out)
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, out)
}
