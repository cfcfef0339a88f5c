package prescription

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/parakaleomed/clinic/internal/platform/auth"
)

// Handler serves formulary and ledger reads. Ledger writes go through the
// workflow engine, not here.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacy))
	g.GET("/medications", h.ListFormulary)
	g.GET("/visits/:id/prescriptions", h.ListByVisit)
}

func (h *Handler) ListFormulary(c echo.Context) error {
	meds, err := h.repo.ListFormulary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "formulary unavailable")
	}
	return c.JSON(http.StatusOK, meds)
}

func (h *Handler) ListByVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	lines, err := h.repo.ListByVisit(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ledger unavailable")
	}
	return c.JSON(http.StatusOK, lines)
}
