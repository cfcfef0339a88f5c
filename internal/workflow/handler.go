package workflow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/parakaleomed/clinic/internal/domain/patient"
	"github.com/parakaleomed/clinic/internal/domain/prescription"
	"github.com/parakaleomed/clinic/internal/domain/visit"
	"github.com/parakaleomed/clinic/internal/platform/auth"
)

// Handler exposes the engine's commands and queries over HTTP. Every command
// is role gated to the station type that performs it in the clinic.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	triage := api.Group("", auth.RequireRole(auth.RoleTriage))
	triage.POST("/visits", h.Register)
	triage.POST("/visits/group", h.RegisterGroup)
	triage.POST("/visits/:id/triage", h.CompleteTriage)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/visits/:id/consultation", h.BeginConsultation)
	doctor.POST("/visits/:id/lab-orders", h.OrderLabAndPause)
	doctor.POST("/visits/:id/prescriptions", h.SubmitPrescriptions)
	doctor.POST("/visits/:id/prescriptions/:lineID/approve", h.ApproveLine)
	doctor.GET("/queues/doctor", h.DoctorQueue)
	doctor.GET("/groups/:id/next", h.NextInGroup)

	lab := api.Group("", auth.RequireRole(auth.RoleLab))
	lab.POST("/visits/:id/lab-orders/:orderID/complete", h.CompleteLabOrder)
	lab.GET("/queues/lab", h.LabQueue)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacy))
	pharmacy.POST("/visits/:id/fill", h.FillPrescriptions)
	pharmacy.GET("/queues/pharmacy", h.PharmacyQueue)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/visits/:id/archive", h.Archive)

	any := api.Group("", auth.RequireRole(
		auth.RoleTriage, auth.RoleDoctor, auth.RoleLab, auth.RolePharmacy))
	any.GET("/visits/:id", h.State)
}

// httpError maps the engine error classes onto HTTP statuses. An invalid
// transition or idempotency violation is a conflict with state another
// station already advanced, so both map to 409.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyFilled),
		errors.Is(err, ErrAlreadyCompleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStorage):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func visitID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	return id, nil
}

type registerRequest struct {
	Patient   *patient.Patient `json:"patient"`
	PatientID *uuid.UUID       `json:"patient_id"`
	Priority  bool             `json:"priority"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Returning patients register with their existing id; new patients
	// bring their demographics.
	if req.PatientID != nil {
		v, err := h.engine.RegisterReturning(c.Request().Context(), *req.PatientID, req.Priority)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, v)
	}
	if req.Patient == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient or patient_id is required")
	}
	v, err := h.engine.Register(c.Request().Context(), req.Patient, req.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

type registerGroupRequest struct {
	Patients []*patient.Patient `json:"patients"`
	Priority bool               `json:"priority"`
}

func (h *Handler) RegisterGroup(c echo.Context) error {
	var req registerGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	visits, err := h.engine.RegisterGroup(c.Request().Context(), req.Patients, req.Priority)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, visits)
}

func (h *Handler) CompleteTriage(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	var vitals visit.Vitals
	if err := c.Bind(&vitals); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.engine.CompleteTriage(c.Request().Context(), id, &vitals)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) BeginConsultation(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	cc, err := h.engine.BeginConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cc)
}

type orderLabRequest struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Kinds    []string        `json:"kinds"`
}

func (h *Handler) OrderLabAndPause(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	var req orderLabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	station := auth.StationIDFromContext(c.Request().Context())
	v, err := h.engine.OrderLabAndPause(c.Request().Context(), id, req.Snapshot, req.Kinds, station)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type completeLabRequest struct {
	Result      json.RawMessage `json:"result"`
	Disposition string          `json:"disposition"`
}

func (h *Handler) CompleteLabOrder(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	var req completeLabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.engine.CompleteLabOrder(c.Request().Context(), id, orderID, req.Result, req.Disposition)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type submitRequest struct {
	Lines []*prescription.Line `json:"lines"`
}

func (h *Handler) SubmitPrescriptions(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.engine.SubmitPrescriptions(c.Request().Context(), id, req.Lines)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ApproveLine(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	lineID, err := uuid.Parse(c.Param("lineID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}
	v, err := h.engine.ApproveLabDependentLine(c.Request().Context(), id, lineID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type fillRequest struct {
	LineIDs []uuid.UUID `json:"line_ids"`
}

func (h *Handler) FillPrescriptions(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	var req fillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	station := auth.StationIDFromContext(c.Request().Context())
	v, err := h.engine.FillPrescriptions(c.Request().Context(), id, req.LineIDs, station)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type archiveRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	var req archiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.engine.Archive(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	visits, err := h.engine.DoctorQueue(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits)
}

func (h *Handler) PharmacyQueue(c echo.Context) error {
	visits, err := h.engine.PharmacyQueue(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits)
}

func (h *Handler) LabQueue(c echo.Context) error {
	orders, err := h.engine.PendingLabOrders(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *Handler) NextInGroup(c echo.Context) error {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid group id")
	}
	v, err := h.engine.NextInGroup(c.Request().Context(), groupID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) State(c echo.Context) error {
	id, err := visitID(c)
	if err != nil {
		return err
	}
	state, err := h.engine.State(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, state)
}
