package registry

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Reads: staff, or the owning patient
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/patients/:id/pregnancies", h.ListPregnancies)
	api.GET("/patients/:id/children", h.ListChildren)
	api.GET("/pregnancies/:id", h.GetPregnancy)
	api.GET("/children/:id", h.GetChild)

	// Registration: clinical staff
	staff := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleMidwife, auth.RoleNurse))
	staff.GET("/patients", h.ListPatients)
	staff.POST("/patients", h.RegisterPatient)
	staff.POST("/patients/:id/pregnancies", h.RegisterPregnancy)
	staff.POST("/patients/:id/deliveries", h.DeclareDelivery)
	staff.POST("/patients/:id/children", h.RegisterChild)
	staff.POST("/pregnancies/:id/close", h.ClosePregnancy)
}

type pregnancyRequest struct {
	LMP string `json:"lmp"`
}

type deliveryRequest struct {
	DeliveryDate string `json:"delivery_date"`
}

type childRequest struct {
	FirstName string `json:"first_name"`
	BirthDate string `json:"birth_date"`
}

type pregnancyResponse struct {
	Pregnancy  *Pregnancy         `json:"pregnancy"`
	CareEvents []*careevent.Event `json:"care_events"`
}

type childResponse struct {
	Child      *Child             `json:"child"`
	CareEvents []*careevent.Event `json:"care_events"`
}

// -- Patient --

func (h *Handler) RegisterPatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterPatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := h.patientParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Pregnancy --

func (h *Handler) RegisterPregnancy(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	var req pregnancyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	lmp, err := schedule.ParseDate(req.LMP)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lmp must be YYYY-MM-DD")
	}
	preg, events, err := h.svc.RegisterPregnancy(c.Request().Context(), pid, lmp)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, pregnancyResponse{Pregnancy: preg, CareEvents: events})
}

func (h *Handler) DeclareDelivery(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	var req deliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := schedule.ParseDate(req.DeliveryDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "delivery_date must be YYYY-MM-DD")
	}
	preg, events, err := h.svc.DeclareDelivery(c.Request().Context(), pid, d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, pregnancyResponse{Pregnancy: preg, CareEvents: events})
}

func (h *Handler) ClosePregnancy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req deliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := schedule.ParseDate(req.DeliveryDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "delivery_date must be YYYY-MM-DD")
	}
	preg, events, err := h.svc.ClosePregnancy(c.Request().Context(), id, d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pregnancyResponse{Pregnancy: preg, CareEvents: events})
}

func (h *Handler) GetPregnancy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPregnancy(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := auth.CheckPatientAccess(c.Request().Context(), p.PatientID.String()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPregnancies(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPregnancies(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Child --

func (h *Handler) RegisterChild(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	var req childRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	birth, err := schedule.ParseDate(req.BirthDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
	}
	child := &Child{PatientID: pid, FirstName: req.FirstName, BirthDate: birth}
	events, err := h.svc.RegisterChild(c.Request().Context(), child)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, childResponse{Child: child, CareEvents: events})
}

func (h *Handler) GetChild(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	child, err := h.svc.GetChild(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := auth.CheckPatientAccess(c.Request().Context(), child.PatientID.String()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, child)
}

func (h *Handler) ListChildren(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListChildren(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) patientParam(c echo.Context) (uuid.UUID, error) {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := auth.CheckPatientAccess(c.Request().Context(), pid.String()); err != nil {
		return uuid.Nil, httpError(err)
	}
	return pid, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrPregnancyNotFound), errors.Is(err, ErrChildNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrActivePregnancy), errors.Is(err, ErrPregnancyClosed), errors.Is(err, careevent.ErrScheduleExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
