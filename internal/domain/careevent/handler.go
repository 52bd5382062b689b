package careevent

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/pkg/pagination"
)

type Handler struct {
	svc *Service
	can auth.Capability
}

func NewHandler(svc *Service, can auth.Capability) *Handler {
	return &Handler{svc: svc, can: can}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/care-events", h.ListByPatient)
	api.GET("/care-events/:id", h.Get)
	api.POST("/care-events/:id/confirm", h.Confirm)
	api.POST("/care-events/:id/missed", h.MarkMissed)
	api.POST("/care-events/:id/reschedule", h.Reschedule)
	api.DELETE("/care-events/:id", h.Delete)
}

type confirmRequest struct {
	CompletedDate string `json:"completed_date"`
}

type rescheduleRequest struct {
	DueDate string `json:"due_date"`
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := auth.CheckPatientAccess(c.Request().Context(), pid.String()); err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, schedule.Kind(c.QueryParam("kind")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := auth.CheckPatientAccess(c.Request().Context(), e.PatientID.String()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var on *time.Time
	if req.CompletedDate != "" {
		d, err := schedule.ParseDate(req.CompletedDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "completed_date must be YYYY-MM-DD")
		}
		on = &d
	}
	if err := h.authorize(c, id, auth.ActionConfirmEvent); err != nil {
		return err
	}
	e, err := h.svc.Confirm(c.Request().Context(), id, on)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) MarkMissed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.authorize(c, id, auth.ActionMarkMissed); err != nil {
		return err
	}
	e, err := h.svc.MarkMissed(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	due, err := schedule.ParseDate(req.DueDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "due_date must be YYYY-MM-DD")
	}
	if err := h.authorize(c, id, auth.ActionRescheduleEvent); err != nil {
		return err
	}
	e, err := h.svc.Reschedule(c.Request().Context(), id, due)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.can.Allow(c.Request().Context(), auth.ActionDeleteEvent); err != nil {
		return httpError(err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// authorize checks the capability and that a patient-bound caller owns the event.
func (h *Handler) authorize(c echo.Context, id uuid.UUID, action auth.Action) error {
	ctx := c.Request().Context()
	if err := h.can.Allow(ctx, action); err != nil {
		return httpError(err)
	}
	if auth.PatientFromContext(ctx) == "" {
		return nil
	}
	e, err := h.svc.Get(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := auth.CheckPatientAccess(ctx, e.PatientID.String()); err != nil {
		return httpError(err)
	}
	return nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotOverdue), errors.Is(err, ErrScheduleExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
