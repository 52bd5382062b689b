package reminder

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/pkg/pagination"
)

type Handler struct {
	svc   *Service
	sweep *Sweep
	can   auth.Capability
}

func NewHandler(svc *Service, sweep *Sweep, can auth.Capability) *Handler {
	return &Handler{svc: svc, sweep: sweep, can: can}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/reminders", h.ListByPatient)
	api.GET("/patients/:id/reminders/stats", h.Stats)
	api.POST("/patients/:id/reminders", h.CreateManual)
	api.GET("/reminders/:id", h.Get)
	api.POST("/reminders/:id/read", h.MarkRead)
	api.POST("/reminders/:id/confirm", h.Confirm)
	api.POST("/reminders/:id/reschedule", h.Reschedule)
	api.DELETE("/reminders/:id", h.Delete)
	api.POST("/reminders/sweep", h.TriggerSweep)
}

type manualRequest struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SendAt  time.Time `json:"send_at"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
}

type rescheduleResponse struct {
	Resolved *Reminder `json:"resolved"`
	Next     *Reminder `json:"next,omitempty"`
}

type sweepRequest struct {
	Date string `json:"date"`
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) CreateManual(c echo.Context) error {
	pid, err := h.patientParam(c)
	if err != nil {
		return err
	}
	var req manualRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CreateManual(c.Request().Context(), ManualInput{
		PatientID: pid,
		Title:     req.Title,
		Message:   req.Message,
		SendAt:    req.SendAt,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.owned(c, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if _, err := h.owned(c, id); err != nil {
		return err
	}
	r, err := h.svc.MarkRead(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.authorize(c, id, auth.ActionConfirmReminder); err != nil {
		return err
	}
	r, err := h.svc.Confirm(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
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
	due, err := schedule.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	if err := h.authorize(c, id, auth.ActionRescheduleReminder); err != nil {
		return err
	}
	resolved, next, err := h.svc.Reschedule(c.Request().Context(), id, due)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rescheduleResponse{Resolved: resolved, Next: next})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.authorize(c, id, auth.ActionDeleteReminder); err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TriggerSweep runs the daily sweep now, for today or for the given date.
func (h *Handler) TriggerSweep(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.can.Allow(ctx, auth.ActionTriggerSweep); err != nil {
		return httpError(err)
	}
	var req sweepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Date == "" {
		return c.JSON(http.StatusOK, h.sweep.TriggerNow(ctx))
	}
	day, err := schedule.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return c.JSON(http.StatusOK, h.sweep.Run(ctx, day))
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

// owned loads the reminder and checks a patient-bound caller owns it.
func (h *Handler) owned(c echo.Context, id uuid.UUID) (*Reminder, error) {
	ctx := c.Request().Context()
	r, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, httpError(err)
	}
	if err := auth.CheckPatientAccess(ctx, r.PatientID.String()); err != nil {
		return nil, httpError(err)
	}
	return r, nil
}

func (h *Handler) authorize(c echo.Context, id uuid.UUID, action auth.Action) error {
	if err := h.can.Allow(c.Request().Context(), action); err != nil {
		return httpError(err)
	}
	_, err := h.owned(c, id)
	return err
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, careevent.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, careevent.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoTarget):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
