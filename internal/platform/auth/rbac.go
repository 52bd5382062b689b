package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleMidwife   = "midwife"
	RoleNurse     = "nurse"
	RolePatient   = "patient"
)

// Action names a state-changing operation guarded by a Capability.
type Action string

const (
	ActionConfirmEvent       Action = "care_event.confirm"
	ActionMarkMissed         Action = "care_event.mark_missed"
	ActionRescheduleEvent    Action = "care_event.reschedule"
	ActionDeleteEvent        Action = "care_event.delete"
	ActionConfirmReminder    Action = "reminder.confirm"
	ActionRescheduleReminder Action = "reminder.reschedule"
	ActionDeleteReminder     Action = "reminder.delete"
	ActionTriggerSweep       Action = "reminder.sweep"
)

var ErrForbidden = errors.New("forbidden")

// Capability decides whether the caller on ctx may perform an action. It is
// consulted before any lifecycle mutation.
type Capability interface {
	Allow(ctx context.Context, action Action) error
}

// AllowAll permits everything.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, Action) error { return nil }

// RoleCapability grants an action to a fixed list of roles. Admin is always
// allowed.
type RoleCapability struct {
	rules map[Action][]string
}

func NewRoleCapability(rules map[Action][]string) *RoleCapability {
	return &RoleCapability{rules: rules}
}

// DefaultCapabilities: clinicians record and move visits, patients may
// confirm or move their own, only admins delete or force a sweep.
func DefaultCapabilities() *RoleCapability {
	clinical := []string{RolePhysician, RoleMidwife, RoleNurse}
	withPatient := append([]string{RolePatient}, clinical...)
	return NewRoleCapability(map[Action][]string{
		ActionConfirmEvent:       withPatient,
		ActionMarkMissed:         clinical,
		ActionRescheduleEvent:    withPatient,
		ActionDeleteEvent:        {},
		ActionConfirmReminder:    withPatient,
		ActionRescheduleReminder: withPatient,
		ActionDeleteReminder:     withPatient,
		ActionTriggerSweep:       {},
	})
}

func (r *RoleCapability) Allow(ctx context.Context, action Action) error {
	allowed := r.rules[action]
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return nil
		}
		for _, want := range allowed {
			if has == want {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, action)
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
		}
	}
}

// CheckPatientAccess rejects patient-bound callers asking for another
// patient's records. Staff tokens carry no patient binding and pass.
func CheckPatientAccess(ctx context.Context, patientID string) error {
	if bound := PatientFromContext(ctx); bound != "" && bound != patientID {
		return fmt.Errorf("%w: patient %s", ErrForbidden, patientID)
	}
	return nil
}
