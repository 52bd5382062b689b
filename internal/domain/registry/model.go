package registry

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound   = errors.New("patient not found")
	ErrPregnancyNotFound = errors.New("pregnancy not found")
	ErrChildNotFound     = errors.New("child not found")
	ErrActivePregnancy   = errors.New("patient already has an active pregnancy")
	ErrPregnancyClosed   = errors.New("pregnancy already closed")
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type PregnancyStatus string

const (
	PregnancyActive PregnancyStatus = "ACTIVE"
	PregnancyClosed PregnancyStatus = "CLOSED"
)

// Pregnancy maps to the pregnancy table. ExpectedDelivery is the DPA
// derived from the LMP.
type Pregnancy struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	LMP              time.Time       `db:"lmp" json:"lmp"`
	ExpectedDelivery time.Time       `db:"expected_delivery" json:"expected_delivery"`
	DeliveryDate     *time.Time      `db:"delivery_date" json:"delivery_date,omitempty"`
	Status           PregnancyStatus `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Close records the delivery.
func (p *Pregnancy) Close(delivery time.Time) error {
	if p.Status == PregnancyClosed {
		return ErrPregnancyClosed
	}
	d := delivery
	p.DeliveryDate = &d
	p.Status = PregnancyClosed
	return nil
}

func (p *Pregnancy) clone() *Pregnancy {
	c := *p
	if p.DeliveryDate != nil {
		d := *p.DeliveryDate
		c.DeliveryDate = &d
	}
	return &c
}

// Child maps to the child table.
type Child struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	BirthDate time.Time `db:"birth_date" json:"birth_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
