// Package schedule derives the calendar of care events that follows from a
// single anchor date: a last menstrual period, a delivery, or a birth.
package schedule

import (
	"fmt"
	"time"
)

// Kind identifies a family of care events.
type Kind string

const (
	KindPrenatal    Kind = "PRENATAL"
	KindPostnatal   Kind = "POSTNATAL"
	KindVaccination Kind = "VACCINATION"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPrenatal, KindPostnatal, KindVaccination:
		return true
	}
	return false
}

// Kinds lists every kind in sweep order.
var Kinds = []Kind{KindPrenatal, KindPostnatal, KindVaccination}

// LeadDays is the number of days before the due date on which the reminder
// for an event of kind k is sent.
func LeadDays(k Kind) int {
	if k == KindVaccination {
		return 2
	}
	return 1
}

// GestationDays is the length of a pregnancy counted from the last menstrual
// period, used for the expected delivery date.
const GestationDays = 280

// Milestone is one generated entry: a label and the date it falls due.
type Milestone struct {
	SubKind string    `json:"sub_kind"`
	DueDate time.Time `json:"due_date"`
}

type offset struct {
	label string
	apply func(time.Time) time.Time
}

func weeks(n int) func(time.Time) time.Time  { return func(d time.Time) time.Time { return AddWeeks(d, n) } }
func days(n int) func(time.Time) time.Time   { return func(d time.Time) time.Time { return AddDays(d, n) } }
func months(n int) func(time.Time) time.Time { return func(d time.Time) time.Time { return AddMonths(d, n) } }

var prenatalPlan = []offset{
	{"CPN1", weeks(12)},
	{"CPN2", weeks(24)},
	{"CPN3", weeks(32)},
	{"CPN4", weeks(36)},
}

// Postnatal sub-kinds.
const (
	PostnatalDay3  = "J+3"
	PostnatalDay7  = "J+7"
	PostnatalWeek6 = "SEMAINE_6"
)

var postnatalPlan = []offset{
	{PostnatalDay3, days(3)},
	{PostnatalDay7, days(7)},
	{PostnatalWeek6, weeks(6)},
}

// Expanded programme of immunisation, in the order doses are given.
var vaccinationPlan = []offset{
	{"BCG", days(0)},
	{"Polio0", days(0)},

	{"Pentavalent1", weeks(6)},
	{"Polio1", weeks(6)},
	{"Pneumo1", weeks(6)},
	{"Rotavirus1", weeks(6)},

	{"Pentavalent2", weeks(10)},
	{"Polio2", weeks(10)},
	{"Pneumo2", weeks(10)},
	{"Rotavirus2", weeks(10)},

	{"Pentavalent3", weeks(14)},
	{"Polio3", weeks(14)},
	{"Pneumo3", weeks(14)},

	{"RougeoleRubeole", months(9)},
	{"FievreJaune", months(9)},
	{"MeningiteA", months(9)},

	{"RougeoleRubeoleRappel", months(15)},
}

var vaccineNames = map[string]string{
	"BCG":                   "BCG",
	"Polio0":                "Polio 0 (VPO)",
	"Pentavalent1":          "Pentavalent 1 (DTC-HepB-Hib)",
	"Polio1":                "Polio 1 (VPO)",
	"Pneumo1":               "Pneumocoque 1 (PCV13)",
	"Rotavirus1":            "Rotavirus 1",
	"Pentavalent2":          "Pentavalent 2 (DTC-HepB-Hib)",
	"Polio2":                "Polio 2 (VPO)",
	"Pneumo2":               "Pneumocoque 2 (PCV13)",
	"Rotavirus2":            "Rotavirus 2",
	"Pentavalent3":          "Pentavalent 3 (DTC-HepB-Hib)",
	"Polio3":                "Polio 3 (VPO)",
	"Pneumo3":               "Pneumocoque 3 (PCV13)",
	"RougeoleRubeole":       "Rougeole-Rubéole (RR)",
	"FievreJaune":           "Fièvre jaune",
	"MeningiteA":            "Méningite A",
	"RougeoleRubeoleRappel": "Rougeole-Rubéole 2 (rappel)",
}

// VaccineName returns the display name of a vaccination sub-kind, or the
// sub-kind itself when it is not part of the standard calendar.
func VaccineName(subKind string) string {
	if n, ok := vaccineNames[subKind]; ok {
		return n
	}
	return subKind
}

// PostnatalLabel returns the human label of a postnatal sub-kind.
func PostnatalLabel(subKind string) string {
	switch subKind {
	case PostnatalWeek6:
		return "6e semaine"
	}
	return subKind
}

// ExpectedDelivery returns the expected delivery date (DPA) for a pregnancy.
func ExpectedDelivery(lmp time.Time) time.Time {
	return AddDays(lmp, GestationDays)
}

// Prenatal returns the four antenatal consultations for a pregnancy.
func Prenatal(lmp time.Time) []Milestone { return expand(prenatalPlan, lmp) }

// Postnatal returns the three postnatal consultations after a delivery.
func Postnatal(delivery time.Time) []Milestone { return expand(postnatalPlan, delivery) }

// Vaccination returns the child's vaccination calendar.
func Vaccination(birth time.Time) []Milestone { return expand(vaccinationPlan, birth) }

// Generate dispatches on kind. The result is ordered by plan position, which
// is also due-date order.
func Generate(kind Kind, anchor time.Time) ([]Milestone, error) {
	switch kind {
	case KindPrenatal:
		return Prenatal(anchor), nil
	case KindPostnatal:
		return Postnatal(anchor), nil
	case KindVaccination:
		return Vaccination(anchor), nil
	}
	return nil, fmt.Errorf("unknown schedule kind %q", kind)
}

func expand(plan []offset, anchor time.Time) []Milestone {
	out := make([]Milestone, len(plan))
	for i, o := range plan {
		out[i] = Milestone{SubKind: o.label, DueDate: o.apply(anchor)}
	}
	return out
}
