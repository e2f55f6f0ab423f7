package domain

import (
	"time"

	"github.com/google/uuid"
)

// NormPrescription holds a patient's prescribed daily limits.
// Prescriptions are immutable; a new one supersedes the previous.
type NormPrescription struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	PheLimitMg    float64   `json:"phe_limit_mg"`    // hard upper bound
	ProteinLimitG float64   `json:"protein_limit_g"` // hard upper bound
	KcalMin       float64   `json:"kcal_min"`        // hard lower bound
	FatLimitG     float64   `json:"fat_limit_g"`     // soft upper bound
	IssuedAt      time.Time `json:"issued_at"`
}

// Limit returns the prescribed bound for a nutrient
func (n *NormPrescription) Limit(nutrient Nutrient) float64 {
	switch nutrient {
	case NutrientPhe:
		return n.PheLimitMg
	case NutrientProtein:
		return n.ProteinLimitG
	case NutrientKcal:
		return n.KcalMin
	case NutrientFat:
		return n.FatLimitG
	default:
		return 0
	}
}

// ValidationLevel is the outcome of checking totals against a prescription
type ValidationLevel string

const (
	LevelOK     ValidationLevel = "OK"
	LevelWarn   ValidationLevel = "WARN"
	LevelBreach ValidationLevel = "BREACH"
)

// Rank orders levels by severity
func (l ValidationLevel) Rank() int {
	switch l {
	case LevelBreach:
		return 2
	case LevelWarn:
		return 1
	default:
		return 0
	}
}

// MostSevere returns the more severe of two levels
func MostSevere(a, b ValidationLevel) ValidationLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// TotalsContext tells whether totals come from planned or consumed quantities
type TotalsContext string

const (
	ContextPlanned  TotalsContext = "PLANNED"
	ContextConsumed TotalsContext = "CONSUMED"
)

// NutrientDelta is the per-nutrient comparison against a limit
type NutrientDelta struct {
	Nutrient Nutrient        `json:"nutrient"`
	Actual   float64         `json:"actual"`
	Limit    float64         `json:"limit"`
	Delta    float64         `json:"delta"`
	Level    ValidationLevel `json:"level"`
	Context  TotalsContext   `json:"context"`
}

// ValidationResult is the outcome of validating one set of totals
type ValidationResult struct {
	Level       ValidationLevel `json:"level"`
	Deltas      []NutrientDelta `json:"deltas"`
	Messages    []string        `json:"messages"`
	Suggestions []string        `json:"suggestions"`
}

// Delta returns the delta recorded for a nutrient
func (r ValidationResult) Delta(n Nutrient) (NutrientDelta, bool) {
	for _, d := range r.Deltas {
		if d.Nutrient == n {
			return d, true
		}
	}
	return NutrientDelta{}, false
}

// DayValidation bundles planned and consumed validation of a day
type DayValidation struct {
	DayID          uuid.UUID          `json:"day_id"`
	PatientID      uuid.UUID          `json:"patient_id"`
	PlannedTotals  NutritionBreakdown `json:"planned_totals"`
	ConsumedTotals NutritionBreakdown `json:"consumed_totals"`
	Planned        ValidationResult   `json:"planned"`
	Consumed       ValidationResult   `json:"consumed"`
	Result         ValidationResult   `json:"result"`
}

// NutrientProgress is the share of a limit already used, for display
type NutrientProgress struct {
	Nutrient    Nutrient `json:"nutrient"`
	Actual      float64  `json:"actual"`
	Limit       float64  `json:"limit"`
	PercentUsed float64  `json:"percent_used"`
}
