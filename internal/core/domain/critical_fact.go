package domain

import (
	"time"

	"github.com/google/uuid"
)

// BreachType classifies a critical fact
type BreachType string

const (
	BreachPhe         BreachType = "PHE"
	BreachProtein     BreachType = "PROTEIN"
	BreachKcalDeficit BreachType = "KCAL_DEFICIT"
	BreachFat         BreachType = "FAT"
)

// BreachTypeFor maps a validated nutrient to its breach type
func BreachTypeFor(n Nutrient) BreachType {
	switch n {
	case NutrientPhe:
		return BreachPhe
	case NutrientProtein:
		return BreachProtein
	case NutrientKcal:
		return BreachKcalDeficit
	default:
		return BreachFat
	}
}

// Severity is the clinical severity of a breach
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severity thresholds as a fraction of the limit
const (
	SeverityCriticalRatio = 0.50
	SeverityHighRatio     = 0.25
	SeverityMediumRatio   = 0.10
)

// ClassifySeverity derives severity from |delta| as a share of the limit.
// A zero limit cannot be expressed as a percentage and defaults to MEDIUM.
func ClassifySeverity(delta, limit float64) Severity {
	if limit <= 0 {
		return SeverityMedium
	}
	if delta < 0 {
		delta = -delta
	}
	ratio := delta / limit
	switch {
	case ratio > SeverityCriticalRatio:
		return SeverityCritical
	case ratio > SeverityHighRatio:
		return SeverityHigh
	case ratio > SeverityMediumRatio:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CriticalFact is a persisted record of a detected breach
type CriticalFact struct {
	ID         uuid.UUID     `json:"id"`
	PatientID  uuid.UUID     `json:"patient_id"`
	MenuDayID  uuid.UUID     `json:"menu_day_id"`
	BreachType BreachType    `json:"breach_type"`
	Delta      float64       `json:"delta"`
	Limit      float64       `json:"limit"`
	Actual     float64       `json:"actual"`
	Context    TotalsContext `json:"context"`
	Severity   Severity      `json:"severity"`
	Resolved   bool          `json:"resolved"`
	ResolvedBy *uuid.UUID    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Resolve marks the fact resolved by a caregiver
func (f *CriticalFact) Resolve(by uuid.UUID, at time.Time) error {
	if f.Resolved {
		return ErrAlreadyResolved
	}
	f.Resolved = true
	f.ResolvedBy = &by
	f.ResolvedAt = &at
	return nil
}
