package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patient is the subset of the patient record used by menu planning
type Patient struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Allergens   []string  `json:"allergens"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerationOptions tune a generation run
type GenerationOptions struct {
	FoodsToAvoid      []string         `json:"foodsToAvoid,omitempty"`
	MaxPhePerMeal     *float64         `json:"maxPhePerMeal,omitempty"`
	DailyBudgetLimit  *decimal.Decimal `json:"dailyBudgetLimit,omitempty"`
	WeeklyBudgetLimit *decimal.Decimal `json:"weeklyBudgetLimit,omitempty"`
	RespectPantry     bool             `json:"respectPantry"`
	EmergencyMode     bool             `json:"emergencyMode"` // disables variety enforcement
}

// Validate rejects negative limits
func (o GenerationOptions) Validate() error {
	if o.MaxPhePerMeal != nil && *o.MaxPhePerMeal < 0 {
		return InvalidInput("maxPhePerMeal must be >= 0")
	}
	if o.DailyBudgetLimit != nil && o.DailyBudgetLimit.IsNegative() {
		return InvalidInput("dailyBudgetLimit must be >= 0")
	}
	if o.WeeklyBudgetLimit != nil && o.WeeklyBudgetLimit.IsNegative() {
		return InvalidInput("weeklyBudgetLimit must be >= 0")
	}
	return nil
}

// GenerationMode distinguishes daily from weekly runs
type GenerationMode string

const (
	ModeDaily  GenerationMode = "daily"
	ModeWeekly GenerationMode = "weekly"
)

// GenerationResult is returned by the menu generator
type GenerationResult struct {
	Success          bool        `json:"success"`
	DayID            *uuid.UUID  `json:"day_id,omitempty"`
	WeekID           *uuid.UUID  `json:"week_id,omitempty"`
	Message          string      `json:"message"`
	UnderfilledSlots []string    `json:"underfilled_slots,omitempty"`
	FactIDs          []uuid.UUID `json:"critical_fact_ids,omitempty"`
}
