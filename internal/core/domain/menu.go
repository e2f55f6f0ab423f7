package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SlotType is a named meal period within a day
type SlotType string

const (
	SlotBreakfast      SlotType = "BREAKFAST"
	SlotMorningSnack   SlotType = "MORNING_SNACK"
	SlotLunch          SlotType = "LUNCH"
	SlotAfternoonSnack SlotType = "AFTERNOON_SNACK"
	SlotDinner         SlotType = "DINNER"
	SlotEveningSnack   SlotType = "EVENING_SNACK"
)

// SlotOrder returns the fixed order of slots within a day
func SlotOrder() []SlotType {
	return []SlotType{
		SlotBreakfast,
		SlotMorningSnack,
		SlotLunch,
		SlotAfternoonSnack,
		SlotDinner,
		SlotEveningSnack,
	}
}

// Position returns the slot's index in the day, or -1 for unknown slots
func (s SlotType) Position() int {
	for i, t := range SlotOrder() {
		if t == s {
			return i
		}
	}
	return -1
}

// IsCore reports whether the generator auto-populates this slot.
// Morning and afternoon snacks are never auto-filled.
func (s SlotType) IsCore() bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotDinner, SlotEveningSnack:
		return true
	default:
		return false
	}
}

// IsValidSlotType checks if a slot type is known
func IsValidSlotType(s SlotType) bool {
	return s.Position() >= 0
}

// MenuEntry is a food item placed in a meal slot
type MenuEntry struct {
	ID                 uuid.UUID          `json:"id"`
	Item               CatalogItem        `json:"item"`
	ServingQty         float64            `json:"serving_qty"`
	Unit               Unit               `json:"unit"`
	ActualServingGrams *float64           `json:"actual_serving_grams,omitempty"`
	ConsumedQty        *float64           `json:"consumed_qty,omitempty"`
	Consumed           bool               `json:"consumed"`
	Nutrition          NutritionBreakdown `json:"nutrition"`
	CreatedAt          time.Time          `json:"created_at"`
}

// EffectiveConsumedQty returns the quantity used for consumed totals.
// Falls back to the actual served grams, then to the planned serving.
func (e *MenuEntry) EffectiveConsumedQty() (float64, Unit) {
	if e.ConsumedQty != nil {
		return *e.ConsumedQty, e.Unit
	}
	if e.ActualServingGrams != nil {
		return *e.ActualServingGrams, UnitGrams
	}
	return e.ServingQty, e.Unit
}

// RecordConsumption marks the entry consumed; quantities must not be negative
func (e *MenuEntry) RecordConsumption(consumedQty, actualServingGrams *float64) error {
	if consumedQty != nil && *consumedQty < 0 {
		return InvalidInput("consumed quantity must be >= 0")
	}
	if actualServingGrams != nil && *actualServingGrams < 0 {
		return InvalidInput("actual serving grams must be >= 0")
	}
	if consumedQty != nil {
		e.ConsumedQty = consumedQty
	}
	if actualServingGrams != nil {
		e.ActualServingGrams = actualServingGrams
	}
	e.Consumed = true
	return nil
}

// MealSlot is one meal period of a day with its targets and running totals
type MealSlot struct {
	ID          uuid.UUID          `json:"id"`
	Type        SlotType           `json:"type"`
	TargetPheMg float64            `json:"target_phe_mg"`
	TargetKcal  float64            `json:"target_kcal"`
	Entries     []*MenuEntry       `json:"entries"`
	Totals      NutritionBreakdown `json:"totals"`
	Underfilled bool               `json:"underfilled"`
}

// MenuDay aggregates the six slots of one calendar day
type MenuDay struct {
	ID             uuid.UUID          `json:"id"`
	PatientID      uuid.UUID          `json:"patient_id"`
	WeekID         *uuid.UUID         `json:"week_id,omitempty"`
	Date           time.Time          `json:"date"`
	Slots          []*MealSlot        `json:"slots"`
	PlannedTotals  NutritionBreakdown `json:"planned_totals"`
	ConsumedTotals NutritionBreakdown `json:"consumed_totals"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewMenuDay creates an empty day with all six slots in order
func NewMenuDay(patientID uuid.UUID, date time.Time) *MenuDay {
	now := time.Now()
	day := &MenuDay{
		ID:        uuid.New(),
		PatientID: patientID,
		Date:      DateOnly(date),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, t := range SlotOrder() {
		day.Slots = append(day.Slots, &MealSlot{ID: uuid.New(), Type: t})
	}
	return day
}

// Slot returns the slot of the given type, or nil
func (d *MenuDay) Slot(t SlotType) *MealSlot {
	for _, s := range d.Slots {
		if s.Type == t {
			return s
		}
	}
	return nil
}

// FindEntry locates an entry and its slot
func (d *MenuDay) FindEntry(entryID uuid.UUID) (*MealSlot, *MenuEntry) {
	for _, s := range d.Slots {
		for _, e := range s.Entries {
			if e.ID == entryID {
				return s, e
			}
		}
	}
	return nil, nil
}

// SortSlots restores slot order by identity, regardless of insertion order
func (d *MenuDay) SortSlots() {
	sort.SliceStable(d.Slots, func(i, j int) bool {
		return d.Slots[i].Type.Position() < d.Slots[j].Type.Position()
	})
}

// HasConsumedEntries reports whether any entry of the day is flagged consumed
func (d *MenuDay) HasConsumedEntries() bool {
	for _, s := range d.Slots {
		for _, e := range s.Entries {
			if e.Consumed {
				return true
			}
		}
	}
	return false
}

// MenuWeek groups seven consecutive days
type MenuWeek struct {
	ID             uuid.UUID          `json:"id"`
	PatientID      uuid.UUID          `json:"patient_id"`
	StartDate      time.Time          `json:"start_date"`
	Days           []*MenuDay         `json:"days"`
	PlannedTotals  NutritionBreakdown `json:"planned_totals"`
	ConsumedTotals NutritionBreakdown `json:"consumed_totals"`
	CreatedAt      time.Time          `json:"created_at"`
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
