package services

import (
	"time"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// PlannedNutrition scales an entry's planned serving.
// Entries that cannot be scaled count as a zero serving.
func PlannedNutrition(e *domain.MenuEntry) domain.NutritionBreakdown {
	b, _ := ScaleItem(e.Item, e.ServingQty, e.Unit)
	return b
}

// ConsumedNutrition scales an entry's effective consumed quantity, zero unless consumed
func ConsumedNutrition(e *domain.MenuEntry) domain.NutritionBreakdown {
	if !e.Consumed {
		return domain.NutritionBreakdown{}
	}
	qty, unit := e.EffectiveConsumedQty()
	b, _ := ScaleItem(e.Item, qty, unit)
	return b
}

// SlotPlannedTotals sums the planned nutrition of a slot's entries
func SlotPlannedTotals(slot *domain.MealSlot) domain.NutritionBreakdown {
	var total domain.NutritionBreakdown
	for _, e := range slot.Entries {
		total = total.Add(PlannedNutrition(e))
	}
	return total.Rounded()
}

// DayPlannedTotals sums planned nutrition over every entry of every slot
func DayPlannedTotals(day *domain.MenuDay) domain.NutritionBreakdown {
	var total domain.NutritionBreakdown
	for _, s := range day.Slots {
		for _, e := range s.Entries {
			total = total.Add(PlannedNutrition(e))
		}
	}
	return total.Rounded()
}

// DayConsumedTotals sums consumed nutrition over entries flagged consumed
func DayConsumedTotals(day *domain.MenuDay) domain.NutritionBreakdown {
	var total domain.NutritionBreakdown
	for _, s := range day.Slots {
		for _, e := range s.Entries {
			total = total.Add(ConsumedNutrition(e))
		}
	}
	return total.Rounded()
}

// RecalculateDay refreshes entry snapshots, slot totals and day totals bottom-up
func RecalculateDay(day *domain.MenuDay) {
	day.SortSlots()
	for _, s := range day.Slots {
		for _, e := range s.Entries {
			e.Nutrition = PlannedNutrition(e)
		}
		s.Totals = SlotPlannedTotals(s)
	}
	day.PlannedTotals = DayPlannedTotals(day)
	day.ConsumedTotals = DayConsumedTotals(day)
	day.UpdatedAt = time.Now()
}

// RecalculateWeek recalculates every day, then the week totals
func RecalculateWeek(week *domain.MenuWeek) {
	var planned, consumed domain.NutritionBreakdown
	for _, d := range week.Days {
		RecalculateDay(d)
		planned = planned.Add(d.PlannedTotals)
		consumed = consumed.Add(d.ConsumedTotals)
	}
	week.PlannedTotals = planned.Rounded()
	week.ConsumedTotals = consumed.Rounded()
}
