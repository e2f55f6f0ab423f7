package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

const (
	// VarietyLookbackDays is how far back menu history is consulted
	VarietyLookbackDays = 7
	// VarietyWindowDays is the minimum gap before an item may repeat in the same slot
	VarietyWindowDays = 2
)

// VarietyEngine looks up recent usage of items in a patient's menus
type VarietyEngine struct {
	menus ports.MenuRepository
}

// NewVarietyEngine creates a new variety engine
func NewVarietyEngine(menus ports.MenuRepository) *VarietyEngine {
	return &VarietyEngine{menus: menus}
}

// VarietyHistory is a snapshot of the lookback window relative to one target date
type VarietyHistory struct {
	target   time.Time
	days     []*domain.MenuDay
	disabled bool
}

// Load fetches the lookback window before date and merges days generated
// earlier in the same run. Emergency mode returns a disabled history.
func (v *VarietyEngine) Load(ctx context.Context, patientID uuid.UUID, date time.Time, generated []*domain.MenuDay, emergency bool) (*VarietyHistory, error) {
	target := domain.DateOnly(date)
	if emergency {
		return &VarietyHistory{target: target, disabled: true}, nil
	}

	start := target.AddDate(0, 0, -VarietyLookbackDays)
	end := target.AddDate(0, 0, -1)

	stored, err := v.menus.FindDaysInRange(ctx, patientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu history: %w", err)
	}

	byID := make(map[uuid.UUID]*domain.MenuDay, len(stored)+len(generated))
	for _, d := range stored {
		byID[d.ID] = d
	}
	for _, d := range generated {
		day := domain.DateOnly(d.Date)
		if day.Before(start) || day.After(end) {
			continue
		}
		byID[d.ID] = d
	}

	days := make([]*domain.MenuDay, 0, len(byID))
	for _, d := range byID {
		days = append(days, d)
	}
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})

	return &VarietyHistory{target: target, days: days}, nil
}

// DaysSinceLastUse loads history and reports days since the item last appeared
func (v *VarietyEngine) DaysSinceLastUse(ctx context.Context, patientID uuid.UUID, itemName string, date time.Time, slot *domain.SlotType) (int, bool, error) {
	h, err := v.Load(ctx, patientID, date, nil, false)
	if err != nil {
		return 0, false, err
	}
	days, found := h.DaysSinceLastUse(itemName, slot)
	return days, found, nil
}

// DaysSinceLastUse scans the history newest first; the first match wins.
// found is false when the item was never used or the history is disabled.
func (h *VarietyHistory) DaysSinceLastUse(itemName string, slot *domain.SlotType) (int, bool) {
	if h.disabled {
		return 0, false
	}
	name := normalizeName(itemName)
	for _, day := range h.days {
		for _, s := range day.Slots {
			if slot != nil && s.Type != *slot {
				continue
			}
			for _, e := range s.Entries {
				if normalizeName(e.Item.Name) == name {
					return daysBetween(day.Date, h.target), true
				}
			}
		}
	}
	return 0, false
}

// AvoidanceSet returns normalized names used within the variety window
func (h *VarietyHistory) AvoidanceSet(slot *domain.SlotType) map[string]struct{} {
	avoid := make(map[string]struct{})
	if h.disabled {
		return avoid
	}
	for _, day := range h.days {
		if daysBetween(day.Date, h.target) >= VarietyWindowDays {
			continue
		}
		for _, s := range day.Slots {
			if slot != nil && s.Type != *slot {
				continue
			}
			for _, e := range s.Entries {
				avoid[normalizeName(e.Item.Name)] = struct{}{}
			}
		}
	}
	return avoid
}

// Violates reports whether using the item would break the variety window
func (h *VarietyHistory) Violates(itemName string, slot *domain.SlotType) bool {
	days, found := h.DaysSinceLastUse(itemName, slot)
	return found && days < VarietyWindowDays
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func daysBetween(from, to time.Time) int {
	return int(domain.DateOnly(to).Sub(domain.DateOnly(from)).Hours() / 24)
}
