package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// MenuService handles validation and manual edits of persisted menus
type MenuService struct {
	menus     ports.MenuRepository
	catalog   ports.CatalogRepository
	norms     ports.NormRepository
	facts     ports.CriticalFactRepository
	emitter   *CriticalFactEmitter
	validator *NormsValidator
}

// NewMenuService creates a new menu service
func NewMenuService(
	menus ports.MenuRepository,
	catalog ports.CatalogRepository,
	norms ports.NormRepository,
	facts ports.CriticalFactRepository,
	emitter *CriticalFactEmitter,
) *MenuService {
	return &MenuService{
		menus:     menus,
		catalog:   catalog,
		norms:     norms,
		facts:     facts,
		emitter:   emitter,
		validator: NewNormsValidator(),
	}
}

// GetMenuDay retrieves a day with its slots and entries
func (s *MenuService) GetMenuDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error) {
	return s.menus.GetDay(ctx, dayID)
}

// GetMenuDayByEntry retrieves the day holding an entry
func (s *MenuService) GetMenuDayByEntry(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error) {
	return s.menus.GetDayByEntryID(ctx, entryID)
}

// ValidateMenuDay validates a persisted day against the patient's current norm
func (s *MenuService) ValidateMenuDay(ctx context.Context, dayID uuid.UUID, emitFacts bool) (*domain.DayValidation, []*domain.CriticalFact, error) {
	day, err := s.menus.GetDay(ctx, dayID)
	if err != nil {
		return nil, nil, err
	}
	norm, err := s.currentNorm(ctx, day.PatientID)
	if err != nil {
		return nil, nil, err
	}

	validation := s.validator.Validate(norm, day)
	if !emitFacts {
		return validation, nil, nil
	}

	facts, err := s.emitter.Emit(ctx, validation)
	if err != nil {
		return nil, nil, err
	}
	return validation, facts, nil
}

// DayProgress reports how much of each limit the day uses in the given context
func (s *MenuService) DayProgress(ctx context.Context, dayID uuid.UUID, ctxType domain.TotalsContext) ([]domain.NutrientProgress, error) {
	day, err := s.menus.GetDay(ctx, dayID)
	if err != nil {
		return nil, err
	}
	norm, err := s.currentNorm(ctx, day.PatientID)
	if err != nil {
		return nil, err
	}

	totals := DayPlannedTotals(day)
	if ctxType == domain.ContextConsumed {
		totals = DayConsumedTotals(day)
	}
	return s.validator.Progress(norm, totals), nil
}

// AddManualEntry places a catalog item into a slot and recalculates the day
func (s *MenuService) AddManualEntry(ctx context.Context, dayID uuid.UUID, slotType domain.SlotType, ref domain.ItemRef, qty float64, unit domain.Unit) (*domain.MenuEntry, error) {
	if !domain.IsValidSlotType(slotType) {
		return nil, domain.InvalidInput("unknown slot type %q", slotType)
	}
	if !domain.IsValidUnit(unit) {
		return nil, domain.InvalidInput("unknown unit %q", unit)
	}
	if qty <= 0 {
		return nil, domain.InvalidInput("quantity must be > 0")
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	item, err := s.catalog.GetItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	nutrition, err := ScaleItem(*item, qty, unit)
	if err != nil {
		return nil, domain.InvalidInput("cannot scale %s: %v", item.Name, err)
	}

	day, err := s.menus.GetDay(ctx, dayID)
	if err != nil {
		return nil, err
	}
	slot := day.Slot(slotType)
	if slot == nil {
		return nil, domain.InvalidInput("day %s has no slot %s", dayID, slotType)
	}

	entry := &domain.MenuEntry{
		ID:         uuid.New(),
		Item:       *item,
		ServingQty: qty,
		Unit:       unit,
		Nutrition:  nutrition,
		CreatedAt:  time.Now(),
	}
	slot.Entries = append(slot.Entries, entry)
	RecalculateDay(day)

	if err := s.menus.SaveDay(ctx, day); err != nil {
		return nil, fmt.Errorf("failed to save menu day: %w", err)
	}
	return entry, nil
}

// RecordConsumption marks an entry consumed and recalculates totals bottom-up
func (s *MenuService) RecordConsumption(ctx context.Context, entryID uuid.UUID, consumedQty, actualServingGrams *float64) (*domain.MenuDay, error) {
	day, err := s.menus.GetDayByEntryID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	_, entry := day.FindEntry(entryID)
	if entry == nil {
		return nil, domain.NewNotFoundError("menu entry", entryID)
	}
	if err := entry.RecordConsumption(consumedQty, actualServingGrams); err != nil {
		return nil, err
	}

	RecalculateDay(day)
	if err := s.menus.SaveDay(ctx, day); err != nil {
		return nil, fmt.Errorf("failed to save menu day: %w", err)
	}
	return day, nil
}

// ComposeDish builds a custom dish whose profile is derived from its ingredients
func (s *MenuService) ComposeDish(ctx context.Context, name, category string, ingredients []domain.DishIngredient) (*domain.CatalogItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.InvalidInput("dish name cannot be empty")
	}
	if len(ingredients) == 0 {
		return nil, domain.InvalidInput("dish needs at least one ingredient")
	}

	var total domain.NutritionBreakdown
	var weight float64
	for _, ing := range ingredients {
		if ing.Quantity < 0 {
			return nil, domain.InvalidInput("ingredient %s has negative quantity", ing.Item.Name)
		}
		grams, err := ToGrams(ing.Quantity, ing.Unit, ing.Item.NominalServingGrams)
		if err != nil {
			return nil, fmt.Errorf("ingredient %s: %w", ing.Item.Name, err)
		}
		nutrition, err := ScaleItem(ing.Item, ing.Quantity, ing.Unit)
		if err != nil {
			return nil, fmt.Errorf("ingredient %s: %w", ing.Item.Name, err)
		}
		total = total.Add(nutrition)
		weight += grams
	}

	profile, err := ProfilePer100g(total, weight)
	if err != nil {
		return nil, err
	}

	w := domain.RoundHalfUp(weight, 2)
	return &domain.CatalogItem{
		Ref:                 domain.ItemRef{Kind: domain.ItemKindCustomDish, ID: uuid.New()},
		Name:                name,
		Category:            category,
		Profile:             profile,
		DefaultUnit:         domain.UnitGrams,
		NominalServingGrams: &w,
	}, nil
}

// ComposeDishFromCatalog resolves ingredient references and composes the dish
func (s *MenuService) ComposeDishFromCatalog(ctx context.Context, name, category string, refs []domain.IngredientRef) (*domain.CatalogItem, error) {
	ingredients := make([]domain.DishIngredient, 0, len(refs))
	for _, ref := range refs {
		if err := ref.Item.Validate(); err != nil {
			return nil, err
		}
		item, err := s.catalog.GetItem(ctx, ref.Item)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, domain.DishIngredient{Item: *item, Quantity: ref.Quantity, Unit: ref.Unit})
	}
	return s.ComposeDish(ctx, name, category, ingredients)
}

// ListCriticalFacts lists a patient's facts, newest first
func (s *MenuService) ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error) {
	return s.facts.ListCriticalFacts(ctx, patientID, unresolvedOnly)
}

// ResolveCriticalFact records an explicit resolution
func (s *MenuService) ResolveCriticalFact(ctx context.Context, factID uuid.UUID, resolvedBy uuid.UUID) (*domain.CriticalFact, error) {
	return s.emitter.Resolve(ctx, factID, resolvedBy)
}

func (s *MenuService) currentNorm(ctx context.Context, patientID uuid.UUID) (*domain.NormPrescription, error) {
	norm, err := s.norms.GetCurrentNorm(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load norm prescription: %w", err)
	}
	if norm == nil {
		return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrNoCurrentNorm)
	}
	return norm, nil
}
