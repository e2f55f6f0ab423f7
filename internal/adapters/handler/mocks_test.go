package handler_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// MockMenuGenerator is a mock implementation of MenuGenerator
type MockMenuGenerator struct {
	mock.Mock
}

func (m *MockMenuGenerator) GenerateDailyMenu(ctx context.Context, patientID uuid.UUID, date time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	args := m.Called(ctx, patientID, date, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenerationResult), args.Error(1)
}

func (m *MockMenuGenerator) GenerateWeeklyMenu(ctx context.Context, patientID uuid.UUID, startDate time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	args := m.Called(ctx, patientID, startDate, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenerationResult), args.Error(1)
}

// MockMenuService is a mock implementation of MenuService
type MockMenuService struct {
	mock.Mock
}

func (m *MockMenuService) GetMenuDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error) {
	args := m.Called(ctx, dayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuDay), args.Error(1)
}

func (m *MockMenuService) GetMenuDayByEntry(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuDay), args.Error(1)
}

func (m *MockMenuService) ValidateMenuDay(ctx context.Context, dayID uuid.UUID, emitFacts bool) (*domain.DayValidation, []*domain.CriticalFact, error) {
	args := m.Called(ctx, dayID, emitFacts)
	var v *domain.DayValidation
	if args.Get(0) != nil {
		v = args.Get(0).(*domain.DayValidation)
	}
	var facts []*domain.CriticalFact
	if args.Get(1) != nil {
		facts = args.Get(1).([]*domain.CriticalFact)
	}
	return v, facts, args.Error(2)
}

func (m *MockMenuService) DayProgress(ctx context.Context, dayID uuid.UUID, ctxType domain.TotalsContext) ([]domain.NutrientProgress, error) {
	args := m.Called(ctx, dayID, ctxType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NutrientProgress), args.Error(1)
}

func (m *MockMenuService) AddManualEntry(ctx context.Context, dayID uuid.UUID, slot domain.SlotType, item domain.ItemRef, qty float64, unit domain.Unit) (*domain.MenuEntry, error) {
	args := m.Called(ctx, dayID, slot, item, qty, unit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuEntry), args.Error(1)
}

func (m *MockMenuService) RecordConsumption(ctx context.Context, entryID uuid.UUID, consumedQty, actualServingGrams *float64) (*domain.MenuDay, error) {
	args := m.Called(ctx, entryID, consumedQty, actualServingGrams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuDay), args.Error(1)
}

func (m *MockMenuService) ComposeDish(ctx context.Context, name, category string, ingredients []domain.DishIngredient) (*domain.CatalogItem, error) {
	args := m.Called(ctx, name, category, ingredients)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogItem), args.Error(1)
}

func (m *MockMenuService) ComposeDishFromCatalog(ctx context.Context, name, category string, ingredients []domain.IngredientRef) (*domain.CatalogItem, error) {
	args := m.Called(ctx, name, category, ingredients)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogItem), args.Error(1)
}

func (m *MockMenuService) ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error) {
	args := m.Called(ctx, patientID, unresolvedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CriticalFact), args.Error(1)
}

func (m *MockMenuService) ResolveCriticalFact(ctx context.Context, factID uuid.UUID, resolvedBy uuid.UUID) (*domain.CriticalFact, error) {
	args := m.Called(ctx, factID, resolvedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CriticalFact), args.Error(1)
}
