package ports

import (
	"context"
	"time"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/google/uuid"
)

// MenuGenerator drives daily and weekly menu generation
type MenuGenerator interface {
	// GenerateDailyMenu generates and persists one standalone day.
	// Input problems are reported through a failed result, not an error.
	GenerateDailyMenu(ctx context.Context, patientID uuid.UUID, date time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error)

	// GenerateWeeklyMenu generates seven days; any failing day aborts the whole week
	GenerateWeeklyMenu(ctx context.Context, patientID uuid.UUID, startDate time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error)
}

// MenuService covers validation and manual editing of persisted menus
type MenuService interface {
	GetMenuDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error)
	GetMenuDayByEntry(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error)

	// ValidateMenuDay validates planned and consumed totals; emitFacts persists breaches
	ValidateMenuDay(ctx context.Context, dayID uuid.UUID, emitFacts bool) (*domain.DayValidation, []*domain.CriticalFact, error)

	// DayProgress reports percent-of-limit used without breach semantics
	DayProgress(ctx context.Context, dayID uuid.UUID, ctxType domain.TotalsContext) ([]domain.NutrientProgress, error)

	AddManualEntry(ctx context.Context, dayID uuid.UUID, slot domain.SlotType, item domain.ItemRef, qty float64, unit domain.Unit) (*domain.MenuEntry, error)
	RecordConsumption(ctx context.Context, entryID uuid.UUID, consumedQty, actualServingGrams *float64) (*domain.MenuDay, error)

	// ComposeDish derives a per-100g profile for a custom dish from its ingredients
	ComposeDish(ctx context.Context, name, category string, ingredients []domain.DishIngredient) (*domain.CatalogItem, error)
	ComposeDishFromCatalog(ctx context.Context, name, category string, ingredients []domain.IngredientRef) (*domain.CatalogItem, error)

	ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error)
	ResolveCriticalFact(ctx context.Context, factID uuid.UUID, resolvedBy uuid.UUID) (*domain.CriticalFact, error)
}
