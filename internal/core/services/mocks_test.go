package services_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// MockPatientRepository is a mock implementation of PatientRepository
type MockPatientRepository struct {
	mock.Mock
}

func (m *MockPatientRepository) GetPatient(ctx context.Context, patientID uuid.UUID) (*domain.Patient, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Patient), args.Error(1)
}

// MockNormRepository is a mock implementation of NormRepository
type MockNormRepository struct {
	mock.Mock
}

func (m *MockNormRepository) GetCurrentNorm(ctx context.Context, patientID uuid.UUID) (*domain.NormPrescription, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NormPrescription), args.Error(1)
}

// MockCatalogRepository is a mock implementation of CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) FindAllItems(ctx context.Context) ([]domain.CatalogItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CatalogItem), args.Error(1)
}

func (m *MockCatalogRepository) GetItem(ctx context.Context, ref domain.ItemRef) (*domain.CatalogItem, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogItem), args.Error(1)
}

// MockPantryRepository is a mock implementation of PantryRepository
type MockPantryRepository struct {
	mock.Mock
}

func (m *MockPantryRepository) FindAvailableLots(ctx context.Context, patientID uuid.UUID, item domain.ItemRef) ([]domain.PantryLot, error) {
	args := m.Called(ctx, patientID, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	lots := args.Get(0).([]domain.PantryLot)
	out := make([]domain.PantryLot, len(lots))
	copy(out, lots)
	return out, args.Error(1)
}

// MockPriceRepository is a mock implementation of PriceRepository
type MockPriceRepository struct {
	mock.Mock
}

func (m *MockPriceRepository) FindBestPrice(ctx context.Context, item domain.ItemRef) (*decimal.Decimal, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}

// MockMenuRepository is a mock implementation of MenuRepository
type MockMenuRepository struct {
	mock.Mock
}

func (m *MockMenuRepository) FindDaysInRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*domain.MenuDay, error) {
	args := m.Called(ctx, patientID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.MenuDay), args.Error(1)
}

func (m *MockMenuRepository) SaveDay(ctx context.Context, day *domain.MenuDay) error {
	args := m.Called(ctx, day)
	return args.Error(0)
}

func (m *MockMenuRepository) SaveWeek(ctx context.Context, week *domain.MenuWeek) error {
	args := m.Called(ctx, week)
	return args.Error(0)
}

func (m *MockMenuRepository) GetDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error) {
	args := m.Called(ctx, dayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuDay), args.Error(1)
}

func (m *MockMenuRepository) GetDayByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MenuDay), args.Error(1)
}

// MockCriticalFactRepository is a mock implementation of CriticalFactRepository
type MockCriticalFactRepository struct {
	mock.Mock
}

func (m *MockCriticalFactRepository) SaveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error {
	args := m.Called(ctx, fact)
	return args.Error(0)
}

func (m *MockCriticalFactRepository) GetCriticalFact(ctx context.Context, factID uuid.UUID) (*domain.CriticalFact, error) {
	args := m.Called(ctx, factID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CriticalFact), args.Error(1)
}

func (m *MockCriticalFactRepository) ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error) {
	args := m.Called(ctx, patientID, unresolvedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CriticalFact), args.Error(1)
}

func (m *MockCriticalFactRepository) ResolveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error {
	args := m.Called(ctx, fact)
	return args.Error(0)
}

// MockBreachPublisher is a mock implementation of BreachPublisher
type MockBreachPublisher struct {
	mock.Mock
}

func (m *MockBreachPublisher) PublishBreach(ctx context.Context, fact *domain.CriticalFact) error {
	args := m.Called(ctx, fact)
	return args.Error(0)
}

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

// MockGenerationLock is a mock implementation of GenerationLock
type MockGenerationLock struct {
	mock.Mock
	Released int
}

func (m *MockGenerationLock) Acquire(ctx context.Context, patientID uuid.UUID) (func(context.Context) error, error) {
	args := m.Called(ctx, patientID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.Released++
		return nil
	}, nil
}

func catalogItem(name, category string, phe, kcal, protein float64) domain.CatalogItem {
	return domain.CatalogItem{
		Ref:      domain.ItemRef{Kind: domain.ItemKindProduct, ID: uuid.New()},
		Name:     name,
		Category: category,
		Profile: domain.NutrientProfile{
			PheMg:      domain.Amount(phe),
			EnergyKcal: domain.Amount(kcal),
			ProteinG:   protein,
		},
		DefaultUnit: domain.UnitGrams,
	}
}

func gramsEntry(item domain.CatalogItem, grams float64) *domain.MenuEntry {
	return &domain.MenuEntry{
		ID:         uuid.New(),
		Item:       item,
		ServingQty: grams,
		Unit:       domain.UnitGrams,
	}
}

func testNorm(patientID uuid.UUID) *domain.NormPrescription {
	return &domain.NormPrescription{
		ID:            uuid.New(),
		PatientID:     patientID,
		PheLimitMg:    300,
		ProteinLimitG: 20,
		KcalMin:       1500,
		FatLimitG:     70,
		IssuedAt:      time.Now(),
	}
}

func ptr[T any](v T) *T {
	return &v
}
