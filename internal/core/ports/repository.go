package ports

import (
	"context"
	"time"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PatientRepository looks up patient records
type PatientRepository interface {
	// GetPatient returns domain.ErrPatientNotFound when the patient does not exist
	GetPatient(ctx context.Context, patientID uuid.UUID) (*domain.Patient, error)
}

// NormRepository looks up norm prescriptions
type NormRepository interface {
	// GetCurrentNorm returns the current prescription, or nil when none was issued
	GetCurrentNorm(ctx context.Context, patientID uuid.UUID) (*domain.NormPrescription, error)
}

// CatalogRepository reads the food catalog across all four variants
type CatalogRepository interface {
	// FindAllItems returns every catalog item in a stable order
	FindAllItems(ctx context.Context) ([]domain.CatalogItem, error)

	// GetItem returns a single item by reference
	GetItem(ctx context.Context, ref domain.ItemRef) (*domain.CatalogItem, error)
}

// PantryRepository reads patient pantry stock
type PantryRepository interface {
	// FindAvailableLots returns lots with stock, nearest expiry first
	FindAvailableLots(ctx context.Context, patientID uuid.UUID, item domain.ItemRef) ([]domain.PantryLot, error)
}

// PriceRepository reads market prices
type PriceRepository interface {
	// FindBestPrice returns the lowest known price per gram, or nil when unknown
	FindBestPrice(ctx context.Context, item domain.ItemRef) (*decimal.Decimal, error)
}

// MenuRepository persists menu days and weeks
type MenuRepository interface {
	// FindDaysInRange returns the patient's days with start <= date <= end
	FindDaysInRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*domain.MenuDay, error)

	// SaveDay upserts a day with its slots and entries in one transaction
	SaveDay(ctx context.Context, day *domain.MenuDay) error

	// SaveWeek inserts a week and all of its days in one transaction
	SaveWeek(ctx context.Context, week *domain.MenuWeek) error

	// GetDay returns a day, or a *domain.NotFoundError
	GetDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error)

	// GetDayByEntryID returns the day holding an entry, or a *domain.NotFoundError
	GetDayByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error)
}

// CriticalFactRepository persists critical facts
type CriticalFactRepository interface {
	SaveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error
	GetCriticalFact(ctx context.Context, factID uuid.UUID) (*domain.CriticalFact, error)
	ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error)

	// ResolveCriticalFact stores the resolution of an existing fact
	ResolveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error
}

// BreachPublisher notifies downstream consumers (caregiver alerts) about breaches
type BreachPublisher interface {
	PublishBreach(ctx context.Context, fact *domain.CriticalFact) error
}

// GenerationLock serializes generation runs per patient
type GenerationLock interface {
	// Acquire returns domain.ErrGenerationLocked when another run holds the lock
	Acquire(ctx context.Context, patientID uuid.UUID) (release func(context.Context) error, err error)
}
