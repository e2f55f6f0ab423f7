package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

func TestClassifySeverity_Tiers(t *testing.T) {
	limit := 300.0
	tests := []struct {
		ratio float64
		want  domain.Severity
	}{
		{0.6, domain.SeverityCritical},
		{0.3, domain.SeverityHigh},
		{0.15, domain.SeverityMedium},
		{0.05, domain.SeverityLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.ClassifySeverity(tt.ratio*limit, limit), "ratio %v", tt.ratio)
		assert.Equal(t, tt.want, domain.ClassifySeverity(-tt.ratio*limit, limit), "negative ratio %v", tt.ratio)
	}
}

func TestClassifySeverity_ZeroLimit(t *testing.T) {
	assert.Equal(t, domain.SeverityMedium, domain.ClassifySeverity(12, 0))
}

func TestNotFoundError(t *testing.T) {
	id := uuid.New()
	err := domain.NewNotFoundError("menu day", id)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, id, nf.ID)
	assert.Equal(t, "menu day "+id.String()+" not found", err.Error())
}

func TestItemRef_Validate(t *testing.T) {
	_, err := domain.NewItemRef(domain.ItemKindDish, uuid.New())
	assert.NoError(t, err)

	_, err = domain.NewItemRef("recipe", uuid.New())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = domain.NewItemRef(domain.ItemKindProduct, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSlotOrder(t *testing.T) {
	order := domain.SlotOrder()

	require.Len(t, order, 6)
	for i, s := range order {
		assert.Equal(t, i, s.Position())
	}
	assert.Equal(t, -1, domain.SlotType("BRUNCH").Position())
	assert.True(t, domain.SlotEveningSnack.IsCore())
	assert.False(t, domain.SlotMorningSnack.IsCore())
	assert.False(t, domain.SlotAfternoonSnack.IsCore())
}

func TestNewMenuDay(t *testing.T) {
	patientID := uuid.New()
	day := domain.NewMenuDay(patientID, time.Date(2024, 4, 5, 17, 30, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), day.Date)
	assert.Len(t, day.Slots, 6)
	assert.Nil(t, day.WeekID)
	assert.NotNil(t, day.Slot(domain.SlotDinner))
	assert.False(t, day.HasConsumedEntries())
}

func TestMenuEntry_RecordConsumption(t *testing.T) {
	e := &domain.MenuEntry{ID: uuid.New(), ServingQty: 100, Unit: domain.UnitGrams}

	assert.ErrorIs(t, e.RecordConsumption(ptr(-1), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, e.RecordConsumption(nil, ptr(-5)), domain.ErrInvalidInput)
	assert.False(t, e.Consumed)

	require.NoError(t, e.RecordConsumption(nil, ptr(80)))
	qty, unit := e.EffectiveConsumedQty()
	assert.Equal(t, 80.0, qty)
	assert.Equal(t, domain.UnitGrams, unit)

	require.NoError(t, e.RecordConsumption(ptr(0), nil))
	qty, _ = e.EffectiveConsumedQty()
	assert.Equal(t, 0.0, qty)
	assert.True(t, e.Consumed)
}

func TestGenerationOptions_Validate(t *testing.T) {
	assert.NoError(t, domain.GenerationOptions{}.Validate())

	neg := decimal.NewFromInt(-1)
	assert.ErrorIs(t, domain.GenerationOptions{DailyBudgetLimit: &neg}.Validate(), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.GenerationOptions{WeeklyBudgetLimit: &neg}.Validate(), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.GenerationOptions{MaxPhePerMeal: ptr(-3)}.Validate(), domain.ErrInvalidInput)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 2.68, domain.RoundHalfUp(2.675, 2))
	assert.Equal(t, 1.0, domain.RoundHalfUp(0.5, 0))
	assert.Equal(t, -1.0, domain.RoundHalfUp(-0.5, 0))
}

func TestCriticalFact_Resolve(t *testing.T) {
	f := &domain.CriticalFact{ID: uuid.New()}
	by := uuid.New()

	require.NoError(t, f.Resolve(by, time.Now()))
	assert.True(t, f.Resolved)
	assert.ErrorIs(t, f.Resolve(by, time.Now()), domain.ErrAlreadyResolved)
}

func TestPantryLot_ExpiresWithin(t *testing.T) {
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	soon := ref.Add(48 * time.Hour)
	later := ref.Add(96 * time.Hour)

	assert.True(t, domain.PantryLot{ExpiresAt: &soon}.ExpiresWithin(ref, 72*time.Hour))
	assert.False(t, domain.PantryLot{ExpiresAt: &later}.ExpiresWithin(ref, 72*time.Hour))
	assert.False(t, domain.PantryLot{}.ExpiresWithin(ref, 72*time.Hour))
}

func TestPantryLot_ExpiredBy(t *testing.T) {
	menuDate := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	yesterday := time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC)
	sameDay := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	assert.True(t, domain.PantryLot{ExpiresAt: &yesterday}.ExpiredBy(menuDate))
	assert.False(t, domain.PantryLot{ExpiresAt: &sameDay}.ExpiredBy(menuDate))
	assert.False(t, domain.PantryLot{}.ExpiredBy(menuDate))
}

func TestGenerationAbortedError(t *testing.T) {
	cause := errors.New("catalog unavailable")
	err := fmt.Errorf("weekly run: %w", &domain.GenerationAbortedError{
		Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Err:  cause,
	})

	var aborted *domain.GenerationAbortedError
	require.True(t, errors.As(err, &aborted))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "aborted at 2024-01-03: catalog unavailable")
}

func ptr(v float64) *float64 {
	return &v
}
