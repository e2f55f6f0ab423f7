package services_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/services"
)

type generationFixture struct {
	patients *MockPatientRepository
	norms    *MockNormRepository
	catalog  *MockCatalogRepository
	menus    *MockMenuRepository
	pantry   *MockPantryRepository
	prices   *MockPriceRepository
	facts    *MockCriticalFactRepository
	patient  *domain.Patient
	norm     *domain.NormPrescription
	service  *services.MenuGenerationService
}

func simpleCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		catalogItem("Low protein bread", "bread", 20, 250, 0.5),
		catalogItem("Apple", "fruit", 4, 52, 0.3),
		catalogItem("Rice cakes", "snack", 30, 380, 0.8),
		catalogItem("Low protein pasta", "pasta", 25, 350, 0.6),
		catalogItem("Potato", "potato", 80, 77, 2),
		catalogItem("Vegetable soup", "soup", 15, 40, 0.4),
		catalogItem("Sorbet", "dessert", 2, 130, 0.1),
		catalogItem("Juice", "beverage", 3, 45, 0.2),
	}
}

func newGenerationFixture() *generationFixture {
	f := &generationFixture{
		patients: new(MockPatientRepository),
		norms:    new(MockNormRepository),
		catalog:  new(MockCatalogRepository),
		menus:    new(MockMenuRepository),
		pantry:   new(MockPantryRepository),
		prices:   new(MockPriceRepository),
		facts:    new(MockCriticalFactRepository),
		patient:  &domain.Patient{ID: uuid.New(), DisplayName: "Test"},
	}
	f.norm = testNorm(f.patient.ID)

	f.prices.On("FindBestPrice", mock.Anything, mock.Anything).Return(nil, nil)
	f.menus.On("FindDaysInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]*domain.MenuDay{}, nil)
	f.facts.On("SaveCriticalFact", mock.Anything, mock.Anything).Return(nil)

	resolver := services.NewPantryResolver(f.pantry, f.prices, decimal.RequireFromString("0.01"))
	generator := services.NewCandidateGenerator(f.catalog, services.NewVarietyEngine(f.menus), resolver)
	emitter := services.NewCriticalFactEmitter(f.facts, nil)
	f.service = services.NewMenuGenerationService(f.patients, f.norms, f.menus, generator, resolver, emitter)
	return f
}

func (f *generationFixture) withPatientAndNorm() {
	f.patients.On("GetPatient", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.norms.On("GetCurrentNorm", mock.Anything, f.patient.ID).Return(f.norm, nil)
}

func slotNames(day *domain.MenuDay) map[domain.SlotType][]string {
	out := make(map[domain.SlotType][]string)
	for _, s := range day.Slots {
		for _, e := range s.Entries {
			out[s.Type] = append(out[s.Type], e.Item.Name)
		}
	}
	return out
}

func TestGenerateDailyMenu_SimpleDayIsDeterministic(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var generated []*domain.MenuDay

	for i := 0; i < 2; i++ {
		f := newGenerationFixture()
		f.withPatientAndNorm()
		f.catalog.On("FindAllItems", mock.Anything).Return(simpleCatalog(), nil)
		f.menus.On("SaveDay", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			generated = append(generated, args.Get(1).(*domain.MenuDay))
		}).Return(nil)

		result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, date, domain.GenerationOptions{})

		require.NoError(t, err)
		require.True(t, result.Success)
		require.NotNil(t, result.DayID)
		f.menus.AssertNumberOfCalls(t, "SaveDay", 1)
	}

	require.Len(t, generated, 2)
	first, second := generated[0], generated[1]
	assert.Equal(t, slotNames(first), slotNames(second))
	assert.Equal(t, first.PlannedTotals, second.PlannedTotals)

	for _, s := range first.Slots {
		if s.Type.IsCore() {
			assert.Len(t, s.Entries, services.TopCandidatesPerSlot, "slot %s", s.Type)
			assert.False(t, s.Underfilled)
		} else {
			assert.Empty(t, s.Entries, "slot %s", s.Type)
		}
	}
	assert.Equal(t, 75.0, first.Slot(domain.SlotBreakfast).TargetPheMg)
	assert.Equal(t, 525.0, first.Slot(domain.SlotLunch).TargetKcal)
	assert.Nil(t, first.WeekID)
}

func TestGenerateDailyMenu_EmptyCatalogLeavesSlotsUnderfilled(t *testing.T) {
	f := newGenerationFixture()
	f.withPatientAndNorm()
	f.catalog.On("FindAllItems", mock.Anything).Return([]domain.CatalogItem{}, nil)
	f.menus.On("SaveDay", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Now(), domain.GenerationOptions{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.ElementsMatch(t, []string{"BREAKFAST", "LUNCH", "DINNER", "EVENING_SNACK"}, result.UnderfilledSlots)
	// an empty day misses the kcal minimum
	assert.Len(t, result.FactIDs, 1)
}

func TestGenerateDailyMenu_PatientNotFound(t *testing.T) {
	f := newGenerationFixture()
	f.patients.On("GetPatient", mock.Anything, f.patient.ID).Return(nil, domain.ErrPatientNotFound)

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Now(), domain.GenerationOptions{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not found")
	f.menus.AssertNotCalled(t, "SaveDay", mock.Anything, mock.Anything)
}

func TestGenerateDailyMenu_NoCurrentNorm(t *testing.T) {
	f := newGenerationFixture()
	f.patients.On("GetPatient", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.norms.On("GetCurrentNorm", mock.Anything, f.patient.ID).Return(nil, nil)

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Now(), domain.GenerationOptions{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "no current norm")
	f.catalog.AssertNotCalled(t, "FindAllItems", mock.Anything)
}

func TestGenerateDailyMenu_InvalidOptions(t *testing.T) {
	f := newGenerationFixture()

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Now(), domain.GenerationOptions{MaxPhePerMeal: ptr(-1.0)})

	require.NoError(t, err)
	assert.False(t, result.Success)
	f.patients.AssertNotCalled(t, "GetPatient", mock.Anything, mock.Anything)
}

func TestGenerateDailyMenu_RepositoryErrorIsReturned(t *testing.T) {
	f := newGenerationFixture()
	f.patients.On("GetPatient", mock.Anything, f.patient.ID).Return(nil, errors.New("connection refused"))

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Now(), domain.GenerationOptions{})

	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestGenerateWeeklyMenu_Success(t *testing.T) {
	f := newGenerationFixture()
	f.withPatientAndNorm()
	f.catalog.On("FindAllItems", mock.Anything).Return(simpleCatalog(), nil)
	var saved *domain.MenuWeek
	f.menus.On("SaveWeek", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.MenuWeek)
	}).Return(nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := f.service.GenerateWeeklyMenu(context.Background(), f.patient.ID, start, domain.GenerationOptions{})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, saved)
	assert.Equal(t, saved.ID, *result.WeekID)
	require.Len(t, saved.Days, services.DaysPerWeek)
	for i, day := range saved.Days {
		assert.Equal(t, start.AddDate(0, 0, i), day.Date)
		require.NotNil(t, day.WeekID)
		assert.Equal(t, saved.ID, *day.WeekID)
	}

	var phe float64
	for _, d := range saved.Days {
		phe += d.PlannedTotals.PheMg
	}
	assert.InDelta(t, phe, saved.PlannedTotals.PheMg, 0.01)
	f.menus.AssertNotCalled(t, "SaveDay", mock.Anything, mock.Anything)
}

func TestGenerateWeeklyMenu_FailingDayAbortsBatch(t *testing.T) {
	f := newGenerationFixture()
	f.withPatientAndNorm()
	// two days of four core slots succeed, the third day fails
	f.catalog.On("FindAllItems", mock.Anything).Return(simpleCatalog(), nil).Times(8)
	f.catalog.On("FindAllItems", mock.Anything).Return(nil, errors.New("catalog unavailable"))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := f.service.GenerateWeeklyMenu(context.Background(), f.patient.ID, start, domain.GenerationOptions{})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "2024-01-03")
	assert.Contains(t, err.Error(), "catalog unavailable")
	f.menus.AssertNotCalled(t, "SaveWeek", mock.Anything, mock.Anything)
	f.facts.AssertNotCalled(t, "SaveCriticalFact", mock.Anything, mock.Anything)
}

func TestDayState_Advance(t *testing.T) {
	state := services.DayNotStarted

	require.NoError(t, state.Advance(services.DayGeneratingSlots))
	assert.Error(t, state.Advance(services.DayValidated))
	require.NoError(t, state.Advance(services.DayAggregating))
	require.NoError(t, state.Advance(services.DayValidated))
	assert.Equal(t, services.DayValidated, state)
	assert.Error(t, state.Advance(services.DayNotStarted))
}

// pantryCatalog lists five interchangeable fruits; the pantry item comes last
// so it only wins a slot through the pantry bonus.
func pantryCatalog() ([]domain.CatalogItem, domain.CatalogItem) {
	items := []domain.CatalogItem{
		catalogItem("Pear", "fruit", 50, 50, 0),
		catalogItem("Melon", "fruit", 50, 50, 0),
		catalogItem("Kiwi", "fruit", 50, 50, 0),
		catalogItem("Plum", "fruit", 50, 50, 0),
		catalogItem("Pantry apple", "fruit", 50, 50, 0),
	}
	return items, items[len(items)-1]
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func TestGenerateDailyMenu_PantryReservationsReduceLaterSlots(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expiredAt := date.AddDate(0, 0, -1)

	// servings at 50 mg PHE per 100 g: breakfast 150 g, lunch 180 g,
	// dinner 120 g, evening snack 30 g
	cases := []struct {
		name      string
		lot       domain.PantryLot
		wantSlots map[domain.SlotType]bool
	}{
		{
			name: "lot covers breakfast and the evening snack remainder",
			lot:  domain.PantryLot{ID: uuid.New(), QuantityGrams: 200, CostPerGram: decimal.RequireFromString("0.005")},
			wantSlots: map[domain.SlotType]bool{
				domain.SlotBreakfast:    true,
				domain.SlotLunch:        false,
				domain.SlotDinner:       false,
				domain.SlotEveningSnack: true,
			},
		},
		{
			name: "large lot covers every slot",
			lot:  domain.PantryLot{ID: uuid.New(), QuantityGrams: 10000, CostPerGram: decimal.RequireFromString("0.005")},
			wantSlots: map[domain.SlotType]bool{
				domain.SlotBreakfast:    true,
				domain.SlotLunch:        true,
				domain.SlotDinner:       true,
				domain.SlotEveningSnack: true,
			},
		},
		{
			name: "expired lot is ignored",
			lot:  domain.PantryLot{ID: uuid.New(), QuantityGrams: 10000, CostPerGram: decimal.RequireFromString("0.005"), ExpiresAt: &expiredAt},
			wantSlots: map[domain.SlotType]bool{
				domain.SlotBreakfast:    false,
				domain.SlotLunch:        false,
				domain.SlotDinner:       false,
				domain.SlotEveningSnack: false,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGenerationFixture()
			f.withPatientAndNorm()
			items, pantryItem := pantryCatalog()
			f.catalog.On("FindAllItems", mock.Anything).Return(items, nil)
			tc.lot.Item = pantryItem.Ref
			f.pantry.On("FindAvailableLots", mock.Anything, f.patient.ID, pantryItem.Ref).Return([]domain.PantryLot{tc.lot}, nil)
			f.pantry.On("FindAvailableLots", mock.Anything, f.patient.ID, mock.Anything).Return([]domain.PantryLot{}, nil)
			var saved *domain.MenuDay
			f.menus.On("SaveDay", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				saved = args.Get(1).(*domain.MenuDay)
			}).Return(nil)

			result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, date, domain.GenerationOptions{RespectPantry: true})

			require.NoError(t, err)
			require.True(t, result.Success)
			require.NotNil(t, saved)
			names := slotNames(saved)
			for slot, want := range tc.wantSlots {
				assert.Equal(t, want, containsName(names[slot], pantryItem.Name), "slot %s", slot)
				assert.Len(t, names[slot], services.TopCandidatesPerSlot, "slot %s", slot)
			}
		})
	}
}

func TestGenerateDailyMenu_ShortReservationIsLogged(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(previous) })

	f := newGenerationFixture()
	f.withPatientAndNorm()
	items, pantryItem := pantryCatalog()
	f.catalog.On("FindAllItems", mock.Anything).Return(items, nil)
	stock := domain.PantryLot{ID: uuid.New(), Item: pantryItem.Ref, QuantityGrams: 10000, CostPerGram: decimal.RequireFromString("0.005")}
	// the stock is gone by the time the breakfast serving is reserved
	f.pantry.On("FindAvailableLots", mock.Anything, f.patient.ID, pantryItem.Ref).Return([]domain.PantryLot{stock}, nil).Once()
	f.pantry.On("FindAvailableLots", mock.Anything, f.patient.ID, mock.Anything).Return([]domain.PantryLot{}, nil)
	var saved *domain.MenuDay
	f.menus.On("SaveDay", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.MenuDay)
	}).Return(nil)

	result, err := f.service.GenerateDailyMenu(context.Background(), f.patient.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), domain.GenerationOptions{RespectPantry: true})

	require.NoError(t, err)
	require.True(t, result.Success)
	names := slotNames(saved)
	assert.True(t, containsName(names[domain.SlotBreakfast], pantryItem.Name))
	assert.False(t, containsName(names[domain.SlotLunch], pantryItem.Name))
	assert.Contains(t, buf.String(), `"event":"pantry_reservation_short"`)
	assert.Contains(t, buf.String(), `"slot":"BREAKFAST"`)
}

func TestGenerateWeeklyMenu_DailyBudgetFallsBackToWeeklyShare(t *testing.T) {
	// at 25 mg PHE per 100 g a breakfast serving is 300 g and costs 3.00 at the
	// default price; at 75 mg it is 100 g and costs 1.00 but misses more kcal.
	// A daily budget of 20 favours the cheap servings, 140 the filling ones.
	catalog := []domain.CatalogItem{
		catalogItem("Filling fruit 1", "fruit", 25, 100, 0),
		catalogItem("Filling fruit 2", "fruit", 25, 100, 0),
		catalogItem("Filling fruit 3", "fruit", 25, 100, 0),
		catalogItem("Cheap fruit 1", "fruit", 75, 100, 0),
		catalogItem("Cheap fruit 2", "fruit", 75, 100, 0),
		catalogItem("Cheap fruit 3", "fruit", 75, 100, 0),
	}
	cheap := []string{"Cheap fruit 1", "Cheap fruit 2", "Cheap fruit 3"}
	filling := []string{"Filling fruit 1", "Filling fruit 2", "Filling fruit 3"}
	money := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}

	cases := []struct {
		name string
		opts domain.GenerationOptions
		want []string
	}{
		{"weekly limit only uses a seventh per day", domain.GenerationOptions{WeeklyBudgetLimit: money("140")}, cheap},
		{"explicit daily limit of a seventh", domain.GenerationOptions{DailyBudgetLimit: money("20")}, cheap},
		{"daily limit equal to the weekly amount", domain.GenerationOptions{DailyBudgetLimit: money("140")}, filling},
		{"daily limit wins over weekly", domain.GenerationOptions{DailyBudgetLimit: money("140"), WeeklyBudgetLimit: money("140")}, filling},
		{"no budget ignores cost", domain.GenerationOptions{}, filling},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGenerationFixture()
			f.withPatientAndNorm()
			f.catalog.On("FindAllItems", mock.Anything).Return(catalog, nil)
			var saved *domain.MenuWeek
			f.menus.On("SaveWeek", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				saved = args.Get(1).(*domain.MenuWeek)
			}).Return(nil)

			result, err := f.service.GenerateWeeklyMenu(context.Background(), f.patient.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tc.opts)

			require.NoError(t, err)
			require.True(t, result.Success)
			require.NotNil(t, saved)
			assert.Equal(t, tc.want, slotNames(saved.Days[0])[domain.SlotBreakfast])
		})
	}
}

func TestGenerateWeeklyMenu_NoSameSlotRepeatOnConsecutiveDays(t *testing.T) {
	f := newGenerationFixture()
	f.withPatientAndNorm()
	f.catalog.On("FindAllItems", mock.Anything).Return(simpleCatalog(), nil)
	var saved *domain.MenuWeek
	f.menus.On("SaveWeek", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.MenuWeek)
	}).Return(nil)

	result, err := f.service.GenerateWeeklyMenu(context.Background(), f.patient.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), domain.GenerationOptions{})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, saved.Days, services.DaysPerWeek)

	for i := 1; i < len(saved.Days); i++ {
		previous := slotNames(saved.Days[i-1])
		current := slotNames(saved.Days[i])
		for _, slot := range domain.SlotOrder() {
			if !slot.IsCore() {
				continue
			}
			assert.NotEmpty(t, current[slot], "day %d slot %s", i, slot)
			for _, name := range current[slot] {
				assert.False(t, containsName(previous[slot], name), "%s repeated in %s on day %d", name, slot, i)
			}
		}
	}
}
