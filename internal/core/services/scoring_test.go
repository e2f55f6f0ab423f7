package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/services"
)

func scoringContext() services.ScoringContext {
	return services.ScoringContext{Norm: testNorm(uuid.New()), TargetKcal: 400}
}

func candidate(phe, protein, kcal float64) *services.FoodCandidate {
	return &services.FoodCandidate{
		Item:           catalogItem("Item", "main", 10, 100, 1),
		Nutrition:      domain.NutritionBreakdown{PheMg: phe, ProteinG: protein, EnergyKcal: kcal},
		CostPerServing: decimal.RequireFromString("1"),
	}
}

func TestScoringEngine_ZeroScore(t *testing.T) {
	c := candidate(75, 5, 400)

	services.NewScoringEngine().Score(c, scoringContext())

	assert.Equal(t, 0.0, c.Score)
	assert.Equal(t, 0.0, c.PhePenalty)
	assert.Equal(t, 0.0, c.ProteinPenalty)
	assert.Equal(t, 0.0, c.KcalPenalty)
	assert.Equal(t, 0.0, c.CostPenalty)
	assert.Equal(t, 0.0, c.RepeatPenalty)
}

func TestScoringEngine_PheOverThreshold(t *testing.T) {
	engine := services.NewScoringEngine()
	c := candidate(150, 0, 400)

	engine.Score(c, scoringContext())

	// 50% of the limit is 25 points over threshold: 100 * 25^2 / 100
	assert.Equal(t, 625.0, c.PhePenalty)
	assert.Equal(t, 625.0, c.Score)
}

func TestScoringEngine_MonotonicInPhe(t *testing.T) {
	engine := services.NewScoringEngine()
	sc := scoringContext()

	prev := -1.0
	for _, phe := range []float64{50, 75, 90, 120, 180, 300, 450} {
		c := candidate(phe, 1, 400)
		engine.Score(c, sc)
		assert.GreaterOrEqual(t, c.Score, prev, "phe %v", phe)
		prev = c.Score
	}
}

func TestScoringEngine_ProteinAndKcalComponents(t *testing.T) {
	engine := services.NewScoringEngine()
	c := candidate(0, 10, 300)

	engine.Score(c, scoringContext())

	// protein at 50% of 20 g: 80 * 25^2 / 100
	assert.Equal(t, 500.0, c.ProteinPenalty)
	// 25% short of 400 kcal: 0.5 * 25
	assert.Equal(t, 12.5, c.KcalPenalty)
	assert.Equal(t, 512.5, c.Score)
}

func TestScoringEngine_CostOnlyWithBudget(t *testing.T) {
	engine := services.NewScoringEngine()
	sc := scoringContext()

	c := candidate(0, 0, 400)
	engine.Score(c, sc)
	assert.Equal(t, 0.0, c.CostPenalty)

	budget := decimal.RequireFromString("10")
	sc.DailyBudget = &budget
	engine.Score(c, sc)
	// 1 of 10 is 10% of the budget
	assert.Equal(t, 100.0, c.CostPenalty)
}

func TestScoringEngine_RepeatPenalty(t *testing.T) {
	engine := services.NewScoringEngine()
	cases := map[int]float64{0: 150, 1: 100, 2: 50, 3: 0, 6: 0}

	for days, want := range cases {
		c := candidate(0, 0, 400)
		c.DaysSinceLastUse = ptr(days)
		engine.Score(c, scoringContext())
		assert.Equal(t, want, c.RepeatPenalty, "days %d", days)
	}
}

func TestScoringEngine_PantryBonus(t *testing.T) {
	engine := services.NewScoringEngine()
	c := candidate(150, 0, 400)
	c.PantryAvailable = true

	engine.Score(c, scoringContext())

	assert.Equal(t, 562.5, c.Score)
}

func TestScoringEngine_ZeroLimitsSkipComponents(t *testing.T) {
	engine := services.NewScoringEngine()
	sc := services.ScoringContext{Norm: &domain.NormPrescription{}, TargetKcal: 0}
	c := candidate(500, 50, 0)

	engine.Score(c, sc)

	assert.Equal(t, 0.0, c.Score)
}

func TestScoringEngine_RankStableOnTies(t *testing.T) {
	engine := services.NewScoringEngine()
	a, b, c := candidate(10, 0, 400), candidate(10, 0, 400), candidate(150, 0, 400)
	a.Order, b.Order, c.Order = 2, 5, 1

	ranked := engine.Rank([]*services.FoodCandidate{c, b, a}, scoringContext())

	require.Len(t, ranked, 3)
	assert.Same(t, a, ranked[0])
	assert.Same(t, b, ranked[1])
	assert.Same(t, c, ranked[2])
	assert.Len(t, services.TopK(ranked, 2), 2)
	assert.Len(t, services.TopK(ranked, 5), 3)
}
