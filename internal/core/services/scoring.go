package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// Scoring weights
const (
	WeightPheOver     = 100.0
	WeightProteinOver = 80.0
	WeightKcalDeficit = 0.5
	WeightCost        = 10.0
	WeightRepeat      = 50.0

	// SingleItemShareThreshold is the share of a daily limit one serving may take unpenalized
	SingleItemShareThreshold = 25.0
	RepeatHorizonDays        = 3
	PantryBonusFactor        = 0.9
)

// ScoringContext carries the limits a candidate is scored against
type ScoringContext struct {
	Norm        *domain.NormPrescription
	TargetKcal  float64
	DailyBudget *decimal.Decimal
}

// ScoringEngine ranks candidates; lower scores are better
type ScoringEngine struct{}

// NewScoringEngine creates a new scoring engine
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Score fills in the penalty components and total score of a candidate
func (e *ScoringEngine) Score(c *FoodCandidate, sc ScoringContext) {
	c.PhePenalty = overLimitPenalty(c.Nutrition.PheMg, sc.Norm.PheLimitMg, WeightPheOver)
	c.ProteinPenalty = overLimitPenalty(c.Nutrition.ProteinG, sc.Norm.ProteinLimitG, WeightProteinOver)

	c.KcalPenalty = 0
	if sc.TargetKcal > 0 && c.Nutrition.EnergyKcal < sc.TargetKcal {
		deficitPct := (sc.TargetKcal - c.Nutrition.EnergyKcal) / sc.TargetKcal * 100
		c.KcalPenalty = WeightKcalDeficit * deficitPct
	}

	c.CostPenalty = 0
	if sc.DailyBudget != nil && sc.DailyBudget.IsPositive() {
		share := c.CostPerServing.Div(*sc.DailyBudget).Mul(decimal.NewFromInt(100)).InexactFloat64()
		c.CostPenalty = WeightCost * share
	}

	c.RepeatPenalty = 0
	if c.DaysSinceLastUse != nil && *c.DaysSinceLastUse < RepeatHorizonDays {
		c.RepeatPenalty = WeightRepeat * float64(RepeatHorizonDays-*c.DaysSinceLastUse)
	}

	total := c.PhePenalty + c.ProteinPenalty + c.KcalPenalty + c.CostPenalty + c.RepeatPenalty
	if c.PantryAvailable {
		total *= PantryBonusFactor
	}
	c.Score = domain.RoundHalfUp(total, 4)
}

// Rank scores every candidate and sorts ascending; ties keep catalog order
func (e *ScoringEngine) Rank(candidates []*FoodCandidate, sc ScoringContext) []*FoodCandidate {
	ranked := make([]*FoodCandidate, len(candidates))
	copy(ranked, candidates)
	for _, c := range ranked {
		e.Score(c, sc)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score < ranked[j].Score
		}
		return ranked[i].Order < ranked[j].Order
	})
	return ranked
}

// TopK returns at most k leading candidates
func TopK(ranked []*FoodCandidate, k int) []*FoodCandidate {
	if len(ranked) <= k {
		return ranked
	}
	return ranked[:k]
}

func overLimitPenalty(value, limit, weight float64) float64 {
	if limit <= 0 {
		return 0
	}
	share := value / limit * 100
	if share <= SingleItemShareThreshold {
		return 0
	}
	excess := share - SingleItemShareThreshold
	return weight * excess * excess / 100
}
