package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

const (
	MinServingGrams = 10.0
	MaxServingGrams = 500.0
	// FallbackSlotPheShare is the share of the daily PHE limit used when a slot has no target
	FallbackSlotPheShare = 0.20
	// MinSuitableItems below this the category filter is dropped for the slot
	MinSuitableItems = 5
)

// slotCategories lists category keywords suitable per slot type
var slotCategories = map[domain.SlotType][]string{
	domain.SlotBreakfast:      {"breakfast", "cereal", "bread", "fruit", "spread", "dairy substitute", "beverage"},
	domain.SlotMorningSnack:   {"snack", "fruit", "biscuit", "beverage"},
	domain.SlotLunch:          {"main", "pasta", "rice", "vegetable", "soup", "potato", "salad"},
	domain.SlotAfternoonSnack: {"snack", "fruit", "biscuit", "dessert", "beverage"},
	domain.SlotDinner:         {"main", "pasta", "rice", "vegetable", "soup", "potato", "salad"},
	domain.SlotEveningSnack:   {"snack", "fruit", "dessert", "beverage", "bread"},
}

// FoodCandidate is a scored option for filling a slot, scoped to one generation
type FoodCandidate struct {
	Item             domain.CatalogItem
	ServingGrams     float64
	Nutrition        domain.NutritionBreakdown
	CostPerServing   decimal.Decimal
	PantryAvailable  bool
	PantryQtyGrams   float64
	ExpiringSoon     bool
	DaysSinceLastUse *int

	PhePenalty     float64
	ProteinPenalty float64
	KcalPenalty    float64
	CostPenalty    float64
	RepeatPenalty  float64
	Score          float64

	// Order is the item's position in the catalog listing, used for stable ties
	Order int
}

// SlotRequest describes the slot being filled
type SlotRequest struct {
	Run         *GenerationRun
	Patient     *domain.Patient
	Norm        *domain.NormPrescription
	Date        time.Time
	Slot        domain.SlotType
	TargetPheMg float64
	TargetKcal  float64
	Options     domain.GenerationOptions
}

// CandidateGenerator produces eligible candidates for a slot
type CandidateGenerator struct {
	catalog ports.CatalogRepository
	variety *VarietyEngine
	pantry  *PantryResolver
}

// NewCandidateGenerator creates a new candidate generator
func NewCandidateGenerator(catalog ports.CatalogRepository, variety *VarietyEngine, pantry *PantryResolver) *CandidateGenerator {
	return &CandidateGenerator{
		catalog: catalog,
		variety: variety,
		pantry:  pantry,
	}
}

// Generate returns every eligible candidate for the slot in catalog order.
// An empty list is a valid outcome.
func (g *CandidateGenerator) Generate(ctx context.Context, req SlotRequest) ([]*FoodCandidate, error) {
	items, err := g.catalog.FindAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	history, err := g.variety.Load(ctx, req.Patient.ID, req.Date, req.Run.GeneratedDays(), req.Options.EmergencyMode)
	if err != nil {
		return nil, err
	}
	slot := req.Slot
	recent := history.AvoidanceSet(&slot)
	avoidTerms := avoidList(req.Options.FoodsToAvoid, req.Patient.Allergens)

	pool := suitableIndexes(items, req.Slot)
	if len(pool) < MinSuitableItems {
		pool = make([]int, len(items))
		for i := range items {
			pool[i] = i
		}
	}

	candidates := make([]*FoodCandidate, 0, len(pool))
	for _, idx := range pool {
		item := items[idx]
		if matchesAvoidList(item, avoidTerms) {
			continue
		}
		if !item.Profile.HasValidNutrition() {
			continue
		}
		if _, used := recent[normalizeName(item.Name)]; used {
			continue
		}
		grams, ok := servingGrams(req, item)
		if !ok {
			continue
		}
		nutrition, err := Scale(item.Profile, grams, domain.UnitGrams, nil)
		if err != nil {
			continue
		}

		c := &FoodCandidate{
			Item:         item,
			ServingGrams: grams,
			Nutrition:    nutrition,
			Order:        idx,
		}
		if days, found := history.DaysSinceLastUse(item.Name, &slot); found {
			d := days
			c.DaysSinceLastUse = &d
		}

		if req.Options.RespectPantry {
			quote, err := g.pantry.Quote(ctx, req.Run, item.Ref, grams, req.Date)
			if err != nil {
				return nil, err
			}
			c.CostPerServing = quote.Cost
			c.PantryAvailable = quote.Sufficient
			c.PantryQtyGrams = quote.AvailableGrams
			c.ExpiringSoon = quote.ExpiringSoon
		} else {
			cost, err := g.pantry.MarketCost(ctx, item.Ref, grams)
			if err != nil {
				return nil, err
			}
			c.CostPerServing = cost
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// servingGrams sizes a serving to hit the slot PHE target. Items without PHE are excluded.
func servingGrams(req SlotRequest, item domain.CatalogItem) (float64, bool) {
	target := req.TargetPheMg
	if target <= 0 {
		target = req.Norm.PheLimitMg * FallbackSlotPheShare
	}
	if req.Options.MaxPhePerMeal != nil && *req.Options.MaxPhePerMeal > 0 && target > *req.Options.MaxPhePerMeal {
		target = *req.Options.MaxPhePerMeal
	}

	phe := item.Profile.Phe()
	if phe <= 0 || target <= 0 {
		return 0, false
	}

	grams := target / phe * 100
	if grams < MinServingGrams {
		grams = MinServingGrams
	}
	if grams > MaxServingGrams {
		grams = MaxServingGrams
	}
	return domain.RoundHalfUp(grams, 1), true
}

func suitableIndexes(items []domain.CatalogItem, slot domain.SlotType) []int {
	keywords := slotCategories[slot]
	var out []int
	for i, item := range items {
		category := strings.ToLower(item.Category)
		for _, kw := range keywords {
			if strings.Contains(category, kw) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func avoidList(foods, allergens []string) []string {
	terms := make([]string, 0, len(foods)+len(allergens))
	for _, group := range [][]string{foods, allergens} {
		for _, t := range group {
			if n := normalizeName(t); n != "" {
				terms = append(terms, n)
			}
		}
	}
	return terms
}

func matchesAvoidList(item domain.CatalogItem, terms []string) bool {
	name := strings.ToLower(item.Name)
	category := strings.ToLower(item.Category)
	for _, t := range terms {
		if strings.Contains(name, t) || strings.Contains(category, t) {
			return true
		}
	}
	return false
}
