package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

var suggestionsByNutrient = map[domain.Nutrient]string{
	domain.NutrientPhe:     "Replace high-PHE items with low-protein specialty products",
	domain.NutrientProtein: "Reduce natural protein sources and rely on PHE-free protein substitute",
	domain.NutrientKcal:    "Add PHE-free energy sources such as low-protein starches, fats or sugars",
	domain.NutrientFat:     "Reduce added fats and fried items",
}

// NormsValidator checks day totals against a norm prescription.
// It holds no state; results depend only on the norm and the day snapshot.
type NormsValidator struct{}

// NewNormsValidator creates a new validator
func NewNormsValidator() *NormsValidator {
	return &NormsValidator{}
}

// Validate validates planned and consumed totals of a day and merges them
func (v *NormsValidator) Validate(norm *domain.NormPrescription, day *domain.MenuDay) *domain.DayValidation {
	planned := DayPlannedTotals(day)
	consumed := DayConsumedTotals(day)

	plannedResult := v.ValidateTotals(norm, planned, domain.ContextPlanned, true)
	consumedResult := v.ValidateTotals(norm, consumed, domain.ContextConsumed, day.HasConsumedEntries())

	return &domain.DayValidation{
		DayID:          day.ID,
		PatientID:      day.PatientID,
		PlannedTotals:  planned,
		ConsumedTotals: consumed,
		Planned:        plannedResult,
		Consumed:       consumedResult,
		Result:         mergeResults(plannedResult, consumedResult),
	}
}

// ValidateTotals compares one set of totals with the norm.
// checkMinimum disables the kcal floor for totals with nothing consumed yet.
func (v *NormsValidator) ValidateTotals(norm *domain.NormPrescription, totals domain.NutritionBreakdown, totalsCtx domain.TotalsContext, checkMinimum bool) domain.ValidationResult {
	result := domain.ValidationResult{
		Level:       domain.LevelOK,
		Deltas:      make([]domain.NutrientDelta, 0, 4),
		Messages:    []string{},
		Suggestions: []string{},
	}

	for _, n := range domain.ValidatedNutrients() {
		actual := totals.Value(n)
		limit := norm.Limit(n)
		d := domain.NutrientDelta{
			Nutrient: n,
			Actual:   actual,
			Limit:    limit,
			Delta:    domain.RoundHalfUp(actual-limit, 2),
			Level:    domain.LevelOK,
			Context:  totalsCtx,
		}

		switch n {
		case domain.NutrientPhe:
			if actual > limit {
				d.Level = domain.LevelBreach
			}
		case domain.NutrientProtein:
			if limit > 0 && actual > limit {
				d.Level = domain.LevelBreach
			}
		case domain.NutrientKcal:
			if checkMinimum && limit > 0 && actual < limit {
				d.Level = domain.LevelBreach
			}
		case domain.NutrientFat:
			if limit > 0 && actual > limit {
				d.Level = domain.LevelWarn
			}
		}

		if d.Level != domain.LevelOK {
			result.Messages = append(result.Messages, deltaMessage(d))
			result.Suggestions = appendUnique(result.Suggestions, suggestionsByNutrient[n])
		}
		result.Level = domain.MostSevere(result.Level, d.Level)
		result.Deltas = append(result.Deltas, d)
	}

	return result
}

// Progress computes the share of each limit already used
func (v *NormsValidator) Progress(norm *domain.NormPrescription, totals domain.NutritionBreakdown) []domain.NutrientProgress {
	progress := make([]domain.NutrientProgress, 0, 4)
	for _, n := range domain.ValidatedNutrients() {
		actual := totals.Value(n)
		limit := norm.Limit(n)
		p := domain.NutrientProgress{Nutrient: n, Actual: actual, Limit: limit}
		if limit > 0 {
			p.PercentUsed = domain.RoundHalfUp(actual/limit*100, 1)
		}
		progress = append(progress, p)
	}
	return progress
}

// mergeResults keeps the most severe delta per nutrient; ties go to the larger magnitude
func mergeResults(planned, consumed domain.ValidationResult) domain.ValidationResult {
	merged := domain.ValidationResult{
		Level:       domain.MostSevere(planned.Level, consumed.Level),
		Deltas:      make([]domain.NutrientDelta, 0, len(planned.Deltas)),
		Messages:    append(append([]string{}, planned.Messages...), consumed.Messages...),
		Suggestions: append([]string{}, planned.Suggestions...),
	}
	for _, s := range consumed.Suggestions {
		merged.Suggestions = appendUnique(merged.Suggestions, s)
	}

	for _, p := range planned.Deltas {
		chosen := p
		if c, ok := consumed.Delta(p.Nutrient); ok {
			switch {
			case c.Level.Rank() > p.Level.Rank():
				chosen = c
			case c.Level.Rank() == p.Level.Rank() && c.Level != domain.LevelOK && math.Abs(c.Delta) > math.Abs(p.Delta):
				chosen = c
			}
		}
		merged.Deltas = append(merged.Deltas, chosen)
	}
	return merged
}

func deltaMessage(d domain.NutrientDelta) string {
	ctx := strings.ToLower(string(d.Context))
	switch d.Nutrient {
	case domain.NutrientPhe:
		return fmt.Sprintf("PHE %.2f mg exceeds limit %.2f mg by %.2f mg (%s)", d.Actual, d.Limit, d.Delta, ctx)
	case domain.NutrientProtein:
		return fmt.Sprintf("Protein %.2f g exceeds limit %.2f g by %.2f g (%s)", d.Actual, d.Limit, d.Delta, ctx)
	case domain.NutrientKcal:
		return fmt.Sprintf("Energy %.0f kcal is %.0f kcal below minimum %.0f kcal (%s)", d.Actual, math.Abs(d.Delta), d.Limit, ctx)
	default:
		return fmt.Sprintf("Fat %.2f g exceeds limit %.2f g by %.2f g (%s)", d.Actual, d.Limit, d.Delta, ctx)
	}
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
