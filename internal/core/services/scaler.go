package services

import (
	"fmt"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// ToGrams converts a quantity in the given unit to grams.
// Piece units need a positive nominal serving size; without one the quantity is zero.
func ToGrams(quantity float64, unit domain.Unit, nominalServingGrams *float64) (float64, error) {
	switch {
	case unit.IsMass():
		return quantity, nil
	case unit == domain.UnitPiece:
		if nominalServingGrams == nil || *nominalServingGrams <= 0 {
			return 0, domain.ErrMissingServingSize
		}
		return *nominalServingGrams * quantity, nil
	default:
		return 0, domain.InvalidInput("unsupported unit %q", unit)
	}
}

// Scale converts a per-100g profile into an absolute breakdown for a quantity.
// On a scaling error the returned breakdown is zero.
func Scale(profile domain.NutrientProfile, quantity float64, unit domain.Unit, nominalServingGrams *float64) (domain.NutritionBreakdown, error) {
	grams, err := ToGrams(quantity, unit, nominalServingGrams)
	if err != nil {
		return domain.NutritionBreakdown{}, err
	}
	return scaleGrams(profile, grams), nil
}

// ScaleItem scales a catalog item's profile using its own nominal serving size
func ScaleItem(item domain.CatalogItem, quantity float64, unit domain.Unit) (domain.NutritionBreakdown, error) {
	return Scale(item.Profile, quantity, unit, item.NominalServingGrams)
}

func scaleGrams(p domain.NutrientProfile, grams float64) domain.NutritionBreakdown {
	factor := grams / 100
	return domain.NutritionBreakdown{
		PheMg:         p.Phe() * factor,
		LeucineMg:     p.LeucineMg * factor,
		TyrosineMg:    p.TyrosineMg * factor,
		MethionineMg:  p.MethionineMg * factor,
		EnergyKJ:      p.EnergyKJ * factor,
		EnergyKcal:    p.Kcal() * factor,
		ProteinG:      p.ProteinG * factor,
		CarbohydrateG: p.CarbohydrateG * factor,
		FatG:          p.FatG * factor,
	}.Rounded()
}

// ProfilePer100g derives a per-100g profile from the absolute nutrition of a dish.
// A zero total weight is a caller error.
func ProfilePer100g(total domain.NutritionBreakdown, weightGrams float64) (domain.NutrientProfile, error) {
	if weightGrams <= 0 {
		return domain.NutrientProfile{}, fmt.Errorf("cannot derive per-100g profile: %w", domain.ErrZeroWeight)
	}
	factor := 100 / weightGrams
	per100 := domain.NutritionBreakdown{
		PheMg:         total.PheMg * factor,
		LeucineMg:     total.LeucineMg * factor,
		TyrosineMg:    total.TyrosineMg * factor,
		MethionineMg:  total.MethionineMg * factor,
		EnergyKJ:      total.EnergyKJ * factor,
		EnergyKcal:    total.EnergyKcal * factor,
		ProteinG:      total.ProteinG * factor,
		CarbohydrateG: total.CarbohydrateG * factor,
		FatG:          total.FatG * factor,
	}.Rounded()

	return domain.NutrientProfile{
		PheMg:         domain.Amount(per100.PheMg),
		LeucineMg:     per100.LeucineMg,
		TyrosineMg:    per100.TyrosineMg,
		MethionineMg:  per100.MethionineMg,
		EnergyKJ:      per100.EnergyKJ,
		EnergyKcal:    domain.Amount(per100.EnergyKcal),
		ProteinG:      per100.ProteinG,
		CarbohydrateG: per100.CarbohydrateG,
		FatG:          per100.FatG,
	}, nil
}
