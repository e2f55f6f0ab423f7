package domain

import "github.com/shopspring/decimal"

// Unit is the measurement unit of a serving
type Unit string

const (
	UnitGrams       Unit = "g"
	UnitMilliliters Unit = "ml"
	UnitPiece       Unit = "piece"
)

// IsMass reports whether the unit scales directly against a per-100g profile.
// Liquids are assumed to have a density of 1 g/ml.
func (u Unit) IsMass() bool {
	return u == UnitGrams || u == UnitMilliliters
}

// IsValidUnit checks if a unit is supported
func IsValidUnit(u Unit) bool {
	return u == UnitGrams || u == UnitMilliliters || u == UnitPiece
}

// Nutrient identifies a validated nutrient axis
type Nutrient string

const (
	NutrientPhe     Nutrient = "PHE"
	NutrientProtein Nutrient = "PROTEIN"
	NutrientKcal    Nutrient = "KCAL"
	NutrientFat     Nutrient = "FAT"
)

// ValidatedNutrients returns the nutrients checked against a prescription, in report order
func ValidatedNutrients() []Nutrient {
	return []Nutrient{NutrientPhe, NutrientProtein, NutrientKcal, NutrientFat}
}

// NutrientProfile holds nutrient values per 100g of a catalog item.
// PHE and energy are nullable: nil means the value was never measured.
type NutrientProfile struct {
	PheMg         *float64 `json:"phe_mg"`
	LeucineMg     float64  `json:"leucine_mg"`
	TyrosineMg    float64  `json:"tyrosine_mg"`
	MethionineMg  float64  `json:"methionine_mg"`
	EnergyKJ      float64  `json:"energy_kj"`
	EnergyKcal    *float64 `json:"energy_kcal"`
	ProteinG      float64  `json:"protein_g"`
	CarbohydrateG float64  `json:"carbohydrate_g"`
	FatG          float64  `json:"fat_g"`
}

// Amount returns a pointer to v, for building nullable profile values
func Amount(v float64) *float64 {
	return &v
}

// Phe returns PHE per 100g, treating a missing value as zero
func (p NutrientProfile) Phe() float64 {
	if p.PheMg == nil {
		return 0
	}
	return *p.PheMg
}

// Kcal returns energy per 100g, treating a missing value as zero
func (p NutrientProfile) Kcal() float64 {
	if p.EnergyKcal == nil {
		return 0
	}
	return *p.EnergyKcal
}

// HasValidNutrition reports whether PHE and calories are present and non-negative
func (p NutrientProfile) HasValidNutrition() bool {
	if p.PheMg == nil || p.EnergyKcal == nil {
		return false
	}
	return *p.PheMg >= 0 && *p.EnergyKcal >= 0
}

// NutritionBreakdown is an absolute amount of nutrients for a concrete quantity
type NutritionBreakdown struct {
	PheMg         float64 `json:"phe_mg"`
	LeucineMg     float64 `json:"leucine_mg"`
	TyrosineMg    float64 `json:"tyrosine_mg"`
	MethionineMg  float64 `json:"methionine_mg"`
	EnergyKJ      float64 `json:"energy_kj"`
	EnergyKcal    float64 `json:"energy_kcal"`
	ProteinG      float64 `json:"protein_g"`
	CarbohydrateG float64 `json:"carbohydrate_g"`
	FatG          float64 `json:"fat_g"`
}

// Add returns the field-wise sum of two breakdowns
func (b NutritionBreakdown) Add(o NutritionBreakdown) NutritionBreakdown {
	return NutritionBreakdown{
		PheMg:         b.PheMg + o.PheMg,
		LeucineMg:     b.LeucineMg + o.LeucineMg,
		TyrosineMg:    b.TyrosineMg + o.TyrosineMg,
		MethionineMg:  b.MethionineMg + o.MethionineMg,
		EnergyKJ:      b.EnergyKJ + o.EnergyKJ,
		EnergyKcal:    b.EnergyKcal + o.EnergyKcal,
		ProteinG:      b.ProteinG + o.ProteinG,
		CarbohydrateG: b.CarbohydrateG + o.CarbohydrateG,
		FatG:          b.FatG + o.FatG,
	}
}

// Rounded applies 2-decimal half-up rounding, energy fields to whole units
func (b NutritionBreakdown) Rounded() NutritionBreakdown {
	return NutritionBreakdown{
		PheMg:         RoundHalfUp(b.PheMg, 2),
		LeucineMg:     RoundHalfUp(b.LeucineMg, 2),
		TyrosineMg:    RoundHalfUp(b.TyrosineMg, 2),
		MethionineMg:  RoundHalfUp(b.MethionineMg, 2),
		EnergyKJ:      RoundHalfUp(b.EnergyKJ, 0),
		EnergyKcal:    RoundHalfUp(b.EnergyKcal, 0),
		ProteinG:      RoundHalfUp(b.ProteinG, 2),
		CarbohydrateG: RoundHalfUp(b.CarbohydrateG, 2),
		FatG:          RoundHalfUp(b.FatG, 2),
	}
}

// Value returns the breakdown amount for a validated nutrient
func (b NutritionBreakdown) Value(n Nutrient) float64 {
	switch n {
	case NutrientPhe:
		return b.PheMg
	case NutrientProtein:
		return b.ProteinG
	case NutrientKcal:
		return b.EnergyKcal
	case NutrientFat:
		return b.FatG
	default:
		return 0
	}
}

// RoundHalfUp rounds v to the given number of decimal places, halves away from zero.
// The decimal conversion uses the shortest float representation, so 2.675 rounds to 2.68.
func RoundHalfUp(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
