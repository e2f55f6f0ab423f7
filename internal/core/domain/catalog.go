package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ItemKind discriminates the four catalog variants
type ItemKind string

const (
	ItemKindProduct       ItemKind = "product"
	ItemKindCustomProduct ItemKind = "custom_product"
	ItemKindDish          ItemKind = "dish"
	ItemKindCustomDish    ItemKind = "custom_dish"
)

// ValidItemKinds returns all catalog variants
func ValidItemKinds() []ItemKind {
	return []ItemKind{
		ItemKindProduct,
		ItemKindCustomProduct,
		ItemKindDish,
		ItemKindCustomDish,
	}
}

// IsValidItemKind checks if a kind names a catalog variant
func IsValidItemKind(kind ItemKind) bool {
	for _, k := range ValidItemKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// ItemRef points at exactly one catalog variant
type ItemRef struct {
	Kind ItemKind  `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// NewItemRef creates a validated reference
func NewItemRef(kind ItemKind, id uuid.UUID) (ItemRef, error) {
	ref := ItemRef{Kind: kind, ID: id}
	if err := ref.Validate(); err != nil {
		return ItemRef{}, err
	}
	return ref, nil
}

// Validate checks that the reference names a known variant and a concrete ID
func (r ItemRef) Validate() error {
	if !IsValidItemKind(r.Kind) {
		return InvalidInput("unknown catalog item kind %q", r.Kind)
	}
	if r.ID == uuid.Nil {
		return InvalidInput("catalog item id is required")
	}
	return nil
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// CatalogItem is a product or dish with its per-100g nutrient profile
type CatalogItem struct {
	Ref                 ItemRef         `json:"ref"`
	Name                string          `json:"name"`
	Category            string          `json:"category"`
	Profile             NutrientProfile `json:"profile"`
	DefaultUnit         Unit            `json:"default_unit"`
	NominalServingGrams *float64        `json:"nominal_serving_grams,omitempty"` // required for piece units
}

// IsDish reports whether the item is a composed dish
func (i CatalogItem) IsDish() bool {
	return i.Ref.Kind == ItemKindDish || i.Ref.Kind == ItemKindCustomDish
}

// IngredientRef names a dish component by catalog reference
type IngredientRef struct {
	Item     ItemRef `json:"item"`
	Quantity float64 `json:"quantity"`
	Unit     Unit    `json:"unit"`
}

// DishIngredient is one component of a composed dish
type DishIngredient struct {
	Item     CatalogItem `json:"item"`
	Quantity float64     `json:"quantity"`
	Unit     Unit        `json:"unit"`
}
