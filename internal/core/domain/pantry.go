package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PantryLot is patient-owned stock of one catalog item
type PantryLot struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	Item          ItemRef         `json:"item"`
	QuantityGrams float64         `json:"quantity_grams"`
	CostPerGram   decimal.Decimal `json:"cost_per_gram"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

// ExpiresWithin reports whether the lot expires before ref+window
func (l PantryLot) ExpiresWithin(ref time.Time, window time.Duration) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return l.ExpiresAt.Before(ref.Add(window))
}

// ExpiredBy reports whether the lot expired before the given menu date
func (l PantryLot) ExpiredBy(menuDate time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(DateOnly(menuDate))
}
