package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// ExpiringSoonWindow flags lots expiring within this window of the menu date
const ExpiringSoonWindow = 3 * 24 * time.Hour

const quantityEpsilon = 1e-9

// GenerationRun carries state scoped to a single generation request.
// Reservations are in-memory only and never touch persisted stock.
type GenerationRun struct {
	ID        uuid.UUID
	PatientID uuid.UUID

	reservations map[uuid.UUID]float64 // lot ID -> grams
	generated    []*domain.MenuDay
}

// NewGenerationRun starts a run for a patient
func NewGenerationRun(patientID uuid.UUID) *GenerationRun {
	return &GenerationRun{
		ID:           uuid.New(),
		PatientID:    patientID,
		reservations: make(map[uuid.UUID]float64),
	}
}

// Reserved returns grams already reserved from a lot in this run
func (r *GenerationRun) Reserved(lotID uuid.UUID) float64 {
	return r.reservations[lotID]
}

// ReservedTotal returns the grams reserved across all lots
func (r *GenerationRun) ReservedTotal() float64 {
	var total float64
	for _, q := range r.reservations {
		total += q
	}
	return total
}

// AddGeneratedDay records a day produced earlier in this run
func (r *GenerationRun) AddGeneratedDay(day *domain.MenuDay) {
	r.generated = append(r.generated, day)
}

// GeneratedDays returns the days produced so far in this run
func (r *GenerationRun) GeneratedDays() []*domain.MenuDay {
	return r.generated
}

// Close drops every reservation held by the run
func (r *GenerationRun) Close() {
	r.reservations = make(map[uuid.UUID]float64)
	r.generated = nil
}

// PantryQuote describes how a quantity of an item would be sourced
type PantryQuote struct {
	AvailableGrams float64
	Cost           decimal.Decimal
	Sufficient     bool
	ExpiringSoon   bool
}

// PantryResolver answers availability and cost questions for candidates
type PantryResolver struct {
	pantry              ports.PantryRepository
	prices              ports.PriceRepository
	defaultPricePerGram decimal.Decimal
}

// NewPantryResolver creates a resolver; defaultPricePerGram applies when no market price is known
func NewPantryResolver(pantry ports.PantryRepository, prices ports.PriceRepository, defaultPricePerGram decimal.Decimal) *PantryResolver {
	return &PantryResolver{
		pantry:              pantry,
		prices:              prices,
		defaultPricePerGram: defaultPricePerGram,
	}
}

// Quote walks usable lots nearest expiry first, net of run reservations
func (p *PantryResolver) Quote(ctx context.Context, run *GenerationRun, item domain.ItemRef, grams float64, menuDate time.Time) (*PantryQuote, error) {
	lots, err := p.usableLots(ctx, run.PatientID, item, menuDate)
	if err != nil {
		return nil, err
	}

	quote := &PantryQuote{Cost: decimal.Zero}
	remaining := grams
	lotCost := decimal.Zero
	for _, lot := range lots {
		available := lot.QuantityGrams - run.Reserved(lot.ID)
		if available <= quantityEpsilon {
			continue
		}
		quote.AvailableGrams += available
		if lot.ExpiresWithin(menuDate, ExpiringSoonWindow) {
			quote.ExpiringSoon = true
		}
		if remaining > quantityEpsilon {
			take := minFloat(remaining, available)
			lotCost = lotCost.Add(lot.CostPerGram.Mul(decimal.NewFromFloat(take)))
			remaining -= take
		}
	}

	if remaining <= quantityEpsilon {
		quote.Sufficient = true
		quote.Cost = lotCost.Round(4)
		return quote, nil
	}

	cost, err := p.MarketCost(ctx, item, grams)
	if err != nil {
		return nil, err
	}
	quote.Cost = cost
	return quote, nil
}

// MarketCost prices a quantity at the best market price, or the default price per gram
func (p *PantryResolver) MarketCost(ctx context.Context, item domain.ItemRef, grams float64) (decimal.Decimal, error) {
	price, err := p.prices.FindBestPrice(ctx, item)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to look up price for %s: %w", item, err)
	}
	perGram := p.defaultPricePerGram
	if price != nil {
		perGram = *price
	}
	return perGram.Mul(decimal.NewFromFloat(grams)).Round(4), nil
}

// Reserve allocates grams across lots usable on menuDate. Allocation is
// all-or-nothing: when stock cannot cover the quantity nothing is reserved
// and false is returned.
func (p *PantryResolver) Reserve(ctx context.Context, run *GenerationRun, item domain.ItemRef, grams float64, menuDate time.Time) (bool, error) {
	lots, err := p.usableLots(ctx, run.PatientID, item, menuDate)
	if err != nil {
		return false, err
	}

	tentative := make(map[uuid.UUID]float64)
	remaining := grams
	for _, lot := range lots {
		if remaining <= quantityEpsilon {
			break
		}
		available := lot.QuantityGrams - run.Reserved(lot.ID)
		if available <= quantityEpsilon {
			continue
		}
		take := minFloat(remaining, available)
		tentative[lot.ID] = take
		remaining -= take
	}

	if remaining > quantityEpsilon {
		return false, nil
	}
	for lotID, q := range tentative {
		run.reservations[lotID] += q
	}
	return true, nil
}

// usableLots drops lots that expired before menuDate and orders the rest nearest expiry first
func (p *PantryResolver) usableLots(ctx context.Context, patientID uuid.UUID, item domain.ItemRef, menuDate time.Time) ([]domain.PantryLot, error) {
	found, err := p.pantry.FindAvailableLots(ctx, patientID, item)
	if err != nil {
		return nil, fmt.Errorf("failed to load pantry lots for %s: %w", item, err)
	}
	lots := found[:0]
	for _, lot := range found {
		if !lot.ExpiredBy(menuDate) {
			lots = append(lots, lot)
		}
	}
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i].ExpiresAt, lots[j].ExpiresAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return lots, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
