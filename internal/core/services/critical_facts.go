package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// CriticalFactEmitter turns validation breaches into persisted, published facts
type CriticalFactEmitter struct {
	facts     ports.CriticalFactRepository
	publisher ports.BreachPublisher
	metrics   ports.MenuMetrics
	now       func() time.Time
}

// NewCriticalFactEmitter creates a new emitter. publisher may be nil.
func NewCriticalFactEmitter(facts ports.CriticalFactRepository, publisher ports.BreachPublisher) *CriticalFactEmitter {
	return &CriticalFactEmitter{
		facts:     facts,
		publisher: publisher,
		metrics:   noopMetrics{},
		now:       time.Now,
	}
}

// WithMetrics attaches a metrics recorder
func (e *CriticalFactEmitter) WithMetrics(m ports.MenuMetrics) *CriticalFactEmitter {
	if m != nil {
		e.metrics = m
	}
	return e
}

// BuildFacts derives at most one fact per nutrient from a validation.
// When both contexts qualify, the one with the larger actual is reported.
func (e *CriticalFactEmitter) BuildFacts(v *domain.DayValidation) []*domain.CriticalFact {
	var facts []*domain.CriticalFact
	for _, n := range domain.ValidatedNutrients() {
		var chosen *domain.NutrientDelta
		for _, result := range []domain.ValidationResult{v.Planned, v.Consumed} {
			d, ok := result.Delta(n)
			if !ok || !qualifies(d) {
				continue
			}
			if chosen == nil || d.Actual > chosen.Actual {
				dd := d
				chosen = &dd
			}
		}
		if chosen == nil {
			continue
		}

		facts = append(facts, &domain.CriticalFact{
			ID:         uuid.New(),
			PatientID:  v.PatientID,
			MenuDayID:  v.DayID,
			BreachType: domain.BreachTypeFor(n),
			Delta:      chosen.Delta,
			Limit:      chosen.Limit,
			Actual:     chosen.Actual,
			Context:    chosen.Context,
			Severity:   domain.ClassifySeverity(chosen.Delta, chosen.Limit),
			CreatedAt:  e.now(),
		})
	}
	return facts
}

// Emit persists each fact and publishes a breach event for it.
// Publish failures are logged and do not fail the call.
func (e *CriticalFactEmitter) Emit(ctx context.Context, v *domain.DayValidation) ([]*domain.CriticalFact, error) {
	facts := e.BuildFacts(v)
	for _, fact := range facts {
		if err := e.facts.SaveCriticalFact(ctx, fact); err != nil {
			return nil, fmt.Errorf("failed to save critical fact: %w", err)
		}

		logEvent("critical_fact_emitted", map[string]interface{}{
			"fact_id":     fact.ID.String(),
			"patient_id":  fact.PatientID.String(),
			"menu_day_id": fact.MenuDayID.String(),
			"breach_type": string(fact.BreachType),
			"severity":    string(fact.Severity),
			"context":     string(fact.Context),
			"delta":       fact.Delta,
		})
		e.metrics.CriticalFactEmitted(string(fact.BreachType), string(fact.Severity))

		if e.publisher == nil {
			continue
		}
		if err := e.publisher.PublishBreach(ctx, fact); err != nil {
			e.metrics.BreachPublished("error")
			log.Printf("Failed to publish breach event for fact %s: %v", fact.ID, err)
			continue
		}
		e.metrics.BreachPublished("success")
	}
	return facts, nil
}

// Resolve marks a fact resolved by a caregiver
func (e *CriticalFactEmitter) Resolve(ctx context.Context, factID, resolvedBy uuid.UUID) (*domain.CriticalFact, error) {
	fact, err := e.facts.GetCriticalFact(ctx, factID)
	if err != nil {
		return nil, err
	}
	if err := fact.Resolve(resolvedBy, e.now()); err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			return fact, err
		}
		return nil, err
	}
	if err := e.facts.ResolveCriticalFact(ctx, fact); err != nil {
		return nil, fmt.Errorf("failed to resolve critical fact: %w", err)
	}
	return fact, nil
}

func qualifies(d domain.NutrientDelta) bool {
	if d.Level == domain.LevelOK {
		return false
	}
	if d.Nutrient == domain.NutrientKcal {
		return d.Delta < 0
	}
	return d.Delta > 0
}
