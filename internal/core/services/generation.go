package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// TopCandidatesPerSlot is how many ranked candidates fill a core slot
const TopCandidatesPerSlot = 3

// DaysPerWeek is the length of a weekly run
const DaysPerWeek = 7

// Share of the daily PHE limit and kcal minimum assigned to each slot
var (
	pheDistribution = map[domain.SlotType]float64{
		domain.SlotBreakfast:      0.25,
		domain.SlotMorningSnack:   0.10,
		domain.SlotLunch:          0.30,
		domain.SlotAfternoonSnack: 0.10,
		domain.SlotDinner:         0.20,
		domain.SlotEveningSnack:   0.05,
	}
	kcalDistribution = map[domain.SlotType]float64{
		domain.SlotBreakfast:      0.25,
		domain.SlotMorningSnack:   0.10,
		domain.SlotLunch:          0.35,
		domain.SlotAfternoonSnack: 0.10,
		domain.SlotDinner:         0.15,
		domain.SlotEveningSnack:   0.05,
	}
)

// DayState tracks a day through generation
type DayState string

const (
	DayNotStarted      DayState = "NOT_STARTED"
	DayGeneratingSlots DayState = "GENERATING_SLOTS"
	DayAggregating     DayState = "AGGREGATING"
	DayValidated       DayState = "VALIDATED"
)

var dayStateOrder = []DayState{DayNotStarted, DayGeneratingSlots, DayAggregating, DayValidated}

// Advance moves the state one step forward; any other transition is rejected
func (d *DayState) Advance(next DayState) error {
	for i, st := range dayStateOrder {
		if st == *d && i+1 < len(dayStateOrder) && dayStateOrder[i+1] == next {
			*d = next
			return nil
		}
	}
	return fmt.Errorf("invalid day state transition %s -> %s", *d, next)
}

// MenuGenerationService builds daily and weekly menus slot by slot.
// Generation is greedy and single threaded; slots that cannot be filled stay under-filled.
type MenuGenerationService struct {
	patients   ports.PatientRepository
	norms      ports.NormRepository
	menus      ports.MenuRepository
	candidates *CandidateGenerator
	scoring    *ScoringEngine
	pantry     *PantryResolver
	validator  *NormsValidator
	emitter    *CriticalFactEmitter
	metrics    ports.MenuMetrics
}

// NewMenuGenerationService creates a new generation service
func NewMenuGenerationService(
	patients ports.PatientRepository,
	norms ports.NormRepository,
	menus ports.MenuRepository,
	candidates *CandidateGenerator,
	pantry *PantryResolver,
	emitter *CriticalFactEmitter,
) *MenuGenerationService {
	return &MenuGenerationService{
		patients:   patients,
		norms:      norms,
		menus:      menus,
		candidates: candidates,
		scoring:    NewScoringEngine(),
		pantry:     pantry,
		validator:  NewNormsValidator(),
		emitter:    emitter,
		metrics:    noopMetrics{},
	}
}

// WithMetrics attaches a metrics recorder
func (s *MenuGenerationService) WithMetrics(m ports.MenuMetrics) *MenuGenerationService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// GenerateDailyMenu generates and persists one standalone day
func (s *MenuGenerationService) GenerateDailyMenu(ctx context.Context, patientID uuid.UUID, date time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	start := time.Now()

	patient, norm, failure, err := s.prerequisites(ctx, patientID, opts)
	if err != nil || failure != nil {
		s.observe(domain.ModeDaily, failure, err, start)
		return failure, err
	}

	run := NewGenerationRun(patientID)
	defer run.Close()

	day, state, err := s.generateDay(ctx, run, patient, norm, date, opts, dailyBudget(opts))
	if err != nil {
		s.observe(domain.ModeDaily, nil, err, start)
		return nil, &domain.GenerationAbortedError{Date: domain.DateOnly(date), Err: err}
	}

	if err := s.menus.SaveDay(ctx, day); err != nil {
		s.observe(domain.ModeDaily, nil, err, start)
		return nil, fmt.Errorf("failed to save menu day: %w", err)
	}

	facts := s.validateAndEmit(ctx, norm, day, state)

	result := &domain.GenerationResult{
		Success:          true,
		DayID:            &day.ID,
		Message:          fmt.Sprintf("Daily menu generated for %s", day.Date.Format("2006-01-02")),
		UnderfilledSlots: underfilledSlots(day),
		FactIDs:          factIDs(facts),
	}
	s.observe(domain.ModeDaily, result, nil, start)
	logEvent("menu_generated", map[string]interface{}{
		"mode":              string(domain.ModeDaily),
		"patient_id":        patientID.String(),
		"day_id":            day.ID.String(),
		"underfilled_slots": result.UnderfilledSlots,
		"critical_facts":    len(facts),
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	return result, nil
}

// GenerateWeeklyMenu generates seven consecutive days in one run.
// A failing day aborts the whole batch and nothing is persisted.
func (s *MenuGenerationService) GenerateWeeklyMenu(ctx context.Context, patientID uuid.UUID, startDate time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	start := time.Now()

	patient, norm, failure, err := s.prerequisites(ctx, patientID, opts)
	if err != nil || failure != nil {
		s.observe(domain.ModeWeekly, failure, err, start)
		return failure, err
	}

	run := NewGenerationRun(patientID)
	defer run.Close()

	week := &domain.MenuWeek{
		ID:        uuid.New(),
		PatientID: patientID,
		StartDate: domain.DateOnly(startDate),
		CreatedAt: time.Now(),
	}
	budget := dailyBudget(opts)
	states := make(map[uuid.UUID]*DayState, DaysPerWeek)

	for i := 0; i < DaysPerWeek; i++ {
		date := week.StartDate.AddDate(0, 0, i)
		day, state, err := s.generateDay(ctx, run, patient, norm, date, opts, budget)
		if err != nil {
			s.observe(domain.ModeWeekly, nil, err, start)
			return nil, &domain.GenerationAbortedError{Date: date, Err: err}
		}
		day.WeekID = &week.ID
		week.Days = append(week.Days, day)
		states[day.ID] = state
	}

	RecalculateWeek(week)
	if err := s.menus.SaveWeek(ctx, week); err != nil {
		s.observe(domain.ModeWeekly, nil, err, start)
		return nil, fmt.Errorf("failed to save menu week: %w", err)
	}

	var facts []*domain.CriticalFact
	var underfilled []string
	for _, day := range week.Days {
		facts = append(facts, s.validateAndEmit(ctx, norm, day, states[day.ID])...)
		for _, slot := range underfilledSlots(day) {
			underfilled = append(underfilled, day.Date.Format("2006-01-02")+"/"+slot)
		}
	}

	result := &domain.GenerationResult{
		Success:          true,
		WeekID:           &week.ID,
		Message:          fmt.Sprintf("Weekly menu generated starting %s", week.StartDate.Format("2006-01-02")),
		UnderfilledSlots: underfilled,
		FactIDs:          factIDs(facts),
	}
	s.observe(domain.ModeWeekly, result, nil, start)
	logEvent("menu_generated", map[string]interface{}{
		"mode":              string(domain.ModeWeekly),
		"patient_id":        patientID.String(),
		"week_id":           week.ID.String(),
		"underfilled_slots": underfilled,
		"critical_facts":    len(facts),
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	return result, nil
}

// prerequisites loads the patient and current norm. Input problems come back
// as a failed result; only infrastructure problems are errors.
func (s *MenuGenerationService) prerequisites(ctx context.Context, patientID uuid.UUID, opts domain.GenerationOptions) (*domain.Patient, *domain.NormPrescription, *domain.GenerationResult, error) {
	if patientID == uuid.Nil {
		return nil, nil, failedResult("patient id is required"), nil
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, failedResult(err.Error()), nil
	}

	patient, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, domain.ErrPatientNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, nil, failedResult(fmt.Sprintf("patient %s not found", patientID)), nil
		}
		return nil, nil, nil, fmt.Errorf("failed to load patient: %w", err)
	}

	norm, err := s.norms.GetCurrentNorm(ctx, patientID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load norm prescription: %w", err)
	}
	if norm == nil {
		return nil, nil, failedResult(fmt.Sprintf("patient %s has no current norm prescription", patientID)), nil
	}
	if norm.PheLimitMg <= 0 {
		return nil, nil, failedResult("norm prescription has no positive PHE limit"), nil
	}

	return patient, norm, nil, nil
}

// generateDay fills every slot of one date and aggregates the day
func (s *MenuGenerationService) generateDay(
	ctx context.Context,
	run *GenerationRun,
	patient *domain.Patient,
	norm *domain.NormPrescription,
	date time.Time,
	opts domain.GenerationOptions,
	budget *decimal.Decimal,
) (*domain.MenuDay, *DayState, error) {
	day := domain.NewMenuDay(patient.ID, date)
	state := DayNotStarted
	if err := state.Advance(DayGeneratingSlots); err != nil {
		return nil, nil, err
	}

	for _, slot := range day.Slots {
		slot.TargetPheMg = domain.RoundHalfUp(norm.PheLimitMg*pheDistribution[slot.Type], 2)
		slot.TargetKcal = domain.RoundHalfUp(norm.KcalMin*kcalDistribution[slot.Type], 0)
		if !slot.Type.IsCore() {
			continue
		}

		candidates, err := s.candidates.Generate(ctx, SlotRequest{
			Run:         run,
			Patient:     patient,
			Norm:        norm,
			Date:        day.Date,
			Slot:        slot.Type,
			TargetPheMg: slot.TargetPheMg,
			TargetKcal:  slot.TargetKcal,
			Options:     opts,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("slot %s: %w", slot.Type, err)
		}

		ranked := s.scoring.Rank(candidates, ScoringContext{
			Norm:        norm,
			TargetKcal:  slot.TargetKcal,
			DailyBudget: budget,
		})
		top := TopK(ranked, TopCandidatesPerSlot)

		for _, c := range top {
			if opts.RespectPantry && c.PantryAvailable {
				reserved, err := s.pantry.Reserve(ctx, run, c.Item.Ref, c.ServingGrams, day.Date)
				if err != nil {
					return nil, nil, fmt.Errorf("slot %s: %w", slot.Type, err)
				}
				if !reserved {
					// stock changed between quote and reservation; the entry is bought at market
					c.PantryAvailable = false
					logEvent("pantry_reservation_short", map[string]interface{}{
						"patient_id":    patient.ID.String(),
						"date":          day.Date.Format("2006-01-02"),
						"slot":          string(slot.Type),
						"item":          c.Item.Ref.String(),
						"serving_grams": c.ServingGrams,
					})
				}
			}
			slot.Entries = append(slot.Entries, &domain.MenuEntry{
				ID:         uuid.New(),
				Item:       c.Item,
				ServingQty: c.ServingGrams,
				Unit:       domain.UnitGrams,
				Nutrition:  c.Nutrition,
				CreatedAt:  time.Now(),
			})
		}

		if len(top) < TopCandidatesPerSlot {
			slot.Underfilled = true
			s.metrics.SlotUnderfilled(string(slot.Type))
			logEvent("slot_underfilled", map[string]interface{}{
				"patient_id": patient.ID.String(),
				"date":       day.Date.Format("2006-01-02"),
				"slot":       string(slot.Type),
				"candidates": len(top),
			})
		}
		slot.Totals = SlotPlannedTotals(slot)
	}

	if err := state.Advance(DayAggregating); err != nil {
		return nil, nil, err
	}
	RecalculateDay(day)
	run.AddGeneratedDay(day)

	return day, &state, nil
}

// validateAndEmit validates a persisted day and emits its breaches.
// Emission failures are logged and never fail generation.
func (s *MenuGenerationService) validateAndEmit(ctx context.Context, norm *domain.NormPrescription, day *domain.MenuDay, state *DayState) []*domain.CriticalFact {
	validation := s.validator.Validate(norm, day)
	if state != nil {
		if err := state.Advance(DayValidated); err != nil {
			log.Printf("Day %s: %v", day.ID, err)
		}
	}
	if s.emitter == nil {
		return nil
	}
	facts, err := s.emitter.Emit(ctx, validation)
	if err != nil {
		log.Printf("Failed to emit critical facts for day %s: %v", day.ID, err)
		return nil
	}
	return facts
}

func (s *MenuGenerationService) observe(mode domain.GenerationMode, result *domain.GenerationResult, err error, start time.Time) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case result == nil || !result.Success:
		outcome = "failed"
	}
	s.metrics.ObserveGeneration(string(mode), outcome, time.Since(start))
}

// dailyBudget prefers the daily limit and falls back to a seventh of the weekly limit
func dailyBudget(opts domain.GenerationOptions) *decimal.Decimal {
	if opts.DailyBudgetLimit != nil {
		return opts.DailyBudgetLimit
	}
	if opts.WeeklyBudgetLimit != nil {
		b := opts.WeeklyBudgetLimit.Div(decimal.NewFromInt(DaysPerWeek))
		return &b
	}
	return nil
}

func failedResult(message string) *domain.GenerationResult {
	return &domain.GenerationResult{Success: false, Message: message}
}

func underfilledSlots(day *domain.MenuDay) []string {
	var out []string
	for _, s := range day.Slots {
		if s.Underfilled {
			out = append(out, string(s.Type))
		}
	}
	return out
}

func factIDs(facts []*domain.CriticalFact) []uuid.UUID {
	if len(facts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
	}
	return ids
}
