package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// MenuHandler handles HTTP requests for menu generation and editing
type MenuHandler struct {
	generator ports.MenuGenerator
	menus     ports.MenuService
}

// NewMenuHandler creates a new menu handler
func NewMenuHandler(generator ports.MenuGenerator, menus ports.MenuService) *MenuHandler {
	return &MenuHandler{
		generator: generator,
		menus:     menus,
	}
}

// GenerateDailyRequest represents the request body for a daily run
type GenerateDailyRequest struct {
	Date    string                   `json:"date"`
	Options domain.GenerationOptions `json:"options"`
}

// GenerateWeeklyRequest represents the request body for a weekly run
type GenerateWeeklyRequest struct {
	StartDate string                   `json:"start_date"`
	Options   domain.GenerationOptions `json:"options"`
}

// AddEntryRequest represents the request body for a manual entry
type AddEntryRequest struct {
	Slot     domain.SlotType `json:"slot"`
	Item     domain.ItemRef  `json:"item"`
	Quantity float64         `json:"quantity"`
	Unit     domain.Unit     `json:"unit"`
}

// ConsumptionRequest represents the request body for recording consumption
type ConsumptionRequest struct {
	ConsumedQty        *float64 `json:"consumed_qty"`
	ActualServingGrams *float64 `json:"actual_serving_grams"`
}

// ComposeDishRequest represents the request body for composing a custom dish
type ComposeDishRequest struct {
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	Ingredients []domain.IngredientRef `json:"ingredients"`
}

// ValidationResponse bundles a day validation with the facts it emitted
type ValidationResponse struct {
	Validation    *domain.DayValidation  `json:"validation"`
	CriticalFacts []*domain.CriticalFact `json:"critical_facts"`
}

// GenerateDaily handles POST /patients/{patient_id}/menus/daily
func (h *MenuHandler) GenerateDaily(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	patientID, err := h.authorizedPatient(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	var req GenerateDailyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	result, err := h.generator.GenerateDailyMenu(r.Context(), patientID, date, req.Options)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	h.writeGenerationResult(w, r, requestID, start, result)
}

// GenerateWeekly handles POST /patients/{patient_id}/menus/weekly
func (h *MenuHandler) GenerateWeekly(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	patientID, err := h.authorizedPatient(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	var req GenerateWeeklyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	startDate, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	result, err := h.generator.GenerateWeeklyMenu(r.Context(), patientID, startDate, req.Options)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	h.writeGenerationResult(w, r, requestID, start, result)
}

// a failed result carries the reason and nothing was persisted
func (h *MenuHandler) writeGenerationResult(w http.ResponseWriter, r *http.Request, requestID string, start time.Time, result *domain.GenerationResult) {
	status := http.StatusCreated
	if !result.Success {
		log.Printf("[%s] Generation rejected: %s", requestID, result.Message)
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
	logStructured(r, requestID, status, time.Since(start))
}

// GetMenuDay handles GET /menu-days/{day_id}
func (h *MenuHandler) GetMenuDay(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	day, err := h.authorizedDay(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusOK, day)
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}

// ValidateMenuDay handles GET /menu-days/{day_id}/validation[?emit=true]
func (h *MenuHandler) ValidateMenuDay(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	day, err := h.authorizedDay(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	emit := false
	if raw := r.URL.Query().Get("emit"); raw != "" {
		emit, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, requestID, start, domain.InvalidInput("emit must be a boolean"))
			return
		}
	}

	validation, facts, err := h.menus.ValidateMenuDay(r.Context(), day.ID, emit)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	if facts == nil {
		facts = []*domain.CriticalFact{}
	}

	writeJSON(w, http.StatusOK, ValidationResponse{Validation: validation, CriticalFacts: facts})
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}

// DayProgress handles GET /menu-days/{day_id}/progress[?context=CONSUMED]
func (h *MenuHandler) DayProgress(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	day, err := h.authorizedDay(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	totalsCtx := domain.ContextPlanned
	switch raw := domain.TotalsContext(r.URL.Query().Get("context")); raw {
	case "", domain.ContextPlanned:
	case domain.ContextConsumed:
		totalsCtx = raw
	default:
		writeError(w, r, requestID, start, domain.InvalidInput("context must be PLANNED or CONSUMED"))
		return
	}

	progress, err := h.menus.DayProgress(r.Context(), day.ID, totalsCtx)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}

// AddEntry handles POST /menu-days/{day_id}/entries
func (h *MenuHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	day, err := h.authorizedDay(r)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	var req AddEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	entry, err := h.menus.AddManualEntry(r.Context(), day.ID, req.Slot, req.Item, req.Quantity, req.Unit)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
	logStructured(r, requestID, http.StatusCreated, time.Since(start))
}

// RecordConsumption handles PUT /menu-entries/{entry_id}/consumption
func (h *MenuHandler) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	entryID, err := pathUUID(r, "entry_id")
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	owner, err := h.menus.GetMenuDayByEntry(r.Context(), entryID)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	if err := checkPatientAccess(r, owner.PatientID); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	var req ConsumptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	day, err := h.menus.RecordConsumption(r.Context(), entryID, req.ConsumedQty, req.ActualServingGrams)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusOK, day)
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}

// ComposeDish handles POST /dishes/compose
func (h *MenuHandler) ComposeDish(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	var req ComposeDishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	dish, err := h.menus.ComposeDishFromCatalog(r.Context(), req.Name, req.Category, req.Ingredients)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusCreated, dish)
	logStructured(r, requestID, http.StatusCreated, time.Since(start))
}

func (h *MenuHandler) authorizedPatient(r *http.Request) (uuid.UUID, error) {
	patientID, err := pathUUID(r, "patient_id")
	if err != nil {
		return uuid.Nil, err
	}
	return patientID, checkPatientAccess(r, patientID)
}

func (h *MenuHandler) authorizedDay(r *http.Request) (*domain.MenuDay, error) {
	dayID, err := pathUUID(r, "day_id")
	if err != nil {
		return nil, err
	}
	day, err := h.menus.GetMenuDay(r.Context(), dayID)
	if err != nil {
		return nil, err
	}
	if err := checkPatientAccess(r, day.PatientID); err != nil {
		return nil, err
	}
	return day, nil
}
