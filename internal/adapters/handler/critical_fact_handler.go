package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/adapters/middleware"
	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// CriticalFactHandler handles HTTP requests for breach records
type CriticalFactHandler struct {
	menus ports.MenuService
}

// NewCriticalFactHandler creates a new critical fact handler
func NewCriticalFactHandler(menus ports.MenuService) *CriticalFactHandler {
	return &CriticalFactHandler{menus: menus}
}

// ListCriticalFacts handles GET /patients/{patient_id}/critical-facts[?unresolved=true]
func (h *CriticalFactHandler) ListCriticalFacts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	patientID, err := pathUUID(r, "patient_id")
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	if err := checkPatientAccess(r, patientID); err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	unresolvedOnly := false
	if raw := r.URL.Query().Get("unresolved"); raw != "" {
		unresolvedOnly, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, requestID, start, domain.InvalidInput("unresolved must be a boolean"))
			return
		}
	}

	facts, err := h.menus.ListCriticalFacts(r.Context(), patientID, unresolvedOnly)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}
	if facts == nil {
		facts = []*domain.CriticalFact{}
	}

	writeJSON(w, http.StatusOK, facts)
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}

// ResolveCriticalFact handles POST /critical-facts/{fact_id}/resolve
// CAREGIVER only - the caller is recorded as the resolver
func (h *CriticalFactHandler) ResolveCriticalFact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	factID, err := pathUUID(r, "fact_id")
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	userIDStr, _ := middleware.GetUserID(r.Context())
	resolvedBy, err := uuid.Parse(userIDStr)
	if err != nil {
		writeError(w, r, requestID, start, domain.InvalidInput("caller id is not a UUID"))
		return
	}

	fact, err := h.menus.ResolveCriticalFact(r.Context(), factID, resolvedBy)
	if err != nil {
		writeError(w, r, requestID, start, err)
		return
	}

	writeJSON(w, http.StatusOK, fact)
	logStructured(r, requestID, http.StatusOK, time.Since(start))
}
