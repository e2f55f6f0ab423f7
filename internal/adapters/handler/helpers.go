package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/adapters/middleware"
	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

// generateRequestID generates a unique request ID for tracing
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}

// logStructured logs structured JSON with request metadata
func logStructured(r *http.Request, requestID string, statusCode int, duration time.Duration) {
	userID, _ := middleware.GetUserID(r.Context())
	role, _ := middleware.GetRole(r.Context())

	logEntry := map[string]interface{}{
		"request_id":  requestID,
		"user_id":     userID,
		"role":        role,
		"method":      r.Method,
		"endpoint":    r.URL.Path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	jsonBytes, err := json.Marshal(logEntry)
	if err != nil {
		log.Printf("[%s] Failed to marshal log entry: %v", requestID, err)
		return
	}

	log.Printf("%s", string(jsonBytes))
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, requestID string, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, RequestID: requestID})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPatientNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrZeroWeight),
		errors.Is(err, domain.ErrMissingServingSize):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGenerationLocked), errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoCurrentNorm):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and replies with its mapped status; internal details are not exposed
func writeError(w http.ResponseWriter, r *http.Request, requestID string, start time.Time, err error) {
	status := statusFor(err)
	log.Printf("[%s] %s %s failed: %v", requestID, r.Method, r.URL.Path, err)

	message := err.Error()
	var aborted *domain.GenerationAbortedError
	switch {
	case status == http.StatusInternalServerError && errors.As(err, &aborted):
		status = http.StatusServiceUnavailable
		message = fmt.Sprintf("menu generation aborted at %s, nothing was saved", aborted.Date.Format("2006-01-02"))
	case status == http.StatusInternalServerError:
		message = "internal server error"
	}
	writeMessage(w, requestID, status, message)
	logStructured(r, requestID, status, time.Since(start))
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.InvalidInput("invalid %s", name)
	}
	return id, nil
}

// errForbidden is answered with 403 by the handlers
var errForbidden = errors.New("forbidden")

func checkPatientAccess(r *http.Request, patientID uuid.UUID) error {
	if !middleware.CanAccessPatient(r.Context(), patientID.String()) {
		return errForbidden
	}
	return nil
}

func parseDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, domain.InvalidInput("%s is required", field)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.InvalidInput("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}
