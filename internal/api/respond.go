package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeValidation(w http.ResponseWriter, fields ...string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation_failed",
		Kind:    "ValidationError",
		Details: "validation failed: " + strings.Join(fields, "; "),
		Fields:  fields,
	})
}

// decodeJSON reads a JSON body. An empty body leaves v untouched when
// optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request_body",
		Kind:    "ValidationError",
		Details: "could not parse JSON: " + err.Error(),
	})
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeValidation(w, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeServiceError maps domain errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		verr     *appointment.ValidationError
		aerr     *appointment.AvailabilityError
		cerr     *appointment.ConflictError
		storeErr *appointment.StoreError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Kind:    "ValidationError",
			Details: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.As(err, &aerr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "doctor_unavailable",
			Kind:    "AvailabilityError",
			Details: aerr.Error(),
		})
	case errors.As(err, &cerr):
		code := "slot_taken"
		if cerr.Busy {
			code = "slot_being_booked"
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: code, Kind: "ConflictError", Details: cerr.Error()})
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "invalid_status_transition",
			Kind:    "ValidationError",
			Details: err.Error(),
		})
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "doctor_not_found", Kind: "NotFoundError", Details: err.Error()})
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "patient_not_found", Kind: "NotFoundError", Details: err.Error()})
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "appointment_not_found", Kind: "NotFoundError", Details: err.Error()})
	case errors.As(err, &storeErr):
		log.Error("store failure", zap.String("op", storeErr.Op), zap.Error(storeErr.Err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "store_unavailable",
			Kind:    "StoreError",
			Details: "the appointment store is temporarily unavailable, please retry",
		})
	default:
		log.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

// bookingOutcome labels a booking result for metrics.
func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeConfirmed
	case errors.Is(err, appointment.ErrInvalidInput):
		return metrics.OutcomeValidation
	case errors.Is(err, appointment.ErrUnavailable):
		return metrics.OutcomeAvailability
	case errors.Is(err, appointment.ErrSlotTaken):
		return metrics.OutcomeConflict
	case errors.Is(err, appointment.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeStore
	}
}
