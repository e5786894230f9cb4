package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
)

// Mailer is the part of the notification gateway the site forms use.
type Mailer interface {
	SendContact(ctx context.Context, c notify.ContactRequest) error
	Newsletter(ctx context.Context, email string)
	Live() bool
}

type handlers struct {
	svc     *appointment.Service
	mailer  Mailer
	metrics *metrics.Collector
	log     *zap.Logger
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UnixMilli()})
}

// Appointments

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if !decodeJSON(w, r, &req, false) {
		h.metrics.Booking(metrics.OutcomeValidation)
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), req.toDomain())
	h.metrics.Booking(bookingOutcome(err))
	if err != nil {
		h.log.Info("booking rejected",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("outcome", bookingOutcome(err)),
			zap.Error(err),
		)
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookingResponse{OK: true, Appointment: toAppointmentResponse(*appt)})
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		f      appointment.AppointmentFilter
		fields []string
	)

	optionalID := func(key string) *int64 {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields = append(fields, key+" must be an integer")
			return nil
		}
		return &id
	}
	optionalInt := func(key string) int {
		v := q.Get(key)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, key+" must be a non-negative integer")
			return 0
		}
		return n
	}

	f.DoctorID = optionalID("doctorId")
	f.PatientID = optionalID("patientId")
	f.Date = q.Get("date")
	f.Status = appointment.AppointmentStatus(q.Get("status"))
	f.Limit = optionalInt("limit")
	f.Offset = optionalInt("offset")
	if len(fields) > 0 {
		writeValidation(w, fields...)
		return
	}

	list, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(list)),
		Limit:        f.Limit,
		Offset:       f.Offset,
	}
	for _, a := range list {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateAppointmentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	appt, err := h.svc.UpdateAppointment(r.Context(), id, req.toDomain())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.CancelAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CompleteAppointmentRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	appt, err := h.svc.CompleteAppointment(r.Context(), id, appointment.CompletionInput{
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteAppointment(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
