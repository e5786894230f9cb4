package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Doctors

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	resp := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		resp = append(resp, toDoctorResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": resp})
}

func (h *handlers) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req DoctorRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	d, err := h.svc.CreateDoctor(r.Context(), req.toDomain())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDoctorResponse(*d))
}

func (h *handlers) getDoctor(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDoctor(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(*d))
}

func (h *handlers) updateDoctor(w http.ResponseWriter, r *http.Request) {
	var req DoctorRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	d, err := h.svc.UpdateDoctor(r.Context(), chi.URLParam(r, "ref"), req.toDomain())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(*d))
}

func (h *handlers) deleteDoctor(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDoctor(r.Context(), chi.URLParam(r, "ref")); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) doctorHistory(w http.ResponseWriter, r *http.Request) {
	d, history, err := h.svc.DoctorHistory(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	resp := DoctorHistoryResponse{
		Doctor:  toDoctorResponse(*d),
		History: make([]HistoryEntryResponse, 0, len(history)),
	}
	for _, e := range history {
		resp.History = append(resp.History, HistoryEntryResponse{
			AppointmentID:  e.AppointmentID,
			Date:           e.Date,
			Time:           e.Time,
			Service:        e.Service,
			Status:         string(e.Status),
			PatientID:      e.PatientID,
			PatientName:    e.PatientName,
			PatientContact: e.PatientContact,
			TreatmentType:  e.TreatmentType,
			TreatmentNotes: e.TreatmentNotes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) doctorSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeValidation(w, "date is required")
		return
	}
	slots, err := h.svc.FreeSlots(r.Context(), chi.URLParam(r, "ref"), date)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	published := slots.Published
	if published == nil {
		published = []string{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{
		DoctorID:   slots.Doctor.ID,
		DoctorName: slots.Doctor.Name,
		Date:       slots.Date,
		Published:  published,
		Free:       slots.Free,
	})
}

// Patients

func (h *handlers) createPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.svc.CreatePatient(r.Context(), req.toDomain())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(*p))
}

func (h *handlers) getPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPatient(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(*p))
}

func (h *handlers) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PatientRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.svc.UpdatePatient(r.Context(), id, req.toDomain())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(*p))
}

func (h *handlers) deletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePatient(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
