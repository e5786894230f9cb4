package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// DoctorSelector accepts a doctor id as a JSON number or a key or name as a
// JSON string. The booking page has sent all three over time.
type DoctorSelector string

func (s *DoctorSelector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = DoctorSelector(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("doctor must be an id, key or name: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("doctor id must be an integer: %w", err)
	}
	*s = DoctorSelector(n.String())
	return nil
}

// Price accepts a number or a numeric string such as "4000".
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "₹"))
		if v == "" {
			*p = 0
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("servicePrice must be a number: %w", err)
		}
		*p = Price(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("servicePrice must be a number: %w", err)
	}
	*p = Price(f)
	return nil
}

type BookingRequest struct {
	Name         string         `json:"name"`
	Contact      string         `json:"contact"`
	Service      string         `json:"service"`
	ServicePrice Price          `json:"servicePrice"`
	Doctor       DoctorSelector `json:"doctor"`
	DoctorID     DoctorSelector `json:"doctorId"`
	Date         string         `json:"date"`
	Time         string         `json:"time"`
	Notes        string         `json:"notes"`
}

func (r BookingRequest) toDomain() appointment.BookingRequest {
	doctor := r.DoctorID
	if doctor == "" {
		doctor = r.Doctor
	}
	return appointment.BookingRequest{
		Name:         r.Name,
		Contact:      r.Contact,
		Service:      r.Service,
		ServicePrice: float64(r.ServicePrice),
		Doctor:       string(doctor),
		Date:         r.Date,
		Time:         r.Time,
		Notes:        r.Notes,
	}
}

// UpdateAppointmentRequest changes only the fields present. An empty doctor
// unassigns the appointment.
type UpdateAppointmentRequest struct {
	PatientID    *int64          `json:"patientId"`
	Doctor       *DoctorSelector `json:"doctor"`
	DoctorID     *DoctorSelector `json:"doctorId"`
	Service      *string         `json:"service"`
	ServicePrice *Price          `json:"servicePrice"`
	Date         *string         `json:"date"`
	Time         *string         `json:"time"`
	Notes        *string         `json:"notes"`
	Status       *string         `json:"status"`
}

func (r UpdateAppointmentRequest) toDomain() appointment.AppointmentPatch {
	p := appointment.AppointmentPatch{
		PatientID: r.PatientID,
		Service:   r.Service,
		Date:      r.Date,
		Time:      r.Time,
		Notes:     r.Notes,
	}
	sel := r.DoctorID
	if sel == nil {
		sel = r.Doctor
	}
	if sel != nil {
		v := string(*sel)
		p.Doctor = &v
	}
	if r.ServicePrice != nil {
		v := float64(*r.ServicePrice)
		p.ServicePrice = &v
	}
	if r.Status != nil {
		v := appointment.AppointmentStatus(strings.ToLower(strings.TrimSpace(*r.Status)))
		p.Status = &v
	}
	return p
}

type CompleteAppointmentRequest struct {
	TreatmentType string `json:"treatmentType"`
	Notes         string `json:"notes"`
}

type DoctorRequest struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Contact        string `json:"contact"`
	License        string `json:"license"`
}

func (r DoctorRequest) toDomain() appointment.DoctorInput {
	return appointment.DoctorInput{
		Key:            r.Key,
		Name:           r.Name,
		Specialization: r.Specialization,
		Contact:        r.Contact,
		License:        r.License,
	}
}

type PatientRequest struct {
	Name    string `json:"name"`
	Age     *int   `json:"age"`
	Contact string `json:"contact"`
	Notes   string `json:"notes"`
}

func (r PatientRequest) toDomain() appointment.PatientInput {
	return appointment.PatientInput{Name: r.Name, Age: r.Age, Contact: r.Contact, Notes: r.Notes}
}

type ContactRequest struct {
	Name    string `json:"name"`
	Info    string `json:"info"`
	Message string `json:"message"`
}

type NewsletterRequest struct {
	Email string `json:"email"`
}

// Responses

type AppointmentResponse struct {
	ID           int64     `json:"id"`
	PatientID    *int64    `json:"patientId"`
	PatientName  string    `json:"patientName,omitempty"`
	DoctorID     *int64    `json:"doctorId"`
	DoctorName   string    `json:"doctorName,omitempty"`
	Service      string    `json:"service"`
	ServicePrice float64   `json:"servicePrice"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	Contact      string    `json:"contact,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a appointment.AppointmentDetail) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		PatientName:  a.PatientName,
		DoctorID:     a.DoctorID,
		DoctorName:   a.DoctorName,
		Service:      a.Service,
		ServicePrice: a.ServicePrice,
		Date:         a.Date,
		Time:         a.Time,
		Notes:        a.Notes,
		Status:       string(a.Status),
		Contact:      a.Contact,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type BookingResponse struct {
	OK          bool                `json:"ok"`
	Appointment AppointmentResponse `json:"appointment"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit,omitempty"`
	Offset       int                   `json:"offset,omitempty"`
}

type DoctorResponse struct {
	ID             int64     `json:"id"`
	Key            string    `json:"key,omitempty"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization,omitempty"`
	Contact        string    `json:"contact,omitempty"`
	License        string    `json:"license,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Key:            d.Key,
		Name:           d.Name,
		Specialization: d.Specialization,
		Contact:        d.Contact,
		License:        d.License,
		CreatedAt:      d.CreatedAt,
	}
}

type PatientResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Age       *int       `json:"age,omitempty"`
	Contact   string     `json:"contact,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	LastVisit *time.Time `json:"lastVisit,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toPatientResponse(p appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		Name:      p.Name,
		Age:       p.Age,
		Contact:   p.Contact,
		Notes:     p.Notes,
		LastVisit: p.LastVisit,
		CreatedAt: p.CreatedAt,
	}
}

type HistoryEntryResponse struct {
	AppointmentID  int64  `json:"appointmentId"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Service        string `json:"service"`
	Status         string `json:"status"`
	PatientID      *int64 `json:"patientId"`
	PatientName    string `json:"patientName,omitempty"`
	PatientContact string `json:"patientContact,omitempty"`
	TreatmentType  string `json:"treatmentType,omitempty"`
	TreatmentNotes string `json:"treatmentNotes,omitempty"`
}

type DoctorHistoryResponse struct {
	Doctor  DoctorResponse         `json:"doctor"`
	History []HistoryEntryResponse `json:"history"`
}

type SlotsResponse struct {
	DoctorID   int64    `json:"doctorId"`
	DoctorName string   `json:"doctorName"`
	Date       string   `json:"date"`
	Published  []string `json:"published"`
	Free       []string `json:"free"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}
