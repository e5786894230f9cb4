package appointment

import (
	"time"
)

type AppointmentStatus string

// Status lifecycle:
//
//	pending   → confirmed | cancelled
//	confirmed → completed | cancelled
//
// completed and cancelled are terminal. Bookings are created confirmed.
const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an appointment in s may move to next.
// Staying in the same status is always allowed.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s == next {
		return true
	}
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	}
	for _, a := range allowed[s] {
		if a == next {
			return true
		}
	}
	return false
}

type Doctor struct {
	ID             int64
	Key            string // availability key, e.g. dr-anoop; empty if unscheduled
	Name           string
	Specialization string
	Contact        string
	License        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        int64
	Name      string
	Age       *int
	Contact   string
	Notes     string
	LastVisit *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID           int64
	PatientID    *int64
	DoctorID     *int64
	Service      string
	ServicePrice float64
	Date         string // YYYY-MM-DD, clinic local
	Time         string // slot label HH:MM
	Notes        string
	Status       AppointmentStatus
	Contact      string // copy of the booking contact
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HoldsSlot reports whether the appointment blocks its doctor's slot.
func (a *Appointment) HoldsSlot() bool {
	return a.DoctorID != nil && a.Status != StatusCancelled
}

// AppointmentDetail is the joined read shape used for display.
type AppointmentDetail struct {
	Appointment
	PatientName string
	DoctorName  string
}

type TreatmentRecord struct {
	ID            int64
	AppointmentID *int64
	PatientID     *int64
	DoctorID      *int64
	TreatmentType string
	Notes         string
	RecordedAt    time.Time
}

// HistoryEntry is one row of a doctor's patient history.
type HistoryEntry struct {
	AppointmentID  int64
	Date           string
	Time           string
	Service        string
	Status         AppointmentStatus
	PatientID      *int64
	PatientName    string
	PatientContact string
	TreatmentType  string
	TreatmentNotes string
}

type AppointmentFilter struct {
	DoctorID  *int64
	PatientID *int64
	Date      string
	Status    AppointmentStatus
	Limit     int
	Offset    int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
