package appointment

import (
	"context"
	"time"
)

// Repository contains all store interactions needed by the service.
//
// Lookups return the ErrXNotFound sentinels; other failures come back as
// *StoreError. CreateAppointment and UpdateAppointment return ErrSlotTaken
// when another non-cancelled appointment already holds the doctor slot.
// UpdateAppointment writes only while the stored status still equals
// expected and returns ErrAppointmentChanged otherwise.
type Repository interface {
	// InTx runs fn against a transactional view of the store. fn's error
	// rolls every write back.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id int64) (*Doctor, error)
	GetDoctorByKey(ctx context.Context, key string) (*Doctor, error)
	GetDoctorByName(ctx context.Context, name string) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error
	// DeleteDoctor unassigns the doctor's appointments.
	DeleteDoctor(ctx context.Context, id int64) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	// FindPatientsByContact returns exact contact matches ordered by id.
	FindPatientsByContact(ctx context.Context, contact string) ([]Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	TouchPatientVisit(ctx context.Context, id int64, at time.Time) error
	// DeletePatient removes the patient's appointments and treatment history.
	DeletePatient(ctx context.Context, id int64) error

	// For conflict checks
	HasConflict(ctx context.Context, doctorID int64, date, slot string, excludeID *int64) (bool, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error)
	// ListAppointments orders by date then time.
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error)
	UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) error
	DeleteAppointment(ctx context.Context, id int64) error

	AddTreatmentRecord(ctx context.Context, t *TreatmentRecord) error
	ListDoctorHistory(ctx context.Context, doctorID int64) ([]HistoryEntry, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
