package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

type NotificationKind string

const (
	NotifyClinicCopy          NotificationKind = "clinic_copy"
	NotifyPatientConfirmation NotificationKind = "patient_confirmation"
)

// Notifier delivers booking notifications. Notify must not block the caller
// and reports failures through its own logging only.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, recipient string, appt AppointmentDetail)
}

// BookingRequest is a booking as submitted from the site form.
type BookingRequest struct {
	Name         string
	Contact      string
	Service      string
	ServicePrice float64
	Doctor       string // numeric id, doctor key or display name; optional
	Date         string // YYYY-MM-DD
	Time         string // HH:MM slot label
	Notes        string
}

type Service struct {
	repo           Repository
	locker         redisclient.Locker
	schedule       *availability.Schedule
	notifier       Notifier
	resolvePatient PatientResolver
	loc            *time.Location
	clinicInbox    string
	log            *zap.Logger
	now            func() time.Time
}

type Option func(*Service)

// WithPatientResolver swaps the policy that maps a booking to a patient.
func WithPatientResolver(fn PatientResolver) Option {
	return func(s *Service) { s.resolvePatient = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	repo Repository,
	locker redisclient.Locker,
	schedule *availability.Schedule,
	notifier Notifier,
	cfg config.Config,
	log *zap.Logger,
	opts ...Option,
) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		repo:           repo,
		locker:         locker,
		schedule:       schedule,
		notifier:       notifier,
		resolvePatient: ResolvePatientByContact,
		loc:            loc,
		clinicInbox:    cfg.SMTP.To,
		log:            log,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookAppointment validates a booking against the doctor's weekly calendar
// and existing appointments, resolves the patient and stores a confirmed
// appointment. Notifications go out after the booking is committed and never
// affect the result.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*AppointmentDetail, error) {
	day, err := s.validateBooking(&req)
	if err != nil {
		return nil, err
	}

	var doctor *Doctor
	if req.Doctor != "" {
		doctor, err = s.ResolveDoctor(ctx, req.Doctor)
		if err != nil {
			return nil, err
		}
		if !s.schedule.IsAvailable(doctor.Key, day, req.Time) {
			return nil, &AvailabilityError{Doctor: doctor.Name, Date: req.Date, Time: req.Time}
		}
	}

	var booked *AppointmentDetail
	persist := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx Repository) error {
			if doctor != nil {
				// Inside the critical section re-check the slot
				taken, err := tx.HasConflict(ctx, doctor.ID, req.Date, req.Time, nil)
				if err != nil {
					return err
				}
				if taken {
					return s.conflict(doctor, req.Date, req.Time)
				}
			}

			patient, err := s.resolvePatient(ctx, tx, req.Name, req.Contact)
			if err != nil {
				return err
			}

			appt := &Appointment{
				PatientID:    &patient.ID,
				Service:      req.Service,
				ServicePrice: req.ServicePrice,
				Date:         req.Date,
				Time:         req.Time,
				Notes:        req.Notes,
				Status:       StatusConfirmed,
				Contact:      req.Contact,
			}
			if doctor != nil {
				appt.DoctorID = &doctor.ID
			}
			if err := tx.CreateAppointment(ctx, appt); err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return s.conflict(doctor, req.Date, req.Time)
				}
				return err
			}

			booked, err = tx.GetAppointmentDetail(ctx, appt.ID)
			return err
		})
	}

	if doctor != nil {
		err = s.withSlotLock(ctx, doctor, req.Date, req.Time, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.Int64("appointment_id", booked.ID),
		zap.String("doctor", booked.DoctorName),
		zap.String("date", booked.Date),
		zap.String("time", booked.Time),
	)
	s.logEvent(ctx, &booked.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  booked.DoctorID,
		"patient_id": booked.PatientID,
		"date":       booked.Date,
		"time":       booked.Time,
		"service":    booked.Service,
	})
	s.notifyBooked(ctx, *booked)

	return booked, nil
}

func (s *Service) validateBooking(req *BookingRequest) (time.Time, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Service = strings.TrimSpace(req.Service)
	req.Doctor = strings.TrimSpace(req.Doctor)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Notes = strings.TrimSpace(req.Notes)

	var fields []string
	if req.Name == "" {
		fields = append(fields, "name is required")
	}
	if req.Contact == "" {
		fields = append(fields, "contact is required")
	}
	if req.Service == "" {
		fields = append(fields, "service is required")
	}
	if req.ServicePrice < 0 {
		fields = append(fields, "servicePrice must not be negative")
	}

	var day time.Time
	if req.Date == "" {
		fields = append(fields, "date is required")
	} else {
		d, err := availability.ParseDate(req.Date, s.loc)
		if err != nil {
			fields = append(fields, "date must be YYYY-MM-DD")
		}
		day = d
	}

	if req.Time == "" {
		fields = append(fields, "time is required")
	} else if !availability.ValidSlot(req.Time) {
		fields = append(fields, "time must be HH:MM")
	}

	if len(fields) > 0 {
		return time.Time{}, &ValidationError{Fields: fields}
	}
	return day, nil
}

// ResolveDoctor finds a doctor by numeric id, availability key or display
// name, in that order.
func (s *Service) ResolveDoctor(ctx context.Context, ref string) (*Doctor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrDoctorNotFound
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.repo.GetDoctorByID(ctx, id)
	}
	d, err := s.repo.GetDoctorByKey(ctx, ref)
	if !errors.Is(err, ErrDoctorNotFound) {
		return d, err
	}
	return s.repo.GetDoctorByName(ctx, ref)
}

func (s *Service) conflict(doctor *Doctor, date, slot string) error {
	name := "the doctor"
	if doctor != nil {
		name = doctor.Name
	}
	return &ConflictError{Doctor: name, Date: date, Time: slot}
}

// withSlotLock runs fn while holding the doctor slot lock.
func (s *Service) withSlotLock(ctx context.Context, doctor *Doctor, date, slot string, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(doctor.ID, date, slot), fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return &ConflictError{Doctor: doctor.Name, Date: date, Time: slot, Busy: true}
	case isDomainError(err):
		return err
	default:
		return storeErr("slot lock", err)
	}
}

func (s *Service) notifyBooked(ctx context.Context, appt AppointmentDetail) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, NotifyClinicCopy, s.clinicInbox, appt)
	if looksLikeEmail(appt.Contact) {
		s.notifier.Notify(ctx, NotifyPatientConfirmation, appt.Contact, appt)
	}
}

func looksLikeEmail(contact string) bool {
	if !strings.Contains(contact, "@") {
		return false
	}
	addr, err := mail.ParseAddress(contact)
	return err == nil && addr.Address == contact
}

func (s *Service) logEvent(ctx context.Context, appointmentID *int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log", zap.String("event", eventType), zap.Error(err))
	}
}
