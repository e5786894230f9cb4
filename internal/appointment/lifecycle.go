package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// AppointmentPatch holds the fields to change on an appointment. Nil fields
// are left as they are. An empty Doctor unassigns the doctor.
type AppointmentPatch struct {
	PatientID    *int64
	Doctor       *string
	Service      *string
	ServicePrice *float64
	Date         *string
	Time         *string
	Notes        *string
	Status       *AppointmentStatus
}

// CompletionInput describes the treatment given when an appointment is completed.
type CompletionInput struct {
	TreatmentType string
	Notes         string
}

// UpdateAppointment applies patch to an appointment. A move to a different
// doctor, date or time is checked against the weekly calendar, and any
// appointment that still holds a slot must not collide with another one.
func (s *Service) UpdateAppointment(ctx context.Context, id int64, patch AppointmentPatch) (*AppointmentDetail, error) {
	cur, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, day, err := applyPatch(*cur, patch, s.loc)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(cur.Status, next.Status); err != nil {
		return nil, err
	}

	if patch.PatientID != nil {
		if _, err := s.repo.GetPatientByID(ctx, *patch.PatientID); err != nil {
			return nil, err
		}
	}

	var doctor *Doctor
	switch {
	case patch.Doctor != nil && strings.TrimSpace(*patch.Doctor) == "":
		next.DoctorID = nil
	case patch.Doctor != nil:
		doctor, err = s.ResolveDoctor(ctx, *patch.Doctor)
		if err != nil {
			return nil, err
		}
		next.DoctorID = &doctor.ID
	case next.DoctorID != nil:
		doctor, err = s.repo.GetDoctorByID(ctx, *next.DoctorID)
		if err != nil {
			return nil, err
		}
	}

	moved := !sameID(cur.DoctorID, next.DoctorID) || cur.Date != next.Date || cur.Time != next.Time
	if doctor != nil && moved && next.HoldsSlot() {
		if !s.schedule.IsAvailable(doctor.Key, day, next.Time) {
			return nil, &AvailabilityError{Doctor: doctor.Name, Date: next.Date, Time: next.Time}
		}
	}

	var updated *AppointmentDetail
	persist := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx Repository) error {
			fresh, err := tx.GetAppointmentByID(ctx, id)
			if err != nil {
				return err
			}
			// The transition was checked against cur; a status written since
			// then invalidates that check.
			if fresh.Status != cur.Status {
				return fmt.Errorf("%w: status is now %s", ErrAppointmentChanged, fresh.Status)
			}

			if next.HoldsSlot() {
				taken, err := tx.HasConflict(ctx, *next.DoctorID, next.Date, next.Time, &next.ID)
				if err != nil {
					return err
				}
				if taken {
					return s.conflict(doctor, next.Date, next.Time)
				}
			}
			if err := tx.UpdateAppointment(ctx, &next, cur.Status); err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return s.conflict(doctor, next.Date, next.Time)
				}
				return err
			}
			updated, err = tx.GetAppointmentDetail(ctx, next.ID)
			return err
		})
	}

	if doctor != nil && next.HoldsSlot() {
		err = s.withSlotLock(ctx, doctor, next.Date, next.Time, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	event := EventAppointmentUpdated
	if next.Status == StatusCancelled && cur.Status != StatusCancelled {
		event = EventAppointmentCancelled
	}
	s.log.Info("appointment updated",
		zap.Int64("appointment_id", id),
		zap.String("status", string(updated.Status)),
		zap.Bool("moved", moved),
	)
	s.logEvent(ctx, &updated.ID, event, map[string]any{
		"from_status": cur.Status,
		"to_status":   updated.Status,
		"doctor_id":   updated.DoctorID,
		"date":        updated.Date,
		"time":        updated.Time,
	})

	return updated, nil
}

// CancelAppointment frees the appointment's slot. Cancelling twice is a no-op,
// including when another request cancels it first.
func (s *Service) CancelAppointment(ctx context.Context, id int64) (*AppointmentDetail, error) {
	status := StatusCancelled
	patch := AppointmentPatch{Status: &status}
	appt, err := s.UpdateAppointment(ctx, id, patch)
	if errors.Is(err, ErrAppointmentChanged) {
		return s.UpdateAppointment(ctx, id, patch)
	}
	return appt, err
}

// CompleteAppointment marks a confirmed appointment completed, records the
// treatment and stamps the patient's last visit.
func (s *Service) CompleteAppointment(ctx context.Context, id int64, in CompletionInput) (*AppointmentDetail, error) {
	in.TreatmentType = strings.TrimSpace(in.TreatmentType)
	in.Notes = strings.TrimSpace(in.Notes)

	var done *AppointmentDetail
	err := s.repo.InTx(ctx, func(tx Repository) error {
		a, err := tx.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusConfirmed {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, a.Status, StatusCompleted)
		}

		a.Status = StatusCompleted
		if err := tx.UpdateAppointment(ctx, a, StatusConfirmed); err != nil {
			return err
		}

		treatment := in.TreatmentType
		if treatment == "" {
			treatment = a.Service
		}
		rec := &TreatmentRecord{
			AppointmentID: &a.ID,
			PatientID:     a.PatientID,
			DoctorID:      a.DoctorID,
			TreatmentType: treatment,
			Notes:         in.Notes,
		}
		if err := tx.AddTreatmentRecord(ctx, rec); err != nil {
			return err
		}
		if a.PatientID != nil {
			if err := tx.TouchPatientVisit(ctx, *a.PatientID, s.now()); err != nil {
				return err
			}
		}

		done, err = tx.GetAppointmentDetail(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment completed", zap.Int64("appointment_id", id))
	s.logEvent(ctx, &done.ID, EventAppointmentCompleted, map[string]any{
		"treatment_type": in.TreatmentType,
		"patient_id":     done.PatientID,
	})
	return done, nil
}

// DeleteAppointment removes the appointment and its treatment records.
func (s *Service) DeleteAppointment(ctx context.Context, id int64) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.log.Info("appointment deleted", zap.Int64("appointment_id", id))
	s.logEvent(ctx, nil, EventAppointmentDeleted, map[string]any{"appointment_id": id})
	return nil
}

// checkTransition allows the status moves an update may make. Completion
// goes through CompleteAppointment so the treatment is recorded.
func checkTransition(from, to AppointmentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, from, to)
	}
	if to == StatusCompleted && from != StatusCompleted {
		return fmt.Errorf("%w: use complete to finish an appointment", ErrInvalidStatusTransition)
	}
	return nil
}

// applyPatch returns the patched appointment and its parsed date.
func applyPatch(a Appointment, p AppointmentPatch, loc *time.Location) (Appointment, time.Time, error) {
	var fields []string

	if p.PatientID != nil {
		id := *p.PatientID
		a.PatientID = &id
	}
	if p.Service != nil {
		a.Service = strings.TrimSpace(*p.Service)
		if a.Service == "" {
			fields = append(fields, "service must not be empty")
		}
	}
	if p.ServicePrice != nil {
		a.ServicePrice = *p.ServicePrice
		if a.ServicePrice < 0 {
			fields = append(fields, "servicePrice must not be negative")
		}
	}
	if p.Date != nil {
		a.Date = strings.TrimSpace(*p.Date)
		if _, err := availability.ParseDate(a.Date, loc); err != nil {
			fields = append(fields, "date must be YYYY-MM-DD")
		}
	}
	if p.Time != nil {
		a.Time = strings.TrimSpace(*p.Time)
		if !availability.ValidSlot(a.Time) {
			fields = append(fields, "time must be HH:MM")
		}
	}
	if p.Notes != nil {
		a.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.Status != nil {
		a.Status = *p.Status
		if !a.Status.IsValid() {
			fields = append(fields, "status must be one of pending, confirmed, completed, cancelled")
		}
	}

	if len(fields) > 0 {
		return a, time.Time{}, &ValidationError{Fields: fields}
	}

	day, err := availability.ParseDate(a.Date, loc)
	if err != nil {
		return a, time.Time{}, &ValidationError{Fields: []string{"date must be YYYY-MM-DD"}}
	}
	return a, day, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
