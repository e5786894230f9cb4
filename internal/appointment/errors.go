package appointment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	ErrInvalidInput            = errors.New("invalid input")
	ErrUnavailable             = errors.New("doctor is not available at this time")
	ErrSlotTaken               = errors.New("doctor already has an appointment at this time")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrAppointmentChanged reports that another request changed the
	// appointment's status between read and write.
	ErrAppointmentChanged = fmt.Errorf("appointment changed by another request: %w", ErrInvalidStatusTransition)
)

// ValidationError lists the request fields that are missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// AvailabilityError names the doctor, date and slot that are not offered.
type AvailabilityError struct {
	Doctor string
	Date   string
	Time   string
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%s is not available on %s at %s", e.Doctor, e.Date, e.Time)
}

func (e *AvailabilityError) Is(target error) bool { return target == ErrUnavailable }

// ConflictError reports a slot already held by a non-cancelled appointment.
type ConflictError struct {
	Doctor string
	Date   string
	Time   string
	// Busy is set when another request held the slot lock.
	Busy bool
}

func (e *ConflictError) Error() string {
	if e.Busy {
		return fmt.Sprintf("the %s slot on %s with %s is currently being booked, please pick another or retry", e.Time, e.Date, e.Doctor)
	}
	return fmt.Sprintf("%s already has an appointment on %s at %s", e.Doctor, e.Date, e.Time)
}

func (e *ConflictError) Is(target error) bool { return target == ErrSlotTaken }

// StoreError wraps a persistence failure. These are transient and safe to retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
