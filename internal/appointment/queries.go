package appointment

import (
	"context"
	"strings"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

// DaySlots is a doctor's published calendar for one date and what is still open.
type DaySlots struct {
	Doctor    Doctor
	Date      string
	Published []string
	Free      []string
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	var fields []string
	f.Date = strings.TrimSpace(f.Date)
	if f.Date != "" {
		if _, err := availability.ParseDate(f.Date, s.loc); err != nil {
			fields = append(fields, "date must be YYYY-MM-DD")
		}
	}
	if f.Status != "" && !f.Status.IsValid() {
		fields = append(fields, "status must be one of pending, confirmed, completed, cancelled")
	}
	if f.Offset < 0 {
		fields = append(fields, "offset must not be negative")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.repo.ListAppointments(ctx, f)
}

// DoctorHistory lists the doctor's confirmed and completed appointments,
// newest first, with any treatment recorded for them.
func (s *Service) DoctorHistory(ctx context.Context, ref string) (*Doctor, []HistoryEntry, error) {
	d, err := s.ResolveDoctor(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.repo.ListDoctorHistory(ctx, d.ID)
	if err != nil {
		return nil, nil, err
	}
	return d, history, nil
}

// FreeSlots returns the doctor's published slots for date minus those held by
// non-cancelled appointments.
func (s *Service) FreeSlots(ctx context.Context, ref, date string) (*DaySlots, error) {
	date = strings.TrimSpace(date)
	day, err := availability.ParseDate(date, s.loc)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"date must be YYYY-MM-DD"}}
	}
	d, err := s.ResolveDoctor(ctx, ref)
	if err != nil {
		return nil, err
	}

	published := s.schedule.Slots(d.Key, day)
	out := &DaySlots{Doctor: *d, Date: date, Published: published, Free: []string{}}
	if len(published) == 0 {
		return out, nil
	}

	booked, err := s.repo.ListAppointments(ctx, AppointmentFilter{DoctorID: &d.ID, Date: date})
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(booked))
	for _, a := range booked {
		if a.HoldsSlot() {
			held[a.Time] = true
		}
	}
	for _, slot := range published {
		if !held[slot] {
			out.Free = append(out.Free, slot)
		}
	}
	return out, nil
}

// IsAvailable reports whether the doctor with the given key offers slot on date.
// Malformed dates are never available.
func (s *Service) IsAvailable(doctorKey, date, slot string) bool {
	day, err := availability.ParseDate(date, s.loc)
	if err != nil {
		return false
	}
	return s.schedule.IsAvailable(doctorKey, day, slot)
}

// HasConflict reports whether a non-cancelled appointment other than
// excludeID holds the doctor's slot.
func (s *Service) HasConflict(ctx context.Context, doctorID int64, date, slot string, excludeID *int64) (bool, error) {
	return s.repo.HasConflict(ctx, doctorID, date, slot, excludeID)
}
