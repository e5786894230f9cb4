package appointment

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type DoctorInput struct {
	Key            string
	Name           string
	Specialization string
	Contact        string
	License        string
}

type PatientInput struct {
	Name    string
	Age     *int
	Contact string
	Notes   string
}

func (in *DoctorInput) normalize() error {
	in.Key = strings.TrimSpace(in.Key)
	in.Name = strings.TrimSpace(in.Name)
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.Contact = strings.TrimSpace(in.Contact)
	in.License = strings.TrimSpace(in.License)
	if in.Name == "" {
		return &ValidationError{Fields: []string{"name is required"}}
	}
	return nil
}

func (in *PatientInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Notes = strings.TrimSpace(in.Notes)

	var fields []string
	if in.Name == "" {
		fields = append(fields, "name is required")
	}
	if in.Age != nil && (*in.Age < 0 || *in.Age > 150) {
		fields = append(fields, "age must be between 0 and 150")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Doctors

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d := &Doctor{
		Key:            in.Key,
		Name:           in.Name,
		Specialization: in.Specialization,
		Contact:        in.Contact,
		License:        in.License,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.warnUnscheduled(d)
	return d, nil
}

// GetDoctor looks a doctor up by id, key or name.
func (s *Service) GetDoctor(ctx context.Context, ref string) (*Doctor, error) {
	return s.ResolveDoctor(ctx, ref)
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

func (s *Service) UpdateDoctor(ctx context.Context, ref string, in DoctorInput) (*Doctor, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	d, err := s.ResolveDoctor(ctx, ref)
	if err != nil {
		return nil, err
	}
	d.Key = in.Key
	d.Name = in.Name
	d.Specialization = in.Specialization
	d.Contact = in.Contact
	d.License = in.License
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.warnUnscheduled(d)
	return d, nil
}

// DeleteDoctor removes a doctor. Their appointments stay on record unassigned.
func (s *Service) DeleteDoctor(ctx context.Context, ref string) error {
	d, err := s.ResolveDoctor(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDoctor(ctx, d.ID); err != nil {
		return err
	}
	s.log.Info("doctor deleted", zap.Int64("doctor_id", d.ID), zap.String("name", d.Name))
	return nil
}

func (s *Service) warnUnscheduled(d *Doctor) {
	if d.Key == "" || !s.schedule.Knows(d.Key) {
		s.log.Warn("doctor has no weekly schedule and cannot be booked",
			zap.Int64("doctor_id", d.ID),
			zap.String("key", d.Key),
		)
	}
}

// Patients

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	p := &Patient{Name: in.Name, Age: in.Age, Contact: in.Contact, Notes: in.Notes}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetPatientByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id int64, in PatientInput) (*Patient, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.Age = in.Age
	p.Contact = in.Contact
	p.Notes = in.Notes
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient together with their appointments and
// treatment history.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.log.Info("patient deleted", zap.Int64("patient_id", id))
	return nil
}
