package appointment

import "context"

// PatientResolver maps a booking's name and contact to a patient record,
// creating one when needed. It runs inside the booking transaction.
type PatientResolver func(ctx context.Context, repo Repository, name, contact string) (*Patient, error)

// ResolvePatientByContact reuses the lowest-id patient whose stored contact
// equals contact exactly, or creates a new patient. Contacts are not unique,
// so this is a matching heuristic rather than an identity.
func ResolvePatientByContact(ctx context.Context, repo Repository, name, contact string) (*Patient, error) {
	matches, err := repo.FindPatientsByContact(ctx, contact)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return &matches[0], nil
	}

	p := &Patient{Name: name, Contact: contact}
	if err := repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
