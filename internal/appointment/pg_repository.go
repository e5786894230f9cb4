package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	slotUniqueIndex      = "appointments_doctor_slot_active_uniq"
	doctorKeyUniqueIndex = "doctors_doctor_key_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool // nil inside a transaction
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&PgRepository{q: tx})
	})
	if err == nil || isDomainError(err) {
		return err
	}
	return storeErr("transaction", err)
}

func isDomainError(err error) bool {
	var se *StoreError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.As(err, &se)
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Helpers

const doctorColumns = `id, COALESCE(doctor_key, ''), name, COALESCE(specialization, ''),
	COALESCE(contact, ''), COALESCE(license, ''), created_at, updated_at`

const patientColumns = `id, name, age, COALESCE(contact, ''), COALESCE(notes, ''),
	last_visit, created_at, updated_at`

const appointmentColumns = `a.id, a.patient_id, a.doctor_id, a.service, a.service_price::float8,
	to_char(a.appt_date, 'YYYY-MM-DD'), a.appt_time, COALESCE(a.notes, ''), a.status,
	COALESCE(a.contact, ''), a.created_at, a.updated_at`

const detailSelect = `SELECT ` + appointmentColumns + `, COALESCE(p.name, ''), COALESCE(d.name, '')
	FROM appointments a
	LEFT JOIN patients p ON a.patient_id = p.id
	LEFT JOIN doctors d ON a.doctor_id = d.id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Key,
		&d.Name,
		&d.Specialization,
		&d.Contact,
		&d.License,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, storeErr("scan doctor", err)
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Contact,
		&p.Notes,
		&p.LastVisit,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, storeErr("scan patient", err)
	}
	return &p, nil
}

func appointmentDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Service,
		&a.ServicePrice,
		&a.Date,
		&a.Time,
		&a.Notes,
		&a.Status,
		&a.Contact,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storeErr("scan appointment", err)
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	dest := append(appointmentDest(&d.Appointment), &d.PatientName, &d.DoctorName)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storeErr("scan appointment detail", err)
	}
	return &d, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Doctors

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO doctors (doctor_key, name, specialization, contact, license)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, nullIfEmpty(d.Key), d.Name, d.Specialization, d.Contact, d.License).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if uniqueViolation(err, doctorKeyUniqueIndex) {
		return &ValidationError{Fields: []string{"key is already in use"}}
	}
	return storeErr("insert doctor", err)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id))
}

func (r *PgRepository) GetDoctorByKey(ctx context.Context, key string) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE doctor_key = $1`, key))
}

func (r *PgRepository) GetDoctorByName(ctx context.Context, name string) (*Doctor, error) {
	return scanDoctor(r.q.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE lower(name) = lower($1)
		ORDER BY id
		LIMIT 1
	`, strings.TrimSpace(name)))
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.q.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY name, id`)
	if err != nil {
		return nil, storeErr("list doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, storeErr("list doctors", rows.Err())
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, d *Doctor) error {
	err := r.q.QueryRow(ctx, `
		UPDATE doctors
		SET doctor_key = $2, name = $3, specialization = $4, contact = $5, license = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, d.ID, nullIfEmpty(d.Key), d.Name, d.Specialization, d.Contact, d.License).Scan(&d.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrDoctorNotFound
	case uniqueViolation(err, doctorKeyUniqueIndex):
		return &ValidationError{Fields: []string{"key is already in use"}}
	}
	return storeErr("update doctor", err)
}

func (r *PgRepository) DeleteDoctor(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete doctor", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Patients

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO patients (name, age, contact, notes, last_visit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, p.Name, p.Age, p.Contact, p.Notes, p.LastVisit).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return storeErr("insert patient", err)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(r.q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r *PgRepository) FindPatientsByContact(ctx context.Context, contact string) ([]Patient, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE contact = $1
		ORDER BY id
	`, contact)
	if err != nil {
		return nil, storeErr("find patients by contact", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, storeErr("find patients by contact", rows.Err())
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	err := r.q.QueryRow(ctx, `
		UPDATE patients
		SET name = $2, age = $3, contact = $4, notes = $5, last_visit = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, p.Age, p.Contact, p.Notes, p.LastVisit).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	return storeErr("update patient", err)
}

func (r *PgRepository) TouchPatientVisit(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE patients SET last_visit = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return storeErr("touch patient visit", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) DeletePatient(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// Appointments

func (r *PgRepository) HasConflict(ctx context.Context, doctorID int64, date, slot string, excludeID *int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND appt_date = $2::date
			  AND appt_time = $3
			  AND status <> 'cancelled'
			  AND ($4::bigint IS NULL OR id <> $4)
		)
	`, doctorID, date, slot, excludeID).Scan(&exists)
	if err != nil {
		return false, storeErr("check conflict", err)
	}
	return exists, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, doctor_id, service, service_price, appt_date, appt_time, notes, status, contact)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, a.PatientID, a.DoctorID, a.Service, a.ServicePrice, a.Date, a.Time, a.Notes, a.Status, a.Contact).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if uniqueViolation(err, slotUniqueIndex) {
		return ErrSlotTaken
	}
	return storeErr("insert appointment", err)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id))
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id int64) (*AppointmentDetail, error) {
	return scanDetail(r.q.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id))
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Date != "" {
		add("a.appt_date = $%d::date", f.Date)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}

	query := detailSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.appt_date, a.appt_time, a.id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list appointments", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, storeErr("list appointments", rows.Err())
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) error {
	// A concurrent writer holding the row makes this wait, then the status
	// predicate is re-evaluated against the committed row.
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2, doctor_id = $3, service = $4, service_price = $5,
		    appt_date = $6::date, appt_time = $7, notes = $8, status = $9, contact = $10,
		    updated_at = now()
		WHERE id = $1 AND status = $11
		RETURNING updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.Service, a.ServicePrice, a.Date, a.Time, a.Notes, a.Status, a.Contact, expected).
		Scan(&a.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return r.missingOrChanged(ctx, a.ID)
	case uniqueViolation(err, slotUniqueIndex):
		return ErrSlotTaken
	}
	return storeErr("update appointment", err)
}

func (r *PgRepository) missingOrChanged(ctx context.Context, id int64) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return storeErr("check appointment", err)
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrAppointmentChanged
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Treatment history

func (r *PgRepository) AddTreatmentRecord(ctx context.Context, t *TreatmentRecord) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO treatment_history (appointment_id, patient_id, doctor_id, treatment_type, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, recorded_at
	`, t.AppointmentID, t.PatientID, t.DoctorID, t.TreatmentType, t.Notes).Scan(&t.ID, &t.RecordedAt)
	return storeErr("insert treatment record", err)
}

func (r *PgRepository) ListDoctorHistory(ctx context.Context, doctorID int64) ([]HistoryEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT
			a.id,
			to_char(a.appt_date, 'YYYY-MM-DD'),
			a.appt_time,
			a.service,
			a.status,
			p.id,
			COALESCE(p.name, ''),
			COALESCE(p.contact, a.contact, ''),
			COALESCE(th.treatment_type, ''),
			COALESCE(th.notes, '')
		FROM appointments a
		LEFT JOIN patients p ON a.patient_id = p.id
		LEFT JOIN treatment_history th ON a.id = th.appointment_id
		WHERE a.doctor_id = $1 AND a.status IN ('completed', 'confirmed')
		ORDER BY a.appt_date DESC, a.appt_time DESC, th.id
	`, doctorID)
	if err != nil {
		return nil, storeErr("list doctor history", err)
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(
			&h.AppointmentID,
			&h.Date,
			&h.Time,
			&h.Service,
			&h.Status,
			&h.PatientID,
			&h.PatientName,
			&h.PatientContact,
			&h.TreatmentType,
			&h.TreatmentNotes,
		); err != nil {
			return nil, storeErr("scan history entry", err)
		}
		result = append(result, h)
	}
	return result, storeErr("list doctor history", rows.Err())
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	return storeErr("insert event log", err)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
