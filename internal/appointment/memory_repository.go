package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var errForeignKey = errors.New("foreign key violation")

type memState struct {
	nextID       int64
	doctors      map[int64]Doctor
	patients     map[int64]Patient
	appointments map[int64]Appointment
	treatments   map[int64]TreatmentRecord
	events       []EventLog
}

func newMemState() *memState {
	return &memState{
		doctors:      make(map[int64]Doctor),
		patients:     make(map[int64]Patient),
		appointments: make(map[int64]Appointment),
		treatments:   make(map[int64]TreatmentRecord),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:       s.nextID,
		doctors:      make(map[int64]Doctor, len(s.doctors)),
		patients:     make(map[int64]Patient, len(s.patients)),
		appointments: make(map[int64]Appointment, len(s.appointments)),
		treatments:   make(map[int64]TreatmentRecord, len(s.treatments)),
		events:       append([]EventLog(nil), s.events...),
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.treatments {
		c.treatments[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// MemoryRepository keeps the clinic in process memory with the same
// referential and slot-uniqueness rules as the Postgres schema. Writes are
// serialized; InTx works on a copy that replaces the live state on success.
type MemoryRepository struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{mu: &sync.Mutex{}, st: newMemState(), now: time.Now}
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return storeErr("transaction", err)
	}

	work := r.st.clone()
	tx := &MemoryRepository{mu: r.mu, st: work, inTx: true, now: r.now}
	if err := fn(tx); err != nil {
		return err
	}
	r.st = work
	return nil
}

func copyID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Doctors

func (r *MemoryRepository) keyTaken(key string, except int64) bool {
	if key == "" {
		return false
	}
	for id, d := range r.st.doctors {
		if id != except && d.Key == key {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	defer r.lock()()
	if r.keyTaken(d.Key, 0) {
		return &ValidationError{Fields: []string{"key is already in use"}}
	}
	now := r.now()
	d.ID = r.st.id()
	d.CreatedAt, d.UpdatedAt = now, now
	r.st.doctors[d.ID] = *d
	return nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id int64) (*Doctor, error) {
	defer r.lock()()
	d, ok := r.st.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetDoctorByKey(_ context.Context, key string) (*Doctor, error) {
	defer r.lock()()
	for _, d := range r.st.doctors {
		if key != "" && d.Key == key {
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) GetDoctorByName(_ context.Context, name string) (*Doctor, error) {
	defer r.lock()()
	name = strings.TrimSpace(name)
	var found *Doctor
	for _, d := range r.st.doctors {
		if strings.EqualFold(d.Name, name) && (found == nil || d.ID < found.ID) {
			d := d
			found = &d
		}
	}
	if found == nil {
		return nil, ErrDoctorNotFound
	}
	return found, nil
}

func (r *MemoryRepository) ListDoctors(_ context.Context) ([]Doctor, error) {
	defer r.lock()()
	result := make([]Doctor, 0, len(r.st.doctors))
	for _, d := range r.st.doctors {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *MemoryRepository) UpdateDoctor(_ context.Context, d *Doctor) error {
	defer r.lock()()
	cur, ok := r.st.doctors[d.ID]
	if !ok {
		return ErrDoctorNotFound
	}
	if r.keyTaken(d.Key, d.ID) {
		return &ValidationError{Fields: []string{"key is already in use"}}
	}
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = r.now()
	r.st.doctors[d.ID] = *d
	return nil
}

func (r *MemoryRepository) DeleteDoctor(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.st.doctors, id)
	for aid, a := range r.st.appointments {
		if a.DoctorID != nil && *a.DoctorID == id {
			a.DoctorID = nil
			r.st.appointments[aid] = a
		}
	}
	for tid, t := range r.st.treatments {
		if t.DoctorID != nil && *t.DoctorID == id {
			t.DoctorID = nil
			r.st.treatments[tid] = t
		}
	}
	return nil
}

// Patients

func (r *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	defer r.lock()()
	now := r.now()
	p.ID = r.st.id()
	p.CreatedAt, p.UpdatedAt = now, now
	r.st.patients[p.ID] = *p
	return nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id int64) (*Patient, error) {
	defer r.lock()()
	p, ok := r.st.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindPatientsByContact(_ context.Context, contact string) ([]Patient, error) {
	defer r.lock()()
	var result []Patient
	for _, p := range r.st.patients {
		if p.Contact == contact {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) UpdatePatient(_ context.Context, p *Patient) error {
	defer r.lock()()
	cur, ok := r.st.patients[p.ID]
	if !ok {
		return ErrPatientNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = r.now()
	r.st.patients[p.ID] = *p
	return nil
}

func (r *MemoryRepository) TouchPatientVisit(_ context.Context, id int64, at time.Time) error {
	defer r.lock()()
	p, ok := r.st.patients[id]
	if !ok {
		return ErrPatientNotFound
	}
	p.LastVisit = &at
	p.UpdatedAt = r.now()
	r.st.patients[id] = p
	return nil
}

func (r *MemoryRepository) DeletePatient(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.patients[id]; !ok {
		return ErrPatientNotFound
	}
	delete(r.st.patients, id)
	for aid, a := range r.st.appointments {
		if a.PatientID != nil && *a.PatientID == id {
			r.dropAppointment(aid)
		}
	}
	for tid, t := range r.st.treatments {
		if t.PatientID != nil && *t.PatientID == id {
			delete(r.st.treatments, tid)
		}
	}
	return nil
}

// Appointments

func (r *MemoryRepository) conflict(doctorID int64, date, slot string, excludeID *int64) bool {
	for id, a := range r.st.appointments {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if a.HoldsSlot() && *a.DoctorID == doctorID && a.Date == date && a.Time == slot {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) checkRefs(a *Appointment) error {
	if a.PatientID != nil {
		if _, ok := r.st.patients[*a.PatientID]; !ok {
			return storeErr("appointment patient", errForeignKey)
		}
	}
	if a.DoctorID != nil {
		if _, ok := r.st.doctors[*a.DoctorID]; !ok {
			return storeErr("appointment doctor", errForeignKey)
		}
	}
	return nil
}

func (r *MemoryRepository) HasConflict(_ context.Context, doctorID int64, date, slot string, excludeID *int64) (bool, error) {
	defer r.lock()()
	return r.conflict(doctorID, date, slot, excludeID), nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	defer r.lock()()
	if err := r.checkRefs(a); err != nil {
		return err
	}
	if a.HoldsSlot() && r.conflict(*a.DoctorID, a.Date, a.Time, nil) {
		return ErrSlotTaken
	}
	now := r.now()
	a.ID = r.st.id()
	a.CreatedAt, a.UpdatedAt = now, now
	stored := *a
	stored.PatientID, stored.DoctorID = copyID(a.PatientID), copyID(a.DoctorID)
	r.st.appointments[a.ID] = stored
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	defer r.lock()()
	a, ok := r.st.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) detail(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if a.PatientID != nil {
		d.PatientName = r.st.patients[*a.PatientID].Name
	}
	if a.DoctorID != nil {
		d.DoctorName = r.st.doctors[*a.DoctorID].Name
	}
	return d
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id int64) (*AppointmentDetail, error) {
	defer r.lock()()
	a, ok := r.st.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detail(a)
	return &d, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	defer r.lock()()
	var result []AppointmentDetail
	for _, a := range r.st.appointments {
		if f.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *f.DoctorID) {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		result = append(result, r.detail(a))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return nil, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment, expected AppointmentStatus) error {
	defer r.lock()()
	cur, ok := r.st.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if cur.Status != expected {
		return ErrAppointmentChanged
	}
	if err := r.checkRefs(a); err != nil {
		return err
	}
	if a.HoldsSlot() && r.conflict(*a.DoctorID, a.Date, a.Time, &a.ID) {
		return ErrSlotTaken
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = r.now()
	stored := *a
	stored.PatientID, stored.DoctorID = copyID(a.PatientID), copyID(a.DoctorID)
	r.st.appointments[a.ID] = stored
	return nil
}

// dropAppointment removes an appointment with its cascades. Caller holds the lock.
func (r *MemoryRepository) dropAppointment(id int64) {
	delete(r.st.appointments, id)
	for tid, t := range r.st.treatments {
		if t.AppointmentID != nil && *t.AppointmentID == id {
			delete(r.st.treatments, tid)
		}
	}
	for i := range r.st.events {
		if ev := r.st.events[i]; ev.AppointmentID != nil && *ev.AppointmentID == id {
			r.st.events[i].AppointmentID = nil
		}
	}
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.st.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	r.dropAppointment(id)
	return nil
}

// Treatment history

func (r *MemoryRepository) AddTreatmentRecord(_ context.Context, t *TreatmentRecord) error {
	defer r.lock()()
	if t.AppointmentID != nil {
		if _, ok := r.st.appointments[*t.AppointmentID]; !ok {
			return storeErr("treatment appointment", errForeignKey)
		}
	}
	if t.PatientID != nil {
		if _, ok := r.st.patients[*t.PatientID]; !ok {
			return storeErr("treatment patient", errForeignKey)
		}
	}
	t.ID = r.st.id()
	t.RecordedAt = r.now()
	stored := *t
	stored.AppointmentID, stored.PatientID, stored.DoctorID = copyID(t.AppointmentID), copyID(t.PatientID), copyID(t.DoctorID)
	r.st.treatments[t.ID] = stored
	return nil
}

func (r *MemoryRepository) ListDoctorHistory(_ context.Context, doctorID int64) ([]HistoryEntry, error) {
	defer r.lock()()

	byAppointment := make(map[int64][]TreatmentRecord)
	for _, t := range r.st.treatments {
		if t.AppointmentID != nil {
			byAppointment[*t.AppointmentID] = append(byAppointment[*t.AppointmentID], t)
		}
	}

	type row struct {
		entry       HistoryEntry
		treatmentID int64
	}
	var rows []row
	for _, a := range r.st.appointments {
		if a.DoctorID == nil || *a.DoctorID != doctorID {
			continue
		}
		if a.Status != StatusCompleted && a.Status != StatusConfirmed {
			continue
		}
		base := HistoryEntry{
			AppointmentID:  a.ID,
			Date:           a.Date,
			Time:           a.Time,
			Service:        a.Service,
			Status:         a.Status,
			PatientContact: a.Contact,
		}
		if a.PatientID != nil {
			if p, ok := r.st.patients[*a.PatientID]; ok {
				base.PatientID = copyID(a.PatientID)
				base.PatientName = p.Name
				if p.Contact != "" {
					base.PatientContact = p.Contact
				}
			}
		}
		treatments := byAppointment[a.ID]
		if len(treatments) == 0 {
			rows = append(rows, row{entry: base})
			continue
		}
		for _, t := range treatments {
			e := base
			e.TreatmentType = t.TreatmentType
			e.TreatmentNotes = t.Notes
			rows = append(rows, row{entry: e, treatmentID: t.ID})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.entry.Date != b.entry.Date {
			return a.entry.Date > b.entry.Date
		}
		if a.entry.Time != b.entry.Time {
			return a.entry.Time > b.entry.Time
		}
		return a.treatmentID < b.treatmentID
	})

	result := make([]HistoryEntry, 0, len(rows))
	for _, rw := range rows {
		result = append(result, rw.entry)
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	defer r.lock()()
	ev.ID = int64(len(r.st.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	ev.AppointmentID = copyID(ev.AppointmentID)
	r.st.events = append(r.st.events, ev)
	return nil
}

// Events returns a copy of the event log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	defer r.lock()()
	return append([]EventLog(nil), r.st.events...)
}
