package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const monday = "2026-10-19"

type fakeMailer struct {
	mu          sync.Mutex
	live        bool
	contactErr  error
	contacts    []notify.ContactRequest
	newsletters []string
}

func (m *fakeMailer) SendContact(_ context.Context, c notify.ContactRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, c)
	return m.contactErr
}

func (m *fakeMailer) Newsletter(_ context.Context, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newsletters = append(m.newsletters, email)
}

func (m *fakeMailer) Live() bool { return m.live }

type testServer struct {
	handler http.Handler
	svc     *appointment.Service
	mailer  *fakeMailer
	metrics *metrics.Collector
}

func newTestServer(t *testing.T, checks ...DependencyCheck) *testServer {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	cfg := config.Config{Location: time.UTC}
	svc := appointment.NewService(repo, redisclient.NewLocalSlotLocker(), availability.Default(), nil, cfg, zap.NewNop())
	for _, d := range []appointment.DoctorInput{
		{Key: "dr-anoop", Name: "Dr. Anoop", Specialization: "Endodontics"},
		{Key: "dr-terry", Name: "Dr. Terry", Specialization: "Orthodontics"},
	} {
		_, err := svc.CreateDoctor(context.Background(), d)
		require.NoError(t, err)
	}

	mailer := &fakeMailer{live: true}
	m := metrics.NewCollector(prometheus.NewRegistry())
	h := NewRouter(RouterConfig{
		Service: svc,
		Mailer:  mailer,
		Metrics: m,
		Checks:  checks,
		Logger:  zap.NewNop(),
		Env:     "test",
		Version: "v-test",
	})
	return &testServer{handler: h, svc: svc, mailer: mailer, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func booking() map[string]any {
	return map[string]any{
		"name":         "A",
		"contact":      "a@x.com",
		"service":      "Root Canal",
		"servicePrice": 4000,
		"doctorId":     "dr-anoop",
		"date":         monday,
		"time":         "09:00",
	}
}

func TestBookAppointment_HTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/appointment", booking())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[BookingResponse](t, rec)
	assert.True(t, resp.OK)
	assert.Equal(t, "confirmed", resp.Appointment.Status)
	assert.Equal(t, "Dr. Anoop", resp.Appointment.DoctorName)
	assert.Equal(t, "A", resp.Appointment.PatientName)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodPost, "/api/appointments", booking())
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "slot_taken", errResp.Error)
	assert.Equal(t, "ConflictError", errResp.Kind)
	assert.Contains(t, errResp.Details, "Dr. Anoop")

	off := booking()
	off["time"] = "09:05"
	rec = s.do(t, http.MethodPost, "/api/appointment", off)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp = decode[ErrorResponse](t, rec)
	assert.Equal(t, "AvailabilityError", errResp.Kind)
	assert.Equal(t, "Dr. Anoop is not available on 2026-10-19 at 09:05", errResp.Details)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.BookingsTotal.WithLabelValues(metrics.OutcomeConfirmed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.BookingsTotal.WithLabelValues(metrics.OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.BookingsTotal.WithLabelValues(metrics.OutcomeAvailability)))
}

func TestBookAppointment_HTTPShapes(t *testing.T) {
	s := newTestServer(t)

	doctors := decode[map[string][]DoctorResponse](t, s.do(t, http.MethodGet, "/api/doctors", nil))
	require.Len(t, doctors["doctors"], 2)
	terryID := doctors["doctors"][1].ID

	// numeric doctor id and a price sent as a string
	req := booking()
	req["doctorId"] = terryID
	req["servicePrice"] = "₹1500"
	rec := s.do(t, http.MethodPost, "/api/appointment", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[BookingResponse](t, rec)
	assert.Equal(t, "Dr. Terry", resp.Appointment.DoctorName)
	assert.Equal(t, 1500.0, resp.Appointment.ServicePrice)

	// display name through the legacy doctor field
	req = booking()
	delete(req, "doctorId")
	req["doctor"] = "Dr. Terry"
	req["time"] = "09:30"
	rec = s.do(t, http.MethodPost, "/api/appointment", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/appointment", `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decode[ErrorResponse](t, rec).Error)
}

func TestBookAppointment_HTTPValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/appointment", map[string]any{"name": "A"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "ValidationError", resp.Kind)
	assert.Contains(t, resp.Fields, "contact is required")
	assert.Contains(t, resp.Fields, "time is required")

	req := booking()
	req["doctorId"] = "dr-who"
	rec = s.do(t, http.MethodPost, "/api/appointment", req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "doctor_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestAppointmentLifecycle_HTTP(t *testing.T) {
	s := newTestServer(t)

	booked := decode[BookingResponse](t, s.do(t, http.MethodPost, "/api/appointment", booking())).Appointment
	path := "/api/appointments/" + itoa(booked.ID)

	rec := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booked.ID, decode[AppointmentResponse](t, rec).ID)

	rec = s.do(t, http.MethodPut, path, map[string]any{"time": "10:00", "notes": "moved by phone"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10:00", decode[AppointmentResponse](t, rec).Time)

	rec = s.do(t, http.MethodPut, path, map[string]any{"status": "pending"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, path+"/complete", map[string]any{"treatmentType": "Root Canal", "notes": "sitting 1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/api/doctors/dr-anoop/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[DoctorHistoryResponse](t, rec)
	require.Len(t, history.History, 1)
	assert.Equal(t, "sitting 1", history.History[0].TreatmentNotes)

	rec = s.do(t, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFoundError", decode[ErrorResponse](t, rec).Kind)

	rec = s.do(t, http.MethodGet, "/api/appointments/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelFreesSlot_HTTP(t *testing.T) {
	s := newTestServer(t)

	booked := decode[BookingResponse](t, s.do(t, http.MethodPost, "/api/appointment", booking())).Appointment
	rec := s.do(t, http.MethodPost, "/api/appointments/"+itoa(booked.ID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/api/doctors/dr-anoop/slots?date="+monday, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[SlotsResponse](t, rec)
	assert.Contains(t, slots.Free, "09:00")
	assert.Len(t, slots.Published, len(availability.DefaultSlots))

	rec = s.do(t, http.MethodPost, "/api/appointment", booking())
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestListAppointments_HTTP(t *testing.T) {
	s := newTestServer(t)

	for _, slot := range []string{"11:00", "09:00", "10:00"} {
		req := booking()
		req["time"] = slot
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/appointment", req).Code)
	}

	rec := s.do(t, http.MethodGet, "/api/appointments?date="+monday+"&status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Appointments, 3)
	assert.Equal(t, "09:00", list.Appointments[0].Time)
	assert.Equal(t, "11:00", list.Appointments[2].Time)

	rec = s.do(t, http.MethodGet, "/api/appointments?limit=1&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, "11:00", list.Appointments[0].Time)

	rec = s.do(t, http.MethodGet, "/api/appointments?doctorId=x&limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[ErrorResponse](t, rec).Fields, 2)

	rec = s.do(t, http.MethodGet, "/api/appointments?status=lost", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDoctorsAndPatients_HTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/doctors", DoctorRequest{Key: "dr-sijo", Name: "Dr. Sijo", Specialization: "Prosthodontics"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[DoctorResponse](t, rec)

	rec = s.do(t, http.MethodGet, "/api/doctors/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dr-sijo", decode[DoctorResponse](t, rec).Key)

	rec = s.do(t, http.MethodPut, "/api/doctors/dr-sijo", DoctorRequest{Key: "dr-sijo", Name: "Dr. Sijo Paul"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dr. Sijo Paul", decode[DoctorResponse](t, rec).Name)

	rec = s.do(t, http.MethodDelete, "/api/doctors/dr-sijo", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/doctors/dr-sijo", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	age := 29
	rec = s.do(t, http.MethodPost, "/api/patients", PatientRequest{Name: "Meera", Age: &age, Contact: "meera@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	patient := decode[PatientResponse](t, rec)
	ppath := "/api/patients/" + itoa(patient.ID)

	rec = s.do(t, http.MethodPut, ppath, PatientRequest{Name: "Meera N", Contact: "meera@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[PatientResponse](t, rec).Age)

	rec = s.do(t, http.MethodPost, "/api/patients", PatientRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, ppath, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, ppath, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "patient_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestStoreErrorsMapTo503(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &appointment.StoreError{Op: "create appointment", Err: errors.New("connection reset")}
	writeServiceError(rec, zap.NewNop(), err)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "StoreError", resp.Kind)
	assert.NotContains(t, resp.Details, "connection reset")
	assert.Equal(t, metrics.OutcomeStore, bookingOutcome(err))
}

func TestBusyConflictCode(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, zap.NewNop(), &appointment.ConflictError{Doctor: "Dr. Anoop", Date: monday, Time: "09:00", Busy: true})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_being_booked", decode[ErrorResponse](t, rec).Error)
}

func TestContactAndNewsletter(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/contact", ContactRequest{Name: "Priya", Info: "priya@example.com", Message: "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.mailer.contacts, 1)
	assert.Equal(t, "Priya", s.mailer.contacts[0].Name)

	rec = s.do(t, http.MethodPost, "/api/contact", ContactRequest{Name: "Priya"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	s.mailer.contactErr = notify.ErrNotConfigured
	rec = s.do(t, http.MethodPost, "/api/contact", ContactRequest{Name: "Priya", Info: "x"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.mailer.contactErr = errors.New("smtp timeout")
	rec = s.do(t, http.MethodPost, "/api/contact", ContactRequest{Name: "Priya", Info: "x"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	s.mailer.live = false
	rec = s.do(t, http.MethodPost, "/api/newsletter", NewsletterRequest{Email: "news@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted locally", decode[map[string]any](t, rec)["msg"])
	assert.Equal(t, []string{"news@example.com"}, s.mailer.newsletters)

	rec = s.do(t, http.MethodPost, "/api/newsletter", NewsletterRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t,
		DependencyCheck{Name: "store", Critical: true, Ping: func(context.Context) error { return nil }},
		DependencyCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v-test", decode[LivenessResponse](t, rec).Version)

	rec = s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, map[string]string{"store": "ok", "redis": "down"}, ready.Dependencies)

	rec = s.do(t, http.MethodGet, "/api/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `clinic_http_requests_total{method="GET",route="/api/ping",status="200"} 1`), rec.Body.String())
}

func TestReadinessFailsOnCriticalDependency(t *testing.T) {
	s := newTestServer(t,
		DependencyCheck{Name: "store", Critical: true, Ping: func(context.Context) error { return errors.New("refused") }},
	)

	rec := s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decode[ReadinessResponse](t, rec).Status)
}

func TestDoctorSelectorJSON(t *testing.T) {
	var req BookingRequest
	require.NoError(t, json.Unmarshal([]byte(`{"doctorId": 12, "doctor": " dr-anoop ", "servicePrice": "4000"}`), &req))
	assert.Equal(t, DoctorSelector("12"), req.DoctorID)
	assert.Equal(t, DoctorSelector("dr-anoop"), req.Doctor)
	assert.Equal(t, Price(4000), req.ServicePrice)
	assert.Equal(t, "12", req.toDomain().Doctor)

	require.Error(t, json.Unmarshal([]byte(`{"doctorId": 1.5}`), &req))
	require.Error(t, json.Unmarshal([]byte(`{"servicePrice": "cheap"}`), &req))
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
