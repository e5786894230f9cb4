package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.Booking(OutcomeConfirmed)
	c.Booking(OutcomeConflict)
	c.Booking(OutcomeConflict)
	c.Notification("clinic_copy", "sent")
	c.ObserveRequest(http.MethodPost, "/api/appointment", http.StatusCreated, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues(OutcomeConfirmed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NotificationsTotal.WithLabelValues("clinic_copy", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RequestsTotal.WithLabelValues("POST", "/api/appointment", "201")))

	done := c.TrackInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.InFlightGauge))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.InFlightGauge))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Booking(OutcomeStore)
		c.Notification("patient_confirmation", "failed")
		c.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		c.TrackInFlight()()
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.Booking(OutcomeAvailability)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clinic_booking_attempts_total{outcome="availability"} 1`)
}
