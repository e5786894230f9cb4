package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func detail() appointment.AppointmentDetail {
	doctorID := int64(3)
	return appointment.AppointmentDetail{
		Appointment: appointment.Appointment{
			ID:           42,
			DoctorID:     &doctorID,
			Service:      "Root Canal",
			ServicePrice: 4000,
			Date:         "2026-10-19",
			Time:         "09:00",
			Status:       appointment.StatusConfirmed,
			Contact:      "a@x.com",
		},
		PatientName: "A",
		DoctorName:  "Dr. Anoop",
	}
}

func newTestGateway(sender Sender) (*Gateway, *metrics.Collector) {
	m := metrics.NewCollector(prometheus.NewRegistry())
	g := NewGateway(sender, "clinic@example.com", time.Second, m, zap.NewNop())
	g.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	return g, m
}

func TestGateway_NotifyClinicCopy(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.To == "clinic@example.com" &&
			msg.Subject == "New Appointment: A - 2026-10-19 at 09:00" &&
			msg.ReplyTo == "a@x.com"
	})).Return(nil).Once()

	g, m := newTestGateway(sender)
	g.Notify(context.Background(), appointment.NotifyClinicCopy, "clinic@example.com", detail())
	require.NoError(t, g.Wait(context.Background()))

	sender.AssertExpectations(t)
	msg := sender.Calls[0].Arguments.Get(1).(Message)
	assert.Contains(t, msg.Body, "Service: Root Canal (₹4000)")
	assert.Contains(t, msg.Body, "Doctor: Dr. Anoop")
	assert.Contains(t, msg.Body, "Notes: (none)")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("clinic_copy", "sent")))
}

func TestGateway_NotifyPatientConfirmation(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	g, _ := newTestGateway(sender)
	g.Notify(context.Background(), appointment.NotifyPatientConfirmation, "a@x.com", detail())
	require.NoError(t, g.Wait(context.Background()))

	msg := sender.Calls[0].Arguments.Get(1).(Message)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, "Appointment Confirmed - Anupam Dental", msg.Subject)
	assert.Contains(t, msg.Body, "Dear A,")
	assert.Contains(t, msg.Body, "Price: ₹4000")
}

func TestGateway_FailuresAreAbsorbed(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	g, m := newTestGateway(sender)
	assert.NotPanics(t, func() {
		g.Notify(context.Background(), appointment.NotifyClinicCopy, "clinic@example.com", detail())
	})
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("clinic_copy", "failed")))
}

func TestGateway_SendOutlivesRequestContext(t *testing.T) {
	sender := &mockSender{}
	var sendErr error
	sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sendErr = args.Get(0).(context.Context).Err()
	}).Return(nil)

	g, _ := newTestGateway(sender)
	ctx, cancel := context.WithCancel(context.Background())
	g.Notify(ctx, appointment.NotifyClinicCopy, "clinic@example.com", detail())
	cancel()
	require.NoError(t, g.Wait(context.Background()))

	assert.NoError(t, sendErr)
}

func TestGateway_SkipsMissingRecipient(t *testing.T) {
	sender := &mockSender{}
	g, m := newTestGateway(sender)

	g.Notify(context.Background(), appointment.NotifyClinicCopy, "", detail())
	require.NoError(t, g.Wait(context.Background()))

	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("clinic_copy", "skipped")))
}

func TestGateway_SendContact(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Subject == "Contact request - Priya" && msg.ReplyTo == "priya@example.com"
	})).Return(nil).Once()

	g, _ := newTestGateway(sender)
	err := g.SendContact(context.Background(), ContactRequest{Name: "Priya", Info: "priya@example.com", Message: "Do you do braces?"})
	require.NoError(t, err)
	sender.AssertExpectations(t)

	failing := &mockSender{}
	failing.On("Send", mock.Anything, mock.Anything).Return(errors.New("535 auth failed"))
	g, _ = newTestGateway(failing)
	err = g.SendContact(context.Background(), ContactRequest{Name: "Priya", Info: "9847000000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 auth failed")
}

func TestGateway_LogSenderIsNotLive(t *testing.T) {
	g, _ := newTestGateway(NewLogSender(zap.NewNop()))
	assert.False(t, g.Live())

	err := g.SendContact(context.Background(), ContactRequest{Name: "Priya", Info: "x"})
	require.ErrorIs(t, err, ErrNotConfigured)

	// background sends still go through the log sender
	g.Notify(context.Background(), appointment.NotifyClinicCopy, "clinic@example.com", detail())
	g.Newsletter(context.Background(), "news@example.com")
	require.NoError(t, g.Wait(context.Background()))
}

func TestGateway_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) { <-block }).Return(nil)

	g, _ := newTestGateway(sender)
	g.Newsletter(context.Background(), "news@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, g.Wait(context.Background()))
}

func TestNewSMTPSender_RequiresConfig(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "clinic"})
	require.Error(t, err)
}
