package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

var ErrNotConfigured = errors.New("email delivery is not configured")

const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultSkipped = "skipped"

	kindContact    = "contact"
	kindNewsletter = "newsletter"
)

// Gateway sends clinic email in the background. Each send gets its own
// timeout and is detached from the request that triggered it; failures are
// logged and counted, never returned.
type Gateway struct {
	sender      Sender
	live        bool
	clinicInbox string
	timeout     time.Duration
	metrics     *metrics.Collector
	log         *zap.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

func NewGateway(sender Sender, clinicInbox string, timeout time.Duration, m *metrics.Collector, log *zap.Logger) *Gateway {
	_, logOnly := sender.(*LogSender)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		sender:      sender,
		live:        !logOnly,
		clinicInbox: clinicInbox,
		timeout:     timeout,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// Live reports whether messages actually leave the process.
func (g *Gateway) Live() bool { return g.live }

// Notify implements appointment.Notifier.
func (g *Gateway) Notify(ctx context.Context, kind appointment.NotificationKind, recipient string, appt appointment.AppointmentDetail) {
	if recipient == "" {
		g.log.Warn("notification skipped, no recipient",
			zap.String("kind", string(kind)),
			zap.Int64("appointment_id", appt.ID),
		)
		g.metrics.Notification(string(kind), resultSkipped)
		return
	}

	var msg Message
	switch kind {
	case appointment.NotifyClinicCopy:
		msg = clinicCopy(recipient, appt, g.now())
	case appointment.NotifyPatientConfirmation:
		msg = patientConfirmation(recipient, appt)
	default:
		g.log.Warn("unknown notification kind", zap.String("kind", string(kind)))
		g.metrics.Notification(string(kind), resultSkipped)
		return
	}

	g.dispatch(ctx, string(kind), msg, zap.Int64("appointment_id", appt.ID))
}

// Newsletter forwards a signup to the clinic inbox in the background.
func (g *Gateway) Newsletter(ctx context.Context, email string) {
	if g.clinicInbox == "" {
		g.metrics.Notification(kindNewsletter, resultSkipped)
		return
	}
	g.dispatch(ctx, kindNewsletter, newsletterMessage(g.clinicInbox, email, g.now()))
}

// SendContact delivers a contact form message synchronously so the caller can
// tell the visitor whether it went through.
func (g *Gateway) SendContact(ctx context.Context, c ContactRequest) error {
	if !g.live || g.clinicInbox == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sender.Send(ctx, contactMessage(g.clinicInbox, c, g.now())); err != nil {
		g.metrics.Notification(kindContact, resultFailed)
		g.log.Error("contact email failed", zap.String("name", c.Name), zap.Error(err))
		return fmt.Errorf("send contact email: %w", err)
	}
	g.metrics.Notification(kindContact, resultSent)
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, kind string, msg Message, fields ...zap.Field) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		fields = append(fields, zap.String("kind", kind), zap.String("to", msg.To))
		if err := g.sender.Send(sendCtx, msg); err != nil {
			g.metrics.Notification(kind, resultFailed)
			g.log.Warn("notification failed", append(fields, zap.Error(err))...)
			return
		}
		g.metrics.Notification(kind, resultSent)
		g.log.Debug("notification sent", fields...)
	}()
}

// Wait blocks until in-flight sends finish or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
