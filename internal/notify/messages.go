package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const (
	clinicName  = "Anupam Dental Clinic"
	clinicPhone = "+91 98765 43210"
)

// ContactRequest is a message left through the site contact form.
type ContactRequest struct {
	Name    string
	Info    string // phone or email the clinic should reply to
	Message string
}

func rupees(v float64) string {
	return "₹" + strconv.FormatFloat(v, 'f', -1, 64)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func doctorName(a appointment.AppointmentDetail) string {
	if a.DoctorName == "" {
		return "any available doctor"
	}
	return a.DoctorName
}

func clinicCopy(to string, a appointment.AppointmentDetail, at time.Time) Message {
	var b strings.Builder
	b.WriteString("New Appointment Request:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", a.PatientName)
	fmt.Fprintf(&b, "Contact: %s\n", a.Contact)
	fmt.Fprintf(&b, "Service: %s (%s)\n", a.Service, rupees(a.ServicePrice))
	fmt.Fprintf(&b, "Doctor: %s\n", doctorName(a))
	fmt.Fprintf(&b, "Date: %s\n", a.Date)
	fmt.Fprintf(&b, "Time: %s\n", a.Time)
	fmt.Fprintf(&b, "Notes: %s\n", orNone(a.Notes))
	fmt.Fprintf(&b, "Appointment ID: %d\n", a.ID)
	fmt.Fprintf(&b, "Submitted: %s", at.UTC().Format(time.RFC3339))

	msg := Message{
		To:      to,
		Subject: fmt.Sprintf("New Appointment: %s - %s at %s", a.PatientName, a.Date, a.Time),
		Body:    b.String(),
	}
	if strings.Contains(a.Contact, "@") {
		msg.ReplyTo = a.Contact
	}
	return msg
}

func patientConfirmation(to string, a appointment.AppointmentDetail) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", a.PatientName)
	b.WriteString("Your appointment has been confirmed! Here are your details:\n\n")
	fmt.Fprintf(&b, "Service: %s\n", a.Service)
	fmt.Fprintf(&b, "Price: %s\n", rupees(a.ServicePrice))
	fmt.Fprintf(&b, "Doctor: %s\n", doctorName(a))
	fmt.Fprintf(&b, "Date: %s\n", a.Date)
	fmt.Fprintf(&b, "Time: %s\n\n", a.Time)
	fmt.Fprintf(&b, "Please call %s if you need to reschedule.\n\n", clinicPhone)
	fmt.Fprintf(&b, "Thank you for choosing %s!\n\nBest regards,\nAnupam Dental Team", clinicName)

	return Message{
		To:      to,
		Subject: "Appointment Confirmed - Anupam Dental",
		Body:    b.String(),
	}
}

func contactMessage(to string, c ContactRequest, at time.Time) Message {
	body := fmt.Sprintf("New contact request:\nName: %s\nContact: %s\nMessage: %s\nTime: %s",
		c.Name, c.Info, orNone(c.Message), at.UTC().Format(time.RFC3339))
	msg := Message{
		To:      to,
		Subject: "Contact request - " + c.Name,
		Body:    body,
	}
	if strings.Contains(c.Info, "@") {
		msg.ReplyTo = c.Info
	}
	return msg
}

func newsletterMessage(to, email string, at time.Time) Message {
	return Message{
		To:      to,
		Subject: "Newsletter signup - " + email,
		Body:    fmt.Sprintf("Newsletter signup: %s\nTime: %s", email, at.UTC().Format(time.RFC3339)),
	}
}
