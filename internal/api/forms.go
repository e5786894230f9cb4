package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

func (h *handlers) contact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Info = strings.TrimSpace(req.Info)
	if req.Name == "" || req.Info == "" {
		writeValidation(w, "name and contact info are required")
		return
	}

	err := h.mailer.SendContact(r.Context(), notify.ContactRequest{
		Name:    req.Name,
		Info:    req.Info,
		Message: strings.TrimSpace(req.Message),
	})
	switch {
	case errors.Is(err, notify.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "smtp_not_configured", "email delivery is not configured")
	case err != nil:
		h.log.Error("contact form delivery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "email_failed", "failed to send email")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *handlers) newsletter(w http.ResponseWriter, r *http.Request) {
	var req NewsletterRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeValidation(w, "email is required")
		return
	}

	h.mailer.Newsletter(r.Context(), email)
	resp := map[string]any{"ok": true}
	if !h.mailer.Live() {
		resp["msg"] = "accepted locally"
	}
	writeJSON(w, http.StatusOK, resp)
}
