package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service   *appointment.Service
	Mailer    Mailer
	Metrics   *metrics.Collector
	Checks    []DependencyCheck
	Logger    *zap.Logger
	Env       string
	Version   string
	StaticDir string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: cfg.Service, mailer: cfg.Mailer, metrics: cfg.Metrics, log: log}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.ping)

		// Site form path and the REST collection both book
		r.Post("/appointment", h.bookAppointment)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.bookAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Put("/{id}", h.updateAppointment)
			r.Delete("/{id}", h.deleteAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/complete", h.completeAppointment)
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", h.listDoctors)
			r.Post("/", h.createDoctor)
			r.Get("/{ref}", h.getDoctor)
			r.Put("/{ref}", h.updateDoctor)
			r.Delete("/{ref}", h.deleteDoctor)
			r.Get("/{ref}/history", h.doctorHistory)
			r.Get("/{ref}/slots", h.doctorSlots)
		})

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", h.createPatient)
			r.Get("/{id}", h.getPatient)
			r.Put("/{id}", h.updatePatient)
			r.Delete("/{id}", h.deletePatient)
		})

		r.Post("/contact", h.contact)
		r.Post("/newsletter", h.newsletter)
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
