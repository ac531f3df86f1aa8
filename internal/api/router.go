package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

// AppointmentService is the engine surface the HTTP layer drives.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, caller appointment.Caller, in appointment.CreateInput) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, caller appointment.Caller, id uuid.UUID, f appointment.UpdateFields) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, caller appointment.Caller, id uuid.UUID, status appointment.AppointmentStatus) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, caller appointment.Caller, id uuid.UUID) error
	GetAvailability(ctx context.Context, caller appointment.Caller, doctorID uuid.UUID, date time.Time) (*appointment.Availability, error)
	ListAppointments(ctx context.Context, caller appointment.Caller, f appointment.Filter) ([]appointment.Appointment, error)
	ListToday(ctx context.Context, caller appointment.Caller) ([]appointment.Appointment, error)
	ListUpcoming(ctx context.Context, caller appointment.Caller) ([]appointment.Appointment, error)
	GetAppointment(ctx context.Context, caller appointment.Caller, id uuid.UUID) (*appointment.Appointment, error)
	GetStatistics(ctx context.Context, caller appointment.Caller) (*appointment.Statistics, error)
	ListDoctors(ctx context.Context, caller appointment.Caller) ([]appointment.Doctor, error)
}

type RouterConfig struct {
	Service   AppointmentService
	Health    *HealthHandler
	Metrics   http.Handler
	JWTSecret string
	Logger    *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	h := newHandlers(cfg.Service, log)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/today", h.listToday)
			r.Get("/upcoming", h.listUpcoming)
			r.Get("/stats/overview", h.statistics)
			r.Get("/availability/{doctorId}", h.availability)
			r.Get("/{id}", h.getAppointment)
			r.Put("/{id}", h.updateAppointment)
			r.Patch("/{id}/status", h.changeStatus)
			r.Delete("/{id}", h.deleteAppointment)
		})

		r.Get("/doctors", h.listDoctors)
	})

	return r
}
