package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/marleyhealth/scheduling/internal/dicomweb"
	"github.com/marleyhealth/scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service         *scheduling.Service
	RecurrenceQueue *scheduling.RecurrenceQueue
	DicomWeb        *dicomweb.Handler
	PgPool          *pgxpool.Pool
	Redis           *redis.Client
	Env             string
	Version         string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/status", statusTriggerHandler(cfg.Service))
	r.Post("/appointments/recurring", enqueueRecurringHandler(cfg.RecurrenceQueue))
	r.Post("/appointments/recurring/dates", recurringDatesHandler(cfg.Service))
	r.Get("/slots", slotsHandler(cfg.Service))

	// DICOM UPS-RS worklist for modalities
	if cfg.DicomWeb != nil {
		r.Mount("/dicom-web", cfg.DicomWeb.Routes())
	}

	return r
}
