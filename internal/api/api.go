/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the operator control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/audit"
	"github.com/friendsincode/grimnir_playout/internal/auth"
	"github.com/friendsincode/grimnir_playout/internal/catalog"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/ordering"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/station"
)

// Station is the control surface of a running station.
type Station interface {
	StationID() string
	Bus() *events.Bus
	Status() (playout.Status, error)
	Skip(ctx context.Context) (playout.Decision, error)
	StopLive(ctx context.Context, entryID string) (playout.Decision, error)
	SetStrategy(ctx context.Context, kind ordering.Kind) error
	ReloadCatalog(ctx context.Context) (playout.Decision, error)
	ReloadSchedule(ctx context.Context) (playout.Decision, error)
	History(ctx context.Context, limit int) ([]models.PlayHistory, error)
	Schedule() []schedule.LiveEntry
	Name() string
}

// API exposes HTTP handlers.
type API struct {
	station   Station
	jwtSecret []byte
	auditSvc  *audit.Service
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper. An empty jwtSecret disables
// authentication, which config only allows outside production.
func New(st Station, jwtSecret []byte, auditSvc *audit.Service, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		station:   st,
		jwtSecret: jwtSecret,
		auditSvc:  auditSvc,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the control API under /api/v1.
func (a *API) Routes(r chi.Router) {
	if len(a.jwtSecret) == 0 {
		a.logger.Warn().Msg("control API running without authentication")
	}

	r.Route("/api/v1", func(r chi.Router) {
		if len(a.jwtSecret) > 0 {
			r.Use(auth.Middleware(a.jwtSecret))
		}

		r.Group(func(r chi.Router) {
			r.Use(a.requireRole(auth.RoleViewer))
			r.Get("/status", a.handleStatus)
			r.Get("/strategies", a.handleStrategies)
			r.Get("/history", a.handleHistory)
			r.Get("/schedule", a.handleSchedule)
			r.Get("/schedule.ics", a.handleScheduleICal)
			r.Get("/events", a.handleEvents)
			r.Get("/audit", a.handleAuditList)
			r.Get("/logs", a.handleSystemLogs)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireRole(auth.RoleOperator))
			r.Post("/skip", a.handleSkip)
			r.Post("/reload/catalog", a.handleReloadCatalog)
			r.Post("/reload/schedule", a.handleReloadSchedule)
			r.Put("/strategy", a.handleSetStrategy)
			r.Post("/live/{id}/stop", a.handleStopLive)
		})
	})
}

func (a *API) requireRole(role string) func(http.Handler) http.Handler {
	if len(a.jwtSecret) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireRole(role, a.station.StationID())
}

// commandError maps engine and station errors onto HTTP responses.
func (a *API) commandError(w http.ResponseWriter, op string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	var dup *catalog.DuplicateTrackError
	switch {
	case errors.Is(err, station.ErrNotLeader):
		status, code = http.StatusServiceUnavailable, "not_leader"
	case errors.Is(err, playout.ErrStopped), errors.Is(err, playout.ErrNotStarted):
		status, code = http.StatusServiceUnavailable, "engine_not_running"
	case errors.Is(err, playout.ErrSkipThrottled):
		status, code = http.StatusTooManyRequests, "skip_throttled"
	case errors.Is(err, playout.ErrNothingPlaying):
		status, code = http.StatusConflict, "nothing_playing"
	case errors.Is(err, playout.ErrUnknownLiveEntry):
		status, code = http.StatusNotFound, "unknown_live_entry"
	case errors.Is(err, playout.ErrDecisionStarvation):
		// Checked before the catalog classes, which it may wrap.
		status, code = http.StatusConflict, "starved"
	case errors.Is(err, ordering.ErrUnknownStrategy):
		status, code = http.StatusBadRequest, "unknown_strategy"
	case errors.Is(err, catalog.ErrEmptyCatalog), errors.Is(err, catalog.ErrInvalidTrack), errors.As(err, &dup):
		status, code = http.StatusUnprocessableEntity, "catalog_rejected"
	case errors.Is(err, schedule.ErrScheduleConflict), errors.Is(err, schedule.ErrInvalidEntry):
		status, code = http.StatusUnprocessableEntity, "schedule_rejected"
	}

	event := a.logger.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		event = a.logger.Error()
	}
	event.Err(err).Str("op", op).Int("status", status).Msg("command failed")

	writeJSON(w, status, map[string]string{"error": code, "detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
