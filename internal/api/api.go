/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/powerdown/internal/events"
	"github.com/friendsincode/powerdown/internal/models"
	"github.com/friendsincode/powerdown/internal/scheduler"
	"github.com/friendsincode/powerdown/internal/target"
)

// Controller is the schedule state machine driven by the API.
type Controller interface {
	Start(t target.Target) (models.ScheduleState, error)
	Confirm() (models.ScheduleState, error)
	Reject() (models.ScheduleState, error)
	Cancel() (models.ScheduleState, error)
	Status() models.Status
}

// Options tunes the API.
type Options struct {
	PollInterval       time.Duration // Status stream refresh
	RateLimitPerMinute int           // Mutating requests per client IP, 0 disables
}

// API exposes HTTP handlers.
type API struct {
	ctrl    Controller
	bus     *events.Bus
	poll    time.Duration
	limiter *IPRateLimiter
	logger  zerolog.Logger
}

// New creates the API router wrapper.
func New(ctrl Controller, bus *events.Bus, opts Options, logger zerolog.Logger) *API {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	a := &API{
		ctrl:   ctrl,
		bus:    bus,
		poll:   opts.PollInterval,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimitPerMinute > 0 {
		a.limiter = PerMinuteLimiter(opts.RateLimitPerMinute)
	}
	return a
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", a.handleStatus)
			r.Get("/stream", a.handleStream)

			r.Group(func(r chi.Router) {
				r.Use(sameOriginOnly)
				r.Use(middleware.AllowContentType("application/json"))
				if a.limiter != nil {
					r.Use(a.limiter.Middleware)
				}
				r.Post("/", a.handleStart)
				r.Delete("/", a.handleCancel)
				r.Post("/confirm", a.handleConfirm)
				r.Post("/reject", a.handleReject)
			})
		})
	})
}

// StatusResponse is the wire form of a schedule snapshot.
type StatusResponse struct {
	State            models.ScheduleState `json:"state"`
	RemainingSeconds *int64               `json:"remaining_seconds"`
	ScheduleID       string               `json:"schedule_id,omitempty"`
	Target           string               `json:"target,omitempty"`
	FireAt           *time.Time           `json:"fire_at,omitempty"`
	Confirmed        bool                 `json:"confirmed"`
	Error            string               `json:"error,omitempty"`
}

// NewStatusResponse converts a snapshot for the wire.
func NewStatusResponse(st models.Status) StatusResponse {
	resp := StatusResponse{
		State:            st.State,
		RemainingSeconds: st.RemainingSeconds(),
		ScheduleID:       st.ScheduleID,
		Target:           st.Target,
		Confirmed:        st.Confirmed,
		Error:            st.Error,
	}
	if !st.FireAt.IsZero() {
		fireAt := st.FireAt
		resp.FireAt = &fireAt
	}
	return resp
}

// StartRequest is the body of POST /schedule.
type StartRequest struct {
	Mode string `json:"mode"` // "at" or "after"
	Time string `json:"time"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStatusResponse(a.ctrl.Status()))
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	t, err := target.Parse(req.Mode, req.Time)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_target", err)
		return
	}

	if _, err := a.ctrl.Start(t); err != nil {
		a.writeControllerError(w, err)
		return
	}

	a.logger.Info().Str("target", t.String()).Str("remote", r.RemoteAddr).Msg("shutdown scheduled via api")
	writeJSON(w, http.StatusCreated, NewStatusResponse(a.ctrl.Status()))
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	a.transition(w, a.ctrl.Confirm)
}

func (a *API) handleReject(w http.ResponseWriter, r *http.Request) {
	a.transition(w, a.ctrl.Reject)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.transition(w, a.ctrl.Cancel)
}

func (a *API) transition(w http.ResponseWriter, op func() (models.ScheduleState, error)) {
	if _, err := op(); err != nil {
		a.writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatusResponse(a.ctrl.Status()))
}

func (a *API) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidTarget):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_target", err)
	case errors.Is(err, scheduler.ErrAlreadyScheduled):
		writeErrorMessage(w, http.StatusConflict, "already_scheduled", err)
	case errors.Is(err, scheduler.ErrInvalidState):
		writeErrorMessage(w, http.StatusConflict, "invalid_state", err)
	default:
		a.logger.Error().Err(err).Msg("schedule operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}
