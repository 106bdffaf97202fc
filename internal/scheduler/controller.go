/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler owns the single pending shutdown and drives it from
// request through countdown to execution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/powerdown/internal/clock"
	"github.com/friendsincode/powerdown/internal/events"
	"github.com/friendsincode/powerdown/internal/executor"
	"github.com/friendsincode/powerdown/internal/models"
	"github.com/friendsincode/powerdown/internal/target"
	"github.com/friendsincode/powerdown/internal/telemetry"
)

var (
	// ErrAlreadyScheduled is returned by Start while a schedule is active.
	ErrAlreadyScheduled = errors.New("a shutdown is already scheduled")

	// ErrInvalidState is returned when an operation does not apply to the
	// current state.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrInvalidTarget is returned by Start for malformed targets.
	ErrInvalidTarget = target.ErrInvalidTarget
)

const (
	DefaultShortDelayThreshold = 5 * time.Minute
	DefaultExecTimeout         = 30 * time.Second
)

// Options tunes the controller.
type Options struct {
	// ShortDelayThreshold is the remaining time below which Start waits for
	// Confirm instead of arming.
	ShortDelayThreshold time.Duration
	// ExecTimeout bounds a single executor run.
	ExecTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ShortDelayThreshold <= 0 {
		o.ShortDelayThreshold = DefaultShortDelayThreshold
	}
	if o.ExecTimeout <= 0 {
		o.ExecTimeout = DefaultExecTimeout
	}
	return o
}

// Controller is the shutdown schedule state machine. All methods are safe for
// concurrent use.
type Controller struct {
	clock  clock.Clock
	alarms clock.Alarms
	exec   executor.Executor
	bus    events.Publisher
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	sched *models.Schedule // nil when idle
	gen   uint64
	alarm clock.CancelHandle
}

// New constructs the controller. bus may be nil.
func New(clk clock.Clock, alarms clock.Alarms, exec executor.Executor, bus events.Publisher, opts Options, logger zerolog.Logger) *Controller {
	c := &Controller{
		clock:  clk,
		alarms: alarms,
		exec:   exec,
		bus:    bus,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	c.recordState(models.ScheduleStateIdle)
	return c
}

// Start creates a schedule for t. Short remaining times wait for Confirm.
func (c *Controller) Start(t target.Target) (models.ScheduleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.stateLocked()
	if current.Active() {
		telemetry.ScheduleRejectedOpsTotal.WithLabelValues("start", "already_scheduled").Inc()
		return current, ErrAlreadyScheduled
	}

	now := c.clock.Now()
	fireAt, err := target.Resolve(t, now)
	if err != nil {
		telemetry.ScheduleRejectedOpsTotal.WithLabelValues("start", "invalid_target").Inc()
		return current, err
	}

	if c.sched != nil {
		// Completed or failed schedule from a previous run.
		c.transitionLocked(models.ScheduleStateIdle)
		c.sched = nil
	}

	c.sched = &models.Schedule{
		ID:        uuid.NewString(),
		Target:    t,
		FireAt:    fireAt,
		CreatedAt: now,
		State:     models.ScheduleStateIdle,
	}

	remaining := fireAt.Sub(now)
	c.logger.Info().
		Str("schedule_id", c.sched.ID).
		Str("target", t.String()).
		Time("fire_at", fireAt).
		Dur("remaining", remaining).
		Msg("shutdown requested")

	if remaining < c.opts.ShortDelayThreshold {
		c.transitionLocked(models.ScheduleStateAwaitingConfirmation)
		c.publishLocked(events.EventAwaitingConfirmation)
		return c.sched.State, nil
	}

	c.armLocked()
	c.transitionLocked(models.ScheduleStateArmed)
	c.publishLocked(events.EventArmed)
	return c.sched.State, nil
}

// Confirm arms a schedule awaiting confirmation. The original fire instant is
// kept; if it has already passed the shutdown fires immediately.
func (c *Controller) Confirm() (models.ScheduleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.stateLocked()
	if current != models.ScheduleStateAwaitingConfirmation {
		return current, c.invalidLocked("confirm", current)
	}

	c.sched.Confirmed = true
	c.armLocked()
	c.transitionLocked(models.ScheduleStateArmed)
	c.publishLocked(events.EventArmed)
	return c.sched.State, nil
}

// Reject discards a schedule awaiting confirmation.
func (c *Controller) Reject() (models.ScheduleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.stateLocked()
	if current != models.ScheduleStateAwaitingConfirmation {
		return current, c.invalidLocked("reject", current)
	}

	c.transitionLocked(models.ScheduleStateIdle)
	c.publishLocked(events.EventRejected)
	c.sched = nil
	return models.ScheduleStateIdle, nil
}

// Cancel withdraws a pending schedule. Once Cancel returns, the executor
// will not be invoked for that schedule.
func (c *Controller) Cancel() (models.ScheduleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.stateLocked()
	if current != models.ScheduleStateAwaitingConfirmation && current != models.ScheduleStateArmed {
		return current, c.invalidLocked("cancel", current)
	}

	c.cancelLocked()
	return models.ScheduleStateIdle, nil
}

// Status returns a snapshot of the current schedule.
func (c *Controller) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sched == nil {
		return models.Status{State: models.ScheduleStateIdle}
	}

	remaining := c.sched.FireAt.Sub(c.clock.Now())
	if remaining < 0 || !c.sched.State.Active() {
		remaining = 0
	}

	st := models.Status{
		State:      c.sched.State,
		Remaining:  &remaining,
		ScheduleID: c.sched.ID,
		Target:     c.sched.Target.String(),
		FireAt:     c.sched.FireAt,
		Confirmed:  c.sched.Confirmed,
	}
	if c.sched.Err != nil {
		st.Error = c.sched.Err.Error()
	}
	return st
}

// Close withdraws any pending schedule. A running executor is not interrupted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stateLocked() {
	case models.ScheduleStateAwaitingConfirmation, models.ScheduleStateArmed:
		c.logger.Info().Str("schedule_id", c.sched.ID).Msg("withdrawing pending shutdown on close")
		c.cancelLocked()
	}
}

func (c *Controller) cancelLocked() {
	c.gen++
	if c.alarm != nil {
		c.alarm.Cancel()
		c.alarm = nil
	}
	c.transitionLocked(models.ScheduleStateCancelled)
	c.publishLocked(events.EventCancelled)
	c.transitionLocked(models.ScheduleStateIdle)
	c.sched = nil
}

func (c *Controller) armLocked() {
	c.gen++
	gen := c.gen
	c.alarm = c.alarms.ScheduleOnce(c.sched.FireAt, func() {
		c.expire(gen)
	})
}

// expire runs when the alarm armed under gen goes off.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.sched == nil || c.sched.State != models.ScheduleStateArmed {
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", gen).Msg("stale alarm ignored")
		return
	}
	c.alarm = nil
	c.transitionLocked(models.ScheduleStateFiring)
	c.publishLocked(events.EventFiring)
	sched := c.sched
	c.mu.Unlock()

	// Firing excludes Start and Cancel, so sched stays current while the
	// executor runs without the lock.
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ExecTimeout)
	start := time.Now()
	err := c.exec.Execute(ctx)
	cancel()

	result := "success"
	if err != nil {
		result = "failure"
	}
	telemetry.ExecutorDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		sched.Err = err
		c.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("shutdown command failed")
		c.transitionLocked(models.ScheduleStateFailed)
		c.publishLocked(events.EventFailed)
		return
	}
	c.transitionLocked(models.ScheduleStateCompleted)
	c.publishLocked(events.EventCompleted)
}

func (c *Controller) stateLocked() models.ScheduleState {
	if c.sched == nil {
		return models.ScheduleStateIdle
	}
	return c.sched.State
}

func (c *Controller) invalidLocked(op string, current models.ScheduleState) error {
	telemetry.ScheduleRejectedOpsTotal.WithLabelValues(op, "invalid_state").Inc()
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, current)
}

// transitionLocked moves the schedule to "to". Callers only request moves the
// table allows; anything else is a programming error and is logged, not applied.
func (c *Controller) transitionLocked(to models.ScheduleState) {
	from := c.sched.State
	if !isValidTransition(from, to) {
		c.logger.Error().
			Str("schedule_id", c.sched.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("invalid schedule transition")
		return
	}

	c.sched.State = to
	c.logger.Info().
		Str("schedule_id", c.sched.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("schedule transition")

	telemetry.ScheduleTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	c.recordState(to)
	if to == models.ScheduleStateArmed {
		telemetry.ScheduleFireTimestamp.Set(float64(c.sched.FireAt.Unix()))
	} else if !to.Active() {
		telemetry.ScheduleFireTimestamp.Set(0)
	}
}

var allStates = []models.ScheduleState{
	models.ScheduleStateIdle,
	models.ScheduleStateAwaitingConfirmation,
	models.ScheduleStateArmed,
	models.ScheduleStateFiring,
	models.ScheduleStateCancelled,
	models.ScheduleStateCompleted,
	models.ScheduleStateFailed,
}

func (c *Controller) recordState(current models.ScheduleState) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		telemetry.ScheduleState.WithLabelValues(string(s)).Set(v)
	}
}

// publishLocked emits eventType for the current schedule. Publishers never
// block, so this is safe under the lock.
func (c *Controller) publishLocked(eventType events.EventType) {
	if c.bus == nil {
		return
	}
	payload := events.Payload{
		"schedule_id": c.sched.ID,
		"state":       string(c.sched.State),
		"target":      c.sched.Target.String(),
		"fire_at":     c.sched.FireAt.Format(time.RFC3339),
		"confirmed":   c.sched.Confirmed,
	}
	if c.sched.Err != nil {
		payload["error"] = c.sched.Err.Error()
	}
	c.bus.Publish(eventType, payload)
}
