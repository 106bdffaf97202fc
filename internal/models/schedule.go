/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/powerdown/internal/target"
)

// ScheduleState defines the lifecycle states of the shutdown schedule.
type ScheduleState string

const (
	ScheduleStateIdle                 ScheduleState = "idle"                  // No schedule
	ScheduleStateAwaitingConfirmation ScheduleState = "awaiting_confirmation" // Short delay, waiting for the user
	ScheduleStateArmed                ScheduleState = "armed"                 // Counting down to FireAt
	ScheduleStateFiring               ScheduleState = "firing"                // Executor running
	ScheduleStateCancelled            ScheduleState = "cancelled"             // Transient, resets to idle
	ScheduleStateCompleted            ScheduleState = "completed"             // Executor succeeded
	ScheduleStateFailed               ScheduleState = "failed"                // Executor failed, no retry
)

// Active reports whether a schedule in this state blocks a new Start.
func (s ScheduleState) Active() bool {
	switch s {
	case ScheduleStateAwaitingConfirmation, ScheduleStateArmed, ScheduleStateFiring:
		return true
	default:
		return false
	}
}

// Schedule is the single shutdown request owned by the scheduler.
type Schedule struct {
	ID        string
	Target    target.Target
	FireAt    time.Time
	CreatedAt time.Time
	Confirmed bool
	State     ScheduleState
	Err       error // Executor error retained on failure
}

// Status is a read-only snapshot of the schedule for display.
type Status struct {
	State      ScheduleState
	Remaining  *time.Duration // nil when idle
	ScheduleID string
	Target     string
	FireAt     time.Time
	Confirmed  bool
	Error      string
}

// RemainingSeconds returns the remaining time rounded up to whole seconds, or
// nil when idle.
func (s Status) RemainingSeconds() *int64 {
	if s.Remaining == nil {
		return nil
	}
	secs := int64((*s.Remaining + time.Second - 1) / time.Second)
	return &secs
}
