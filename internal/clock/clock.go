/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock supplies wall-clock time and one-shot alarms to the scheduler.
package clock

import "time"

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// CancelHandle stops a pending alarm.
type CancelHandle interface {
	// Cancel reports true iff the call prevented the callback from running.
	Cancel() bool
}

// Alarms registers one-shot callbacks at absolute instants.
type Alarms interface {
	ScheduleOnce(at time.Time, fn func()) CancelHandle
}

// System is the production clock backed by the time package.
type System struct{}

// NewSystem returns the system clock.
func NewSystem() System {
	return System{}
}

// Now wraps time.Now.
func (System) Now() time.Time {
	return time.Now()
}

// ScheduleOnce runs fn in its own goroutine once at is reached. Instants in the
// past fire immediately.
func (System) ScheduleOnce(at time.Time, fn func()) CancelHandle {
	return &systemHandle{timer: time.AfterFunc(time.Until(at), fn)}
}

type systemHandle struct {
	timer *time.Timer
}

func (h *systemHandle) Cancel() bool {
	return h.timer.Stop()
}

var (
	_ Clock  = System{}
	_ Alarms = System{}
)
