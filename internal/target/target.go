/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package target turns a user-supplied shutdown time into a concrete fire instant.
package target

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTarget indicates a malformed time of day or a zero/negative delay.
var ErrInvalidTarget = errors.New("invalid target")

// Kind selects which Target variant is populated.
type Kind string

const (
	KindTimeOfDay Kind = "at"
	KindDelay     Kind = "after"
)

// Target is either an absolute time of day (Hour:Minute) or a relative
// delay (Hours, Minutes). Fields of the other variant must be zero.
type Target struct {
	Kind Kind

	Hour   int
	Minute int

	Hours   int
	Minutes int
}

// AtTimeOfDay builds a time-of-day target.
func AtTimeOfDay(hour, minute int) Target {
	return Target{Kind: KindTimeOfDay, Hour: hour, Minute: minute}
}

// After builds a relative delay target.
func After(hours, minutes int) Target {
	return Target{Kind: KindDelay, Hours: hours, Minutes: minutes}
}

// Delay returns the delay of a KindDelay target.
func (t Target) Delay() time.Duration {
	return time.Duration(t.Hours)*time.Hour + time.Duration(t.Minutes)*time.Minute
}

// Validate checks field ranges for the populated variant.
func (t Target) Validate() error {
	switch t.Kind {
	case KindTimeOfDay:
		if t.Hours != 0 || t.Minutes != 0 {
			return fmt.Errorf("%w: delay fields set on time-of-day target", ErrInvalidTarget)
		}
		if t.Hour < 0 || t.Hour > 23 {
			return fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalidTarget, t.Hour)
		}
		if t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidTarget, t.Minute)
		}
	case KindDelay:
		if t.Hour != 0 || t.Minute != 0 {
			return fmt.Errorf("%w: time-of-day fields set on delay target", ErrInvalidTarget)
		}
		if t.Hours < 0 {
			return fmt.Errorf("%w: hours %d must not be negative", ErrInvalidTarget, t.Hours)
		}
		if t.Minutes < 0 || t.Minutes > 59 {
			return fmt.Errorf("%w: minutes %d out of range 0-59", ErrInvalidTarget, t.Minutes)
		}
		if t.Delay() <= 0 {
			return fmt.Errorf("%w: delay must be greater than 00:00", ErrInvalidTarget)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTarget, t.Kind)
	}
	return nil
}

// Resolve computes the fire instant for t relative to now. It never reads the
// clock. A time of day at or before now rolls over to the next calendar day.
func Resolve(t Target, now time.Time) (time.Time, error) {
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}

	switch t.Kind {
	case KindDelay:
		return now.Add(t.Delay()), nil
	default:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	}
}

func (t Target) String() string {
	switch t.Kind {
	case KindTimeOfDay:
		return fmt.Sprintf("at %02d:%02d", t.Hour, t.Minute)
	case KindDelay:
		return fmt.Sprintf("after %02d:%02d", t.Hours, t.Minutes)
	default:
		return "invalid target"
	}
}
