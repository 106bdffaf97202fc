/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package target

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse builds a target from a mode ("at" or "after") and its text value.
func Parse(mode, value string) (Target, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(mode))) {
	case KindTimeOfDay:
		return ParseTimeOfDay(value)
	case KindDelay:
		return ParseDelay(value)
	default:
		return Target{}, fmt.Errorf("%w: unknown mode %q (want at or after)", ErrInvalidTarget, mode)
	}
}

// ParseTimeOfDay accepts "HH:MM" or "HHMM".
func ParseTimeOfDay(s string) (Target, error) {
	h, m, err := splitClock(s)
	if err != nil {
		return Target{}, err
	}
	t := AtTimeOfDay(h, m)
	return t, t.Validate()
}

// ParseDelay accepts an "HH:MM" delay or a duration such as "90m" or "1h30m".
// Durations must be a whole number of minutes.
func ParseDelay(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		h, m, err := splitClock(s)
		if err != nil {
			return Target{}, err
		}
		t := After(h, m)
		return t, t.Validate()
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q is neither HH:MM nor a duration", ErrInvalidTarget, s)
	}
	if d%time.Minute != 0 {
		return Target{}, fmt.Errorf("%w: delay %s is not a whole number of minutes", ErrInvalidTarget, d)
	}
	t := After(int(d/time.Hour), int((d%time.Hour)/time.Minute))
	return t, t.Validate()
}

func splitClock(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	var hs, ms string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hs, ms = s[:i], s[i+1:]
	} else if len(s) == 4 {
		hs, ms = s[:2], s[2:]
	} else {
		return 0, 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTarget, s)
	}

	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: hour %q is not a number", ErrInvalidTarget, hs)
	}
	if len(ms) != 2 {
		return 0, 0, fmt.Errorf("%w: minute %q must have two digits", ErrInvalidTarget, ms)
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: minute %q is not a number", ErrInvalidTarget, ms)
	}
	return h, m, nil
}
